package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/attaboy/tracking/internal/clientctx"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/metrics"
	"github.com/attaboy/tracking/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	entryClick = "click"
	entryVisit = "visit"
)

// RedirectHandler serves the browser-facing /c and /v routes. Every outcome
// is a redirect: either to the destination or to a fixed error route.
type RedirectHandler struct {
	redirects *service.RedirectService
	visits    *service.VisitService
	logger    *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler.
func NewRedirectHandler(redirects *service.RedirectService, visits *service.VisitService, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{redirects: redirects, visits: visits, logger: logger}
}

// HandleClick handles GET /c/{id}?visitor_id=...
func (h *RedirectHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "id")
	visitorID := r.URL.Query().Get("visitor_id")
	if visitorID == "" {
		h.logger.Info("click without visitor_id", "tracking_link_id", linkID, "request_id", GetRequestID(r.Context()))
		h.redirectError(w, r, entryClick, domain.RouteBadRequest)
		return
	}

	res, err := h.redirects.Click(r.Context(), service.ClickRequest{
		TrackingLinkID: linkID,
		VisitorID:      visitorID,
		Context:        clientctx.Extract(r),
	})
	if err != nil {
		h.logFailure(r, entryClick, linkID, err)
		h.redirectError(w, r, entryClick, domain.RouteFor(err))
		return
	}

	metrics.Redirects.WithLabelValues(entryClick, "ok").Inc()
	Redirect(w, r, res.Location)
	h.redirects.FollowUp(r.Context(), res)
}

// HandleVisit handles GET /v/{id}[?referrer=...]. Every failure goes to /error.
func (h *RedirectHandler) HandleVisit(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "id")

	res, err := h.visits.Visit(r.Context(), service.VisitRequest{
		TrackingLinkID: linkID,
		Query:          r.URL.Query(),
		Context:        clientctx.Extract(r),
	})
	if err != nil {
		h.logFailure(r, entryVisit, linkID, err)
		h.redirectError(w, r, entryVisit, domain.RouteError)
		return
	}

	metrics.Redirects.WithLabelValues(entryVisit, "ok").Inc()
	Redirect(w, r, res.Location)
	h.visits.FollowUp(r.Context(), res)
}

func (h *RedirectHandler) redirectError(w http.ResponseWriter, r *http.Request, entry, route string) {
	metrics.Redirects.WithLabelValues(entry, strings.TrimPrefix(route, "/")).Inc()
	Redirect(w, r, route)
}

func (h *RedirectHandler) logFailure(r *http.Request, entry, linkID string, err error) {
	attrs := []any{"entry", entry, "tracking_link_id", linkID, "error", err, "request_id", GetRequestID(r.Context())}
	if appErr, ok := domain.AsAppError(err); ok && appErr.Status < http.StatusInternalServerError {
		h.logger.Info("tracking request rejected", attrs...)
		return
	}
	h.logger.Error("tracking request failed", attrs...)
}

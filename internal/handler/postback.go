package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/attaboy/tracking/internal/auth"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/guard"
	"github.com/attaboy/tracking/internal/service"
)

// PostbackHandler receives conversion notifications from affiliate networks.
type PostbackHandler struct {
	conversions *service.ConversionService
	limiter     *guard.RateLimiter
	logger      *slog.Logger
}

// NewPostbackHandler creates a new PostbackHandler. A nil limiter disables rate limiting.
func NewPostbackHandler(conversions *service.ConversionService, limiter *guard.RateLimiter, logger *slog.Logger) *PostbackHandler {
	return &PostbackHandler{conversions: conversions, limiter: limiter, logger: logger}
}

// HandlePostback handles GET and POST /postback. Parameters come from the
// query string, a form body or a JSON body.
func (h *PostbackHandler) HandlePostback(w http.ResponseWriter, r *http.Request) {
	network := auth.SubjectFromContext(r.Context())
	if res := h.limiter.Check(network); !res.Allowed {
		h.logger.Warn("postback rate limited", "network_id", network, "reason", res.Reason)
		RespondError(w, domain.ErrRateLimited(res.Reason))
		return
	}

	in, err := parsePostback(w, r)
	if err != nil {
		RespondError(w, err)
		return
	}
	in.NetworkID = network

	conv, err := h.conversions.RecordPostback(r.Context(), in)
	if err != nil {
		if appErr, ok := domain.AsAppError(err); !ok || appErr.Status >= http.StatusInternalServerError {
			h.logger.Error("postback failed", "network_id", network, "click_id", in.ClickID, "error", err)
		}
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"conversion_id": conv.ID,
		"status":        conv.Status,
		"value_cents":   conv.ValueCents,
	})
}

func parsePostback(w http.ResponseWriter, r *http.Request) (service.PostbackInput, error) {
	var in service.PostbackInput
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := DecodeJSON(w, r, &in)
		return in, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return in, domain.ErrValidation("invalid form body")
	}
	in.ClickID = r.Form.Get("click_id")
	in.OfferID = r.Form.Get("offer_id")
	in.TransactionID = r.Form.Get("transaction_id")
	in.Value = r.Form.Get("value")
	in.Status = r.Form.Get("status")
	return in, nil
}

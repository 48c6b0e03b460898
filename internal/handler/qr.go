package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// QRHandler renders QR codes pointing at a tracking link's visit URL.
type QRHandler struct {
	baseURL string
	logger  *slog.Logger
}

// NewQRHandler creates a new QRHandler. baseURL is the public origin of the tracker.
func NewQRHandler(baseURL string, logger *slog.Logger) *QRHandler {
	return &QRHandler{baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// HandleQR handles GET /v/{id}/qr[?size=N].
func (h *QRHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := domain.ValidateIdentifier("tracking_link_id", id); err != nil {
		RespondError(w, err)
		return
	}

	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			RespondError(w, domain.ErrValidation("size must be between 64 and 1024"))
			return
		}
		size = n
	}

	png, err := qrcode.Encode(h.VisitURL(id), qrcode.Medium, size)
	if err != nil {
		h.logger.Error("encode qr code", "tracking_link_id", id, "error", err)
		RespondError(w, domain.ErrInternal("encode qr code", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// VisitURL returns the public /v URL of a tracking link.
func (h *QRHandler) VisitURL(id string) string {
	return h.baseURL + "/v/" + id
}

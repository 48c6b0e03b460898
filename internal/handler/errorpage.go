package handler

import (
	"net/http"

	"github.com/attaboy/tracking/internal/domain"
)

var errorPages = map[string]struct {
	status  int
	message string
}{
	domain.RouteBadRequest:  {http.StatusBadRequest, "The link you followed is incomplete or invalid."},
	domain.RouteNotFound:    {http.StatusNotFound, "The link you followed does not exist."},
	domain.RouteServerError: {http.StatusInternalServerError, "Something went wrong. Please try again later."},
	domain.RouteError:       {http.StatusBadRequest, "This link is not available right now."},
}

// ErrorPage serves the plain text page behind one of the fixed error routes.
func ErrorPage(route string) http.HandlerFunc {
	page, ok := errorPages[route]
	if !ok {
		page = errorPages[domain.RouteServerError]
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(page.status)
		w.Write([]byte(page.message + "\n"))
	}
}

package domain

import "net/http"

// Fixed routes browser-facing errors redirect to.
const (
	RouteBadRequest  = "/400"
	RouteNotFound    = "/404"
	RouteServerError = "/500"
	RouteError       = "/error"
)

// RouteFor maps an error from the click pipeline to its error route:
// 404 AppErrors to /404, other 4xx AppErrors to /400, everything else to /500.
func RouteFor(err error) string {
	appErr, ok := AsAppError(err)
	if !ok {
		return RouteServerError
	}
	switch {
	case appErr.Status == http.StatusNotFound:
		return RouteNotFound
	case appErr.Status >= 400 && appErr.Status < 500:
		return RouteBadRequest
	default:
		return RouteServerError
	}
}

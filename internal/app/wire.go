// Package app assembles the tracker's HTTP surface from its components.
package app

import (
	"log/slog"
	"time"

	"github.com/attaboy/tracking/internal/auth"
	"github.com/attaboy/tracking/internal/clientctx"
	"github.com/attaboy/tracking/internal/destination"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/guard"
	"github.com/attaboy/tracking/internal/handler"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/service"
	"github.com/attaboy/tracking/internal/split"
	"github.com/attaboy/tracking/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Pool       repository.Pool
	Health     infra.Pinger
	Repos      repository.Set
	Dispatcher *tracking.Dispatcher
	TokenMgr   *auth.TokenManager
	Policy     policy.ConversionPolicy
	Logger     *slog.Logger

	// Optional collaborators
	Locator   clientctx.Locator
	Analytics tracking.ClickSink
	Picker    destination.Picker

	PublicBaseURL     string
	PostbackRateLimit int
	GeoTimeout        time.Duration
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	repos := deps.Repos

	picker := deps.Picker
	if picker == nil {
		picker = split.NewSelector()
	}

	recorder := tracking.NewRecorder(tracking.RecorderDeps{
		Pool:        deps.Pool,
		Visitors:    repos.Visitors,
		Clicks:      repos.Clicks,
		Conversions: repos.Conversions,
		Outbox:      repos.Outbox,
		Analytics:   deps.Analytics,
		Policy:      deps.Policy,
		Logger:      logger,
	})

	// Services
	pipeline := service.PipelineDeps{
		DB:         deps.Pool,
		Links:      repos.Links,
		Visitors:   repos.Visitors,
		Leads:      repos.Leads,
		Geo:        clientctx.NewResolver(deps.Locator, deps.GeoTimeout, logger),
		Resolver:   destination.NewResolver(picker, logger),
		Recorder:   recorder,
		Dispatcher: deps.Dispatcher,
		Logger:     logger,
	}
	redirectSvc := service.NewRedirectService(pipeline)
	visitSvc := service.NewVisitService(pipeline)
	conversionSvc := service.NewConversionService(deps.Pool, repos.Clicks, repos.Offers, repos.Leads, recorder, logger)

	// Handlers
	redirectHandler := handler.NewRedirectHandler(redirectSvc, visitSvc, logger)
	postbackHandler := handler.NewPostbackHandler(conversionSvc, guard.NewRateLimiter(deps.PostbackRateLimit, time.Minute), logger)
	qrHandler := handler.NewQRHandler(deps.PublicBaseURL, logger)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.RequestID)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestLogger(logger))

	r.Get("/health", handler.HealthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	// Browser-facing tracking routes (no auth, always redirect)
	r.Get("/c/{id}", redirectHandler.HandleClick)
	r.Get("/v/{id}", redirectHandler.HandleVisit)
	r.Get("/v/{id}/qr", qrHandler.HandleQR)

	for _, route := range []string{domain.RouteBadRequest, domain.RouteNotFound, domain.RouteServerError, domain.RouteError} {
		r.Get(route, handler.ErrorPage(route))
	}

	// Network-authenticated postbacks
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateNetwork(deps.TokenMgr))

		r.Get("/postback", postbackHandler.HandlePostback)
		r.Post("/postback", postbackHandler.HandlePostback)
	})

	return r
}

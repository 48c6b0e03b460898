package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/attaboy/tracking/internal/auth"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/attaboy/tracking/internal/repository/memrepo"
	"github.com/attaboy/tracking/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-long-enough"

type testEnv struct {
	store      *memrepo.Store
	dispatcher *tracking.Dispatcher
	tokens     *auth.TokenManager
	router     chi.Router
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memrepo.New()
	dispatcher := tracking.NewDispatcher(32, time.Second, logger)
	tokens := auth.NewTokenManager(testSecret, time.Hour)

	router := NewRouter(RouterDeps{
		Pool:              store,
		Health:            store,
		Repos:             store.Repos(),
		Dispatcher:        dispatcher,
		TokenMgr:          tokens,
		Policy:            policy.DefaultConversionPolicy(),
		Logger:            logger,
		PublicBaseURL:     "https://track.example.com",
		PostbackRateLimit: rateLimit,
		GeoTimeout:        time.Second,
	})
	t.Cleanup(dispatcher.Wait)
	return &testEnv{store: store, dispatcher: dispatcher, tokens: tokens, router: router}
}

func (e *testEnv) get(target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		req.Header[k] = vs
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) networkToken(t *testing.T, network string) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(auth.RealmNetwork, network, auth.StatusActive)
	require.NoError(t, err)
	return token
}

func activeSource() *domain.TrafficSource {
	return &domain.TrafficSource{ID: "ts-1", Name: "facebook", Status: domain.SourceActive}
}

func TestScenarioA_SplitTestRedirects(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{
		ID:            "tl-split",
		TrafficSource: activeSource(),
		Placement: domain.Placement{
			TargetType: domain.TargetSplitTest,
			SplitTest: &domain.SplitTest{ID: "st-1", Variants: []domain.Variant{
				{ID: "v1", Weight: 1, Offer: &domain.Offer{ID: "O1", URL: "https://o1.com?u={utm_source}", Type: domain.OfferCPA}},
				{ID: "v2", Weight: 1, Offer: &domain.Offer{ID: "O2", URL: "https://o2.com", Type: domain.OfferCPA}},
			}},
		},
	})
	env.store.PutVisitor(&domain.Visitor{ID: "visitor-1", Context: domain.ClientContext{UTM: domain.UTM{Source: "fb"}}})

	counts := map[string]int{}
	const trials = 1000
	for i := 0; i < trials; i++ {
		w := env.get("/c/tl-split?visitor_id=visitor-1", nil)
		require.Equal(t, http.StatusFound, w.Code)
		counts[w.Header().Get("Location")]++
	}

	require.Len(t, counts, 2, "got %v", counts)
	assert.InDelta(t, trials/2, counts["https://o1.com?u=fb"], trials*0.08)
	assert.InDelta(t, trials/2, counts["https://o2.com"], trials*0.08)
}

func TestScenarioB_MissingVisitorID(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{ID: "tl-1", LandingPage: &domain.LandingPage{ID: "lp", URL: "https://lp.com"}})

	w := env.get("/c/tl-1", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/400", w.Header().Get("Location"))
	assert.Zero(t, env.store.ClickCount())
}

func TestScenarioC_InactiveSource(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{
		ID:            "tl-1",
		LandingPage:   &domain.LandingPage{ID: "lp", URL: "https://lp.com"},
		TrafficSource: &domain.TrafficSource{ID: "ts-1", Name: "fb", Status: domain.SourcePaused},
	})

	w := env.get("/v/tl-1", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/error", w.Header().Get("Location"))

	env.dispatcher.Wait()
	assert.Zero(t, env.store.VisitorCount())
}

func TestClickErrorRoutes(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{ID: "tl-empty"})

	assert.Equal(t, "/404", env.get("/c/unknown?visitor_id=v1", nil).Header().Get("Location"))
	assert.Equal(t, "/400", env.get("/c/tl-empty?visitor_id=v1", nil).Header().Get("Location"))
	assert.Equal(t, "/error", env.get("/v/unknown", nil).Header().Get("Location"))

	w := env.get("/404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClickBeforeRedirect(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{
		ID:            "tl-cpc",
		TrafficSource: activeSource(),
		Placement: domain.Placement{
			TargetType: domain.TargetOffer,
			Offer:      &domain.Offer{ID: "offer-cpc", Type: domain.OfferCPC, URL: "https://net.com/?cid={click_id}&e={email}"},
		},
	})
	env.store.PutLead(&domain.Lead{ID: "lead-1", VisitorID: "visitor-1", Email: "jo@example.com"})

	w := env.get("/c/tl-cpc?visitor_id=visitor-1", http.Header{"X-Forwarded-For": {"198.51.100.7, 10.0.0.1"}})
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	clickID := loc.Query().Get("cid")
	assert.Equal(t, "jo@example.com", loc.Query().Get("e"))

	click := env.store.Click(clickID)
	require.NotNil(t, click, "click must be stored when the redirect is returned")
	assert.Equal(t, "198.51.100.7", click.Context.IP)

	env.dispatcher.Wait()
	convs := env.store.Conversions()
	require.Len(t, convs, 1)
	assert.Equal(t, clickID, convs[0].ClickID)
	assert.Equal(t, "lead-1", convs[0].LeadID)
}

func TestCPCWithoutLead(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{
		ID:        "tl-cpc",
		Placement: domain.Placement{TargetType: domain.TargetOffer, Offer: &domain.Offer{ID: "o", Type: domain.OfferCPC, URL: "https://net.com"}},
	})

	w := env.get("/c/tl-cpc?visitor_id=visitor-1", nil)
	assert.Equal(t, "/400", w.Header().Get("Location"))
	env.dispatcher.Wait()
	assert.Empty(t, env.store.Conversions())
}

func TestVisitThenClick(t *testing.T) {
	env := newTestEnv(t, 0)
	env.store.PutLink(&domain.TrackingLink{
		ID:            "tl-1",
		LandingPage:   &domain.LandingPage{ID: "lp", URL: "https://lp.com/start"},
		TrafficSource: activeSource(),
		Placement:     domain.Placement{TargetType: domain.TargetOffer, Offer: &domain.Offer{ID: "o1", Type: domain.OfferCPA, URL: "https://o1.com?s={utm_source}&c={utm_campaign}"}},
		UTM:           domain.UTM{Campaign: "launch"},
	})

	w := env.get("/v/tl-1?referrer=https%3A%2F%2Fnews.example.com", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	visitorID := loc.Query().Get("visitor_id")
	require.NotEmpty(t, visitorID)
	assert.Equal(t, "facebook", loc.Query().Get("utm_source"))

	env.dispatcher.Wait()
	require.NotNil(t, env.store.Visitor(visitorID))

	w = env.get("/c/tl-1?visitor_id="+visitorID, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://o1.com?s=facebook&c=launch", w.Header().Get("Location"))
	assert.Equal(t, 1, env.store.VisitorCount())
}

func postbackSetup(t *testing.T, env *testEnv) string {
	t.Helper()
	value := int64(1000)
	env.store.PutLink(&domain.TrackingLink{
		ID:        "tl-cpa",
		Placement: domain.Placement{TargetType: domain.TargetOffer, Offer: &domain.Offer{ID: "offer-cpa", Type: domain.OfferCPA, URL: "https://net.com/?cid={click_id}", ValueCents: &value}},
	})
	w := env.get("/c/tl-cpa?visitor_id=visitor-1", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Query().Get("cid")
}

func TestPostback_DuplicateSuppression(t *testing.T) {
	env := newTestEnv(t, 0)
	clickID := postbackSetup(t, env)
	token := env.networkToken(t, "net-1")
	target := "/postback?click_id=" + clickID + "&offer_id=offer-cpa&transaction_id=txn-9&token=" + token

	w := env.get(target, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body["conversion_id"])
	assert.Equal(t, float64(1000), body["value_cents"])

	w = env.get(target, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DUPLICATE_CONVERSION")

	assert.Len(t, env.store.Conversions(), 1)
}

func TestPostback_JSONBody(t *testing.T) {
	env := newTestEnv(t, 0)
	clickID := postbackSetup(t, env)

	req := httptest.NewRequest(http.MethodPost, "/postback",
		strings.NewReader(`{"click_id":"`+clickID+`","value":"2.5","status":"pending"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.networkToken(t, "net-1"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	convs := env.store.Conversions()
	require.Len(t, convs, 1)
	assert.Equal(t, int64(250), convs[0].ValueCents)
	assert.Equal(t, domain.ConversionPending, convs[0].Status)
	assert.Contains(t, string(convs[0].Metadata), "net-1")
}

func TestPostback_Errors(t *testing.T) {
	env := newTestEnv(t, 0)
	token := env.networkToken(t, "net-1")

	assert.Equal(t, http.StatusUnauthorized, env.get("/postback?click_id=x", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/postback?click_id=missing&token="+token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/postback?token="+token, nil).Code)
}

func TestPostback_RateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	token := env.networkToken(t, "net-1")
	other := env.networkToken(t, "net-2")

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, env.get("/postback?click_id=missing&token="+token, nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, env.get("/postback?click_id=missing&token="+token, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.get("/postback?click_id=missing&token="+other, nil).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 0)

	assert.Equal(t, http.StatusOK, env.get("/health", nil).Code)

	env.get("/c/tl-x", nil)
	w := env.get("/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tracking_redirects_total")
}

func TestQRRoute(t *testing.T) {
	env := newTestEnv(t, 0)
	w := env.get("/v/tl-1/qr", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

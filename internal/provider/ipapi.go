package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/guard"
)

// DefaultGeoAPIURL is the ip-api.com JSON endpoint.
const DefaultGeoAPIURL = "http://ip-api.com/json"

// HTTPGeo resolves IP locations through an ip-api.com compatible JSON API.
// A circuit breaker stops calling the API while it keeps failing.
type HTTPGeo struct {
	baseURL string
	client  *http.Client
	breaker *guard.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPGeo creates a geo client. An empty baseURL uses DefaultGeoAPIURL.
func NewHTTPGeo(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPGeo {
	if baseURL == "" {
		baseURL = DefaultGeoAPIURL
	}
	return &HTTPGeo{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: guard.NewCircuitBreaker(5, 30*time.Second),
		logger:  logger,
	}
}

// Locate looks up ip. A response whose status is not "success" is an error.
func (g *HTTPGeo) Locate(ctx context.Context, ip string) (domain.GeoLocation, error) {
	if check := g.breaker.Check(g.baseURL); !check.Allowed {
		return domain.GeoLocation{}, fmt.Errorf("geo api unavailable: %s", check.Reason)
	}

	loc, err := g.fetch(ctx, ip)
	if err != nil {
		g.breaker.RecordFailure(g.baseURL)
		return domain.GeoLocation{}, err
	}
	g.breaker.RecordSuccess(g.baseURL)
	return loc, nil
}

func (g *HTTPGeo) fetch(ctx context.Context, ip string) (domain.GeoLocation, error) {
	endpoint := g.baseURL + "/" + url.PathEscape(ip) + "?fields=status,message,country,regionName,city"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.GeoLocation{}, fmt.Errorf("geo api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GeoLocation{}, fmt.Errorf("geo api returned %d", resp.StatusCode)
	}

	var body struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		City       string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.GeoLocation{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Status != "success" {
		return domain.GeoLocation{}, fmt.Errorf("geo lookup for %s: %s %s", ip, body.Status, body.Message)
	}

	return domain.GeoLocation{Country: body.Country, Region: body.RegionName, City: body.City}, nil
}

// Package clientctx derives network, device, geo and UTM facts from inbound requests.
package clientctx

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/metrics"
	"github.com/mssola/useragent"
)

// UnknownIP is recorded when no client address header is present.
const UnknownIP = "unknown"

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ctx context.Context, ip string) (domain.GeoLocation, error)
}

// Resolver bounds geo lookups and degrades every failure to an empty location.
type Resolver struct {
	locator Locator
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver creates a Resolver. A nil locator disables geo lookups.
func NewResolver(locator Locator, timeout time.Duration, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Resolver{locator: locator, timeout: timeout, logger: logger}
}

// Locate looks up ip within the configured timeout. It never returns an error:
// failures, timeouts and non-routable addresses all yield an empty location.
func (r *Resolver) Locate(ctx context.Context, ip string) domain.GeoLocation {
	if r == nil || r.locator == nil {
		return domain.GeoLocation{}
	}
	if !routable(ip) {
		metrics.GeoLookups.WithLabelValues("skipped").Inc()
		return domain.GeoLocation{}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		geo domain.GeoLocation
		err error
	}
	ch := make(chan result, 1)
	go func() {
		g, err := r.locator.Locate(ctx, ip)
		ch <- result{geo: g, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			metrics.GeoLookups.WithLabelValues("failed").Inc()
			r.logger.Warn("geo lookup failed", "ip", ip, "error", res.err)
			return domain.GeoLocation{}
		}
		metrics.GeoLookups.WithLabelValues("ok").Inc()
		return res.geo
	case <-ctx.Done():
		metrics.GeoLookups.WithLabelValues("timeout").Inc()
		r.logger.Warn("geo lookup timed out", "ip", ip, "timeout", r.timeout)
		return domain.GeoLocation{}
	}
}

// Extract derives every request fact that needs no network access.
func Extract(req *http.Request) domain.ClientContext {
	q := req.URL.Query()
	ua := req.UserAgent()
	device, browser, os := ParseUserAgent(ua)

	return domain.ClientContext{
		IP:        ClientIP(req),
		UserAgent: ua,
		Referer:   req.Referer(),
		UTM: domain.UTM{
			Source:   q.Get("utm_source"),
			Medium:   q.Get("utm_medium"),
			Campaign: q.Get("utm_campaign"),
			Content:  q.Get("utm_content"),
			Term:     q.Get("utm_term"),
		},
		Language: PrimaryLanguage(req.Header.Get("Accept-Language")),
		Device:   device,
		Browser:  browser,
		OS:       os,
	}
}

// ClientIP returns the caller address using X-Forwarded-For (first entry),
// then X-Real-IP, then CF-Connecting-IP, falling back to UnknownIP.
func ClientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(req.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownIP
}

// PrimaryLanguage returns the first language tag of an Accept-Language header.
func PrimaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	tag = strings.TrimSpace(tag)
	if tag == "*" {
		return ""
	}
	return tag
}

// ParseUserAgent classifies a user agent string. Unparseable input yields empty fields.
func ParseUserAgent(s string) (device, browser, os string) {
	if strings.TrimSpace(s) == "" {
		return "", "", ""
	}
	defer func() {
		if recover() != nil {
			device, browser, os = "", "", ""
		}
	}()

	ua := useragent.New(s)
	browser, _ = ua.Browser()
	os = ua.OS()

	switch {
	case ua.Bot():
		device = "bot"
	case strings.Contains(s, "iPad") || strings.Contains(s, "Tablet"):
		device = "tablet"
	case ua.Mobile():
		device = "mobile"
	default:
		device = "desktop"
	}
	return device, browser, os
}

func routable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsMulticast())
}

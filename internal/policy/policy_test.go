package policy

import (
	"testing"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestAutoConvert_DefaultPolicy(t *testing.T) {
	p := DefaultConversionPolicy()

	tests := []struct {
		name  string
		offer *domain.Offer
		want  bool
	}{
		{"nil offer", nil, false},
		{"cpc", &domain.Offer{Type: domain.OfferCPC}, true},
		{"cpa", &domain.Offer{Type: domain.OfferCPA}, false},
		{"static", &domain.Offer{Type: domain.OfferStatic}, false},
		{"cpc opted out", &domain.Offer{Type: domain.OfferCPC, AutoConvert: boolPtr(false)}, false},
		{"cpl opted in", &domain.Offer{Type: domain.OfferCPL, AutoConvert: boolPtr(true)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.AutoConvert(tt.offer))
		})
	}
}

func TestDuplicateWindowFor(t *testing.T) {
	p := DefaultConversionPolicy()
	assert.Equal(t, 24*time.Hour, p.DuplicateWindowFor(&domain.Offer{}))
	assert.Equal(t, time.Hour, p.DuplicateWindowFor(&domain.Offer{DuplicateWindow: time.Hour}))

	assert.Equal(t, DefaultDuplicateWindow, ConversionPolicy{}.DuplicateWindowFor(nil))
	assert.Equal(t, 2*time.Hour, ConversionPolicy{DuplicateWindow: 2 * time.Hour}.DuplicateWindowFor(nil))
}

func TestDuplicateQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := DefaultConversionPolicy().DuplicateQuery("click-1", &domain.Offer{ID: "offer-1"}, "txn-9", now)

	assert.Equal(t, "click-1", q.ClickID)
	assert.Equal(t, "offer-1", q.OfferID)
	assert.Equal(t, "txn-9", q.TransactionID)
	assert.Equal(t, now.Add(-24*time.Hour), q.Since)
}

func TestEvaluateTrafficSource(t *testing.T) {
	assert.True(t, EvaluateTrafficSource(&domain.TrafficSource{ID: "ts", Status: domain.SourceActive}).Allowed)
	assert.NoError(t, EvaluateTrafficSource(&domain.TrafficSource{Status: domain.SourceActive}).Err())

	paused := EvaluateTrafficSource(&domain.TrafficSource{ID: "ts-2", Status: domain.SourcePaused})
	assert.False(t, paused.Allowed)
	assert.Contains(t, paused.Reason, "PAUSED")
	require.Error(t, paused.Err())
	assert.True(t, domain.HasCode(paused.Err(), domain.CodeInactiveSource))

	missing := EvaluateTrafficSource(nil)
	assert.False(t, missing.Allowed)
	assert.True(t, domain.HasCode(missing.Err(), domain.CodeInactiveSource))
}

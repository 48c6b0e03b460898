package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"uuid", "3f2b8c4e-5d6a-4b7c-8e9f-0a1b2c3d4e5f", ""},
		{"underscore", "tl_abc123", ""},
		{"empty", "", "visitor_id is required"},
		{"space", "abc def", "invalid visitor_id format"},
		{"slash", "abc/def", "invalid visitor_id format"},
		{"too long", string(make([]byte, 129)), "invalid visitor_id format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier("visitor_id", tt.id)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, HasCode(err, "VALIDATION_ERROR"))
		})
	}
}

func TestParseConversionStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    ConversionStatus
		wantErr bool
	}{
		{"", ConversionCompleted, false},
		{"completed", ConversionCompleted, false},
		{" PENDING ", ConversionPending, false},
		{"rejected", ConversionRejected, false},
		{"paid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConversionStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateNonNegativeAmount(t *testing.T) {
	assert.NoError(t, ValidateNonNegativeAmount(0))
	assert.NoError(t, ValidateNonNegativeAmount(100))
	assert.Error(t, ValidateNonNegativeAmount(-1))
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("tracking link", "tl-1")
		assert.Equal(t, "NOT_FOUND: tracking link tl-1 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrInternal("database error", cause)
		assert.Contains(t, err.Error(), "INTERNAL_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrNotFound", ErrNotFound("click", "123"), "NOT_FOUND", 404},
		{"ErrConflict", ErrConflict("already exists"), "CONFLICT", 409},
		{"ErrValidation", ErrValidation("bad input"), "VALIDATION_ERROR", 400},
		{"ErrUnauthorized", ErrUnauthorized("no token"), "UNAUTHORIZED", 401},
		{"ErrRateLimited", ErrRateLimited("slow down"), "RATE_LIMITED", 429},
		{"ErrInternal", ErrInternal("oops", nil), "INTERNAL_ERROR", 500},
		{"ErrNoVariantAvailable", ErrNoVariantAvailable("st-1"), CodeNoVariantAvailable, 422},
		{"ErrUnresolvedDestination", ErrUnresolvedDestination("tl-1"), CodeUnresolvedDestination, 400},
		{"ErrDuplicateConversion", ErrDuplicateConversion("conv-1"), CodeDuplicateConversion, 409},
		{"ErrInactiveSource", ErrInactiveSource("paused"), CodeInactiveSource, 403},
		{"ErrLeadRequired", ErrLeadRequired("v-1"), CodeLeadRequired, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestHasCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("record: %w", ErrDuplicateConversion("conv-1"))
	assert.True(t, HasCode(err, CodeDuplicateConversion))
	assert.False(t, HasCode(err, CodeLeadRequired))
	assert.False(t, HasCode(errors.New("plain"), CodeDuplicateConversion))
}

// --- Route Tests ---

func TestRouteFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", ErrNotFound("tracking link", "x"), RouteNotFound},
		{"validation", ErrValidation("visitor_id is required"), RouteBadRequest},
		{"unresolved", ErrUnresolvedDestination("x"), RouteBadRequest},
		{"no variant", ErrNoVariantAvailable("x"), RouteBadRequest},
		{"lead required", ErrLeadRequired("x"), RouteBadRequest},
		{"internal", ErrInternal("db", nil), RouteServerError},
		{"plain error", errors.New("boom"), RouteServerError},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound("x", "y")), RouteNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RouteFor(tt.err))
		})
	}
}

// --- Tracking Type Tests ---

func TestOffer_Value(t *testing.T) {
	v := int64(250)
	assert.Equal(t, int64(250), (&Offer{ValueCents: &v}).Value())
	assert.Equal(t, int64(0), (&Offer{}).Value())

	var nilOffer *Offer
	assert.Equal(t, int64(0), nilOffer.Value())
}

func TestUTM_Params(t *testing.T) {
	u := UTM{Source: "newsletter", Campaign: "spring"}
	assert.Equal(t, map[string]string{"utm_source": "newsletter", "utm_campaign": "spring"}, u.Params())
	assert.Empty(t, UTM{}.Params())
	assert.True(t, UTM{}.IsZero())
	assert.False(t, u.IsZero())
}

func TestClientContext_WithGeo(t *testing.T) {
	cc := ClientContext{IP: "1.2.3.4", Country: "XX"}
	got := cc.WithGeo(GeoLocation{Country: "US", City: "Austin"})

	assert.Equal(t, "US", got.Country)
	assert.Equal(t, "Austin", got.City)
	assert.Equal(t, "", got.Region)
	assert.Equal(t, "1.2.3.4", got.IP)
	assert.Equal(t, "XX", cc.Country, "receiver must be unchanged")
}

// --- Event Tests ---

func TestNewClickRecordedEvent(t *testing.T) {
	c := &Click{ID: "click-1", VisitorID: "visitor-1"}
	e := NewClickRecordedEvent(c)

	assert.Equal(t, EventClickRecorded, e.EventType)
	assert.Equal(t, AggregateClick, e.AggregateType)
	assert.Equal(t, "click-1", e.AggregateID)
	assert.Equal(t, "visitor-1", e.PartitionKey)
	assert.NotEqual(t, uuid.Nil, e.EventID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "click-1", payload["id"])
}

func TestNewConversionRecordedEvent(t *testing.T) {
	c := &Conversion{ID: "conv-1", VisitorID: "visitor-1"}
	e := NewConversionRecordedEvent(c)

	assert.Equal(t, EventConversionRecorded, e.EventType)
	assert.Equal(t, AggregateConversion, e.AggregateType)
	assert.Equal(t, "conv-1", e.AggregateID)
	assert.Equal(t, "visitor-1", e.PartitionKey)
}

func TestNewVisitorCreatedEvent(t *testing.T) {
	v := &Visitor{ID: "visitor-1", TrackingLinkID: "tl-1", Context: ClientContext{Country: "US"}}
	e := NewVisitorCreatedEvent(v)

	assert.Equal(t, EventVisitorCreated, e.EventType)
	assert.Equal(t, "visitor-1", e.PartitionKey)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	assert.Equal(t, "tl-1", payload["tracking_link_id"])
	assert.Equal(t, "US", payload["country"])
}

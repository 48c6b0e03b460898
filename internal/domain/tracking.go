package domain

import "time"

// TargetType identifies what a tracking link placement points at.
type TargetType string

const (
	TargetOffer       TargetType = "OFFER"
	TargetSplitTest   TargetType = "SPLIT_TEST"
	TargetLandingPage TargetType = "LANDING_PAGE"
)

// OfferType enumerates offer payout models.
type OfferType string

const (
	OfferCPC    OfferType = "CPC"
	OfferCPA    OfferType = "CPA"
	OfferCPL    OfferType = "CPL"
	OfferStatic OfferType = "STATIC"
)

// SourceStatus is the lifecycle state of a traffic source.
type SourceStatus string

const (
	SourceActive   SourceStatus = "ACTIVE"
	SourcePaused   SourceStatus = "PAUSED"
	SourceArchived SourceStatus = "ARCHIVED"
)

// Offer is a monetized destination. URL may contain {field} placeholders.
type Offer struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Type       OfferType `json:"type"`
	ValueCents *int64    `json:"value_cents,omitempty"`

	// AutoConvert overrides the type-based auto-conversion rule when set.
	AutoConvert *bool `json:"auto_convert,omitempty"`
	// DuplicateWindow overrides the default duplicate-conversion window when non-zero.
	DuplicateWindow time.Duration `json:"duplicate_window,omitempty"`
}

// Value returns the fixed offer value in cents, or 0 when the offer has none.
func (o *Offer) Value() int64 {
	if o == nil || o.ValueCents == nil {
		return 0
	}
	return *o.ValueCents
}

// LandingPage is the fallback destination of a tracking link.
type LandingPage struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TrafficSource is the channel a tracking link is published on.
type TrafficSource struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status SourceStatus `json:"status"`
}

// Variant is one weighted arm of a split test. Weight is relative, not a percentage.
type Variant struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
	Offer  *Offer  `json:"offer"`
}

// SplitTest holds variants in their stored order.
type SplitTest struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Variants []Variant `json:"variants"`
}

// Placement associates a tracking link with an offer or a split test.
type Placement struct {
	TargetType TargetType `json:"target_type"`
	Offer      *Offer     `json:"offer,omitempty"`
	SplitTest  *SplitTest `json:"split_test,omitempty"`
}

// UTM carries campaign attribution parameters.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
}

// IsZero reports whether no UTM field is set.
func (u UTM) IsZero() bool {
	return u == UTM{}
}

// Params returns the UTM fields keyed by their query parameter names.
// Empty fields are omitted.
func (u UTM) Params() map[string]string {
	out := make(map[string]string, 5)
	for k, v := range map[string]string{
		"utm_source":   u.Source,
		"utm_medium":   u.Medium,
		"utm_campaign": u.Campaign,
		"utm_content":  u.Content,
		"utm_term":     u.Term,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// TrackingLink is the entity a /c or /v request resolves.
type TrackingLink struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	LandingPage   *LandingPage   `json:"landing_page,omitempty"`
	TrafficSource *TrafficSource `json:"traffic_source,omitempty"`
	Placement     Placement      `json:"placement"`
	// UTM holds the defaults appended on the visit path when absent from the request.
	UTM       UTM       `json:"utm"`
	CreatedAt time.Time `json:"created_at"`
}

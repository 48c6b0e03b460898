package domain

import (
	"encoding/json"
	"time"
)

// Click is the immutable record of one /c pipeline execution.
type Click struct {
	ID             string        `json:"id"`
	VisitorID      string        `json:"visitor_id"`
	TrackingLinkID string        `json:"tracking_link_id"`
	OfferID        string        `json:"offer_id,omitempty"`
	SplitTestID    string        `json:"split_test_id,omitempty"`
	VariantID      string        `json:"variant_id,omitempty"`
	Destination    string        `json:"destination"`
	Context        ClientContext `json:"context"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ConversionStatus enumerates conversion states.
type ConversionStatus string

const (
	ConversionPending   ConversionStatus = "PENDING"
	ConversionCompleted ConversionStatus = "COMPLETED"
	ConversionRejected  ConversionStatus = "REJECTED"
)

// Conversion is a monetized outcome attributed to a click.
type Conversion struct {
	ID            string           `json:"id"`
	ClickID       string           `json:"click_id"`
	OfferID       string           `json:"offer_id"`
	VisitorID     string           `json:"visitor_id,omitempty"`
	LeadID        string           `json:"lead_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Status        ConversionStatus `json:"status"`
	ValueCents    int64            `json:"value_cents"`
	Metadata      json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// DuplicateQuery identifies prior conversions that make a new one a duplicate:
// same click and offer, and either the same non-empty transaction id or created after Since.
type DuplicateQuery struct {
	ClickID       string
	OfferID       string
	TransactionID string
	Since         time.Time
}

package domain

import "time"

// GeoLocation is the best-effort location of an IP address. Empty fields mean unknown.
type GeoLocation struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// ClientContext is the set of facts derived from one inbound request.
type ClientContext struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
	UTM       UTM    `json:"utm"`
	Country   string `json:"country,omitempty"`
	Region    string `json:"region,omitempty"`
	City      string `json:"city,omitempty"`
	Language  string `json:"language,omitempty"`
	Device    string `json:"device,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
}

// WithGeo returns a copy of the context with the location fields replaced.
func (c ClientContext) WithGeo(g GeoLocation) ClientContext {
	c.Country = g.Country
	c.Region = g.Region
	c.City = g.City
	return c
}

// Visitor is one browsing session. Created on first touch, never deleted here.
type Visitor struct {
	ID              string        `json:"id"`
	TrackingLinkID  string        `json:"tracking_link_id,omitempty"`
	LandingPageID   string        `json:"landing_page_id,omitempty"`
	TrafficSourceID string        `json:"traffic_source_id,omitempty"`
	Referrer        string        `json:"referrer,omitempty"`
	Context         ClientContext `json:"context"`
	PageViews       int           `json:"page_views"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Lead is created by the form-submission flow and only read by the tracker.
type Lead struct {
	ID        string         `json:"id"`
	VisitorID string         `json:"visitor_id"`
	Email     string         `json:"email,omitempty"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Company   string         `json:"company,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

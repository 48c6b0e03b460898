package repository

import (
	"context"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is a DBTX that can also open transactions. *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// All Find* methods return (nil, nil) when the row does not exist.

// TrackingLinkRepository loads tracking links with their placement preloaded.
type TrackingLinkRepository interface {
	// FindByID returns the link with landing page, traffic source, direct offer
	// and split test variants (in stored order) attached.
	FindByID(ctx context.Context, db DBTX, id string) (*domain.TrackingLink, error)
}

// TrafficSourceRepository reads traffic sources on their own, without the link join.
type TrafficSourceRepository interface {
	FindByID(ctx context.Context, db DBTX, id string) (*domain.TrafficSource, error)
}

// OfferRepository provides access to offers.
type OfferRepository interface {
	FindByID(ctx context.Context, db DBTX, id string) (*domain.Offer, error)
}

// VisitorRepository provides access to visitors.
type VisitorRepository interface {
	FindByID(ctx context.Context, db DBTX, id string) (*domain.Visitor, error)

	// CreateIfAbsent inserts the visitor unless a row with the same id exists.
	// Reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, db DBTX, v *domain.Visitor) (bool, error)
}

// LeadRepository reads leads written by the form-submission flow.
type LeadRepository interface {
	FindMostRecentByVisitor(ctx context.Context, db DBTX, visitorID string) (*domain.Lead, error)
}

// ClickRepository provides access to clicks. Clicks are immutable.
type ClickRepository interface {
	Insert(ctx context.Context, db DBTX, c *domain.Click) error
	FindByID(ctx context.Context, db DBTX, id string) (*domain.Click, error)
}

// ConversionRepository provides access to conversions.
type ConversionRepository interface {
	// LockClickOffer serializes conversion writes for one click+offer pair
	// until the surrounding transaction ends. db must be a transaction.
	LockClickOffer(ctx context.Context, db DBTX, clickID, offerID string) error

	// FindDuplicate returns the newest conversion matching q, if any.
	FindDuplicate(ctx context.Context, db DBTX, q domain.DuplicateQuery) (*domain.Conversion, error)

	Insert(ctx context.Context, db DBTX, c *domain.Conversion) error
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event within the caller's transaction.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}

// Set bundles one implementation of every repository.
type Set struct {
	Links          TrackingLinkRepository
	TrafficSources TrafficSourceRepository
	Offers         OfferRepository
	Visitors       VisitorRepository
	Leads          LeadRepository
	Clicks         ClickRepository
	Conversions    ConversionRepository
	Outbox         OutboxRepository
}

// NewPostgresSet returns the pgx-backed repositories.
func NewPostgresSet() Set {
	return Set{
		Links:          NewTrackingLinkRepository(),
		TrafficSources: NewTrafficSourceRepository(),
		Offers:         NewOfferRepository(),
		Visitors:       NewVisitorRepository(),
		Leads:          NewLeadRepository(),
		Clicks:         NewClickRepository(),
		Conversions:    NewConversionRepository(),
		Outbox:         NewOutboxRepository(),
	}
}

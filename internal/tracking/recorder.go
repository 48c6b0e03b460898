// Package tracking durably records clicks, visitors and conversions.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/metrics"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/google/uuid"
)

// ClickSink receives every committed click, for analytics.
type ClickSink interface {
	PushClick(c domain.Click)
}

// RecorderDeps holds the collaborators of a Recorder. Analytics and Now are optional.
type RecorderDeps struct {
	Pool        repository.Pool
	Visitors    repository.VisitorRepository
	Clicks      repository.ClickRepository
	Conversions repository.ConversionRepository
	Outbox      repository.OutboxRepository
	Analytics   ClickSink
	Policy      policy.ConversionPolicy
	Logger      *slog.Logger
	Now         func() time.Time
}

// Recorder writes tracking rows together with their outbox events.
type Recorder struct {
	pool        repository.Pool
	visitors    repository.VisitorRepository
	clicks      repository.ClickRepository
	conversions repository.ConversionRepository
	outbox      repository.OutboxRepository
	analytics   ClickSink
	policy      policy.ConversionPolicy
	logger      *slog.Logger
	now         func() time.Time
}

func NewRecorder(deps RecorderDeps) *Recorder {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		pool:        deps.Pool,
		visitors:    deps.Visitors,
		clicks:      deps.Clicks,
		conversions: deps.Conversions,
		outbox:      deps.Outbox,
		analytics:   deps.Analytics,
		policy:      deps.Policy,
		logger:      deps.Logger,
		now:         now,
	}
}

// Policy returns the conversion policy the recorder enforces.
func (r *Recorder) Policy() policy.ConversionPolicy { return r.policy }

// RecordClick stores click in one transaction with its outbox event. When
// firstTouch is non-nil the visitor is inserted first unless it already exists.
// The click is committed when RecordClick returns nil.
func (r *Recorder) RecordClick(ctx context.Context, click *domain.Click, firstTouch *domain.Visitor) error {
	start := time.Now()
	defer func() { metrics.ClickWriteSeconds.Observe(time.Since(start).Seconds()) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record click: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if firstTouch != nil {
		created, err := r.visitors.CreateIfAbsent(ctx, tx, firstTouch)
		if err != nil {
			return fmt.Errorf("record click: %w", err)
		}
		if created {
			if err := r.outbox.Insert(ctx, tx, domain.NewVisitorCreatedEvent(firstTouch)); err != nil {
				return fmt.Errorf("record click: %w", err)
			}
		}
	}

	if err := r.clicks.Insert(ctx, tx, click); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewClickRecordedEvent(click)); err != nil {
		return fmt.Errorf("record click: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("record click: commit: %w", err)
	}

	if r.analytics != nil {
		r.analytics.PushClick(*click)
	}
	return nil
}

// CreateVisitor inserts v unless it exists and reports whether it was created.
func (r *Recorder) CreateVisitor(ctx context.Context, v *domain.Visitor) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("create visitor: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := r.visitors.CreateIfAbsent(ctx, tx, v)
	if err != nil {
		return false, fmt.Errorf("create visitor: %w", err)
	}
	if !created {
		return false, nil
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewVisitorCreatedEvent(v)); err != nil {
		return false, fmt.Errorf("create visitor: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("create visitor: commit: %w", err)
	}
	return true, nil
}

// Conversion origins.
const (
	OriginAuto     = "auto"
	OriginPostback = "postback"
)

// ConversionInput describes a conversion to record. A nil ValueCents uses the
// offer value; an empty Status means COMPLETED.
type ConversionInput struct {
	ClickID       string
	VisitorID     string
	LeadID        string
	TransactionID string
	Offer         *domain.Offer
	ValueCents    *int64
	Status        domain.ConversionStatus
	Metadata      json.RawMessage
	Origin        string
}

// RecordConversion stores a conversion unless one already exists for the same
// click and offer with the same transaction id or within the duplicate window,
// in which case DUPLICATE_CONVERSION is returned. The check and insert run
// under a lock on the click+offer pair.
func (r *Recorder) RecordConversion(ctx context.Context, in ConversionInput) (*domain.Conversion, error) {
	origin := in.Origin
	if origin == "" {
		origin = OriginPostback
	}

	conv, err := r.recordConversion(ctx, in)
	switch {
	case err == nil:
		metrics.Conversions.WithLabelValues(origin, "created").Inc()
	case domain.HasCode(err, domain.CodeDuplicateConversion):
		metrics.Conversions.WithLabelValues(origin, "duplicate").Inc()
	default:
		metrics.Conversions.WithLabelValues(origin, "error").Inc()
	}
	return conv, err
}

func (r *Recorder) recordConversion(ctx context.Context, in ConversionInput) (*domain.Conversion, error) {
	if err := domain.ValidateIdentifier("click_id", in.ClickID); err != nil {
		return nil, err
	}
	if in.Offer == nil {
		return nil, domain.ErrValidation("offer is required")
	}
	status := in.Status
	if status == "" {
		status = domain.ConversionCompleted
	}
	value := in.Offer.Value()
	if in.ValueCents != nil {
		value = *in.ValueCents
	}
	if err := domain.ValidateNonNegativeAmount(value); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("record conversion: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.conversions.LockClickOffer(ctx, tx, in.ClickID, in.Offer.ID); err != nil {
		return nil, fmt.Errorf("record conversion: %w", err)
	}

	now := r.now()
	existing, err := r.conversions.FindDuplicate(ctx, tx, r.policy.DuplicateQuery(in.ClickID, in.Offer, in.TransactionID, now))
	if err != nil {
		return nil, fmt.Errorf("record conversion: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateConversion(existing.ID)
	}

	conv := &domain.Conversion{
		ID:            uuid.NewString(),
		ClickID:       in.ClickID,
		OfferID:       in.Offer.ID,
		VisitorID:     in.VisitorID,
		LeadID:        in.LeadID,
		TransactionID: in.TransactionID,
		Status:        status,
		ValueCents:    value,
		Metadata:      in.Metadata,
		CreatedAt:     now,
	}
	if err := r.conversions.Insert(ctx, tx, conv); err != nil {
		return nil, fmt.Errorf("record conversion: %w", err)
	}
	if err := r.outbox.Insert(ctx, tx, domain.NewConversionRecordedEvent(conv)); err != nil {
		return nil, fmt.Errorf("record conversion: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("record conversion: commit: %w", err)
	}
	return conv, nil
}

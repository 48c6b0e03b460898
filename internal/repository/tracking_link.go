package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type trackingLinkRepo struct{}

// NewTrackingLinkRepository returns a pgx-backed TrackingLinkRepository.
func NewTrackingLinkRepository() TrackingLinkRepository {
	return &trackingLinkRepo{}
}

func (r *trackingLinkRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.TrackingLink, error) {
	row := db.QueryRow(ctx, `
		SELECT tl.id, tl.name, tl.target_type, tl.created_at,
		       tl.utm_source, tl.utm_medium, tl.utm_campaign, tl.utm_content, tl.utm_term,
		       lp.id, lp.name, lp.url,
		       ts.id, ts.name, ts.status,
		       o.id, o.name, o.url, o.type, o.value, o.auto_convert, o.duplicate_window_seconds,
		       st.id, st.name
		FROM tracking_links tl
		LEFT JOIN landing_pages lp ON lp.id = tl.landing_page_id
		LEFT JOIN traffic_sources ts ON ts.id = tl.traffic_source_id
		LEFT JOIN offers o ON o.id = tl.offer_id
		LEFT JOIN split_tests st ON st.id = tl.split_test_id
		WHERE tl.id = $1`, id)

	var (
		link                           domain.TrackingLink
		targetType                     string
		utmS, utmM, utmCa, utmCo, utmT *string
		lpID, lpName, lpURL            *string
		tsID, tsName, tsStatus         *string
		offer                          offerColumns
		stID, stName                   *string
	)
	err := row.Scan(&link.ID, &link.Name, &targetType, &link.CreatedAt,
		&utmS, &utmM, &utmCa, &utmCo, &utmT,
		&lpID, &lpName, &lpURL,
		&tsID, &tsName, &tsStatus,
		&offer.id, &offer.name, &offer.url, &offer.typ, &offer.value, &offer.autoConvert, &offer.dupSeconds,
		&stID, &stName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan tracking link %s: %w", id, err)
	}

	link.UTM = domain.UTM{
		Source:   deref(utmS),
		Medium:   deref(utmM),
		Campaign: deref(utmCa),
		Content:  deref(utmCo),
		Term:     deref(utmT),
	}
	if lpID != nil {
		link.LandingPage = &domain.LandingPage{ID: *lpID, Name: deref(lpName), URL: deref(lpURL)}
	}
	if tsID != nil {
		link.TrafficSource = &domain.TrafficSource{ID: *tsID, Name: deref(tsName), Status: domain.SourceStatus(deref(tsStatus))}
	}

	link.Placement.TargetType = domain.TargetType(targetType)
	if link.Placement.Offer, err = offer.toOffer(); err != nil {
		return nil, fmt.Errorf("tracking link %s: %w", id, err)
	}
	if stID != nil {
		st := &domain.SplitTest{ID: *stID, Name: deref(stName)}
		if st.Variants, err = loadVariants(ctx, db, st.ID); err != nil {
			return nil, fmt.Errorf("tracking link %s: %w", id, err)
		}
		link.Placement.SplitTest = st
	}

	return &link, nil
}

func loadVariants(ctx context.Context, db DBTX, splitTestID string) ([]domain.Variant, error) {
	rows, err := db.Query(ctx, `
		SELECT v.id, v.weight,
		       o.id, o.name, o.url, o.type, o.value, o.auto_convert, o.duplicate_window_seconds
		FROM split_test_variants v
		JOIN offers o ON o.id = v.offer_id
		WHERE v.split_test_id = $1
		ORDER BY v.position ASC, v.id ASC`, splitTestID)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		var oc offerColumns
		if err := rows.Scan(&v.ID, &v.Weight,
			&oc.id, &oc.name, &oc.url, &oc.typ, &oc.value, &oc.autoConvert, &oc.dupSeconds); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		if v.Offer, err = oc.toOffer(); err != nil {
			return nil, fmt.Errorf("variant %s: %w", v.ID, err)
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// offerColumns scans an offer from a LEFT JOIN where every column may be NULL.
type offerColumns struct {
	id, name, url, typ *string
	value              pgtype.Numeric
	autoConvert        *bool
	dupSeconds         *int32
}

func (c offerColumns) toOffer() (*domain.Offer, error) {
	if c.id == nil {
		return nil, nil
	}
	value, err := infra.NumericToCents(c.value)
	if err != nil {
		return nil, fmt.Errorf("offer %s value: %w", *c.id, err)
	}
	o := &domain.Offer{
		ID:          *c.id,
		Name:        deref(c.name),
		URL:         deref(c.url),
		Type:        domain.OfferType(deref(c.typ)),
		ValueCents:  value,
		AutoConvert: c.autoConvert,
	}
	if c.dupSeconds != nil {
		o.DuplicateWindow = time.Duration(*c.dupSeconds) * time.Second
	}
	return o, nil
}

type offerRepo struct{}

// NewOfferRepository returns a pgx-backed OfferRepository.
func NewOfferRepository() OfferRepository {
	return &offerRepo{}
}

func (r *offerRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.Offer, error) {
	var oc offerColumns
	err := db.QueryRow(ctx, `
		SELECT id, name, url, type, value, auto_convert, duplicate_window_seconds
		FROM offers WHERE id = $1`, id).
		Scan(&oc.id, &oc.name, &oc.url, &oc.typ, &oc.value, &oc.autoConvert, &oc.dupSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan offer %s: %w", id, err)
	}
	return oc.toOffer()
}

type trafficSourceRepo struct{}

// NewTrafficSourceRepository returns a pgx-backed TrafficSourceRepository.
func NewTrafficSourceRepository() TrafficSourceRepository {
	return &trafficSourceRepo{}
}

func (r *trafficSourceRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.TrafficSource, error) {
	var (
		ts     domain.TrafficSource
		status string
	)
	err := db.QueryRow(ctx, `SELECT id, name, status FROM traffic_sources WHERE id = $1`, id).
		Scan(&ts.ID, &ts.Name, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan traffic source %s: %w", id, err)
	}
	ts.Status = domain.SourceStatus(status)
	return &ts, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

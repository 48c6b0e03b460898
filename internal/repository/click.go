package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/infra"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type clickRepo struct{}

// NewClickRepository returns a pgx-backed ClickRepository.
func NewClickRepository() ClickRepository {
	return &clickRepo{}
}

func (r *clickRepo) Insert(ctx context.Context, db DBTX, c *domain.Click) error {
	cc := c.Context
	_, err := db.Exec(ctx, `
		INSERT INTO clicks
		  (id, visitor_id, tracking_link_id, offer_id, split_test_id, variant_id, destination,
		   ip, user_agent, referer, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		   country, region, city, language, device, browser, os, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		c.ID, c.VisitorID, c.TrackingLinkID,
		nullString(c.OfferID), nullString(c.SplitTestID), nullString(c.VariantID), c.Destination,
		cc.IP, nullString(cc.UserAgent), nullString(cc.Referer),
		nullString(cc.UTM.Source), nullString(cc.UTM.Medium), nullString(cc.UTM.Campaign), nullString(cc.UTM.Content), nullString(cc.UTM.Term),
		nullString(cc.Country), nullString(cc.Region), nullString(cc.City), nullString(cc.Language),
		nullString(cc.Device), nullString(cc.Browser), nullString(cc.OS),
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

func (r *clickRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.Click, error) {
	row := db.QueryRow(ctx, `
		SELECT id, visitor_id, tracking_link_id, offer_id, split_test_id, variant_id, destination,
		       ip, user_agent, referer, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       country, region, city, language, device, browser, os, created_at
		FROM clicks WHERE id = $1`, id)

	var (
		c                              domain.Click
		offerID, splitID, variantID    *string
		ua, ref                        *string
		utmS, utmM, utmCa, utmCo, utmT *string
		country, region, city, lang    *string
		device, browser, os            *string
	)
	err := row.Scan(&c.ID, &c.VisitorID, &c.TrackingLinkID, &offerID, &splitID, &variantID, &c.Destination,
		&c.Context.IP, &ua, &ref, &utmS, &utmM, &utmCa, &utmCo, &utmT,
		&country, &region, &city, &lang, &device, &browser, &os, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan click %s: %w", id, err)
	}

	c.OfferID = deref(offerID)
	c.SplitTestID = deref(splitID)
	c.VariantID = deref(variantID)
	c.Context = domain.ClientContext{
		IP:        c.Context.IP,
		UserAgent: deref(ua),
		Referer:   deref(ref),
		UTM:       domain.UTM{Source: deref(utmS), Medium: deref(utmM), Campaign: deref(utmCa), Content: deref(utmCo), Term: deref(utmT)},
		Country:   deref(country),
		Region:    deref(region),
		City:      deref(city),
		Language:  deref(lang),
		Device:    deref(device),
		Browser:   deref(browser),
		OS:        deref(os),
	}
	return &c, nil
}

type conversionRepo struct{}

// NewConversionRepository returns a pgx-backed ConversionRepository.
func NewConversionRepository() ConversionRepository {
	return &conversionRepo{}
}

// LockClickOffer takes a transaction-scoped advisory lock on the click+offer pair.
func (r *conversionRepo) LockClickOffer(ctx context.Context, db DBTX, clickID, offerID string) error {
	_, err := db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, clickID+":"+offerID)
	if err != nil {
		return fmt.Errorf("lock conversion %s/%s: %w", clickID, offerID, err)
	}
	return nil
}

func (r *conversionRepo) FindDuplicate(ctx context.Context, db DBTX, q domain.DuplicateQuery) (*domain.Conversion, error) {
	row := db.QueryRow(ctx, `
		SELECT id, click_id, offer_id, visitor_id, lead_id, transaction_id, status, value, metadata, created_at
		FROM conversions
		WHERE click_id = $1 AND offer_id = $2
		  AND (($3 <> '' AND transaction_id = $3) OR created_at > $4)
		ORDER BY created_at DESC
		LIMIT 1`, q.ClickID, q.OfferID, q.TransactionID, q.Since)
	return scanConversion(row)
}

func (r *conversionRepo) Insert(ctx context.Context, db DBTX, c *domain.Conversion) error {
	meta := c.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	_, err := db.Exec(ctx, `
		INSERT INTO conversions
		  (id, click_id, offer_id, visitor_id, lead_id, transaction_id, status, value, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ClickID, c.OfferID,
		nullString(c.VisitorID), nullString(c.LeadID), nullString(c.TransactionID),
		string(c.Status), infra.CentsToNumeric(c.ValueCents), meta, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

func scanConversion(row pgx.Row) (*domain.Conversion, error) {
	var (
		c                        domain.Conversion
		visitorID, leadID, txnID *string
		status                   string
		value                    pgtype.Numeric
		meta                     []byte
	)
	err := row.Scan(&c.ID, &c.ClickID, &c.OfferID, &visitorID, &leadID, &txnID, &status, &value, &meta, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan conversion: %w", err)
	}
	c.VisitorID = deref(visitorID)
	c.LeadID = deref(leadID)
	c.TransactionID = deref(txnID)
	c.Status = domain.ConversionStatus(status)
	c.Metadata = meta

	cents, err := infra.NumericToCents(value)
	if err != nil {
		return nil, fmt.Errorf("conversion %s value: %w", c.ID, err)
	}
	if cents != nil {
		c.ValueCents = *cents
	}
	return &c, nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/jackc/pgx/v5"
)

type visitorRepo struct{}

// NewVisitorRepository returns a pgx-backed VisitorRepository.
func NewVisitorRepository() VisitorRepository {
	return &visitorRepo{}
}

func (r *visitorRepo) FindByID(ctx context.Context, db DBTX, id string) (*domain.Visitor, error) {
	row := db.QueryRow(ctx, `
		SELECT id, tracking_link_id, landing_page_id, traffic_source_id, referrer,
		       ip, user_agent, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		       country, region, city, language, device, browser, os,
		       page_views, created_at
		FROM visitors WHERE id = $1`, id)

	var (
		v                                  domain.Visitor
		linkID, lpID, tsID, referrer       *string
		ua, utmS, utmM, utmCa, utmCo, utmT *string
		country, region, city, lang        *string
		device, browser, os                *string
	)
	err := row.Scan(&v.ID, &linkID, &lpID, &tsID, &referrer,
		&v.Context.IP, &ua, &utmS, &utmM, &utmCa, &utmCo, &utmT,
		&country, &region, &city, &lang, &device, &browser, &os,
		&v.PageViews, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan visitor %s: %w", id, err)
	}

	v.TrackingLinkID = deref(linkID)
	v.LandingPageID = deref(lpID)
	v.TrafficSourceID = deref(tsID)
	v.Referrer = deref(referrer)
	v.Context.UserAgent = deref(ua)
	v.Context.Referer = v.Referrer
	v.Context.UTM = domain.UTM{Source: deref(utmS), Medium: deref(utmM), Campaign: deref(utmCa), Content: deref(utmCo), Term: deref(utmT)}
	v.Context.Country = deref(country)
	v.Context.Region = deref(region)
	v.Context.City = deref(city)
	v.Context.Language = deref(lang)
	v.Context.Device = deref(device)
	v.Context.Browser = deref(browser)
	v.Context.OS = deref(os)
	return &v, nil
}

// CreateIfAbsent relies on ON CONFLICT so the click and visit paths can race safely.
func (r *visitorRepo) CreateIfAbsent(ctx context.Context, db DBTX, v *domain.Visitor) (bool, error) {
	c := v.Context
	tag, err := db.Exec(ctx, `
		INSERT INTO visitors
		  (id, tracking_link_id, landing_page_id, traffic_source_id, referrer,
		   ip, user_agent, utm_source, utm_medium, utm_campaign, utm_content, utm_term,
		   country, region, city, language, device, browser, os, page_views, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (id) DO NOTHING`,
		v.ID, nullString(v.TrackingLinkID), nullString(v.LandingPageID), nullString(v.TrafficSourceID), nullString(v.Referrer),
		c.IP, nullString(c.UserAgent),
		nullString(c.UTM.Source), nullString(c.UTM.Medium), nullString(c.UTM.Campaign), nullString(c.UTM.Content), nullString(c.UTM.Term),
		nullString(c.Country), nullString(c.Region), nullString(c.City), nullString(c.Language),
		nullString(c.Device), nullString(c.Browser), nullString(c.OS),
		v.PageViews, v.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert visitor %s: %w", v.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

type leadRepo struct{}

// NewLeadRepository returns a pgx-backed LeadRepository.
func NewLeadRepository() LeadRepository {
	return &leadRepo{}
}

func (r *leadRepo) FindMostRecentByVisitor(ctx context.Context, db DBTX, visitorID string) (*domain.Lead, error) {
	row := db.QueryRow(ctx, `
		SELECT id, visitor_id, email, first_name, last_name, phone, company, metadata, created_at
		FROM leads
		WHERE visitor_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, visitorID)

	var (
		l                                  domain.Lead
		email, first, last, phone, company *string
		meta                               []byte
	)
	err := row.Scan(&l.ID, &l.VisitorID, &email, &first, &last, &phone, &company, &meta, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan lead for visitor %s: %w", visitorID, err)
	}
	l.Email = deref(email)
	l.FirstName = deref(first)
	l.LastName = deref(last)
	l.Phone = deref(phone)
	l.Company = deref(company)

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Metadata); err != nil {
			return nil, fmt.Errorf("decode lead %s metadata: %w", l.ID, err)
		}
	}
	return &l, nil
}

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/attaboy/tracking/internal/clientctx"
	"github.com/attaboy/tracking/internal/destination"
	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/repository"
	"github.com/attaboy/tracking/internal/tracking"
	"github.com/attaboy/tracking/internal/urltemplate"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PipelineDeps holds the collaborators shared by the click and visit pipelines.
type PipelineDeps struct {
	DB         repository.DBTX
	Links      repository.TrackingLinkRepository
	Visitors   repository.VisitorRepository
	Leads      repository.LeadRepository
	Geo        *clientctx.Resolver
	Resolver   *destination.Resolver
	Recorder   *tracking.Recorder
	Dispatcher *tracking.Dispatcher
	Logger     *slog.Logger
}

// RedirectService runs the /c click pipeline.
type RedirectService struct {
	deps PipelineDeps
}

// NewRedirectService creates a RedirectService.
func NewRedirectService(deps PipelineDeps) *RedirectService {
	return &RedirectService{deps: deps}
}

// ClickRequest is one inbound click. Context carries the request facts without geo.
type ClickRequest struct {
	TrackingLinkID string
	VisitorID      string
	Context        domain.ClientContext
}

// ClickResult is a recorded click and the URL to redirect to.
type ClickResult struct {
	ClickID     string
	Location    string
	Destination *destination.Destination

	conversion *tracking.ConversionInput
}

// PendingConversion reports whether FollowUp will synthesize a conversion.
func (r *ClickResult) PendingConversion() bool {
	return r != nil && r.conversion != nil
}

// Click resolves, templates and records one click. The click is committed
// before Click returns. An offer that converts automatically requires a lead
// for the visitor; without one LEAD_REQUIRED is returned after the click is
// stored.
func (s *RedirectService) Click(ctx context.Context, req ClickRequest) (*ClickResult, error) {
	if err := domain.ValidateIdentifier("visitor_id", req.VisitorID); err != nil {
		return nil, err
	}
	if err := domain.ValidateIdentifier("tracking_link_id", req.TrackingLinkID); err != nil {
		return nil, domain.ErrNotFound("tracking link", req.TrackingLinkID)
	}

	var (
		link    *domain.TrackingLink
		visitor *domain.Visitor
		lead    *domain.Lead
		geo     domain.GeoLocation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		link, err = s.deps.Links.FindByID(gctx, s.deps.DB, req.TrackingLinkID)
		return err
	})
	g.Go(func() error {
		v, err := s.deps.Visitors.FindByID(gctx, s.deps.DB, req.VisitorID)
		if err != nil {
			s.deps.Logger.Warn("visitor lookup failed, continuing without visitor",
				"visitor_id", req.VisitorID, "error", err)
			return nil
		}
		visitor = v
		return nil
	})
	g.Go(func() error {
		l, err := s.deps.Leads.FindMostRecentByVisitor(gctx, s.deps.DB, req.VisitorID)
		if err != nil {
			s.deps.Logger.Warn("lead lookup failed, continuing without lead",
				"visitor_id", req.VisitorID, "error", err)
			return nil
		}
		lead = l
		return nil
	})
	g.Go(func() error {
		geo = s.deps.Geo.Locate(gctx, req.Context.IP)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, domain.ErrInternal("load tracking link", err)
	}
	if link == nil {
		return nil, domain.ErrNotFound("tracking link", req.TrackingLinkID)
	}

	dest, err := s.deps.Resolver.Resolve(link, nil)
	if err != nil {
		if domain.HasCode(err, domain.CodeUnresolvedDestination) {
			s.deps.Logger.Error("tracking link has no destination", "tracking_link_id", link.ID)
		}
		return nil, err
	}

	clickID := uuid.NewString()
	cc := req.Context.WithGeo(geo)

	utm := cc.UTM
	if visitor != nil && !visitor.Context.UTM.IsZero() {
		utm = visitor.Context.UTM
	}
	var offerID string
	if dest.Offer != nil {
		offerID = dest.Offer.ID
	}
	location := urltemplate.Render(dest.URL, urltemplate.Sources{
		urltemplate.TrackingSource(clickID, req.VisitorID, link.ID, offerID),
		urltemplate.LeadSource(lead),
		urltemplate.LeadMetaSource(lead),
		urltemplate.UTMSource(utm),
	})

	now := time.Now()
	click := &domain.Click{
		ID:             clickID,
		VisitorID:      req.VisitorID,
		TrackingLinkID: link.ID,
		OfferID:        offerID,
		Destination:    location,
		Context:        cc,
		CreatedAt:      now,
	}
	if dest.SplitTest != nil {
		click.SplitTestID = dest.SplitTest.ID
	}
	if dest.Variant != nil {
		click.VariantID = dest.Variant.ID
	}

	var firstTouch *domain.Visitor
	if visitor == nil {
		firstTouch = newVisitor(req.VisitorID, link, cc, now)
	}
	if err := s.deps.Recorder.RecordClick(ctx, click, firstTouch); err != nil {
		return nil, domain.ErrInternal("record click", err)
	}

	res := &ClickResult{ClickID: clickID, Location: location, Destination: dest}
	if !s.deps.Recorder.Policy().AutoConvert(dest.Offer) {
		return res, nil
	}
	if lead == nil {
		return nil, domain.ErrLeadRequired(req.VisitorID)
	}

	meta, _ := json.Marshal(map[string]string{
		"ip":         cc.IP,
		"user_agent": cc.UserAgent,
		"clicked_at": now.UTC().Format(time.RFC3339),
	})
	res.conversion = &tracking.ConversionInput{
		ClickID:   clickID,
		VisitorID: req.VisitorID,
		LeadID:    lead.ID,
		Offer:     dest.Offer,
		Status:    domain.ConversionCompleted,
		Metadata:  meta,
		Origin:    tracking.OriginAuto,
	}
	return res, nil
}

// FollowUp schedules the automatic conversion of res, if any. It never blocks
// on the write and reports whether a task was scheduled.
func (s *RedirectService) FollowUp(ctx context.Context, res *ClickResult) bool {
	if !res.PendingConversion() {
		return false
	}
	in := *res.conversion
	return s.deps.Dispatcher.Go(ctx, "auto_conversion", func(ctx context.Context) error {
		conv, err := s.deps.Recorder.RecordConversion(ctx, in)
		if domain.HasCode(err, domain.CodeDuplicateConversion) {
			s.deps.Logger.Info("automatic conversion already recorded", "click_id", in.ClickID)
			return nil
		}
		if err != nil {
			return err
		}
		s.deps.Logger.Info("automatic conversion recorded",
			"conversion_id", conv.ID, "click_id", in.ClickID, "offer_id", in.Offer.ID)
		return nil
	})
}

func newVisitor(id string, link *domain.TrackingLink, cc domain.ClientContext, now time.Time) *domain.Visitor {
	v := &domain.Visitor{
		ID:             id,
		TrackingLinkID: link.ID,
		Referrer:       cc.Referer,
		Context:        cc,
		PageViews:      1,
		CreatedAt:      now,
	}
	if link.LandingPage != nil {
		v.LandingPageID = link.LandingPage.ID
	}
	if link.TrafficSource != nil {
		v.TrafficSourceID = link.TrafficSource.ID
	}
	return v
}

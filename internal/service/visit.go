package service

import (
	"context"
	"net/url"
	"time"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/policy"
	"github.com/google/uuid"
)

// referrerParam is consumed by the visit pipeline and never forwarded.
const referrerParam = "referrer"

// VisitService runs the /v landing page pipeline.
type VisitService struct {
	deps PipelineDeps
}

// NewVisitService creates a VisitService.
func NewVisitService(deps PipelineDeps) *VisitService {
	return &VisitService{deps: deps}
}

// VisitRequest is one inbound visit. Query is the raw request query.
type VisitRequest struct {
	TrackingLinkID string
	Query          url.Values
	Context        domain.ClientContext
}

// VisitResult carries the landing page URL and the visitor to create afterwards.
type VisitResult struct {
	VisitorID string
	Location  string

	visitor *domain.Visitor
}

// Visit builds the landing page redirect for a tracking link. The visitor id
// is generated here and appended to the URL; the Visitor row itself is written
// by FollowUp.
func (s *VisitService) Visit(ctx context.Context, req VisitRequest) (*VisitResult, error) {
	if err := domain.ValidateIdentifier("tracking_link_id", req.TrackingLinkID); err != nil {
		return nil, domain.ErrNotFound("tracking link", req.TrackingLinkID)
	}

	link, err := s.deps.Links.FindByID(ctx, s.deps.DB, req.TrackingLinkID)
	if err != nil {
		return nil, domain.ErrInternal("load tracking link", err)
	}
	if link == nil {
		return nil, domain.ErrNotFound("tracking link", req.TrackingLinkID)
	}
	if err := policy.EvaluateTrafficSource(link.TrafficSource).Err(); err != nil {
		s.deps.Logger.Info("visit rejected", "tracking_link_id", link.ID, "reason", err.Error())
		return nil, err
	}
	if link.LandingPage == nil || link.LandingPage.URL == "" {
		s.deps.Logger.Error("tracking link has no landing page", "tracking_link_id", link.ID)
		return nil, domain.ErrUnresolvedDestination(link.ID)
	}

	visitorID := uuid.NewString()
	location, utm, err := LandingURL(link.LandingPage.URL, req.Query, link.UTM, link.TrafficSource.Name, visitorID)
	if err != nil {
		s.deps.Logger.Error("landing page url is invalid", "tracking_link_id", link.ID, "error", err)
		return nil, domain.ErrUnresolvedDestination(link.ID)
	}

	cc := req.Context
	cc.UTM = utm
	if ref := req.Query.Get(referrerParam); ref != "" {
		cc.Referer = ref
	}
	v := newVisitor(visitorID, link, cc, time.Now())

	return &VisitResult{VisitorID: visitorID, Location: location, visitor: v}, nil
}

// FollowUp creates the visitor of res in the background, adding geo data
// first. It reports whether the task was scheduled.
func (s *VisitService) FollowUp(ctx context.Context, res *VisitResult) bool {
	if res == nil || res.visitor == nil {
		return false
	}
	v := *res.visitor
	return s.deps.Dispatcher.Go(ctx, "create_visitor", func(ctx context.Context) error {
		v.Context = v.Context.WithGeo(s.deps.Geo.Locate(ctx, v.Context.IP))
		_, err := s.deps.Recorder.CreateVisitor(ctx, &v)
		return err
	})
}

// LandingURL merges query parameters onto a landing page URL: the page's own
// parameters, then the inbound ones (except referrer), then the link's UTM
// defaults where still absent. utm_source defaults to the traffic source name.
// visitor_id is always set. It returns the URL and the UTM values it carries.
func LandingURL(base string, inbound url.Values, defaults domain.UTM, sourceName, visitorID string) (string, domain.UTM, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", domain.UTM{}, err
	}

	q := u.Query()
	for k, vs := range inbound {
		if k == referrerParam || k == "visitor_id" || len(vs) == 0 {
			continue
		}
		q[k] = vs
	}

	if defaults.Source == "" {
		defaults.Source = sourceName
	}
	for k, v := range defaults.Params() {
		if q.Get(k) == "" {
			q.Set(k, v)
		}
	}
	q.Set("visitor_id", visitorID)
	u.RawQuery = q.Encode()

	utm := domain.UTM{
		Source:   q.Get("utm_source"),
		Medium:   q.Get("utm_medium"),
		Campaign: q.Get("utm_campaign"),
		Content:  q.Get("utm_content"),
		Term:     q.Get("utm_term"),
	}
	return u.String(), utm, nil
}

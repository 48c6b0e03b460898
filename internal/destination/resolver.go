// Package destination turns a tracking link into the URL template a request is sent to.
package destination

import (
	"log/slog"

	"github.com/attaboy/tracking/internal/domain"
	"github.com/attaboy/tracking/internal/metrics"
)

// Kind says which part of the placement supplied the destination.
type Kind string

const (
	KindSplitTest   Kind = "split_test"
	KindOffer       Kind = "offer"
	KindLandingPage Kind = "landing_page"
)

// Picker chooses one variant of a split test.
type Picker interface {
	Select(st *domain.SplitTest) (*domain.Variant, error)
}

// Destination is the resolved, not yet templated, target of a tracking link.
// Offer is nil for landing page destinations.
type Destination struct {
	URL       string
	Kind      Kind
	Offer     *domain.Offer
	SplitTest *domain.SplitTest
	Variant   *domain.Variant
}

// Resolver applies the placement rules: split test, then direct offer, then landing page.
type Resolver struct {
	picker Picker
	logger *slog.Logger
}

func NewResolver(picker Picker, logger *slog.Logger) *Resolver {
	return &Resolver{picker: picker, logger: logger}
}

// Resolve returns the destination of link. A split test is drawn at most once;
// when preselected is non-nil it is used instead of drawing. A split test
// without a selectable variant falls back to the landing page.
func (r *Resolver) Resolve(link *domain.TrackingLink, preselected *domain.Variant) (*Destination, error) {
	if link == nil {
		return nil, domain.ErrUnresolvedDestination("")
	}
	p := link.Placement

	if p.TargetType == domain.TargetSplitTest && p.SplitTest != nil {
		variant := preselected
		if variant == nil {
			var err error
			variant, err = r.picker.Select(p.SplitTest)
			if err != nil {
				if !domain.HasCode(err, domain.CodeNoVariantAvailable) {
					return nil, err
				}
				r.logger.Warn("split test has no selectable variant, using landing page",
					"tracking_link_id", link.ID, "split_test_id", p.SplitTest.ID)
				return r.landingPage(link)
			}
		}
		metrics.SplitSelections.WithLabelValues(p.SplitTest.ID, variant.ID).Inc()
		if variant.Offer != nil && variant.Offer.URL != "" {
			return &Destination{
				URL:       variant.Offer.URL,
				Kind:      KindSplitTest,
				Offer:     variant.Offer,
				SplitTest: p.SplitTest,
				Variant:   variant,
			}, nil
		}
		return r.landingPage(link)
	}

	if p.Offer != nil && p.Offer.URL != "" {
		return &Destination{URL: p.Offer.URL, Kind: KindOffer, Offer: p.Offer}, nil
	}

	return r.landingPage(link)
}

func (r *Resolver) landingPage(link *domain.TrackingLink) (*Destination, error) {
	if link.LandingPage != nil && link.LandingPage.URL != "" {
		return &Destination{URL: link.LandingPage.URL, Kind: KindLandingPage}, nil
	}
	return nil, domain.ErrUnresolvedDestination(link.ID)
}

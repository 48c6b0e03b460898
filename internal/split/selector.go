// Package split picks one offer variant per request for weighted split tests.
package split

import (
	"math/rand/v2"

	"github.com/attaboy/tracking/internal/domain"
)

// Selector performs weighted random selection over split test variants.
// Each call draws independently; there is no session pinning.
type Selector struct {
	float func() float64
}

// NewSelector returns a Selector backed by the process-wide random source.
func NewSelector() *Selector {
	return &Selector{float: rand.Float64}
}

// NewSelectorWithSource returns a Selector drawing from f, which must return values in [0, 1).
func NewSelectorWithSource(f func() float64) *Selector {
	return &Selector{float: f}
}

// Select returns the chosen variant.
//
// The draw r is uniform in [0, total) and the first variant whose cumulative
// weight reaches r wins, so a variant is chosen with probability weight/total.
// A draw landing exactly on a boundary goes to the variant that boundary closes.
// Non-positive weights are skipped and never win a draw. When every weight is zero the first
// variant is returned; an empty split test yields NO_VARIANT_AVAILABLE.
func (s *Selector) Select(st *domain.SplitTest) (*domain.Variant, error) {
	if st == nil || len(st.Variants) == 0 {
		id := ""
		if st != nil {
			id = st.ID
		}
		return nil, domain.ErrNoVariantAvailable(id)
	}

	total := 0.0
	for _, v := range st.Variants {
		total += effectiveWeight(v)
	}
	if total <= 0 {
		return firstWithOffer(st)
	}

	r := s.float() * total
	cumulative := 0.0
	last := -1
	for i := range st.Variants {
		w := effectiveWeight(st.Variants[i])
		if w == 0 {
			continue
		}
		last = i
		cumulative += w
		if cumulative >= r {
			return withOffer(st, &st.Variants[i])
		}
	}

	// Float rounding can leave r a hair above the final cumulative sum.
	return withOffer(st, &st.Variants[last])
}

func effectiveWeight(v domain.Variant) float64 {
	if v.Weight > 0 {
		return v.Weight
	}
	return 0
}

func firstWithOffer(st *domain.SplitTest) (*domain.Variant, error) {
	return withOffer(st, &st.Variants[0])
}

func withOffer(st *domain.SplitTest, v *domain.Variant) (*domain.Variant, error) {
	if v.Offer == nil {
		return nil, domain.ErrNoVariantAvailable(st.ID)
	}
	return v, nil
}

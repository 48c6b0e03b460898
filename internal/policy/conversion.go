package policy

import (
	"time"

	"github.com/attaboy/tracking/internal/domain"
)

// DefaultDuplicateWindow is how long a conversion blocks another one for the same click and offer.
const DefaultDuplicateWindow = 24 * time.Hour

// ConversionPolicy decides when a click converts automatically and how
// duplicate conversions are detected. Offers can override both rules.
type ConversionPolicy struct {
	AutoConvertTypes []domain.OfferType `json:"auto_convert_types"`
	DuplicateWindow  time.Duration      `json:"duplicate_window"`
}

// DefaultConversionPolicy auto-converts CPC offers with a 24h duplicate window.
func DefaultConversionPolicy() ConversionPolicy {
	return ConversionPolicy{
		AutoConvertTypes: []domain.OfferType{domain.OfferCPC},
		DuplicateWindow:  DefaultDuplicateWindow,
	}
}

// AutoConvert reports whether a click on offer synthesizes a conversion.
// An explicit offer setting wins over the type rule.
func (p ConversionPolicy) AutoConvert(offer *domain.Offer) bool {
	if offer == nil {
		return false
	}
	if offer.AutoConvert != nil {
		return *offer.AutoConvert
	}
	for _, t := range p.AutoConvertTypes {
		if t == offer.Type {
			return true
		}
	}
	return false
}

// DuplicateWindowFor returns the duplicate window for offer.
func (p ConversionPolicy) DuplicateWindowFor(offer *domain.Offer) time.Duration {
	if offer != nil && offer.DuplicateWindow > 0 {
		return offer.DuplicateWindow
	}
	if p.DuplicateWindow > 0 {
		return p.DuplicateWindow
	}
	return DefaultDuplicateWindow
}

// DuplicateQuery builds the lookup that detects a duplicate of a conversion
// being recorded at now.
func (p ConversionPolicy) DuplicateQuery(clickID string, offer *domain.Offer, transactionID string, now time.Time) domain.DuplicateQuery {
	return domain.DuplicateQuery{
		ClickID:       clickID,
		OfferID:       offer.ID,
		TransactionID: transactionID,
		Since:         now.Add(-p.DuplicateWindowFor(offer)),
	}
}

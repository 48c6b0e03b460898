package policy

import (
	"fmt"

	"github.com/attaboy/tracking/internal/domain"
)

// TrafficEvaluation holds the result of a traffic source check.
type TrafficEvaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateTrafficSource admits only links published on an ACTIVE traffic source.
func EvaluateTrafficSource(src *domain.TrafficSource) TrafficEvaluation {
	if src == nil {
		return TrafficEvaluation{Allowed: false, Reason: "tracking link has no traffic source"}
	}
	if src.Status != domain.SourceActive {
		return TrafficEvaluation{Allowed: false, Reason: fmt.Sprintf("traffic source %s is %s", src.ID, src.Status)}
	}
	return TrafficEvaluation{Allowed: true}
}

// Err converts a rejection into an INACTIVE_SOURCE error. Allowed evaluations return nil.
func (e TrafficEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	return domain.ErrInactiveSource(e.Reason)
}

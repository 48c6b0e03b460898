package urltemplate

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/attaboy/tracking/internal/domain"
)

// Source is one named set of replacement values.
// A Reserved source owns every key it lists, even with an empty value,
// and no other source can supply those keys.
type Source struct {
	Name     string
	Values   map[string]string
	Reserved bool
}

// Sources is an ordered list; an earlier source wins over a later one for the same key.
type Sources []Source

// Merge flattens the sources into one lookup table honoring priority.
// Reserved sources are applied first regardless of position. Otherwise empty
// values are treated as absent so lower-priority sources can fill them.
func (s Sources) Merge() map[string]string {
	out := make(map[string]string)
	claimed := make(map[string]bool)
	for _, src := range s {
		if !src.Reserved {
			continue
		}
		for k, v := range src.Values {
			if claimed[k] {
				continue
			}
			claimed[k] = true
			if v != "" {
				out[k] = v
			}
		}
	}
	for _, src := range s {
		if src.Reserved {
			continue
		}
		for k, v := range src.Values {
			if v == "" || claimed[k] {
				continue
			}
			if _, taken := out[k]; !taken {
				out[k] = v
			}
		}
	}
	return out
}

// Source names. The tracking source is reserved; the rest are listed in priority order.
const (
	SourceLead     = "lead"
	SourceLeadMeta = "lead_meta"
	SourceUTM      = "utm"
	SourceTracking = "tracking"
)

// LeadSource exposes a lead's scalar fields. A nil lead yields an empty source.
func LeadSource(lead *domain.Lead) Source {
	src := Source{Name: SourceLead, Values: map[string]string{}}
	if lead == nil {
		return src
	}
	src.Values["lead_id"] = lead.ID
	src.Values["email"] = lead.Email
	src.Values["first_name"] = lead.FirstName
	src.Values["last_name"] = lead.LastName
	src.Values["phone"] = lead.Phone
	src.Values["company"] = lead.Company
	return src
}

// LeadMetaSource exposes the lead's free-form metadata, rendered as strings.
func LeadMetaSource(lead *domain.Lead) Source {
	src := Source{Name: SourceLeadMeta, Values: map[string]string{}}
	if lead == nil {
		return src
	}
	for k, v := range lead.Metadata {
		if s, ok := stringify(v); ok {
			src.Values[k] = s
		}
	}
	return src
}

// UTMSource exposes utm_source through utm_term.
func UTMSource(utm domain.UTM) Source {
	return Source{Name: SourceUTM, Values: utm.Params()}
}

// TrackingSource exposes ids of the current pipeline execution. The source is
// reserved: lead data and UTM parameters can never replace these ids.
func TrackingSource(clickID, visitorID, trackingLinkID, offerID string) Source {
	return Source{Name: SourceTracking, Reserved: true, Values: map[string]string{
		"click_id":         clickID,
		"visitor_id":       visitorID,
		"tracking_link_id": trackingLinkID,
		"offer_id":         offerID,
	}}
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return fmt.Sprint(t), true
	}
}

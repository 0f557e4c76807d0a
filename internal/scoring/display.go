package scoring

import (
	"math"

	"github.com/example/tripmatch/internal/models"
)

// QualityLabel is the qualitative reading of an aggregate score.
func QualityLabel(score float64) string {
	switch {
	case score >= 0.8:
		return "Excellent"
	case score >= 0.6:
		return "Good"
	case score >= 0.4:
		return "Fair"
	default:
		return "Poor"
	}
}

func MatchTypeLabel(t models.MatchType) string {
	switch t {
	case models.MatchExactRoute:
		return "Exact route"
	case models.MatchPartialOverlap:
		return "Partial overlap"
	case models.MatchDetourPickup:
		return "Pickup detour"
	case models.MatchDetourDropoff:
		return "Dropoff detour"
	default:
		return "Unknown"
	}
}

// Display is what a client renders for a match.
type Display struct {
	Percentage     int               `json:"percentage"`
	Label          string            `json:"label"`
	MatchType      models.MatchType  `json:"match_type"`
	MatchTypeLabel string            `json:"match_type_label"`
	Breakdown      *BreakdownDisplay `json:"breakdown,omitempty"`
}

type BreakdownDisplay struct {
	Route       int `json:"route"`
	Time        int `json:"time"`
	Preferences int `json:"preferences"`
	Price       int `json:"price"`
}

func percent(v float64) int { return int(math.Round(clamp01(v) * 100)) }

// NewDisplay renders a match; withBreakdown adds the four sub-scores.
func NewDisplay(m *models.TripMatch, withBreakdown bool) Display {
	d := Display{
		Percentage:     percent(m.CompatibilityScore),
		Label:          QualityLabel(m.CompatibilityScore),
		MatchType:      m.MatchType,
		MatchTypeLabel: MatchTypeLabel(m.MatchType),
	}
	if withBreakdown {
		b := m.Breakdown
		d.Breakdown = &BreakdownDisplay{
			Route:       percent(b.RouteScore),
			Time:        percent(b.TimeScore),
			Preferences: percent(b.PreferencesScore),
			Price:       percent(b.PriceScore),
		}
	}
	return d
}

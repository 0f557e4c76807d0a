package scoring

import (
	"math"

	"github.com/example/tripmatch/internal/models"
)

func priceRange(p Party) models.PriceRange {
	if p.Trip.PriceRange != nil {
		return *p.Trip.PriceRange
	}
	return p.prefs().PriceRange()
}

// PriceCompatibility is the intersection-over-union of the two acceptable
// price ranges.
func PriceCompatibility(a, b Party) float64 {
	ra, rb := priceRange(a), priceRange(b)
	inter := math.Min(ra.Max, rb.Max) - math.Max(ra.Min, rb.Min)
	if inter <= 0 {
		return 0
	}
	union := math.Max(ra.Max, rb.Max) - math.Min(ra.Min, rb.Min)
	if union <= 0 {
		return 0
	}
	return clamp01(inter / union)
}

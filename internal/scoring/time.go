package scoring

import (
	"math"
	"time"
)

func flexibility(p Party) time.Duration {
	if p.Trip.FlexibilityMinutes != nil {
		return time.Duration(*p.Trip.FlexibilityMinutes) * time.Minute
	}
	return time.Duration(p.prefs().TimeFlexibilityMinutes) * time.Minute
}

// TimeCompatibility scores departure alignment against the combined
// flexibility of both riders. eligible is false when the departures are
// outside that window; such a pair must not be aggregated at all.
func TimeCompatibility(a, b Party) (score float64, eligible bool) {
	window := flexibility(a) + flexibility(b)
	diff := a.Trip.DepartureTime.Sub(b.Trip.DepartureTime)
	if diff < 0 {
		diff = -diff
	}
	if window <= 0 {
		if diff == 0 {
			return 1, true
		}
		return 0, false
	}
	if diff >= window {
		return 0, false
	}
	return clamp01(math.Max(0, 1-float64(diff)/float64(window))), true
}

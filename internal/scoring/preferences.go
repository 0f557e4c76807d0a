package scoring

import "github.com/example/tripmatch/internal/models"

// PreferenceCompatibility averages the categorical dimensions both riders
// state. present is false when no dimension could be compared.
func PreferenceCompatibility(a, b Party) (score float64, present bool) {
	pa, pb := a.prefs(), b.prefs()
	ra := stated(a.Trip.Preferences, pa.Ride)
	rb := stated(b.Trip.Preferences, pb.Ride)

	var sum float64
	var n int
	for _, dim := range [][2]string{
		{ra.Smoking, rb.Smoking},
		{ra.Pets, rb.Pets},
		{ra.Music, rb.Music},
		{ra.Conversation, rb.Conversation},
	} {
		if dim[0] == "" || dim[1] == "" {
			continue
		}
		sum += compareCategory(dim[0], dim[1])
		n++
	}

	okA, knownA := pa.Accepts(b.Trip.Profile)
	okB, knownB := pb.Accepts(a.Trip.Profile)
	if knownA || knownB {
		if okA && okB {
			sum++
		}
		n++
	}

	if n == 0 {
		return 0, false
	}
	return clamp01(sum / float64(n)), true
}

// stated takes each dimension from the trip, falling back to the owner's
// standing preference.
func stated(trip, owner models.RidePreferences) models.RidePreferences {
	pick := func(t, o string) string {
		if t != "" {
			return t
		}
		return o
	}
	return models.RidePreferences{
		Smoking:      pick(trip.Smoking, owner.Smoking),
		Pets:         pick(trip.Pets, owner.Pets),
		Music:        pick(trip.Music, owner.Music),
		Conversation: pick(trip.Conversation, owner.Conversation),
	}
}

func compareCategory(x, y string) float64 {
	if x == models.PreferenceIndifferent || y == models.PreferenceIndifferent || x == y {
		return 1
	}
	return 0
}

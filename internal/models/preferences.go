package models

import "time"

const (
	PreferenceIndifferent = "indifferent"
	GenderAny             = "any"
)

// UserPreferences are a user's standing matching constraints. They are
// read-only input to the scorer.
type UserPreferences struct {
	UserID                 string          `json:"user_id" db:"user_id"`
	MaxDetourMeters        float64         `json:"max_detour_meters" db:"max_detour_meters" validate:"gte=0"`
	MaxDetourMinutes       int             `json:"max_detour_minutes" db:"max_detour_minutes" validate:"gte=0"`
	MaxWalkingMeters       float64         `json:"max_walking_meters" db:"max_walking_meters" validate:"gte=0"`
	TimeFlexibilityMinutes int             `json:"time_flexibility_minutes" db:"time_flexibility_minutes" validate:"gte=0"`
	PriceMin               float64         `json:"price_min" db:"price_min" validate:"gte=0"`
	PriceMax               float64         `json:"price_max" db:"price_max" validate:"gte=0"`
	Ride                   RidePreferences `json:"ride" db:"-"`
	GenderPreference       string          `json:"gender_preference" db:"gender_preference"`
	AgeMin                 int             `json:"age_min,omitempty" db:"age_min" validate:"gte=0"`
	AgeMax                 int             `json:"age_max,omitempty" db:"age_max" validate:"gte=0"`
	UpdatedAt              time.Time       `json:"updated_at" db:"updated_at"`
}

// DefaultPreferences returns the preferences applied when a user has none
// stored: 10 km / 20 min detour, 500 m walking, 15 min flexibility,
// price [0,50], no smoking, pets allowed, any gender.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:                 userID,
		MaxDetourMeters:        10000,
		MaxDetourMinutes:       20,
		MaxWalkingMeters:       500,
		TimeFlexibilityMinutes: 15,
		PriceMin:               0,
		PriceMax:               50,
		Ride:                   RidePreferences{Smoking: "no", Pets: "yes"},
		GenderPreference:       GenderAny,
	}
}

// ResolvePreferences returns p with unset detour and walking limits
// replaced by defaults, or the defaults themselves when p is nil. The price
// range is left as stored; Validate rejects an empty one.
func ResolvePreferences(p *UserPreferences, userID string) UserPreferences {
	def := DefaultPreferences(userID)
	if p == nil {
		return def
	}
	out := *p
	if out.UserID == "" {
		out.UserID = userID
	}
	if out.MaxDetourMeters <= 0 {
		out.MaxDetourMeters = def.MaxDetourMeters
	}
	if out.MaxDetourMinutes <= 0 {
		out.MaxDetourMinutes = def.MaxDetourMinutes
	}
	if out.MaxWalkingMeters <= 0 {
		out.MaxWalkingMeters = def.MaxWalkingMeters
	}
	if out.GenderPreference == "" {
		out.GenderPreference = GenderAny
	}
	return out
}

// PriceRange returns the preference price bounds as a range.
func (p UserPreferences) PriceRange() PriceRange {
	return PriceRange{Min: p.PriceMin, Max: p.PriceMax}
}

// Accepts reports whether a rider with profile r passes the gender and age
// filters of p. known is false when p filters on something r does not state.
func (p UserPreferences) Accepts(r *RiderProfile) (ok, known bool) {
	filtersGender := p.GenderPreference != "" && p.GenderPreference != GenderAny
	filtersAge := p.AgeMin > 0 || p.AgeMax > 0
	if !filtersGender && !filtersAge {
		return true, false
	}
	if r == nil {
		return true, false
	}
	ok = true
	if filtersGender {
		if r.Gender == "" {
			return true, false
		}
		ok = ok && r.Gender == p.GenderPreference
	}
	if filtersAge {
		if r.Age <= 0 {
			return true, false
		}
		if p.AgeMin > 0 && r.Age < p.AgeMin {
			ok = false
		}
		if p.AgeMax > 0 && r.Age > p.AgeMax {
			ok = false
		}
	}
	return ok, true
}

// Package scoring computes how well two trips fit for a shared ride.
//
// Every function here is pure: it reads the trips, preferences and paths it
// is handed and touches nothing else, so pairs may be scored concurrently.
package scoring

import (
	"errors"
	"fmt"
)

// Weights is the policy that blends the four sub-scores. Weights are
// relative; a dimension that cannot be measured for a pair is dropped and
// the rest are renormalised.
type Weights struct {
	Route       float64 `json:"route"`
	Time        float64 `json:"time"`
	Preferences float64 `json:"preferences"`
	Price       float64 `json:"price"`
}

// DefaultWeights favours route fit, then timing, then preferences, then price.
var DefaultWeights = Weights{Route: 0.4, Time: 0.3, Preferences: 0.2, Price: 0.1}

func (w Weights) Validate() error {
	var errs []error
	named := []struct {
		name string
		v    float64
	}{{"route", w.Route}, {"time", w.Time}, {"preferences", w.Preferences}, {"price", w.Price}}
	for _, n := range named {
		if n.v < 0 {
			errs = append(errs, fmt.Errorf("%s weight must be >= 0", n.name))
		}
	}
	if w.Route+w.Time+w.Preferences+w.Price <= 0 {
		errs = append(errs, errors.New("weights must not all be zero"))
	}
	return errors.Join(errs...)
}

type Config struct {
	Weights Weights
	// MinScore is the aggregate below which a pair is not a match.
	MinScore float64
	// ExactRadiusMeters bounds both endpoint gaps of an exact_route match.
	ExactRadiusMeters float64
	// OverlapThreshold is the shared fraction of the guest path that makes
	// a pair a partial_overlap.
	OverlapThreshold float64
	// SampleStepMeters is the spacing used when measuring path overlap.
	SampleStepMeters float64
	// SpeedMps converts a detour into time when the host path carries no
	// duration of its own.
	SpeedMps float64
}

func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights,
		MinScore:          0.3,
		ExactRadiusMeters: 500,
		OverlapThreshold:  0.5,
		SampleStepMeters:  100,
		SpeedMps:          8,
	}
}

func (c Config) Validate() error {
	var errs []error
	if err := c.Weights.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		errs = append(errs, errors.New("min score must be within [0,1]"))
	}
	if c.ExactRadiusMeters <= 0 {
		errs = append(errs, errors.New("exact radius must be > 0"))
	}
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		errs = append(errs, errors.New("overlap threshold must be within (0,1]"))
	}
	if c.SampleStepMeters <= 0 {
		errs = append(errs, errors.New("sample step must be > 0"))
	}
	if c.SpeedMps <= 0 {
		errs = append(errs, errors.New("speed must be > 0"))
	}
	return errors.Join(errs...)
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

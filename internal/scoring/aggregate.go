package scoring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/tripmatch/internal/models"
)

var ErrNotMatchable = errors.New("trip is not in a matchable status")

// Outcome says why a pair did or did not become a match.
type Outcome string

const (
	OutcomeMatch          Outcome = "match"
	OutcomeTimeWindow     Outcome = "outside_time_window"
	OutcomeDetourLimit    Outcome = "detour_exceeds_limit"
	OutcomeBelowThreshold Outcome = "below_threshold"
)

// Result is the evaluation of one pair. TripA and TripB are in canonical
// order regardless of the order they were passed in.
type Result struct {
	TripA         *models.Trip
	TripB         *models.Trip
	Score         float64
	Outcome       Outcome
	MatchType     models.MatchType
	Breakdown     models.ScoreBreakdown
	Analysis      models.RouteAnalysis
	MeetingPoints []models.MeetingPoint
	// PreferencesPresent is false when no preference dimension was comparable
	// and the preferences weight was left out.
	PreferencesPresent bool
}

func (r Result) Viable() bool { return r.Outcome == OutcomeMatch }

// Match returns the TripMatch-shaped view of the result. Identity, status
// and timestamps are left for the caller.
func (r Result) Match() models.TripMatch {
	return models.TripMatch{
		TripAID:            r.TripA.ID,
		TripBID:            r.TripB.ID,
		UserAID:            r.TripA.OwnerID,
		UserBID:            r.TripB.OwnerID,
		CompatibilityScore: r.Score,
		MatchType:          r.MatchType,
		Breakdown:          r.Breakdown,
		RouteAnalysis:      r.Analysis,
		MeetingPoints:      r.MeetingPoints,
	}
}

type Aggregator struct {
	Config Config
}

func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return &Aggregator{Config: cfg}, nil
}

// Evaluate scores a pair. A pair that fails the time cutoff, needs a detour
// beyond either owner's limit or lands below MinScore is returned with a
// non-match Outcome and a nil error; errors are reserved for input that
// cannot be scored.
func (g *Aggregator) Evaluate(a, b Party) (Result, error) {
	if err := checkParty(a); err != nil {
		return Result{}, err
	}
	if err := checkParty(b); err != nil {
		return Result{}, err
	}
	a, b, _ = canonical(a, b)
	res := Result{TripA: a.Trip, TripB: b.Trip}

	timeScore, eligible := TimeCompatibility(a, b)
	res.Breakdown.TimeScore = timeScore
	if !eligible {
		res.Outcome = OutcomeTimeWindow
		return res, nil
	}

	route := CompareRoutes(a, b, g.Config)
	res.MatchType = route.Type
	res.Analysis = route.Analysis
	res.Breakdown.RouteScore = route.Score
	if !route.WithinLimits {
		res.Outcome = OutcomeDetourLimit
		return res, nil
	}
	res.MeetingPoints = route.MeetingPoints
	res.Breakdown.PriceScore = PriceCompatibility(a, b)
	res.Breakdown.PreferencesScore, res.PreferencesPresent = PreferenceCompatibility(a, b)

	res.Score = g.aggregate(res.Breakdown, res.PreferencesPresent)
	if res.Score < g.Config.MinScore {
		res.Outcome = OutcomeBelowThreshold
		return res, nil
	}
	res.Outcome = OutcomeMatch
	return res, nil
}

func (g *Aggregator) aggregate(b models.ScoreBreakdown, withPrefs bool) float64 {
	w := g.Config.Weights
	sum := w.Route*b.RouteScore + w.Time*b.TimeScore + w.Price*b.PriceScore
	total := w.Route + w.Time + w.Price
	if withPrefs {
		sum += w.Preferences * b.PreferencesScore
		total += w.Preferences
	}
	if total <= 0 {
		return 0
	}
	return clamp01(sum / total)
}

func checkParty(p Party) error {
	if p.Trip == nil {
		return &models.ValidationError{Problems: []string{"trip is required"}}
	}
	if err := p.Trip.Validate(); err != nil {
		return err
	}
	if !p.Trip.Status.Matchable() {
		return fmt.Errorf("%w: trip %s is %s", ErrNotMatchable, p.Trip.ID, p.Trip.Status)
	}
	if p.Prefs != nil {
		if err := p.Prefs.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Rank orders results best first. Equal scores prefer the higher route
// score, then the pair with the smaller trip IDs so ordering is stable.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		ri, rj := results[i], results[j]
		if ri.Score != rj.Score {
			return ri.Score > rj.Score
		}
		if ri.Breakdown.RouteScore != rj.Breakdown.RouteScore {
			return ri.Breakdown.RouteScore > rj.Breakdown.RouteScore
		}
		return models.PairKey(ri.TripA.ID, ri.TripB.ID) < models.PairKey(rj.TripA.ID, rj.TripB.ID)
	})
}

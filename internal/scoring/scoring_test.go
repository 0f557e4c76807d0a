package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tripmatch/internal/models"
)

var tenAM = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func trip(id string, o, d models.Coord, dep time.Time) *models.Trip {
	return &models.Trip{
		ID:            id,
		OwnerID:       "owner-" + id,
		Origin:        models.Place{Coord: o},
		Destination:   models.Place{Coord: d},
		DepartureTime: dep,
		Seats:         1,
		PricePerSeat:  10,
		Status:        models.TripActive,
	}
}

// plainPrefs states numeric limits only, so no preference dimension is
// comparable.
func plainPrefs() *models.UserPreferences {
	return &models.UserPreferences{
		MaxDetourMeters:        10000,
		MaxWalkingMeters:       500,
		TimeFlexibilityMinutes: 15,
		PriceMin:               0,
		PriceMax:               50,
		GenderPreference:       models.GenderAny,
	}
}

func newAggregator(t *testing.T) *Aggregator {
	t.Helper()
	g, err := NewAggregator(DefaultConfig())
	require.NoError(t, err)
	return g
}

func TestEvaluate_WorkedExample(t *testing.T) {
	a := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)
	a.PriceRange = &models.PriceRange{Min: 10, Max: 20}
	b := trip("b", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM.Add(10*time.Minute))
	b.PriceRange = &models.PriceRange{Min: 15, Max: 25}

	res, err := newAggregator(t).Evaluate(Party{Trip: a, Prefs: plainPrefs()}, Party{Trip: b, Prefs: plainPrefs()})
	require.NoError(t, err)

	assert.Equal(t, OutcomeMatch, res.Outcome)
	assert.Equal(t, models.MatchExactRoute, res.MatchType)
	assert.InDelta(t, 1.0, res.Breakdown.RouteScore, 1e-9)
	assert.InDelta(t, 2.0/3.0, res.Breakdown.TimeScore, 1e-9)
	assert.InDelta(t, 1.0/3.0, res.Breakdown.PriceScore, 1e-9)
	assert.False(t, res.PreferencesPresent)
	// (0.4*1 + 0.3*2/3 + 0.1*1/3) / 0.8
	assert.InDelta(t, 0.7916667, res.Score, 1e-6)
}

func TestEvaluate_Symmetric(t *testing.T) {
	g := newAggregator(t)
	north := func(id string, lat0, lat1, lon float64, dep time.Time) *models.Trip {
		return trip(id, models.Coord{Lat: lat0, Lon: -74.0}, models.Coord{Lat: lat1, Lon: lon}, dep)
	}
	pairs := []struct {
		name string
		a, b *models.Trip
	}{
		{"exact", north("a", 40.0, 40.1, -74.0, tenAM), north("b", 40.001, 40.1, -74.001, tenAM.Add(5*time.Minute))},
		{"overlap", north("a", 40.0, 40.2, -74.0, tenAM), north("b", 40.05, 40.15, -74.0, tenAM.Add(-3*time.Minute))},
		{"detour", north("a", 40.0, 40.2, -74.0, tenAM), north("b", 40.05, 40.15, -74.0234, tenAM.Add(12*time.Minute))},
		{"far", north("a", 40.0, 40.2, -74.0, tenAM), north("b", 40.5, 40.9, -73.5, tenAM)},
	}
	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			p.a.Preferences.Music = "quiet"
			p.b.Preferences.Music = "loud"
			ab, err := g.Evaluate(Party{Trip: p.a}, Party{Trip: p.b})
			require.NoError(t, err)
			ba, err := g.Evaluate(Party{Trip: p.b}, Party{Trip: p.a})
			require.NoError(t, err)
			assert.Equal(t, ab.Score, ba.Score)
			assert.Equal(t, ab.Breakdown, ba.Breakdown)
			assert.Equal(t, ab.MatchType, ba.MatchType)
			assert.Equal(t, ab.Analysis, ba.Analysis)
			assert.Equal(t, ab.TripA.ID, ba.TripA.ID)
		})
	}
}

func TestEvaluate_SelfIsExactRoute(t *testing.T) {
	a := trip("a", models.Coord{Lat: 51.5, Lon: -0.12}, models.Coord{Lat: 51.52, Lon: -0.08}, tenAM)
	res, err := newAggregator(t).Evaluate(Party{Trip: a}, Party{Trip: a})
	require.NoError(t, err)
	assert.Equal(t, models.MatchExactRoute, res.MatchType)
	assert.Equal(t, 1.0, res.Breakdown.RouteScore)
	assert.Equal(t, 1.0, res.Breakdown.TimeScore)
}

func TestEvaluate_TimeWindowIsHardCutoff(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	a := trip("a", o, d, tenAM)
	b := trip("b", o, d, tenAM.Add(31*time.Minute))

	res, err := newAggregator(t).Evaluate(Party{Trip: a, Prefs: plainPrefs()}, Party{Trip: b, Prefs: plainPrefs()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeWindow, res.Outcome)
	assert.False(t, res.Viable())
	assert.Zero(t, res.Breakdown.TimeScore)
	assert.Zero(t, res.Score)
}

func TestEvaluate_TripFlexibilityOverridesPreferences(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	a := trip("a", o, d, tenAM)
	b := trip("b", o, d, tenAM.Add(40*time.Minute))
	wide := 30
	a.FlexibilityMinutes = &wide

	score, eligible := TimeCompatibility(Party{Trip: a, Prefs: plainPrefs()}, Party{Trip: b, Prefs: plainPrefs()})
	assert.True(t, eligible)
	assert.InDelta(t, 1-40.0/45.0, score, 1e-9)
}

func TestEvaluate_BelowThresholdIsNotAnError(t *testing.T) {
	// guest runs parallel ~4.3 km west of the host: a long but allowed detour
	a := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	a.PriceRange = &models.PriceRange{Min: 5, Max: 10}
	a.Preferences.Smoking = "yes"
	b := trip("b", models.Coord{Lat: 40.05, Lon: -74.05}, models.Coord{Lat: 40.15, Lon: -74.05}, tenAM.Add(15*time.Minute))
	b.PriceRange = &models.PriceRange{Min: 20, Max: 30}
	b.Preferences.Smoking = "no"

	res, err := newAggregator(t).Evaluate(Party{Trip: a, Prefs: plainPrefs()}, Party{Trip: b, Prefs: plainPrefs()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBelowThreshold, res.Outcome)
	assert.Greater(t, res.Breakdown.RouteScore, 0.0)
	assert.InDelta(t, 0.5, res.Breakdown.TimeScore, 1e-9)
	assert.Zero(t, res.Breakdown.PriceScore)
	assert.Zero(t, res.Breakdown.PreferencesScore)
	assert.Greater(t, res.Score, 0.15)
	assert.Less(t, res.Score, 0.3)
}

func TestEvaluate_DetourBeyondLimitIsNotAMatch(t *testing.T) {
	g := newAggregator(t)
	nyc := trip("a", models.Coord{Lat: 40.71, Lon: -74.0}, models.Coord{Lat: 40.78, Lon: -73.97}, tenAM)
	eu := trip("b", models.Coord{Lat: 51.5, Lon: -0.12}, models.Coord{Lat: 48.85, Lon: 2.35}, tenAM)

	for _, pair := range [][2]*models.Trip{{nyc, eu}, {eu, nyc}} {
		res, err := g.Evaluate(Party{Trip: pair[0]}, Party{Trip: pair[1]})
		require.NoError(t, err)
		assert.Equal(t, OutcomeDetourLimit, res.Outcome)
		assert.False(t, res.Viable())
		assert.Zero(t, res.Score)
		assert.Zero(t, res.Breakdown.RouteScore)
		assert.Empty(t, res.MeetingPoints)
		assert.Greater(t, res.Analysis.DetourMeters, 10000.0)
	}
}

func TestEvaluate_RejectsBadInput(t *testing.T) {
	g := newAggregator(t)
	good := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)

	t.Run("inactive", func(t *testing.T) {
		done := trip("b", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)
		done.Status = models.TripCompleted
		_, err := g.Evaluate(Party{Trip: good}, Party{Trip: done})
		assert.ErrorIs(t, err, ErrNotMatchable)
	})

	t.Run("malformed coordinates", func(t *testing.T) {
		bad := trip("b", models.Coord{Lat: 95, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)
		_, err := g.Evaluate(Party{Trip: good}, Party{Trip: bad})
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("empty price range", func(t *testing.T) {
		bad := trip("b", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)
		bad.PriceRange = &models.PriceRange{Min: 20, Max: 20}
		_, err := g.Evaluate(Party{Trip: good}, Party{Trip: bad})
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("empty preference price range", func(t *testing.T) {
		prefs := plainPrefs()
		prefs.PriceMin, prefs.PriceMax = 30, 0
		other := trip("b", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}, tenAM)
		_, err := g.Evaluate(Party{Trip: good}, Party{Trip: other, Prefs: prefs})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Error(), "price_max")
	})

	t.Run("missing trip", func(t *testing.T) {
		_, err := g.Evaluate(Party{Trip: good}, Party{})
		var verr *models.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestEvaluate_MissingPreferencesUseDefaults(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	res, err := newAggregator(t).Evaluate(Party{Trip: trip("a", o, d, tenAM)}, Party{Trip: trip("b", o, d, tenAM)})
	require.NoError(t, err)
	assert.True(t, res.PreferencesPresent)
	assert.Equal(t, 1.0, res.Breakdown.PreferencesScore)
	// both default to [0,50]
	assert.Equal(t, 1.0, res.Breakdown.PriceScore)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestPriceCompatibility(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	tests := []struct {
		name     string
		a, b     models.PriceRange
		expected float64
	}{
		{"disjoint", models.PriceRange{Min: 0, Max: 10}, models.PriceRange{Min: 20, Max: 30}, 0},
		{"touching", models.PriceRange{Min: 0, Max: 10}, models.PriceRange{Min: 10, Max: 30}, 0},
		{"nested", models.PriceRange{Min: 0, Max: 40}, models.PriceRange{Min: 10, Max: 20}, 0.25},
		{"identical", models.PriceRange{Min: 5, Max: 15}, models.PriceRange{Min: 5, Max: 15}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := trip("a", o, d, tenAM), trip("b", o, d, tenAM)
			a.PriceRange, b.PriceRange = &tt.a, &tt.b
			assert.InDelta(t, tt.expected, PriceCompatibility(Party{Trip: a}, Party{Trip: b}), 1e-9)
		})
	}
}

func TestPreferenceCompatibility(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	tests := []struct {
		name     string
		a, b     models.RidePreferences
		expected float64
		present  bool
	}{
		{"exact", models.RidePreferences{Smoking: "no", Music: "quiet"}, models.RidePreferences{Smoking: "no", Music: "quiet"}, 1, true},
		{"indifferent", models.RidePreferences{Pets: "indifferent"}, models.RidePreferences{Pets: "no"}, 1, true},
		{"mismatch", models.RidePreferences{Conversation: "chatty"}, models.RidePreferences{Conversation: "quiet"}, 0, true},
		{"half", models.RidePreferences{Smoking: "no", Music: "loud"}, models.RidePreferences{Smoking: "no", Music: "none"}, 0.5, true},
		{"one sided excluded", models.RidePreferences{Smoking: "no", Music: "loud"}, models.RidePreferences{Smoking: "no"}, 1, true},
		{"nothing comparable", models.RidePreferences{Smoking: "no"}, models.RidePreferences{Music: "loud"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := trip("a", o, d, tenAM), trip("b", o, d, tenAM)
			a.Preferences, b.Preferences = tt.a, tt.b
			score, present := PreferenceCompatibility(Party{Trip: a, Prefs: plainPrefs()}, Party{Trip: b, Prefs: plainPrefs()})
			assert.Equal(t, tt.present, present)
			assert.InDelta(t, tt.expected, score, 1e-9)
		})
	}
}

func TestPreferenceCompatibility_RiderFilters(t *testing.T) {
	o, d := models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.1}
	a, b := trip("a", o, d, tenAM), trip("b", o, d, tenAM)
	b.Profile = &models.RiderProfile{Gender: "male", Age: 30}
	pa := plainPrefs()
	pa.GenderPreference = "female"

	score, present := PreferenceCompatibility(Party{Trip: a, Prefs: pa}, Party{Trip: b, Prefs: plainPrefs()})
	assert.True(t, present)
	assert.Zero(t, score)

	pa.GenderPreference = models.GenderAny
	pa.AgeMin, pa.AgeMax = 25, 35
	score, present = PreferenceCompatibility(Party{Trip: a, Prefs: pa}, Party{Trip: b, Prefs: plainPrefs()})
	assert.True(t, present)
	assert.Equal(t, 1.0, score)
}

func TestCompareRoutes_Classification(t *testing.T) {
	cfg := DefaultConfig()
	host := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	tests := []struct {
		name     string
		guest    *models.Trip
		expected models.MatchType
		minScore float64
		maxScore float64
		within   bool
	}{
		{"near identical", trip("b", models.Coord{Lat: 40.001, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.001}, tenAM), models.MatchExactRoute, 0.9, 1, true},
		{"contained", trip("b", models.Coord{Lat: 40.05, Lon: -74.0}, models.Coord{Lat: 40.15, Lon: -74.0}, tenAM), models.MatchPartialOverlap, 0.99, 1, true},
		{"pickup off path", trip("b", models.Coord{Lat: 40.05, Lon: -74.0234}, models.Coord{Lat: 40.15, Lon: -74.0}, tenAM), models.MatchDetourPickup, 0.75, 0.85, true},
		{"dropoff off path", trip("b", models.Coord{Lat: 40.05, Lon: -74.0}, models.Coord{Lat: 40.15, Lon: -74.0234}, tenAM), models.MatchDetourDropoff, 0.75, 0.85, true},
		{"opposite direction", trip("b", models.Coord{Lat: 40.15, Lon: -74.0}, models.Coord{Lat: 40.05, Lon: -74.0}, tenAM), models.MatchDetourPickup, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CompareRoutes(Party{Trip: host}, Party{Trip: tt.guest}, cfg)
			assert.Equal(t, tt.expected, res.Type)
			assert.Equal(t, tt.within, res.WithinLimits)
			assert.GreaterOrEqual(t, res.Score, tt.minScore)
			assert.LessOrEqual(t, res.Score, tt.maxScore)
			assert.Len(t, res.MeetingPoints, 2)
			assert.False(t, res.Analysis.Routed)
		})
	}
}

func TestCompareRoutes_DetourTimeLimit(t *testing.T) {
	host := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	// both guest endpoints ~4.9 km off the host path: just under the 10 km
	// distance limit but over 20 minutes at 8 m/s
	guest := trip("b", models.Coord{Lat: 40.05, Lon: -74.0575}, models.Coord{Lat: 40.15, Lon: -74.0575}, tenAM)

	cfg := DefaultConfig()
	res := CompareRoutes(Party{Trip: host}, Party{Trip: guest}, cfg)
	assert.Less(t, res.Analysis.DetourMeters, 10000.0)
	assert.Greater(t, res.Analysis.DetourSeconds, 1200.0)
	assert.False(t, res.WithinLimits)

	cfg.SpeedMps = 12
	res = CompareRoutes(Party{Trip: host}, Party{Trip: guest}, cfg)
	assert.Less(t, res.Analysis.DetourSeconds, 1200.0)
	assert.True(t, res.WithinLimits)

	// a routed host path carries its own speed
	fast := Party{
		Trip:            host,
		Path:            []models.Coord{host.Origin.Coord, host.Destination.Coord},
		DistanceMeters:  22000,
		DurationSeconds: 1100,
		Routed:          true,
	}
	res = CompareRoutes(fast, Party{Trip: guest}, DefaultConfig())
	assert.True(t, res.Analysis.Routed)
	assert.InDelta(t, res.Analysis.DetourMeters/20, res.Analysis.DetourSeconds, 1e-6)
	assert.True(t, res.WithinLimits)
}

func TestCompareRoutes_RoutedFollowsHost(t *testing.T) {
	host := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	guest := trip("b", models.Coord{Lat: 40.05, Lon: -74.0}, models.Coord{Lat: 40.15, Lon: -74.0}, tenAM)
	routedHost := Party{Trip: host, Path: []models.Coord{host.Origin.Coord, host.Destination.Coord}, Routed: true}

	res := CompareRoutes(routedHost, Party{Trip: guest}, DefaultConfig())
	require.Equal(t, host.ID, res.Analysis.HostTripID)
	assert.True(t, res.Analysis.Routed)

	res = CompareRoutes(Party{Trip: host}, Party{Trip: guest, Path: []models.Coord{guest.Origin.Coord, guest.Destination.Coord}, Routed: true}, DefaultConfig())
	require.Equal(t, host.ID, res.Analysis.HostTripID)
	assert.False(t, res.Analysis.Routed)
}

func TestCompareRoutes_UsesRoutedPath(t *testing.T) {
	cfg := DefaultConfig()
	// the host's road swings east through the guest's pickup
	host := trip("a", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	guest := trip("b", models.Coord{Lat: 40.1, Lon: -73.95}, models.Coord{Lat: 40.2, Lon: -74.0}, tenAM)
	road := []models.Coord{{Lat: 40.0, Lon: -74.0}, {Lat: 40.1, Lon: -73.95}, {Lat: 40.2, Lon: -74.0}}

	straight := CompareRoutes(Party{Trip: host}, Party{Trip: guest}, cfg)
	routed := CompareRoutes(Party{Trip: host, Path: road, Routed: true}, Party{Trip: guest, Path: []models.Coord{guest.Origin.Coord, guest.Destination.Coord}, Routed: true}, cfg)

	assert.True(t, routed.Analysis.Routed)
	assert.Equal(t, models.MatchPartialOverlap, routed.Type)
	assert.Greater(t, routed.Score, straight.Score)
	assert.Equal(t, host.ID, routed.Analysis.HostTripID)
}

func TestRank_TieBreaksOnRouteScore(t *testing.T) {
	a, b, c := &models.Trip{ID: "a"}, &models.Trip{ID: "b"}, &models.Trip{ID: "c"}
	results := []Result{
		{TripA: a, TripB: b, Score: 0.7, Breakdown: models.ScoreBreakdown{RouteScore: 0.5}},
		{TripA: a, TripB: c, Score: 0.7, Breakdown: models.ScoreBreakdown{RouteScore: 0.9}},
		{TripA: b, TripB: c, Score: 0.8, Breakdown: models.ScoreBreakdown{RouteScore: 0.1}},
	}
	Rank(results)
	assert.Equal(t, "c", results[0].TripB.ID)
	assert.Equal(t, "b", results[0].TripA.ID)
	assert.Equal(t, 0.9, results[1].Breakdown.RouteScore)
	assert.Equal(t, 0.5, results[2].Breakdown.RouteScore)
}

func TestAggregate_Clamped(t *testing.T) {
	g := &Aggregator{Config: Config{Weights: Weights{Route: 1, Time: 1, Preferences: 1, Price: 1}}}
	score := g.aggregate(models.ScoreBreakdown{RouteScore: 1.0000001, TimeScore: 1, PreferencesScore: 1, PriceScore: 1}, true)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Weights.Price = -0.1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Weights = Weights{}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SpeedMps = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MinScore = 1.5
	_, err := NewAggregator(cfg)
	assert.Error(t, err)
}

func TestQualityLabel(t *testing.T) {
	tests := []struct {
		score    float64
		expected string
	}{
		{1, "Excellent"},
		{0.8, "Excellent"},
		{0.79, "Good"},
		{0.6, "Good"},
		{0.4, "Fair"},
		{0.39, "Poor"},
		{0, "Poor"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, QualityLabel(tt.score), "score %v", tt.score)
	}
}

func TestNewDisplay(t *testing.T) {
	m := &models.TripMatch{
		CompatibilityScore: 0.7916667,
		MatchType:          models.MatchExactRoute,
		Breakdown:          models.ScoreBreakdown{RouteScore: 1, TimeScore: 2.0 / 3.0, PriceScore: 1.0 / 3.0},
	}
	d := NewDisplay(m, false)
	assert.Equal(t, 79, d.Percentage)
	assert.Equal(t, "Good", d.Label)
	assert.Equal(t, "Exact route", d.MatchTypeLabel)
	assert.Nil(t, d.Breakdown)

	d = NewDisplay(m, true)
	require.NotNil(t, d.Breakdown)
	assert.Equal(t, BreakdownDisplay{Route: 100, Time: 67, Preferences: 0, Price: 33}, *d.Breakdown)
}

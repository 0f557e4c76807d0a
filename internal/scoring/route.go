package scoring

import (
	"math"

	"github.com/example/tripmatch/internal/geo"
	"github.com/example/tripmatch/internal/models"
)

// Party is one side of a pair: a trip, its owner's preferences and the
// path the trip is expected to follow.
type Party struct {
	Trip *models.Trip
	// Prefs may be nil; defaults are substituted.
	Prefs *models.UserPreferences
	// Path is nil when no path is known; a straight segment is used.
	Path []models.Coord
	// DistanceMeters and DurationSeconds describe Path; zero when unknown.
	DistanceMeters  float64
	DurationSeconds float64
	// Routed is true when Path came from a directions provider.
	Routed bool
}

func (p Party) path() []models.Coord {
	if len(p.Path) >= 2 {
		return p.Path
	}
	return []models.Coord{p.Trip.Origin.Coord, p.Trip.Destination.Coord}
}

func (p Party) routed() bool { return p.Routed && len(p.Path) >= 2 }

// speed is the average speed along the path, or fallback when the path
// carries no timing.
func (p Party) speed(fallback float64) float64 {
	if p.DistanceMeters > 0 && p.DurationSeconds > 0 {
		return p.DistanceMeters / p.DurationSeconds
	}
	return fallback
}

func (p Party) prefs() models.UserPreferences {
	return models.ResolvePreferences(p.Prefs, p.Trip.OwnerID)
}

// canonical orders a pair so every pairwise result is independent of the
// argument order.
func canonical(a, b Party) (Party, Party, bool) {
	if less(b.Trip, a.Trip) {
		return b, a, true
	}
	return a, b, false
}

func less(x, y *models.Trip) bool {
	if x.ID != y.ID {
		return x.ID < y.ID
	}
	kx := [5]float64{x.Origin.Coord.Lat, x.Origin.Coord.Lon, x.Destination.Coord.Lat, x.Destination.Coord.Lon, float64(x.DepartureTime.UnixNano())}
	ky := [5]float64{y.Origin.Coord.Lat, y.Origin.Coord.Lon, y.Destination.Coord.Lat, y.Destination.Coord.Lon, float64(y.DepartureTime.UnixNano())}
	for i := range kx {
		if kx[i] != ky[i] {
			return kx[i] < ky[i]
		}
	}
	return false
}

// RouteResult is the route dimension of a pair.
type RouteResult struct {
	Score         float64
	Type          models.MatchType
	Analysis      models.RouteAnalysis
	MeetingPoints []models.MeetingPoint
	// WithinLimits is false when the detour reaches either owner's distance
	// or time limit; such a pair must not be aggregated.
	WithinLimits bool
}

type hosting struct {
	hostIsA   bool
	pickup    geo.Projection
	dropoff   geo.Projection
	opposite  bool
	detour    float64
	overlap   float64
	guestPath []models.Coord
}

// CompareRoutes scores how well the two paths can be shared. Detour is the
// extra distance the host's path needs to reach the guest's endpoints,
// taken over whichever trip makes the better host, and timed at the host's
// speed.
func CompareRoutes(a, b Party, cfg Config) RouteResult {
	a, b, _ = canonical(a, b)
	pa, pb := a.prefs(), b.prefs()
	corridor := math.Min(pa.MaxWalkingMeters, pb.MaxWalkingMeters)
	maxDetour := math.Min(pa.MaxDetourMeters, pb.MaxDetourMeters)
	maxDetourSeconds := 60 * float64(min(pa.MaxDetourMinutes, pb.MaxDetourMinutes))

	ao, ad := a.Trip.Origin.Coord, a.Trip.Destination.Coord
	bo, bd := b.Trip.Origin.Coord, b.Trip.Destination.Coord
	pickupGap := geo.Distance(ao, bo)
	dropoffGap := geo.Distance(ad, bd)

	hA := host(a, b, true, pickupGap+dropoffGap, corridor, cfg)
	hB := host(b, a, false, pickupGap+dropoffGap, corridor, cfg)
	h := hA
	if hB.detour < hA.detour {
		h = hB
	}
	hostParty := b
	if h.hostIsA {
		hostParty = a
	}
	var detourSeconds float64
	if speed := hostParty.speed(cfg.SpeedMps); speed > 0 {
		detourSeconds = h.detour / speed
	}

	res := RouteResult{Analysis: models.RouteAnalysis{
		HostTripID:       hostParty.Trip.ID,
		PickupGapMeters:  pickupGap,
		DropoffGapMeters: dropoffGap,
		DetourMeters:     h.detour,
		DetourSeconds:    detourSeconds,
		OverlapRatio:     h.overlap,
		Routed:           hostParty.routed(),
	}}

	exact := cfg.ExactRadiusMeters
	onPickup := !h.opposite && h.pickup.Distance <= corridor
	onDropoff := !h.opposite && h.dropoff.Distance <= corridor
	switch {
	case pickupGap <= exact && dropoffGap <= exact:
		res.Type = models.MatchExactRoute
		res.WithinLimits = true
		// kept within [0.9, 1] so an exact route always reads as near-perfect
		res.Score = 1 - 0.1*math.Min(1, h.detour/(2*exact))
		res.MeetingPoints = []models.MeetingPoint{
			midpoint(models.MeetingPickup, ao, bo, pickupGap),
			midpoint(models.MeetingDropoff, ad, bd, dropoffGap),
		}
		return res
	case !h.opposite && ((onPickup && onDropoff) || h.overlap >= cfg.OverlapThreshold):
		res.Type = models.MatchPartialOverlap
	case onDropoff && !onPickup:
		res.Type = models.MatchDetourPickup
	case onPickup && !onDropoff:
		res.Type = models.MatchDetourDropoff
	case h.pickup.Distance >= h.dropoff.Distance:
		res.Type = models.MatchDetourPickup
	default:
		res.Type = models.MatchDetourDropoff
	}
	res.WithinLimits = h.detour == 0 ||
		(h.detour < maxDetour && detourSeconds < maxDetourSeconds)
	if maxDetour > 0 {
		res.Score = clamp01(1 - h.detour/maxDetour)
	} else if h.detour == 0 {
		res.Score = 1
	}
	res.MeetingPoints = []models.MeetingPoint{
		meetingPoint(models.MeetingPickup, h, h.pickup, guestCoord(a, b, h, true), onPickup),
		meetingPoint(models.MeetingDropoff, h, h.dropoff, guestCoord(a, b, h, false), onDropoff),
	}
	return res
}

func host(h, g Party, hostIsA bool, gapSum, corridor float64, cfg Config) hosting {
	hp := h.path()
	out := hosting{
		hostIsA:   hostIsA,
		pickup:    geo.Project(g.Trip.Origin.Coord, hp),
		dropoff:   geo.Project(g.Trip.Destination.Coord, hp),
		guestPath: g.path(),
	}
	if out.dropoff.Along < out.pickup.Along {
		out.opposite = true
		out.detour = gapSum
	} else {
		out.detour = out.pickup.Distance + out.dropoff.Distance
	}
	out.overlap = overlapRatio(out.guestPath, hp, corridor, cfg.SampleStepMeters)
	return out
}

// overlapRatio is the fraction of the guest path lying within corridor
// meters of the host path.
func overlapRatio(guest, hostPath []models.Coord, corridor, step float64) float64 {
	samples := geo.Densify(guest, step)
	if len(samples) == 0 {
		return 0
	}
	var near int
	for _, s := range samples {
		if geo.Project(s, hostPath).Distance <= corridor {
			near++
		}
	}
	return float64(near) / float64(len(samples))
}

func guestCoord(a, b Party, h hosting, pickup bool) models.Coord {
	g := a
	if h.hostIsA {
		g = b
	}
	if pickup {
		return g.Trip.Origin.Coord
	}
	return g.Trip.Destination.Coord
}

// meetingPoint puts the meeting on the host path when the guest can walk to
// it, otherwise at the guest's own point and the host detours.
func meetingPoint(kind models.MeetingPointKind, h hosting, proj geo.Projection, guest models.Coord, walkable bool) models.MeetingPoint {
	mp := models.MeetingPoint{Kind: kind, Location: guest}
	if !walkable {
		return mp
	}
	mp.Location = proj.Point
	if h.hostIsA {
		mp.WalkingMetersB = proj.Distance
	} else {
		mp.WalkingMetersA = proj.Distance
	}
	return mp
}

func midpoint(kind models.MeetingPointKind, a, b models.Coord, gap float64) models.MeetingPoint {
	return models.MeetingPoint{
		Kind:           kind,
		Location:       models.Coord{Lat: (a.Lat + b.Lat) / 2, Lon: (a.Lon + b.Lon) / 2},
		WalkingMetersA: gap / 2,
		WalkingMetersB: gap / 2,
	}
}

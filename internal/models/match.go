package models

import "time"

type MatchType string

const (
	MatchExactRoute     MatchType = "exact_route"
	MatchPartialOverlap MatchType = "partial_overlap"
	MatchDetourPickup   MatchType = "detour_pickup"
	MatchDetourDropoff  MatchType = "detour_dropoff"
)

type MatchStatus string

const (
	MatchSuggested MatchStatus = "SUGGESTED"
	MatchViewed    MatchStatus = "VIEWED"
	MatchContacted MatchStatus = "CONTACTED"
	MatchAccepted  MatchStatus = "ACCEPTED"
	MatchDeclined  MatchStatus = "DECLINED"
	MatchExpired   MatchStatus = "EXPIRED"
)

var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchSuggested: {MatchViewed, MatchDeclined, MatchExpired},
	MatchViewed:    {MatchContacted, MatchDeclined, MatchExpired},
	MatchContacted: {MatchAccepted, MatchDeclined, MatchExpired},
}

func (s MatchStatus) Terminal() bool {
	return s == MatchAccepted || s == MatchDeclined || s == MatchExpired
}

// CanTransition reports whether a match may move from s to next.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	for _, allowed := range matchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type ScoreBreakdown struct {
	RouteScore       float64 `json:"routeScore"`
	TimeScore        float64 `json:"timeScore"`
	PreferencesScore float64 `json:"preferencesScore"`
	PriceScore       float64 `json:"priceScore"`
}

type RouteAnalysis struct {
	HostTripID       string  `json:"host_trip_id"`
	PickupGapMeters  float64 `json:"pickup_gap_meters"`
	DropoffGapMeters float64 `json:"dropoff_gap_meters"`
	DetourMeters     float64 `json:"detour_meters"`
	DetourSeconds    float64 `json:"detour_seconds"`
	OverlapRatio     float64 `json:"overlap_ratio"`
	// Routed is false when the host path came from the straight-line
	// fallback.
	Routed bool `json:"routed"`
}

type MeetingPointKind string

const (
	MeetingPickup  MeetingPointKind = "pickup"
	MeetingDropoff MeetingPointKind = "dropoff"
)

// MeetingPoint is a suggested pickup or dropoff location with the walking
// distance it costs the owners of trip A and trip B.
type MeetingPoint struct {
	Kind           MeetingPointKind `json:"kind"`
	Location       Coord            `json:"location"`
	WalkingMetersA float64          `json:"walking_meters_a"`
	WalkingMetersB float64          `json:"walking_meters_b"`
}

type TripMatch struct {
	ID                 string         `json:"id"`
	TripAID            string         `json:"trip_a_id"`
	TripBID            string         `json:"trip_b_id"`
	UserAID            string         `json:"user_a_id"`
	UserBID            string         `json:"user_b_id"`
	CompatibilityScore float64        `json:"compatibility_score"`
	MatchType          MatchType      `json:"match_type"`
	Breakdown          ScoreBreakdown `json:"breakdown"`
	RouteAnalysis      RouteAnalysis  `json:"route_analysis"`
	MeetingPoints      []MeetingPoint `json:"meeting_points"`
	Status             MatchStatus    `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
}

// Involves reports whether userID owns one of the matched trips.
func (m *TripMatch) Involves(userID string) bool {
	return userID != "" && (m.UserAID == userID || m.UserBID == userID)
}

// Counterpart returns the owner of the other trip.
func (m *TripMatch) Counterpart(userID string) string {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// PairKey identifies the unordered trip pair a match belongs to.
func PairKey(tripA, tripB string) string {
	if tripB < tripA {
		tripA, tripB = tripB, tripA
	}
	return tripA + ":" + tripB
}

package models

import (
	"math"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat" db:"lat" validate:"latitude"`
	Lon float64 `json:"lon" db:"lon" validate:"longitude"`
}

// Valid reports whether c is a finite coordinate inside the WGS84 bounds.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type Place struct {
	Address string `json:"address,omitempty"`
	Coord   Coord  `json:"coord"`
}

type TripStatus string

const (
	TripActive    TripStatus = "ACTIVE"
	TripMatched   TripStatus = "MATCHED"
	TripCancelled TripStatus = "CANCELLED"
	TripCompleted TripStatus = "COMPLETED"
)

func (s TripStatus) Terminal() bool { return s == TripCancelled || s == TripCompleted }

// Matchable reports whether a trip in this status may be paired with another.
func (s TripStatus) Matchable() bool { return s == TripActive }

// PriceRange is an inclusive [Min, Max] range in the trip currency.
type PriceRange struct {
	Min float64 `json:"min" validate:"gte=0"`
	Max float64 `json:"max" validate:"gte=0"`
}

func (p PriceRange) Width() float64 { return p.Max - p.Min }

// RidePreferences are the categorical flags a rider states on a trip.
// An empty value means the rider did not say.
type RidePreferences struct {
	Smoking      string `json:"smoking,omitempty" validate:"omitempty,oneof=yes no indifferent"`
	Pets         string `json:"pets,omitempty" validate:"omitempty,oneof=yes no indifferent"`
	Music        string `json:"music,omitempty" validate:"omitempty,oneof=none quiet loud indifferent"`
	Conversation string `json:"conversation,omitempty" validate:"omitempty,oneof=quiet moderate chatty indifferent"`
}

// RiderProfile is what the gender and age filters are checked against.
type RiderProfile struct {
	Gender string `json:"gender,omitempty"`
	Age    int    `json:"age,omitempty" validate:"gte=0,lte=130"`
}

type Trip struct {
	ID                 string          `json:"id"`
	OwnerID            string          `json:"owner_id" validate:"required"`
	Origin             Place           `json:"origin"`
	Destination        Place           `json:"destination"`
	DepartureTime      time.Time       `json:"departure_time" validate:"required"`
	Seats              int             `json:"seats" validate:"gte=1,lte=8"`
	PricePerSeat       float64         `json:"price_per_seat" validate:"gte=0"`
	PriceRange         *PriceRange     `json:"price_range,omitempty"`
	FlexibilityMinutes *int            `json:"flexibility_minutes,omitempty" validate:"omitempty,gte=0"`
	Preferences        RidePreferences `json:"preferences"`
	Profile            *RiderProfile   `json:"profile,omitempty"`
	Status             TripStatus      `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Bounds returns the lat/lon bounding box of the trip's straight-line path.
func (t *Trip) Bounds() (min, max [2]float64) {
	o, d := t.Origin.Coord, t.Destination.Coord
	min = [2]float64{math.Min(o.Lat, d.Lat), math.Min(o.Lon, d.Lon)}
	max = [2]float64{math.Max(o.Lat, d.Lat), math.Max(o.Lon, d.Lon)}
	return min, max
}

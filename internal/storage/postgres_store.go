package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/tripmatch/internal/models"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the pool for migrations and health checks.
func (p *PostgresStore) DB() *sqlx.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

type tripRow struct {
	ID                 string          `db:"id"`
	OwnerID            string          `db:"owner_id"`
	OriginAddress      string          `db:"origin_address"`
	OriginLat          float64         `db:"origin_lat"`
	OriginLon          float64         `db:"origin_lon"`
	DestAddress        string          `db:"dest_address"`
	DestLat            float64         `db:"dest_lat"`
	DestLon            float64         `db:"dest_lon"`
	DepartureTime      time.Time       `db:"departure_time"`
	Seats              int             `db:"seats"`
	PricePerSeat       float64         `db:"price_per_seat"`
	PriceMin           sql.NullFloat64 `db:"price_min"`
	PriceMax           sql.NullFloat64 `db:"price_max"`
	FlexibilityMinutes sql.NullInt64   `db:"flexibility_minutes"`
	Preferences        []byte          `db:"preferences"`
	Profile            []byte          `db:"profile"`
	Status             string          `db:"status"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func toTripRow(t *models.Trip) (tripRow, error) {
	r := tripRow{
		ID:            t.ID,
		OwnerID:       t.OwnerID,
		OriginAddress: t.Origin.Address,
		OriginLat:     t.Origin.Coord.Lat,
		OriginLon:     t.Origin.Coord.Lon,
		DestAddress:   t.Destination.Address,
		DestLat:       t.Destination.Coord.Lat,
		DestLon:       t.Destination.Coord.Lon,
		DepartureTime: t.DepartureTime,
		Seats:         t.Seats,
		PricePerSeat:  t.PricePerSeat,
		Status:        string(t.Status),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.PriceRange != nil {
		r.PriceMin = sql.NullFloat64{Float64: t.PriceRange.Min, Valid: true}
		r.PriceMax = sql.NullFloat64{Float64: t.PriceRange.Max, Valid: true}
	}
	if t.FlexibilityMinutes != nil {
		r.FlexibilityMinutes = sql.NullInt64{Int64: int64(*t.FlexibilityMinutes), Valid: true}
	}
	var err error
	if r.Preferences, err = json.Marshal(t.Preferences); err != nil {
		return r, err
	}
	if t.Profile != nil {
		if r.Profile, err = json.Marshal(t.Profile); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (r tripRow) trip() (*models.Trip, error) {
	t := &models.Trip{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Origin:        models.Place{Address: r.OriginAddress, Coord: models.Coord{Lat: r.OriginLat, Lon: r.OriginLon}},
		Destination:   models.Place{Address: r.DestAddress, Coord: models.Coord{Lat: r.DestLat, Lon: r.DestLon}},
		DepartureTime: r.DepartureTime,
		Seats:         r.Seats,
		PricePerSeat:  r.PricePerSeat,
		Status:        models.TripStatus(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.PriceMin.Valid && r.PriceMax.Valid {
		t.PriceRange = &models.PriceRange{Min: r.PriceMin.Float64, Max: r.PriceMax.Float64}
	}
	if r.FlexibilityMinutes.Valid {
		f := int(r.FlexibilityMinutes.Int64)
		t.FlexibilityMinutes = &f
	}
	if len(r.Preferences) > 0 {
		if err := json.Unmarshal(r.Preferences, &t.Preferences); err != nil {
			return nil, fmt.Errorf("trip %s preferences: %w", r.ID, err)
		}
	}
	if len(r.Profile) > 0 {
		t.Profile = &models.RiderProfile{}
		if err := json.Unmarshal(r.Profile, t.Profile); err != nil {
			return nil, fmt.Errorf("trip %s profile: %w", r.ID, err)
		}
	}
	return t, nil
}

func tripsFromRows(rows []tripRow) ([]*models.Trip, error) {
	out := make([]*models.Trip, 0, len(rows))
	for _, r := range rows {
		t, err := r.trip()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *PostgresStore) SaveTrip(ctx context.Context, t *models.Trip) error {
	row, err := toTripRow(t)
	if err != nil {
		return err
	}
	_, err = p.db.NamedExecContext(ctx, `
		INSERT INTO trips (id, owner_id, origin_address, origin_lat, origin_lon, dest_address, dest_lat, dest_lon,
			departure_time, seats, price_per_seat, price_min, price_max, flexibility_minutes, preferences, profile,
			status, created_at, updated_at)
		VALUES (:id, :owner_id, :origin_address, :origin_lat, :origin_lon, :dest_address, :dest_lat, :dest_lon,
			:departure_time, :seats, :price_per_seat, :price_min, :price_max, :flexibility_minutes, :preferences, :profile,
			:status, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			departure_time = EXCLUDED.departure_time, seats = EXCLUDED.seats, price_per_seat = EXCLUDED.price_per_seat,
			price_min = EXCLUDED.price_min, price_max = EXCLUDED.price_max,
			flexibility_minutes = EXCLUDED.flexibility_minutes, preferences = EXCLUDED.preferences,
			profile = EXCLUDED.profile, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`, row)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var row tripRow
	if err := p.db.GetContext(ctx, &row, `SELECT * FROM trips WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.trip()
}

func (p *PostgresStore) GetTrips(ctx context.Context, ids []string) ([]*models.Trip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []tripRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM trips WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	return tripsFromRows(rows)
}

func (p *PostgresStore) ActiveTrips(ctx context.Context) ([]*models.Trip, error) {
	var rows []tripRow
	if err := p.db.SelectContext(ctx, &rows, `SELECT * FROM trips WHERE status = $1 ORDER BY id`, string(models.TripActive)); err != nil {
		return nil, err
	}
	return tripsFromRows(rows)
}

func (p *PostgresStore) UpdateTripStatus(ctx context.Context, id string, status models.TripStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type prefsRow struct {
	models.UserPreferences
	Ride []byte `db:"ride"`
}

func (p *PostgresStore) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	var row prefsRow
	if err := p.db.GetContext(ctx, &row, `SELECT * FROM user_preferences WHERE user_id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	out := row.UserPreferences
	if len(row.Ride) > 0 {
		if err := json.Unmarshal(row.Ride, &out.Ride); err != nil {
			return nil, fmt.Errorf("preferences %s ride: %w", userID, err)
		}
	}
	return &out, nil
}

func (p *PostgresStore) UpsertPreferences(ctx context.Context, up *models.UserPreferences) error {
	ride, err := json.Marshal(up.Ride)
	if err != nil {
		return err
	}
	row := prefsRow{UserPreferences: *up, Ride: ride}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}
	_, err = p.db.NamedExecContext(ctx, `
		INSERT INTO user_preferences (user_id, max_detour_meters, max_detour_minutes, max_walking_meters,
			time_flexibility_minutes, price_min, price_max, ride, gender_preference, age_min, age_max, updated_at)
		VALUES (:user_id, :max_detour_meters, :max_detour_minutes, :max_walking_meters,
			:time_flexibility_minutes, :price_min, :price_max, :ride, :gender_preference, :age_min, :age_max, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			max_detour_meters = EXCLUDED.max_detour_meters, max_detour_minutes = EXCLUDED.max_detour_minutes,
			max_walking_meters = EXCLUDED.max_walking_meters, time_flexibility_minutes = EXCLUDED.time_flexibility_minutes,
			price_min = EXCLUDED.price_min, price_max = EXCLUDED.price_max, ride = EXCLUDED.ride,
			gender_preference = EXCLUDED.gender_preference, age_min = EXCLUDED.age_min, age_max = EXCLUDED.age_max,
			updated_at = EXCLUDED.updated_at`, row)
	return err
}

type matchRow struct {
	ID                 string    `db:"id"`
	PairKey            string    `db:"pair_key"`
	TripAID            string    `db:"trip_a_id"`
	TripBID            string    `db:"trip_b_id"`
	UserAID            string    `db:"user_a_id"`
	UserBID            string    `db:"user_b_id"`
	CompatibilityScore float64   `db:"compatibility_score"`
	MatchType          string    `db:"match_type"`
	Breakdown          []byte    `db:"breakdown"`
	RouteAnalysis      []byte    `db:"route_analysis"`
	MeetingPoints      []byte    `db:"meeting_points"`
	Status             string    `db:"status"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
	ExpiresAt          time.Time `db:"expires_at"`
}

func toMatchRow(m *models.TripMatch) (matchRow, error) {
	r := matchRow{
		ID:                 m.ID,
		PairKey:            models.PairKey(m.TripAID, m.TripBID),
		TripAID:            m.TripAID,
		TripBID:            m.TripBID,
		UserAID:            m.UserAID,
		UserBID:            m.UserBID,
		CompatibilityScore: m.CompatibilityScore,
		MatchType:          string(m.MatchType),
		Status:             string(m.Status),
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		ExpiresAt:          m.ExpiresAt,
	}
	var err error
	if r.Breakdown, err = json.Marshal(m.Breakdown); err != nil {
		return r, err
	}
	if r.RouteAnalysis, err = json.Marshal(m.RouteAnalysis); err != nil {
		return r, err
	}
	if r.MeetingPoints, err = json.Marshal(m.MeetingPoints); err != nil {
		return r, err
	}
	return r, nil
}

func (r matchRow) match() (*models.TripMatch, error) {
	m := &models.TripMatch{
		ID:                 r.ID,
		TripAID:            r.TripAID,
		TripBID:            r.TripBID,
		UserAID:            r.UserAID,
		UserBID:            r.UserBID,
		CompatibilityScore: r.CompatibilityScore,
		MatchType:          models.MatchType(r.MatchType),
		Status:             models.MatchStatus(r.Status),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		ExpiresAt:          r.ExpiresAt,
	}
	if err := json.Unmarshal(r.Breakdown, &m.Breakdown); err != nil {
		return nil, fmt.Errorf("match %s breakdown: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.RouteAnalysis, &m.RouteAnalysis); err != nil {
		return nil, fmt.Errorf("match %s route analysis: %w", r.ID, err)
	}
	if err := json.Unmarshal(r.MeetingPoints, &m.MeetingPoints); err != nil {
		return nil, fmt.Errorf("match %s meeting points: %w", r.ID, err)
	}
	return m, nil
}

func matchesFromRows(rows []matchRow) ([]*models.TripMatch, error) {
	out := make([]*models.TripMatch, 0, len(rows))
	for _, r := range rows {
		m, err := r.match()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *PostgresStore) SaveMatch(ctx context.Context, m *models.TripMatch) (*models.TripMatch, bool, error) {
	row, err := toMatchRow(m)
	if err != nil {
		return nil, false, err
	}
	rows, err := p.db.NamedQueryContext(ctx, `
		INSERT INTO trip_matches (id, pair_key, trip_a_id, trip_b_id, user_a_id, user_b_id, compatibility_score,
			match_type, breakdown, route_analysis, meeting_points, status, created_at, updated_at, expires_at)
		VALUES (:id, :pair_key, :trip_a_id, :trip_b_id, :user_a_id, :user_b_id, :compatibility_score,
			:match_type, :breakdown, :route_analysis, :meeting_points, :status, :created_at, :updated_at, :expires_at)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING id`, row)
	if err != nil {
		return nil, false, err
	}
	inserted := rows.Next()
	_ = rows.Close()
	if inserted {
		cp := *m
		return &cp, true, nil
	}
	var existing matchRow
	if err := p.db.GetContext(ctx, &existing, `SELECT * FROM trip_matches WHERE pair_key = $1`, row.PairKey); err != nil {
		return nil, false, err
	}
	stored, err := existing.match()
	return stored, false, err
}

func (p *PostgresStore) GetMatch(ctx context.Context, id string) (*models.TripMatch, error) {
	var row matchRow
	if err := p.db.GetContext(ctx, &row, `SELECT * FROM trip_matches WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.match()
}

func (p *PostgresStore) MatchesForTrip(ctx context.Context, tripID string) ([]*models.TripMatch, error) {
	var rows []matchRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM trip_matches WHERE trip_a_id = $1 OR trip_b_id = $1
		ORDER BY compatibility_score DESC, id`, tripID)
	if err != nil {
		return nil, err
	}
	return matchesFromRows(rows)
}

func (p *PostgresStore) UpdateMatchStatus(ctx context.Context, id string, from, to models.MatchStatus, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE trip_matches SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := p.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM trip_matches WHERE id = $1)`, id); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (p *PostgresStore) ExpireMatches(ctx context.Context, now time.Time) ([]*models.TripMatch, error) {
	var rows []matchRow
	err := p.db.SelectContext(ctx, &rows, `
		UPDATE trip_matches SET status = $1, updated_at = $2
		WHERE status = ANY($3) AND expires_at < $2
		RETURNING *`,
		string(models.MatchExpired), now,
		pq.Array([]string{string(models.MatchSuggested), string(models.MatchViewed), string(models.MatchContacted)}))
	if err != nil {
		return nil, err
	}
	out, err := matchesFromRows(rows)
	if err != nil {
		return nil, err
	}
	sortMatches(out)
	return out, nil
}

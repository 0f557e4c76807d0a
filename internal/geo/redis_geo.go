package geo

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/example/tripmatch/internal/models"
)

// RedisIndex implements Index in Redis. Each trip keeps its bounding box in
// a hash, the box center in a GEO set and the box radius in a sorted set.
// Search widens its circle by the largest stored radius, so every box that
// can intersect the query is in range, then filters on the boxes.
type RedisIndex struct {
	client *redis.Client
	prefix string
}

func NewRedisIndex(client *redis.Client, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "trips_geo"
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) centersKey() string { return r.prefix + ":centers" }
func (r *RedisIndex) boxesKey() string   { return r.prefix + ":boxes" }
func (r *RedisIndex) radiiKey() string   { return r.prefix + ":radii" }

func (r *RedisIndex) Add(ctx context.Context, t *models.Trip) error {
	min, max := t.Bounds()
	center, radius := boxCircle(min, max)
	pipe := r.client.TxPipeline()
	pipe.GeoAdd(ctx, r.centersKey(), &redis.GeoLocation{Longitude: center.Lon, Latitude: center.Lat, Name: t.ID})
	pipe.HSet(ctx, r.boxesKey(), t.ID, encodeBox(min, max))
	pipe.ZAdd(ctx, r.radiiKey(), redis.Z{Score: radius, Member: t.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index trip %s: %w", t.ID, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, tripID string) error {
	pipe := r.client.TxPipeline()
	pipe.ZRem(ctx, r.centersKey(), tripID)
	pipe.HDel(ctx, r.boxesKey(), tripID)
	pipe.ZRem(ctx, r.radiiKey(), tripID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unindex trip %s: %w", tripID, err)
	}
	return nil
}

// Search returns IDs of trips whose bounding box intersects [min, max].
func (r *RedisIndex) Search(ctx context.Context, min, max [2]float64) ([]string, error) {
	widest, err := r.client.ZRevRangeWithScores(ctx, r.radiiKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search radii: %w", err)
	}
	if len(widest) == 0 {
		return nil, nil
	}
	center, radius := boxCircle(min, max)
	ids, err := r.client.GeoSearch(ctx, r.centersKey(), &redis.GeoSearchQuery{
		Longitude:  center.Lon,
		Latitude:   center.Lat,
		Radius:     searchRadius(radius, widest[0].Score),
		RadiusUnit: "m",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search %s: %w", r.centersKey(), err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	boxes, err := r.client.HMGet(ctx, r.boxesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search boxes: %w", err)
	}
	out := make([]string, 0, len(ids))
	for i, v := range boxes {
		s, ok := v.(string)
		if !ok {
			continue
		}
		bmin, bmax, err := decodeBox(s)
		if err != nil {
			return nil, fmt.Errorf("trip %s box: %w", ids[i], err)
		}
		if intersects(bmin, bmax, min, max) {
			out = append(out, ids[i])
		}
	}
	return out, nil
}

// boxCircle returns the center of a lat/lon box and the distance from it to
// the farthest corner.
func boxCircle(min, max [2]float64) (models.Coord, float64) {
	c := models.Coord{Lat: (min[0] + max[0]) / 2, Lon: (min[1] + max[1]) / 2}
	var r float64
	for _, lat := range []float64{min[0], max[0]} {
		for _, lon := range []float64{min[1], max[1]} {
			r = math.Max(r, Haversine(c.Lat, c.Lon, lat, lon))
		}
	}
	return c, r
}

// searchRadius is the circle that reaches every box of radius up to widest
// intersecting a query of the given radius, with slack for the spherical
// approximation of box corners.
func searchRadius(query, widest float64) float64 {
	return (query+widest)*1.01 + 1
}

func intersects(amin, amax, bmin, bmax [2]float64) bool {
	return amin[0] <= bmax[0] && amax[0] >= bmin[0] &&
		amin[1] <= bmax[1] && amax[1] >= bmin[1]
}

func encodeBox(min, max [2]float64) string {
	parts := make([]string, 0, 4)
	for _, v := range []float64{min[0], min[1], max[0], max[1]} {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func decodeBox(s string) (min, max [2]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return min, max, fmt.Errorf("malformed box %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		if v[i], err = strconv.ParseFloat(p, 64); err != nil {
			return min, max, fmt.Errorf("malformed box %q: %w", s, err)
		}
	}
	return [2]float64{v[0], v[1]}, [2]float64{v[2], v[3]}, nil
}

package geo

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tripmatch/internal/models"
)

var (
	longTrip  = trip("long", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 41.0, Lon: -74.0})
	shortTrip = trip("short", models.Coord{Lat: 40.40, Lon: -74.0}, models.Coord{Lat: 40.45, Lon: -74.0})
	farTrip   = trip("far", models.Coord{Lat: 51.5, Lon: -0.1}, models.Coord{Lat: 51.6, Lon: -0.1})
)

func shortTripQuery() ([2]float64, [2]float64) {
	min, max := shortTrip.Bounds()
	return ExpandBounds(min, max, 10000)
}

func TestSearchRadiusReachesPassThroughTrips(t *testing.T) {
	qmin, qmax := shortTripQuery()
	qc, qr := boxCircle(qmin, qmax)
	lmin, lmax := longTrip.Bounds()
	lc, lr := boxCircle(lmin, lmax)

	// neither endpoint of the long trip is near the short one
	assert.Greater(t, Distance(qc, longTrip.Origin.Coord), qr)
	assert.Greater(t, Distance(qc, longTrip.Destination.Coord), qr)

	assert.True(t, intersects(lmin, lmax, qmin, qmax))
	assert.LessOrEqual(t, Distance(qc, lc), searchRadius(qr, lr))
}

func TestBoxCircle(t *testing.T) {
	c, r := boxCircle([2]float64{0, 0}, [2]float64{0, 0})
	assert.Equal(t, models.Coord{}, c)
	assert.Zero(t, r)

	c, r = boxCircle([2]float64{40, -74}, [2]float64{41, -74})
	assert.InDelta(t, 40.5, c.Lat, 1e-9)
	assert.InDelta(t, 111195.0/2, r, 10)
}

func TestBoxEncoding(t *testing.T) {
	min, max := [2]float64{40.123456789, -74.5}, [2]float64{41, -73.25}
	gotMin, gotMax, err := decodeBox(encodeBox(min, max))
	require.NoError(t, err)
	assert.Equal(t, min, gotMin)
	assert.Equal(t, max, gotMax)

	_, _, err = decodeBox("1,2,3")
	assert.Error(t, err)
	_, _, err = decodeBox("1,2,3,north")
	assert.Error(t, err)
}

// checkIndexFindsPassThroughTrips is run against every Index implementation.
func checkIndexFindsPassThroughTrips(t *testing.T, idx Index) {
	t.Helper()
	ctx := context.Background()
	for _, tr := range []*models.Trip{longTrip, shortTrip, farTrip} {
		require.NoError(t, idx.Add(ctx, tr))
	}

	qmin, qmax := shortTripQuery()
	ids, err := idx.Search(ctx, qmin, qmax)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"long", "short"}, ids)

	require.NoError(t, idx.Remove(ctx, "long"))
	ids, err = idx.Search(ctx, qmin, qmax)
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, ids)
}

func TestMemoryIndex_FindsPassThroughTrips(t *testing.T) {
	checkIndexFindsPassThroughTrips(t, NewMemoryIndex())
}

func TestRedisIndex_FindsPassThroughTrips(t *testing.T) {
	addr := os.Getenv("TRIPMATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIPMATCH_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	idx := NewRedisIndex(client, "tripmatch_test:"+t.Name())
	t.Cleanup(func() {
		_ = client.Del(context.Background(), idx.centersKey(), idx.boxesKey(), idx.radiiKey()).Err()
	})
	checkIndexFindsPassThroughTrips(t, idx)
}

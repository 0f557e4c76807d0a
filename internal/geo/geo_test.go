package geo

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tripmatch/internal/models"
)

func TestHaversine(t *testing.T) {
	assert.Zero(t, Haversine(0, 0, 0, 0))
	// one degree of latitude
	assert.InDelta(t, 111195, Haversine(0, 0, 1, 0), 1)
	assert.InDelta(t, Haversine(40, -74, 40.1, -74.2), Haversine(40.1, -74.2, 40, -74), 1e-9)
}

func TestProject(t *testing.T) {
	path := []models.Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}}
	length := PathLength(path)

	p := Project(models.Coord{Lat: 0.01, Lon: 0.5}, path)
	assert.InDelta(t, 1112, p.Distance, 5)
	assert.InDelta(t, length/2, p.Along, 50)
	assert.InDelta(t, 0, p.Point.Lat, 1e-6)
	assert.InDelta(t, 0.5, p.Point.Lon, 1e-6)

	end := Project(models.Coord{Lat: 0, Lon: 2}, path)
	assert.InDelta(t, 111195, end.Distance, 50)
	assert.InDelta(t, length, end.Along, 1e-6)
	assert.InDelta(t, 1, end.Point.Lon, 1e-9)
}

func TestProjectDegeneratePaths(t *testing.T) {
	c := models.Coord{Lat: 1, Lon: 1}
	assert.True(t, math.IsInf(Project(c, nil).Distance, 1))

	single := Project(c, []models.Coord{{Lat: 1, Lon: 1}})
	assert.Zero(t, single.Distance)
	assert.Zero(t, single.Along)
}

func TestDensify(t *testing.T) {
	path := []models.Coord{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}}
	out := Densify(path, 100)
	require.Len(t, out, 13)
	assert.Equal(t, path[0], out[0])
	assert.Equal(t, path[1], out[len(out)-1])
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, Distance(out[i-1], out[i]), 100.0)
	}

	assert.Equal(t, path, Densify(path, 0))
}

func TestExpandBounds(t *testing.T) {
	min, max := ExpandBounds([2]float64{0, 0}, [2]float64{0, 0}, metersPerDegreeLat/100)
	assert.InDelta(t, -0.01, min[0], 1e-9)
	assert.InDelta(t, -0.01, min[1], 1e-9)
	assert.InDelta(t, 0.01, max[0], 1e-9)
	assert.InDelta(t, 0.01, max[1], 1e-9)

	// longitude spread widens away from the equator
	min, max = ExpandBounds([2]float64{60, 10}, [2]float64{60, 10}, 1000)
	assert.Greater(t, max[1]-min[1], max[0]-min[0])
}

func trip(id string, o, d models.Coord) *models.Trip {
	return &models.Trip{ID: id, Origin: models.Place{Coord: o}, Destination: models.Place{Coord: d}}
}

func TestMemoryIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Add(ctx, trip("nyc", models.Coord{Lat: 40.0, Lon: -74.0}, models.Coord{Lat: 40.1, Lon: -74.0})))
	require.NoError(t, idx.Add(ctx, trip("ldn", models.Coord{Lat: 51.5, Lon: -0.1}, models.Coord{Lat: 51.6, Lon: -0.1})))
	assert.Equal(t, 2, idx.Len())

	ids, err := idx.Search(ctx, [2]float64{40.05, -74.01}, [2]float64{40.06, -73.99})
	require.NoError(t, err)
	assert.Equal(t, []string{"nyc"}, ids)

	// re-adding moves the box
	require.NoError(t, idx.Add(ctx, trip("nyc", models.Coord{Lat: 10, Lon: 10}, models.Coord{Lat: 10.1, Lon: 10})))
	assert.Equal(t, 2, idx.Len())
	ids, err = idx.Search(ctx, [2]float64{40.05, -74.01}, [2]float64{40.06, -73.99})
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, idx.Remove(ctx, "ldn"))
	require.NoError(t, idx.Remove(ctx, "missing"))
	ids, err = idx.Search(ctx, [2]float64{-90, -180}, [2]float64{90, 180})
	require.NoError(t, err)
	assert.Equal(t, []string{"nyc"}, ids)
}

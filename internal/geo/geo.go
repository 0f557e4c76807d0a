package geo

import (
	"context"
	"math"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/example/tripmatch/internal/models"
)

const earthRadius = 6371000.0

// metersPerDegreeLat is the length of one degree of latitude.
const metersPerDegreeLat = 111320.0

// Index narrows the active trips worth scoring against a new one. Results
// are a superset hint; callers still score every candidate.
type Index interface {
	Add(ctx context.Context, t *models.Trip) error
	Remove(ctx context.Context, tripID string) error
	Search(ctx context.Context, min, max [2]float64) ([]string, error)
}

// MemoryIndex keeps trip bounding boxes in an R-tree.
type MemoryIndex struct {
	mu    sync.RWMutex
	tree  rtree.RTree
	boxes map[string][2][2]float64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{boxes: make(map[string][2][2]float64)}
}

func (g *MemoryIndex) Add(_ context.Context, t *models.Trip) error {
	min, max := t.Bounds()
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.boxes[t.ID]; ok {
		g.tree.Delete(old[0], old[1], t.ID)
	}
	g.tree.Insert(min, max, t.ID)
	g.boxes[t.ID] = [2][2]float64{min, max}
	return nil
}

func (g *MemoryIndex) Remove(_ context.Context, tripID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.boxes[tripID]; ok {
		g.tree.Delete(old[0], old[1], tripID)
		delete(g.boxes, tripID)
	}
	return nil
}

// Search returns IDs of trips whose bounding box intersects [min, max].
func (g *MemoryIndex) Search(_ context.Context, min, max [2]float64) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	g.tree.Search(min, max, func(_, _ [2]float64, data interface{}) bool {
		if id, ok := data.(string); ok {
			out = append(out, id)
		}
		return true
	})
	return out, nil
}

func (g *MemoryIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.boxes)
}

// ExpandBounds grows a lat/lon box by meters on every side.
func ExpandBounds(min, max [2]float64, meters float64) ([2]float64, [2]float64) {
	dLat := meters / metersPerDegreeLat
	lat := math.Max(math.Abs(min[0]), math.Abs(max[0]))
	cos := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cos > 1e-6 {
		dLon = math.Min(180, meters/(metersPerDegreeLat*cos))
	}
	return [2]float64{min[0] - dLat, min[1] - dLon}, [2]float64{max[0] + dLat, max[1] + dLon}
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}

// Distance is Haversine over coordinates.
func Distance(a, b models.Coord) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

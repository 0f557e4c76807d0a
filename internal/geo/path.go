package geo

import (
	"math"

	"github.com/example/tripmatch/internal/models"
)

// Projection is the closest point of a path to some coordinate.
type Projection struct {
	Point models.Coord
	// Distance from the coordinate to Point, in meters.
	Distance float64
	// Along is the path length from its start to Point, in meters.
	Along float64
}

// point in a local equirectangular plane centred on ref, in meters
type point struct{ x, y float64 }

func toPlane(c, ref models.Coord) point {
	k := math.Pi / 180 * earthRadius
	return point{
		x: (c.Lon - ref.Lon) * k * math.Cos(ref.Lat*math.Pi/180),
		y: (c.Lat - ref.Lat) * k,
	}
}

func fromPlane(p point, ref models.Coord) models.Coord {
	k := math.Pi / 180 * earthRadius
	cos := math.Cos(ref.Lat * math.Pi / 180)
	lon := ref.Lon
	if cos > 1e-9 {
		lon += p.x / (k * cos)
	}
	return models.Coord{Lat: ref.Lat + p.y/k, Lon: lon}
}

// PathLength sums the haversine length of consecutive path segments.
func PathLength(path []models.Coord) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// Project finds the point of path nearest to c. An empty path projects
// onto c itself at infinite distance.
func Project(c models.Coord, path []models.Coord) Projection {
	switch len(path) {
	case 0:
		return Projection{Point: c, Distance: math.Inf(1)}
	case 1:
		return Projection{Point: path[0], Distance: Distance(c, path[0])}
	}
	best := Projection{Distance: math.Inf(1)}
	var walked float64
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		pa, pb := toPlane(a, c), toPlane(b, c)
		dx, dy := pb.x-pa.x, pb.y-pa.y
		segLen2 := dx*dx + dy*dy
		t := 0.0
		if segLen2 > 0 {
			t = -(pa.x*dx + pa.y*dy) / segLen2
			t = math.Max(0, math.Min(1, t))
		}
		q := point{x: pa.x + t*dx, y: pa.y + t*dy}
		d := math.Hypot(q.x, q.y)
		seg := Distance(a, b)
		if d < best.Distance {
			best = Projection{Point: fromPlane(q, c), Distance: d, Along: walked + t*seg}
		}
		walked += seg
	}
	return best
}

// Densify returns path with extra points inserted so that no two
// consecutive points are more than step meters apart.
func Densify(path []models.Coord, step float64) []models.Coord {
	if len(path) < 2 || step <= 0 {
		return path
	}
	out := []models.Coord{path[0]}
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		n := int(math.Ceil(Distance(a, b) / step))
		for k := 1; k < n; k++ {
			f := float64(k) / float64(n)
			out = append(out, models.Coord{Lat: a.Lat + f*(b.Lat-a.Lat), Lon: a.Lon + f*(b.Lon-a.Lon)})
		}
		out = append(out, b)
	}
	return out
}

package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/twpayne/go-polyline"
	"golang.org/x/time/rate"

	"github.com/example/tripmatch/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
	Limiter  *rate.Limiter
}

// NewOSRMClient builds a client limited to rps requests per second; rps <= 0
// disables the limit.
func NewOSRMClient(endpoint string, rps float64) *OSRMClient {
	c := &OSRMClient{Endpoint: endpoint, Client: &http.Client{Timeout: 2 * time.Second}}
	if rps > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
	}
	return c
}

// Route queries OSRM /route between points and decodes the overview polyline.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (Route, error) {
	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			return Route{}, err
		}
	}
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline",
		o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
			Geometry string  `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm no route: %v", out.Code)
	}
	best := out.Routes[0]
	coords, _, err := polyline.DecodeCoords([]byte(best.Geometry))
	if err != nil {
		return Route{}, fmt.Errorf("osrm geometry: %w", err)
	}
	path := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		path = append(path, models.Coord{Lat: c[0], Lon: c[1]})
	}
	if len(path) < 2 {
		path = []models.Coord{from, to}
	}
	return Route{Path: path, DistanceMeters: best.Distance, DurationSeconds: best.Duration}, nil
}

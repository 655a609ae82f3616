package track

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// VehicleSummary describes one vehicle's recorded path.
type VehicleSummary struct {
	VehicleID    string    `json:"vehicle_id"`
	Color        string    `json:"color"`
	Points       int       `json:"points"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	LengthMeters float64   `json:"length_m"`
}

// Summary describes the whole track. The origin marker is counted in
// Observations but not in Vehicles or PerVehicle.
type Summary struct {
	Observations   int              `json:"observations"`
	Vehicles       int              `json:"vehicles"`
	Start          time.Time        `json:"start"`
	End            time.Time        `json:"end"`
	DurationMillis int64            `json:"duration_ms"`
	Bound          orb.Bound        `json:"bound"`
	Center         orb.Point        `json:"center"`
	PerVehicle     []VehicleSummary `json:"per_vehicle"`
}

// Summarize computes counts, extent and haversine path lengths.
func (s *Store) Summarize() Summary {
	start, end := s.Span()
	bound := s.Bound()
	sum := Summary{
		Observations:   s.Len(),
		Start:          start,
		End:            end,
		DurationMillis: end.Sub(start).Milliseconds(),
		Bound:          bound,
		Center:         bound.Center(),
	}
	for _, id := range s.vehicles {
		if id == OriginVehicleID {
			continue
		}
		path := s.Path(id)
		ls := make(orb.LineString, len(path))
		for i, o := range path {
			ls[i] = o.Coordinate
		}
		sum.PerVehicle = append(sum.PerVehicle, VehicleSummary{
			VehicleID:    id,
			Color:        path[0].Color,
			Points:       len(path),
			First:        path[0].Timestamp,
			Last:         path[len(path)-1].Timestamp,
			LengthMeters: geo.LengthHaversine(ls),
		})
	}
	sum.Vehicles = len(sum.PerVehicle)
	return sum
}

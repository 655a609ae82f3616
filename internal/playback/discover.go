package playback

import "github.com/banshee-data/droneview/internal/track"

// DiscoveredVehicle records the first sighting of a vehicle in a run.
type DiscoveredVehicle struct {
	VehicleID  string  `json:"vehicle_id"`
	Confidence float64 `json:"confidence"`
	Color      string  `json:"color"`
}

// DeriveDiscovered returns one entry per distinct vehicle among
// obs[:upTo], in first-seen order, built from that first observation.
// upTo is clamped to [0, len(obs)].
func DeriveDiscovered(obs []track.Observation, upTo int) []DiscoveredVehicle {
	upTo = max(0, min(upTo, len(obs)))
	seen := make(map[string]struct{})
	var out []DiscoveredVehicle
	for _, o := range obs[:upTo] {
		if _, ok := seen[o.VehicleID]; ok {
			continue
		}
		seen[o.VehicleID] = struct{}{}
		out = append(out, DiscoveredVehicle{
			VehicleID:  o.VehicleID,
			Confidence: o.Confidence,
			Color:      o.Color,
		})
	}
	return out
}

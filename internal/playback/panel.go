package playback

import (
	"math"
	"strings"
	"unicode"

	"github.com/banshee-data/droneview/internal/track"
)

// PanelEntry is one row of the discovered-vehicles panel.
type PanelEntry struct {
	VehicleID         string  `json:"vehicle_id"`
	DisplayID         string  `json:"display_id"`
	Confidence        float64 `json:"confidence"`
	ConfidencePercent float64 `json:"confidence_percent"`
	Color             string  `json:"color"`
	Thumbnail         string  `json:"thumbnail"`
	Selected          bool    `json:"selected"`
}

// Panel is the discovered-vehicles panel: newest discovery first, origin
// marker hidden. Entries are selectable only while Interactive.
type Panel struct {
	Count        int          `json:"count"`
	Interactive  bool         `json:"interactive"`
	ShowPathHint bool         `json:"show_path_hint"`
	Entries      []PanelEntry `json:"entries"`
}

// BuildPanel renders snap's discovered set. thumbnail maps a vehicle id to
// an image reference and may return "".
func BuildPanel(snap Snapshot, thumbnail func(vehicleID string) string) Panel {
	p := Panel{
		Interactive:  !snap.Animating && !snap.Starting,
		ShowPathHint: snap.ShowPathHint,
		Entries:      make([]PanelEntry, 0, len(snap.Discovered)),
	}
	for i := len(snap.Discovered) - 1; i >= 0; i-- {
		d := snap.Discovered[i]
		if d.VehicleID == track.OriginVehicleID {
			continue
		}
		e := PanelEntry{
			VehicleID:         d.VehicleID,
			DisplayID:         DisplayID(d.VehicleID),
			Confidence:        d.Confidence,
			ConfidencePercent: math.Round(d.Confidence*10000) / 100,
			Color:             d.Color,
			Selected:          d.VehicleID == snap.SelectedVehicle,
		}
		if thumbnail != nil {
			e.Thumbnail = thumbnail(d.VehicleID)
		}
		p.Entries = append(p.Entries, e)
	}
	p.Count = len(p.Entries)
	return p
}

// DisplayID keeps only the digits of a vehicle id ("vehicle_12" -> "12").
// Ids without digits are shown unchanged.
func DisplayID(vehicleID string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, vehicleID)
	if digits == "" {
		return vehicleID
	}
	return digits
}

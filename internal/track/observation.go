// Package track loads the recorded vehicle-detection track and keeps it as
// an immutable, timestamp-ordered sequence of observations.
package track

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// OriginVehicleID is the reserved vehicle id of the synthetic start marker
// placed at index 0 of every track.
const OriginVehicleID = "drone_start"

// OriginLabel is the display label carried by the start marker.
const OriginLabel = "Drone start"

// DefaultConfidence is used when a feature has no usable confidence.
const DefaultConfidence = 0.9

// Observation is one detection of one vehicle at one point in time.
type Observation struct {
	Coordinate orb.Point `json:"coordinate"`
	VehicleID  string    `json:"vehicle_id"`
	Label      string    `json:"label,omitempty"`

	// Timestamp orders the track. TimestampRaw keeps the dataset's string so
	// exported features round-trip unchanged.
	Timestamp    time.Time `json:"timestamp"`
	TimestampRaw string    `json:"-"`

	// FrameTime is the capture wall-clock of the video frame, HH:MM:SS:mmm.
	FrameTime string `json:"frame_time,omitempty"`

	Color         string  `json:"color"`
	DelayEligible bool    `json:"delay"`
	Confidence    float64 `json:"confidence"`
}

// IsOrigin reports whether o is the synthetic start marker.
func (o Observation) IsOrigin() bool {
	return o.VehicleID == OriginVehicleID
}

// FrameOffset returns the frame time as an offset from midnight.
func (o Observation) FrameOffset() (time.Duration, error) {
	return ParseFrameTime(o.FrameTime)
}

var errEmptyTimestamp = errors.New("empty timestamp")

// ParseTimestamp parses an ISO-8601 timestamp. The capture pipeline writes
// milliseconds after a colon ("10:00:00:123Z", sometimes "10:00:00:Z");
// both forms are accepted.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errEmptyTimestamp
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if norm, ok := normalizeColonMillis(s); ok {
		if t, err := time.Parse(time.RFC3339Nano, norm); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func normalizeColonMillis(s string) (string, bool) {
	if !strings.HasSuffix(s, "Z") {
		return "", false
	}
	date, clock, ok := strings.Cut(strings.TrimSuffix(s, "Z"), "T")
	if !ok {
		return "", false
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 4 {
		return "", false
	}
	out := date + "T" + parts[0] + ":" + parts[1] + ":" + parts[2]
	if parts[3] != "" {
		out += "." + parts[3]
	}
	return out + "Z", true
}

// ParseFrameTime parses "HH:MM:SS:mmm" into an offset from midnight. A dot
// or comma is accepted as the millisecond separator and the millisecond
// field may be omitted.
func ParseFrameTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty frame time")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == '.' || r == ','
	})
	if len(fields) != 3 && len(fields) != 4 {
		return 0, fmt.Errorf("frame time %q: want HH:MM:SS:mmm", s)
	}

	limits := []int{24, 60, 60, 1000}
	units := []time.Duration{time.Hour, time.Minute, time.Second, time.Millisecond}
	var total time.Duration
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, fmt.Errorf("frame time %q: %w", s, err)
		}
		if n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("frame time %q: field %d out of range", s, i)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// parseConfidence accepts a JSON number or a numeric string in [0,1].
func parseConfidence(v interface{}) (float64, bool) {
	var c float64
	switch x := v.(type) {
	case float64:
		c = x
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		c = f
	default:
		return 0, false
	}
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, false
	}
	return c, true
}

// parseFlag accepts a JSON bool or a boolean string.
func parseFlag(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	default:
		return false
	}
}

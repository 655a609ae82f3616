package track

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/droneview/internal/monitoring"
)

// ErrEmptyDataset is returned when a dataset holds no usable features and
// no origin coordinate was configured.
var ErrEmptyDataset = errors.New("track: dataset has no usable features")

const maxDatasetSize = 64 * 1024 * 1024

var logf = monitoring.Tagged("track")

// LoadOptions controls how features become observations.
type LoadOptions struct {
	// DefaultConfidence replaces missing confidences. Zero means
	// DefaultConfidence.
	DefaultConfidence float64

	// IgnoreConfidence discards dataset confidences and uses the default
	// for every observation.
	IgnoreConfidence bool

	// Origin positions the start marker. When nil the earliest
	// observation's coordinate is used.
	Origin *orb.Point
}

func (o LoadOptions) defaultConfidence() float64 {
	if o.DefaultConfidence <= 0 || o.DefaultConfidence > 1 {
		return DefaultConfidence
	}
	return o.DefaultConfidence
}

// Store is the immutable, timestamp-ordered track. Index 0 is always the
// synthetic origin marker.
type Store struct {
	obs       []Observation
	byVehicle map[string][]int
	vehicles  []string
}

// LoadFile reads a GeoJSON FeatureCollection from path.
func LoadFile(path string, opts LoadOptions) (*Store, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat track file: %w", err)
	}
	if info.Size() > maxDatasetSize {
		return nil, fmt.Errorf("track file too large: %d bytes (max %d)", info.Size(), maxDatasetSize)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open track file: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load decodes a GeoJSON FeatureCollection, prepends the origin marker and
// sorts the result by timestamp.
func Load(r io.Reader, opts LoadOptions) (*Store, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDatasetSize+1))
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	if len(data) > maxDatasetSize {
		return nil, fmt.Errorf("track exceeds %d bytes", maxDatasetSize)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	obs := make([]Observation, 0, len(fc.Features))
	for i, f := range fc.Features {
		o, err := observationFromFeature(f, opts)
		if err != nil {
			logf("skipping feature %d: %v", i, err)
			continue
		}
		obs = append(obs, o)
	}
	return NewStore(obs, opts)
}

// NewStore builds a Store from already decoded observations. The slice is
// copied; the origin marker is prepended and the result stably sorted.
func NewStore(obs []Observation, opts LoadOptions) (*Store, error) {
	if len(obs) == 0 && opts.Origin == nil {
		return nil, ErrEmptyDataset
	}

	all := make([]Observation, 0, len(obs)+1)
	all = append(all, newOrigin(obs, opts))
	all = append(all, obs...)

	slices.SortStableFunc(all, func(a, b Observation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	s := &Store{
		obs:       all,
		byVehicle: make(map[string][]int),
	}
	for i, o := range all {
		if _, seen := s.byVehicle[o.VehicleID]; !seen {
			s.vehicles = append(s.vehicles, o.VehicleID)
		}
		s.byVehicle[o.VehicleID] = append(s.byVehicle[o.VehicleID], i)
	}
	return s, nil
}

// newOrigin builds the start marker. It takes the earliest timestamp so the
// stable sort keeps it at index 0.
func newOrigin(obs []Observation, opts LoadOptions) Observation {
	origin := Observation{
		VehicleID:  OriginVehicleID,
		Label:      OriginLabel,
		Color:      "#FFFFFF",
		Confidence: opts.defaultConfidence(),
	}
	if len(obs) > 0 {
		first := obs[0]
		for _, o := range obs[1:] {
			if o.Timestamp.Before(first.Timestamp) {
				first = o
			}
		}
		origin.Coordinate = first.Coordinate
		origin.Timestamp = first.Timestamp
		origin.TimestampRaw = first.TimestampRaw
		origin.FrameTime = first.FrameTime
	}
	if opts.Origin != nil {
		origin.Coordinate = *opts.Origin
	}
	return origin
}

func observationFromFeature(f *geojson.Feature, opts LoadOptions) (Observation, error) {
	if f == nil || f.Geometry == nil {
		return Observation{}, errors.New("missing geometry")
	}
	props := f.Properties

	var o Observation
	switch g := f.Geometry.(type) {
	case orb.Point:
		o.Coordinate = g
	default:
		o.Coordinate = g.Bound().Center()
	}

	o.VehicleID = propString(props, "vehicle_id")
	if o.VehicleID == "" {
		return Observation{}, errors.New("missing vehicle_id")
	}
	if o.VehicleID == OriginVehicleID {
		return Observation{}, fmt.Errorf("vehicle_id %q is reserved", OriginVehicleID)
	}

	o.TimestampRaw = propString(props, "timestamp")
	ts, err := ParseTimestamp(o.TimestampRaw)
	if err != nil {
		logf("vehicle %s: %v; ordering as zero time", o.VehicleID, err)
	}
	o.Timestamp = ts

	o.FrameTime = propString(props, "frame_time")
	o.Color = propString(props, "color")
	o.Label = propString(props, "label")
	o.DelayEligible = parseFlag(props["delay"])

	o.Confidence = opts.defaultConfidence()
	if !opts.IgnoreConfidence {
		if c, ok := parseConfidence(props["confidence"]); ok {
			o.Confidence = c
		}
	}
	return o, nil
}

func propString(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Len returns the number of observations including the origin.
func (s *Store) Len() int {
	return len(s.obs)
}

// At returns a copy of observation i.
func (s *Store) At(i int) Observation {
	return s.obs[i]
}

// Observations returns a copy of the whole track.
func (s *Store) Observations() []Observation {
	return slices.Clone(s.obs)
}

// Prefix returns a copy of the first n observations, clamped to the track.
func (s *Store) Prefix(n int) []Observation {
	n = max(0, min(n, len(s.obs)))
	return slices.Clone(s.obs[:n])
}

// Vehicles returns vehicle ids in first-seen order, origin first.
func (s *Store) Vehicles() []string {
	return slices.Clone(s.vehicles)
}

// HasVehicle reports whether id occurs in the track.
func (s *Store) HasVehicle(id string) bool {
	_, ok := s.byVehicle[id]
	return ok
}

// Path returns copies of every observation of one vehicle, in track order.
func (s *Store) Path(vehicleID string) []Observation {
	idx := s.byVehicle[vehicleID]
	out := make([]Observation, len(idx))
	for i, j := range idx {
		out[i] = s.obs[j]
	}
	return out
}

// Bound returns the bounding box of every observation.
func (s *Store) Bound() orb.Bound {
	mp := make(orb.MultiPoint, len(s.obs))
	for i, o := range s.obs {
		mp[i] = o.Coordinate
	}
	return mp.Bound()
}

// Span returns the first and last ordering timestamps.
func (s *Store) Span() (time.Time, time.Time) {
	return s.obs[0].Timestamp, s.obs[len(s.obs)-1].Timestamp
}

// FeatureCollection converts observations back to GeoJSON using the
// dataset's property names.
func FeatureCollection(obs []Observation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range obs {
		fc.Append(Feature(o))
	}
	return fc
}

// Feature converts one observation to a GeoJSON point feature.
func Feature(o Observation) *geojson.Feature {
	f := geojson.NewFeature(o.Coordinate)
	f.Properties["vehicle_id"] = o.VehicleID
	ts := o.TimestampRaw
	if ts == "" && !o.Timestamp.IsZero() {
		ts = o.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	f.Properties["timestamp"] = ts
	f.Properties["color"] = o.Color
	f.Properties["confidence"] = fmt.Sprintf("%.4f", o.Confidence)
	f.Properties["delay"] = o.DelayEligible
	if o.FrameTime != "" {
		f.Properties["frame_time"] = o.FrameTime
	}
	if o.Label != "" {
		f.Properties["label"] = o.Label
	}
	return f
}

package track

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/banshee-data/droneview/internal/monitoring"
	"github.com/banshee-data/droneview/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func loadSample(t *testing.T, opts LoadOptions) *Store {
	t.Helper()
	s, err := Load(strings.NewReader(testutil.SampleTrackGeoJSON), opts)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestLoad_OriginFirstAndSorted(t *testing.T) {
	s := loadSample(t, LoadOptions{})

	if s.Len() != testutil.SampleTrackLen {
		t.Fatalf("Len() = %d, want %d", s.Len(), testutil.SampleTrackLen)
	}

	var got []string
	for _, o := range s.Observations() {
		got = append(got, o.VehicleID)
	}
	want := []string{OriginVehicleID, "vehicle_2", "vehicle_1", "vehicle_1", "vehicle_3", "vehicle_2", "vehicle_1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	obs := s.Observations()
	for i := 1; i < len(obs); i++ {
		if obs[i].Timestamp.Before(obs[i-1].Timestamp) {
			t.Errorf("timestamp at %d (%v) before %d (%v)", i, obs[i].Timestamp, i-1, obs[i-1].Timestamp)
		}
	}
}

func TestLoad_OriginMarker(t *testing.T) {
	s := loadSample(t, LoadOptions{})
	origin := s.At(0)

	if !origin.IsOrigin() {
		t.Fatalf("index 0 is %q, want origin", origin.VehicleID)
	}
	if origin.Label != OriginLabel {
		t.Errorf("Label = %q, want %q", origin.Label, OriginLabel)
	}
	if origin.DelayEligible {
		t.Error("origin must not be delay eligible")
	}
	if origin.Coordinate != (orb.Point{-8.6102, 41.1502}) {
		t.Errorf("origin coordinate = %v, want earliest observation's", origin.Coordinate)
	}
	if origin.FrameTime != "10:00:00:500" {
		t.Errorf("origin frame time = %q", origin.FrameTime)
	}

	custom := orb.Point{-8.6, 41.1}
	s = loadSample(t, LoadOptions{Origin: &custom})
	if s.At(0).Coordinate != custom {
		t.Errorf("configured origin ignored: %v", s.At(0).Coordinate)
	}
}

func TestLoad_Confidence(t *testing.T) {
	s := loadSample(t, LoadOptions{})
	want := map[string]float64{}
	for _, o := range s.Observations() {
		if _, ok := want[o.VehicleID]; !ok {
			want[o.VehicleID] = o.Confidence
		}
	}
	expected := map[string]float64{
		OriginVehicleID: 0.9,
		"vehicle_2":     0.75,
		"vehicle_1":     0.8123,
		"vehicle_3":     0.6,
	}
	if diff := cmp.Diff(expected, want); diff != "" {
		t.Errorf("first-seen confidence mismatch (-want +got):\n%s", diff)
	}

	// vehicle_1's second point has no confidence property.
	if c := s.At(3).Confidence; c != DefaultConfidence {
		t.Errorf("missing confidence = %v, want %v", c, DefaultConfidence)
	}

	s = loadSample(t, LoadOptions{IgnoreConfidence: true, DefaultConfidence: 0.5})
	for _, o := range s.Observations() {
		if o.Confidence != 0.5 {
			t.Errorf("%s confidence = %v, want forced default 0.5", o.VehicleID, o.Confidence)
		}
	}
}

func TestLoad_ColonMillisTimestamp(t *testing.T) {
	s := loadSample(t, LoadOptions{})
	got := s.At(5)
	want := time.Date(2024, 12, 9, 10, 0, 3, 500*int(time.Millisecond), time.UTC)
	if got.VehicleID != "vehicle_2" || !got.Timestamp.Equal(want) {
		t.Errorf("At(5) = %s %v, want vehicle_2 %v", got.VehicleID, got.Timestamp, want)
	}
	if got.TimestampRaw != "2024-12-09T10:00:03:500Z" {
		t.Errorf("raw timestamp not preserved: %q", got.TimestampRaw)
	}
}

func TestLoad_SkipsUnusableFeatures(t *testing.T) {
	const data = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":null,"properties":{"vehicle_id":"vehicle_1","timestamp":"2024-12-09T10:00:00Z"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"timestamp":"2024-12-09T10:00:00Z"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"vehicle_id":"drone_start"}},
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"vehicle_id":"vehicle_9","timestamp":"garbage","color":"#010203"}}
	]}`
	s, err := Load(strings.NewReader(data), LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (origin + vehicle_9)", s.Len())
	}
	if got := s.At(1); got.VehicleID != "vehicle_9" || !got.Timestamp.IsZero() {
		t.Errorf("At(1) = %+v, want vehicle_9 with zero timestamp", got)
	}
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(`{"type":"FeatureCollection","features":[]}`), LoadOptions{})
	if !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("err = %v, want ErrEmptyDataset", err)
	}

	origin := orb.Point{1, 1}
	s, err := Load(strings.NewReader(`{"type":"FeatureCollection","features":[]}`), LoadOptions{Origin: &origin})
	if err != nil {
		t.Fatalf("Load with origin: %v", err)
	}
	if s.Len() != 1 || !s.At(0).IsOrigin() {
		t.Errorf("want origin-only track, got len %d", s.Len())
	}
}

func TestLoad_BadJSON(t *testing.T) {
	if _, err := Load(strings.NewReader(`{"type":`), LoadOptions{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestLoadFile(t *testing.T) {
	path := testutil.WriteSampleTrack(t, t.TempDir())
	s, err := LoadFile(path, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.Len() != testutil.SampleTrackLen {
		t.Errorf("Len() = %d", s.Len())
	}
	if _, err := LoadFile(path+".missing", LoadOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStore_Accessors(t *testing.T) {
	s := loadSample(t, LoadOptions{})

	if diff := cmp.Diff([]string{OriginVehicleID, "vehicle_2", "vehicle_1", "vehicle_3"}, s.Vehicles()); diff != "" {
		t.Errorf("Vehicles() (-want +got):\n%s", diff)
	}
	if !s.HasVehicle("vehicle_3") || s.HasVehicle("vehicle_42") {
		t.Error("HasVehicle mismatch")
	}

	path := s.Path("vehicle_1")
	if len(path) != 3 {
		t.Fatalf("Path(vehicle_1) len = %d, want 3", len(path))
	}
	if got := s.Prefix(3); len(got) != 3 || got[2].VehicleID != "vehicle_1" {
		t.Errorf("Prefix(3) = %v", got)
	}
	if got := s.Prefix(100); len(got) != s.Len() {
		t.Errorf("Prefix(100) len = %d", len(got))
	}
	if got := s.Prefix(-1); len(got) != 0 {
		t.Errorf("Prefix(-1) len = %d", len(got))
	}

	// Copies must not alias the store.
	obs := s.Observations()
	obs[1].Color = "#000000"
	path[0].Color = "#000000"
	if s.At(1).Color == "#000000" || s.Path("vehicle_1")[0].Color == "#000000" {
		t.Error("accessor returned aliased storage")
	}
}

func TestStore_BoundAndSpan(t *testing.T) {
	s := loadSample(t, LoadOptions{})
	b := s.Bound()
	if b.Min != (orb.Point{-8.6110, 41.1500}) || b.Max != (orb.Point{-8.6100, 41.1510}) {
		t.Errorf("Bound() = %v", b)
	}
	start, end := s.Span()
	if end.Sub(start) != 3500*time.Millisecond {
		t.Errorf("span = %v, want 3.5s", end.Sub(start))
	}
}

func TestFeatureCollectionRoundTrip(t *testing.T) {
	s := loadSample(t, LoadOptions{})
	fc := FeatureCollection(s.Observations())
	if len(fc.Features) != s.Len() {
		t.Fatalf("features = %d, want %d", len(fc.Features), s.Len())
	}
	origin := fc.Features[0].Properties
	if origin["label"] != OriginLabel || origin["vehicle_id"] != OriginVehicleID {
		t.Errorf("origin properties = %v", origin)
	}
	if got := fc.Features[2].Properties["confidence"]; got != "0.8123" {
		t.Errorf("confidence property = %v, want \"0.8123\"", got)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	again, err := Load(strings.NewReader(string(data)), LoadOptions{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	// The exported origin is rejected on reload and a fresh one prepended.
	if again.Len() != s.Len() {
		t.Errorf("reloaded len = %d, want %d", again.Len(), s.Len())
	}
}

func TestParseTimestamp(t *testing.T) {
	base := time.Date(2024, 12, 9, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-12-09T10:00:00Z", base, false},
		{"2024-12-09T10:00:00.250Z", base.Add(250 * time.Millisecond), false},
		{"2024-12-09T10:00:00:250Z", base.Add(250 * time.Millisecond), false},
		{"2024-12-09T10:00:00:Z", base, false},
		{"2024-12-09T12:00:00+02:00", base, false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimestamp(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFrameTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"10:00:00:000", 10 * time.Hour, false},
		{"10:00:02:500", 10*time.Hour + 2500*time.Millisecond, false},
		{"00:01:02.003", time.Minute + 2*time.Second + 3*time.Millisecond, false},
		{"00:00:01,250", 1250 * time.Millisecond, false},
		{"23:59:59", 23*time.Hour + 59*time.Minute + 59*time.Second, false},
		{"24:00:00:000", 0, true},
		{"10:60:00:000", 0, true},
		{"10:00", 0, true},
		{"aa:bb:cc:ddd", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFrameTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrameTime(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFrameTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{0.42, 0.42, true},
		{"0.9123", 0.9123, true},
		{" 1 ", 1, true},
		{"1.5", 0, false},
		{-0.1, 0, false},
		{math.NaN(), 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := parseConfidence(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseConfidence(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseFlag(t *testing.T) {
	if !parseFlag(true) || !parseFlag("True") || parseFlag("nope") || parseFlag(nil) || parseFlag(1.0) {
		t.Error("parseFlag mismatch")
	}
}

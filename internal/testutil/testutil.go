// Package testutil provides shared test utilities and fixtures.
//
// The sample track is small enough to reason about by hand; tests across
// packages assert against the orderings and delays documented on it.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// SampleTrackGeoJSON is a six-feature track in the capture pipeline's
// export format, deliberately out of timestamp order.
//
// After loading (origin prepended, stable sort) the order is:
//
//	0 drone_start  10:00:00.500
//	1 vehicle_2    10:00:00.500  delay=true   conf 0.75
//	2 vehicle_1    10:00:01.000  delay=true   conf 0.8123
//	3 vehicle_1    10:00:02.000  delay=true   conf (none)
//	4 vehicle_3    10:00:02.000  delay=false  conf 0.6
//	5 vehicle_2    10:00:03.500  delay=true
//	6 vehicle_1    10:00:04.000  delay=true
//
// Timestamp delays: 0, 500, 1000, 0, 1500, 500 ms.
// Frame-time delays: 0, 500, 1000, 0, 0, 500 ms.
const SampleTrackGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6100, 41.1500]},
     "properties": {"vehicle_id": "vehicle_1", "timestamp": "2024-12-09T10:00:01.000Z", "frame_time": "10:00:01:000", "color": "#3366CC", "confidence": "0.8123", "delay": true}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6102, 41.1502]},
     "properties": {"vehicle_id": "vehicle_2", "timestamp": "2024-12-09T10:00:00.500Z", "frame_time": "10:00:00:500", "color": "#CC3333", "confidence": 0.75, "delay": true}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6104, 41.1504]},
     "properties": {"vehicle_id": "vehicle_1", "timestamp": "2024-12-09T10:00:02.000Z", "frame_time": "10:00:02:000", "color": "#3366CC", "delay": true}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6106, 41.1506]},
     "properties": {"vehicle_id": "vehicle_3", "timestamp": "2024-12-09T10:00:02.000Z", "frame_time": "10:00:02:000", "color": "#33CC33", "confidence": "0.6", "delay": false}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6108, 41.1508]},
     "properties": {"vehicle_id": "vehicle_2", "timestamp": "2024-12-09T10:00:03:500Z", "frame_time": "10:00:03:500", "color": "#CC3333", "delay": true}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-8.6110, 41.1510]},
     "properties": {"vehicle_id": "vehicle_1", "timestamp": "2024-12-09T10:00:04.000Z", "frame_time": "10:00:04:000", "color": "#3366CC", "delay": true}}
  ]
}`

// SampleTrackLen is the loaded length of SampleTrackGeoJSON, origin included.
const SampleTrackLen = 7

// WriteSampleTrack writes SampleTrackGeoJSON into dir and returns its path.
func WriteSampleTrack(t testing.TB, dir string) string {
	t.Helper()
	return WriteFile(t, dir, "track.geojson", SampleTrackGeoJSON)
}

// WriteFile writes content to dir/name, creating parent directories.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

package testutil

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()
	req := NewTestRequest(http.MethodPost, "/api/restart")
	if req.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", req.Method)
	}
	if req.URL.Path != "/api/restart" {
		t.Errorf("Path = %s, want /api/restart", req.URL.Path)
	}
}

func TestNewTestRecorder(t *testing.T) {
	t.Parallel()
	rec := NewTestRecorder()
	if rec.Code != http.StatusOK {
		t.Errorf("default code = %d, want 200", rec.Code)
	}
}

func TestSampleTrackIsValidJSON(t *testing.T) {
	t.Parallel()
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal([]byte(SampleTrackGeoJSON), &fc); err != nil {
		t.Fatalf("sample track is not JSON: %v", err)
	}
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	if len(fc.Features) != SampleTrackLen-1 {
		t.Errorf("features = %d, want %d", len(fc.Features), SampleTrackLen-1)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := WriteFile(t, dir, "car/vehicle_1.jpg", "jpeg")
	if path != filepath.Join(dir, "car", "vehicle_1.jpg") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("read back %q, %v", data, err)
	}
}

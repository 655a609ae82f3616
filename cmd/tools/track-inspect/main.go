// Command track-inspect summarises a GeoJSON drone track and the replay
// schedule each pacing strategy would produce for it.
//
// Usage:
//
//	go run ./cmd/tools/track-inspect -track flight.geojson [-rate 2] [-json] [-png track.png]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/droneview/internal/playback"
	"github.com/banshee-data/droneview/internal/track"
)

// Report is the -json output.
type Report struct {
	Track   string                         `json:"track"`
	Rate    float64                        `json:"playback_rate"`
	Summary track.Summary                  `json:"summary"`
	Pacing  map[string]playback.DelayStats `json:"pacing"`
}

var pacers = []string{playback.PacingTimestamp, playback.PacingFrameTime}

func buildReport(path string, store *track.Store, rate float64) (Report, error) {
	r := Report{
		Track:   path,
		Rate:    rate,
		Summary: store.Summarize(),
		Pacing:  make(map[string]playback.DelayStats, len(pacers)),
	}
	for _, name := range pacers {
		p, err := playback.NewPacer(name)
		if err != nil {
			return Report{}, err
		}
		r.Pacing[name] = playback.Stats(playback.Timeline(store, p, rate))
	}
	return r, nil
}

func writeText(w io.Writer, r Report) {
	s := r.Summary
	fmt.Fprintf(w, "Track:        %s\n", r.Track)
	fmt.Fprintf(w, "Observations: %d (origin included)\n", s.Observations)
	fmt.Fprintf(w, "Vehicles:     %d\n", s.Vehicles)
	fmt.Fprintf(w, "Span:         %s -> %s (%v)\n",
		s.Start.Format(time.RFC3339Nano), s.End.Format(time.RFC3339Nano),
		time.Duration(s.DurationMillis)*time.Millisecond)
	fmt.Fprintf(w, "Bound:        [%.6f, %.6f] - [%.6f, %.6f]\n",
		s.Bound.Min.Lon(), s.Bound.Min.Lat(), s.Bound.Max.Lon(), s.Bound.Max.Lat())

	fmt.Fprintf(w, "\n%-16s %-8s %6s %10s\n", "VEHICLE", "COLOR", "POINTS", "LENGTH_M")
	for _, v := range s.PerVehicle {
		fmt.Fprintf(w, "%-16s %-8s %6d %10.1f\n", v.VehicleID, v.Color, v.Points, v.LengthMeters)
	}

	fmt.Fprintf(w, "\nPacing at rate %.2f\n", r.Rate)
	fmt.Fprintf(w, "%-12s %6s %10s %9s %9s %9s %6s\n", "STRATEGY", "STEPS", "TOTAL_MS", "MEAN_MS", "P95_MS", "MAX_MS", "ZERO")
	for _, name := range pacers {
		st := r.Pacing[name]
		fmt.Fprintf(w, "%-12s %6d %10.0f %9.1f %9.1f %9.1f %6d\n",
			name, st.Steps, st.TotalMs, st.MeanMs, st.P95, st.MaxMs, st.Zero)
	}
}

func writePNG(path string, store *track.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	obs := store.Observations()
	if err := track.WritePNG(f, fmt.Sprintf("track (%d)", len(obs)), obs, 6*vg.Inch); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	trackPath := flag.String("track", "", "Path to the GeoJSON track (required)")
	rate := flag.Float64("rate", 1, "Playback rate used for the schedule")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	pngPath := flag.String("png", "", "Also render the track to this PNG file")
	ignoreConfidence := flag.Bool("ignore-confidence", false, "Use the default confidence for every observation")
	flag.Parse()

	if *trackPath == "" {
		log.Fatal("Error: -track flag is required")
	}
	if *rate <= 0 {
		log.Fatal("Error: -rate must be positive")
	}

	store, err := track.LoadFile(*trackPath, track.LoadOptions{IgnoreConfidence: *ignoreConfidence})
	if err != nil {
		log.Fatalf("Failed to load track: %v", err)
	}

	report, err := buildReport(*trackPath, store, *rate)
	if err != nil {
		log.Fatalf("Failed to build report: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("Failed to encode report: %v", err)
		}
	} else {
		writeText(os.Stdout, report)
	}

	if *pngPath != "" {
		if err := writePNG(*pngPath, store); err != nil {
			log.Fatalf("Failed to render PNG: %v", err)
		}
		log.Printf("Wrote %s", *pngPath)
	}
}

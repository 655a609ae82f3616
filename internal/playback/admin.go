package playback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/droneview/internal/track"
)

// debugState is the full session dump served on /debug/playback-state.
type debugState struct {
	Snapshot
	Visible     []track.Observation `json:"visible"`
	Subscribers int                 `json:"subscribers"`
	Timeline    DelayStats          `json:"timeline"`
}

// AttachAdminRoutes attaches playback debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (s *Session) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Playback", func() any {
		snap := s.Snapshot()
		return fmt.Sprintf("run #%d index %d/%d animating=%v pacing=%s",
			snap.Run, snap.CurrentIndex, snap.TrackLength, snap.Animating, snap.Pacing)
	})

	debug.HandleFunc("playback-state", "current playback state as JSON", func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		st := debugState{
			Snapshot:    snap,
			Visible:     snap.Visible,
			Subscribers: s.Subscribers(),
			Timeline:    Stats(Timeline(s.store, s.pacer, s.rate)),
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			logf("encode debug state: %v", err)
		}
	})

	// Server-Sent Events of raw snapshots, one JSON object per change.
	debug.HandleSilentFunc("playback-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case snap, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(snap)
				if err != nil {
					logf("encode snapshot: %v", err)
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleFunc("pacing", "scheduled delay per replay step (echarts)", s.handlePacingChart)
	debug.HandleFunc("vehicles", "observations per vehicle (echarts)", s.handleVehicleChart)
	debug.HandleFunc("track.png", "rendered track (PNG)", s.handleTrackPNG)
}

func (s *Session) handlePacingChart(w http.ResponseWriter, r *http.Request) {
	delays := Timeline(s.store, s.pacer, s.rate)
	x := make([]string, len(delays))
	y := make([]opts.LineData, len(delays))
	for i, d := range delays {
		x[i] = fmt.Sprintf("%d", i)
		y[i] = opts.LineData{Value: float64(d) / float64(time.Millisecond)}
	}
	st := Stats(delays)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Replay pacing", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Scheduled delay per step",
			Subtitle: fmt.Sprintf("pacing=%s rate=%.2f steps=%d mean=%.0fms p95=%.0fms total=%.1fs", s.pacer.Name(), s.rate, st.Steps, st.MeanMs, st.P95, st.TotalMs/1000),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "step", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "delay (ms)", NameLocation: "middle", NameGap: 45}),
	)
	line.SetXAxis(x).AddSeries("delay", y)

	renderChart(w, line.Render)
}

func (s *Session) handleVehicleChart(w http.ResponseWriter, r *http.Request) {
	sum := s.store.Summarize()
	x := make([]string, 0, len(sum.PerVehicle))
	y := make([]opts.BarData, 0, len(sum.PerVehicle))
	for _, v := range sum.PerVehicle {
		x = append(x, DisplayID(v.VehicleID))
		y = append(y, opts.BarData{Value: v.Points, ItemStyle: &opts.ItemStyle{Color: v.Color}})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track vehicles", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Observations per vehicle", Subtitle: fmt.Sprintf("vehicles=%d observations=%d", sum.Vehicles, sum.Observations)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("observations", y,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	renderChart(w, bar.Render)
}

func (s *Session) handleTrackPNG(w http.ResponseWriter, r *http.Request) {
	snap := s.Snapshot()
	obs := snap.Visible
	title := fmt.Sprintf("visible (%d)", len(obs))
	if r.URL.Query().Get("all") != "" || len(obs) == 0 {
		obs = s.store.Observations()
		title = fmt.Sprintf("track (%d)", len(obs))
	}

	var buf bytes.Buffer
	if err := track.WritePNG(&buf, title, obs, 6*vg.Inch); err != nil {
		http.Error(w, "Failed to render track", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func renderChart(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

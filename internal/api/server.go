package api

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/banshee-data/droneview/internal/assets"
	"github.com/banshee-data/droneview/internal/httputil"
	"github.com/banshee-data/droneview/internal/monitoring"
	"github.com/banshee-data/droneview/internal/playback"
	"github.com/banshee-data/droneview/internal/track"
	"github.com/banshee-data/droneview/internal/version"
	"github.com/banshee-data/droneview/web"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

var logf = monitoring.Tagged("api")

// Server exposes one playback session over HTTP.
type Server struct {
	session *playback.Session
	assets  *assets.Library
	static  http.Handler
}

// NewServer returns a Server for session. lib may be nil when the replay
// has no media.
func NewServer(session *playback.Session, lib *assets.Library) *Server {
	if lib == nil {
		lib = assets.NewLibrary("", "")
	}
	return &Server{
		session: session,
		assets:  lib,
		static:  http.FileServer(http.FS(web.Static())),
	}
}

// SetStaticFS replaces the embedded front-end, e.g. with the on-disk copy
// in dev mode.
func (s *Server) SetStaticFS(fsys fs.FS) {
	s.static = http.FileServer(http.FS(fsys))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack hands the connection to the WebSocket upgrader.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func statusCodeColor(statusCode int) string {
	code := strconv.Itoa(statusCode)
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + code + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + code + colorReset
	case statusCode >= 400:
		return colorBoldRed + code + colorReset
	default:
		return code
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the routes for the session, the media and the front-end.
// Admin routes are attached separately by the caller.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/visible", s.handleVisible)
	mux.HandleFunc("GET /api/track", s.handleTrack)
	mux.HandleFunc("GET /api/track/summary", s.handleSummary)
	mux.HandleFunc("GET /api/styles", s.handleStyles)
	mux.HandleFunc("GET /api/panel", s.handlePanel)

	mux.HandleFunc("POST /api/restart", s.control(func(http.ResponseWriter, *http.Request) (command, error) {
		return command{Action: ActionRestart}, nil
	}))
	mux.HandleFunc("POST /api/forward", s.control(func(http.ResponseWriter, *http.Request) (command, error) {
		return command{Action: ActionForward}, nil
	}))
	mux.HandleFunc("POST /api/style", s.control(decodeStyle))
	mux.HandleFunc("POST /api/vehicles/{id}/select", s.control(func(_ http.ResponseWriter, r *http.Request) (command, error) {
		return command{Action: ActionSelect, Value: r.PathValue("id")}, nil
	}))
	mux.HandleFunc("POST /api/selection/clear", s.control(func(http.ResponseWriter, *http.Request) (command, error) {
		return command{Action: ActionClear}, nil
	}))

	mux.HandleFunc("GET /api/vehicles/{id}/thumbnail", func(w http.ResponseWriter, r *http.Request) {
		s.assets.ServeThumbnail(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.HandleFunc("GET /video", s.assets.ServeVideo)

	mux.Handle("/static/", http.StripPrefix("/static", s.static))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/static/", http.StatusFound)
	})
	return mux
}

// Frame is one pushed update: the state, the features to draw and the
// panel. It is the payload of /api/events and /api/ws.
type Frame struct {
	State    playback.Snapshot          `json:"state"`
	Visible  *geojson.FeatureCollection `json:"visible"`
	Panel    playback.Panel             `json:"panel"`
	VideoURL string                     `json:"video_url,omitempty"`
}

func (s *Server) newFrame(snap playback.Snapshot) Frame {
	return Frame{
		State:    snap,
		Visible:  track.FeatureCollection(snap.Visible),
		Panel:    playback.BuildPanel(snap, s.assets.ThumbnailURL),
		VideoURL: s.assets.VideoURL(),
	}
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	w.Header().Set("Content-Type", "application/geo+json")
	data, err := fc.MarshalJSON()
	if err != nil {
		httputil.InternalServerError(w, "failed to encode features")
		return
	}
	w.Write(data)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Droneview-Version", version.Version)
	httputil.WriteJSONOK(w, s.session.Snapshot())
}

func (s *Server) handleVisible(w http.ResponseWriter, r *http.Request) {
	writeGeoJSON(w, track.FeatureCollection(s.session.Snapshot().Visible))
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	writeGeoJSON(w, track.FeatureCollection(s.session.Store().Observations()))
}

type summaryResponse struct {
	Summary track.Summary       `json:"summary"`
	Pacing  string              `json:"pacing"`
	Rate    float64             `json:"playback_rate"`
	Delays  playback.DelayStats `json:"delays"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	store := s.session.Store()
	httputil.WriteJSONOK(w, summaryResponse{
		Summary: store.Summarize(),
		Pacing:  s.session.Pacer().Name(),
		Rate:    s.session.Rate(),
		Delays:  playback.Stats(playback.Timeline(store, s.session.Pacer(), s.session.Rate())),
	})
}

type stylesResponse struct {
	Default string              `json:"default"`
	Current string              `json:"current"`
	Styles  []playback.MapStyle `json:"styles"`
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, stylesResponse{
		Default: playback.DefaultMapStyle,
		Current: s.session.Snapshot().MapStyle,
		Styles:  playback.MapStyles,
	})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, playback.BuildPanel(s.session.Snapshot(), s.assets.ThumbnailURL))
}

func decodeStyle(w http.ResponseWriter, r *http.Request) (command, error) {
	var req struct {
		Style string `json:"style"`
	}
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		return command{}, err
	}
	return command{Action: ActionStyle, Value: req.Style}, nil
}

// control adapts a request parser and the shared command dispatcher into a
// handler that answers with the resulting snapshot.
func (s *Server) control(parse func(http.ResponseWriter, *http.Request) (command, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cmd, err := parse(w, r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.apply(cmd); err != nil {
			writeControlError(w, err)
			return
		}
		httputil.WriteJSONOK(w, s.session.Snapshot())
	}
}

func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrAnimating):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, playback.ErrUnknownVehicle):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, playback.ErrClosed):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, errUnknownAction):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalServerError(w, fmt.Sprintf("control failed: %v", err))
	}
}

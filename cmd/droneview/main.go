// Command droneview replays a recorded drone track over HTTP.
//
// Usage:
//
//	droneview -config config/replay.example.yaml
//	droneview -track flight.geojson -assets ./assets -video ./assets/flight.mp4
//
// Flags set on the command line override the config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/droneview/internal/api"
	"github.com/banshee-data/droneview/internal/assets"
	"github.com/banshee-data/droneview/internal/config"
	"github.com/banshee-data/droneview/internal/playback"
	"github.com/banshee-data/droneview/internal/track"
	"github.com/banshee-data/droneview/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a replay config file (.json, .yaml)")
	listen      = flag.String("listen", config.DefaultListen, "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "", "gRPC health listen address (disabled when empty)")
	trackPath   = flag.String("track", "", "Path to the GeoJSON track")
	assetsDir   = flag.String("assets", "", "Directory holding car/<vehicle_id>.jpg thumbnails")
	videoPath   = flag.String("video", "", "Companion video file")
	pacing      = flag.String("pacing", config.DefaultPacing, "Pacing strategy: timestamp or frame_time")
	devMode     = flag.Bool("dev", false, "Serve web/static from disk")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// flagNames maps command-line flags to the config fields they override.
var flagNames = map[string]func(c *config.ReplayConfig){
	"listen":      func(c *config.ReplayConfig) { c.Listen = listen },
	"grpc-listen": func(c *config.ReplayConfig) { c.GRPCListen = grpcListen },
	"track":       func(c *config.ReplayConfig) { c.Track = trackPath },
	"assets":      func(c *config.ReplayConfig) { c.AssetsDir = assetsDir },
	"video":       func(c *config.ReplayConfig) { c.Video = videoPath },
	"pacing":      func(c *config.ReplayConfig) { c.Pacing = pacing },
}

// overrides returns a config holding only the flags set explicitly.
func overrides() *config.ReplayConfig {
	c := config.EmptyReplayConfig()
	flag.Visit(func(f *flag.Flag) {
		if set, ok := flagNames[f.Name]; ok {
			set(c)
		}
	})
	return c
}

// loadConfig reads path (when given) and applies the flag overrides.
func loadConfig(path string, over *config.ReplayConfig) (*config.ReplayConfig, error) {
	cfg := config.EmptyReplayConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadReplayConfig(path)
		if err != nil {
			return nil, err
		}
	}
	cfg.Merge(over)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.GetTrack() == "" {
		return nil, errors.New("a track is required (-track or \"track\" in the config)")
	}
	return cfg, nil
}

// app is everything one replay server needs.
type app struct {
	cfg     *config.ReplayConfig
	session *playback.Session
	server  *api.Server
	handler http.Handler
	health  *api.HealthServer
}

func newApp(cfg *config.ReplayConfig, dev bool) (*app, error) {
	opts := track.LoadOptions{
		DefaultConfidence: cfg.GetDefaultConfidence(),
		IgnoreConfidence:  !cfg.GetDatasetConfidence(),
	}
	if lon, lat, ok := cfg.GetOrigin(); ok {
		opts.Origin = &orb.Point{lon, lat}
	}
	store, err := track.LoadFile(cfg.GetTrack(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load track: %w", err)
	}

	pacer, err := playback.NewPacer(cfg.GetPacing())
	if err != nil {
		return nil, err
	}

	session := playback.NewSession(store, playback.Options{
		Pacer:             pacer,
		RestartDelay:      cfg.GetRestartDelay(),
		PlaybackRate:      cfg.GetPlaybackRate(),
		LightenStep:       cfg.GetLightenStep(),
		SimplifyTolerance: cfg.GetSimplifyTolerance(),
		MapStyle:          cfg.GetMapStyle(),
		Autoplay:          cfg.GetAutoplay(),
	})

	server := api.NewServer(session, assets.NewLibrary(cfg.GetAssetsDir(), cfg.GetVideo()))
	if dev {
		server.SetStaticFS(os.DirFS("web/static"))
	}
	mux := server.ServeMux()
	session.AttachAdminRoutes(mux)

	a := &app{
		cfg:     cfg,
		session: session,
		server:  server,
		handler: api.LoggingMiddleware(mux),
	}
	if addr := cfg.GetGRPCListen(); addr != "" {
		a.health = api.NewHealthServer(addr)
	}

	sum := store.Summarize()
	log.Printf("loaded %s: %d observations, %d vehicles, %.1fs, pacing=%s",
		cfg.GetTrack(), sum.Observations, sum.Vehicles, float64(sum.DurationMillis)/1000, pacer.Name())
	return a, nil
}

// run serves until ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	if a.health != nil {
		if err := a.health.Start(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:    a.cfg.GetListen(),
		Handler: a.handler,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	if a.health != nil {
		a.health.SetServing(true)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	log.Println("shutting down...")

	if a.health != nil {
		a.health.SetServing(false)
	}

	// Closing the session ends every open event stream and WebSocket.
	a.session.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	wg.Wait()

	if a.health != nil {
		a.health.Stop()
	}
	return runErr
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath, overrides())
	if err != nil {
		log.Fatal(err)
	}

	a, err := newApp(cfg, *devMode)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("%s starting", version.String())
	if err := a.run(ctx); err != nil {
		log.Fatal(err)
	}
	log.Printf("Graceful shutdown complete")
}

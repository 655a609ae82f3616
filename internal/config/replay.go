package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical replay defaults file.
// This is the single source of truth for all default replay values.
const DefaultConfigPath = "config/replay.defaults.json"

// Defaults used by the Get* accessors when a field is unset.
const (
	DefaultListen       = ":8080"
	DefaultPacing       = "timestamp"
	DefaultRestartDelay = 100 * time.Millisecond
	DefaultPlaybackRate = 1.0
	DefaultLightenStep  = 0.15
	DefaultConfidence   = 0.9
	DefaultMapStyle     = "mapbox://styles/mapbox/dark-v11"
	MaxRestartDelay     = time.Second
	maxConfigFileSize   = 1 * 1024 * 1024 // 1MB
)

// ReplayConfig is the root configuration for a replay server. Every field is
// optional; the Get* methods supply defaults for anything left out, so
// partial configs are safe.
type ReplayConfig struct {
	// Inputs
	Track     *string `json:"track,omitempty" yaml:"track,omitempty" validate:"omitempty,min=1"`
	AssetsDir *string `json:"assets_dir,omitempty" yaml:"assets_dir,omitempty" validate:"omitempty,min=1"`
	Video     *string `json:"video,omitempty" yaml:"video,omitempty"`

	// Listeners
	Listen     *string `json:"listen,omitempty" yaml:"listen,omitempty" validate:"omitempty,hostname_port"`
	GRPCListen *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty" validate:"omitempty,hostname_port"`

	// Replay engine
	Pacing       *string  `json:"pacing,omitempty" yaml:"pacing,omitempty" validate:"omitempty,oneof=timestamp frame_time"`
	RestartDelay *string  `json:"restart_delay,omitempty" yaml:"restart_delay,omitempty"` // duration string like "100ms"
	PlaybackRate *float64 `json:"playback_rate,omitempty" yaml:"playback_rate,omitempty" validate:"omitempty,gt=0,lte=100"`
	Autoplay     *bool    `json:"autoplay,omitempty" yaml:"autoplay,omitempty"`

	// Path highlight
	LightenStep       *float64 `json:"lighten_step,omitempty" yaml:"lighten_step,omitempty" validate:"omitempty,lte=1"`
	SimplifyTolerance *float64 `json:"path_simplify_tolerance,omitempty" yaml:"path_simplify_tolerance,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Track loading
	DefaultConfidence *float64  `json:"default_confidence,omitempty" yaml:"default_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	DatasetConfidence *bool     `json:"dataset_confidence,omitempty" yaml:"dataset_confidence,omitempty"`
	Origin            []float64 `json:"origin,omitempty" yaml:"origin,omitempty" validate:"omitempty,len=2"` // [lon, lat]

	MapStyle *string `json:"map_style,omitempty" yaml:"map_style,omitempty"`
}

var validate = validator.New()

// EmptyReplayConfig returns a ReplayConfig with all fields set to nil.
// Use LoadReplayConfig to load actual values from the defaults file.
func EmptyReplayConfig() *ReplayConfig {
	return &ReplayConfig{}
}

// LoadReplayConfig loads a ReplayConfig from a .json, .yaml or .yml file.
// Fields omitted from the file retain their default values.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyReplayConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical replay defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ReplayConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/track-inspect/
	}
	for _, path := range candidates {
		if cfg, err := LoadReplayConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks struct tags and the fields tags cannot express.
func (c *ReplayConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.RestartDelay != nil && *c.RestartDelay != "" {
		d, err := time.ParseDuration(*c.RestartDelay)
		if err != nil {
			return fmt.Errorf("invalid restart_delay '%s': %w", *c.RestartDelay, err)
		}
		if d < 0 || d > MaxRestartDelay {
			return fmt.Errorf("restart_delay must be between 0 and %v, got %v", MaxRestartDelay, d)
		}
	}

	if len(c.Origin) == 2 {
		lon, lat := c.Origin[0], c.Origin[1]
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return fmt.Errorf("origin must be [lon, lat] within WGS84 bounds, got [%f, %f]", lon, lat)
		}
	}

	return nil
}

// Merge overlays every field set in other onto c.
func (c *ReplayConfig) Merge(other *ReplayConfig) {
	if other == nil {
		return
	}
	if other.Track != nil {
		c.Track = other.Track
	}
	if other.AssetsDir != nil {
		c.AssetsDir = other.AssetsDir
	}
	if other.Video != nil {
		c.Video = other.Video
	}
	if other.Listen != nil {
		c.Listen = other.Listen
	}
	if other.GRPCListen != nil {
		c.GRPCListen = other.GRPCListen
	}
	if other.Pacing != nil {
		c.Pacing = other.Pacing
	}
	if other.RestartDelay != nil {
		c.RestartDelay = other.RestartDelay
	}
	if other.PlaybackRate != nil {
		c.PlaybackRate = other.PlaybackRate
	}
	if other.Autoplay != nil {
		c.Autoplay = other.Autoplay
	}
	if other.LightenStep != nil {
		c.LightenStep = other.LightenStep
	}
	if other.SimplifyTolerance != nil {
		c.SimplifyTolerance = other.SimplifyTolerance
	}
	if other.DefaultConfidence != nil {
		c.DefaultConfidence = other.DefaultConfidence
	}
	if other.DatasetConfidence != nil {
		c.DatasetConfidence = other.DatasetConfidence
	}
	if other.Origin != nil {
		c.Origin = append([]float64(nil), other.Origin...)
	}
	if other.MapStyle != nil {
		c.MapStyle = other.MapStyle
	}
}

// GetTrack returns the track path or "".
func (c *ReplayConfig) GetTrack() string {
	if c.Track == nil {
		return ""
	}
	return *c.Track
}

// GetAssetsDir returns the asset directory or "".
func (c *ReplayConfig) GetAssetsDir() string {
	if c.AssetsDir == nil {
		return ""
	}
	return *c.AssetsDir
}

// GetVideo returns the companion video path or "".
func (c *ReplayConfig) GetVideo() string {
	if c.Video == nil {
		return ""
	}
	return *c.Video
}

// GetListen returns the HTTP listen address or the default.
func (c *ReplayConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC health listen address; "" disables it.
func (c *ReplayConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ""
	}
	return *c.GRPCListen
}

// GetPacing returns the pacing strategy name or the default.
func (c *ReplayConfig) GetPacing() string {
	if c.Pacing == nil || *c.Pacing == "" {
		return DefaultPacing
	}
	return *c.Pacing
}

// GetRestartDelay parses and returns the RestartDelay as a time.Duration.
func (c *ReplayConfig) GetRestartDelay() time.Duration {
	if c.RestartDelay == nil || *c.RestartDelay == "" {
		return DefaultRestartDelay
	}
	d, err := time.ParseDuration(*c.RestartDelay)
	if err != nil {
		return DefaultRestartDelay // default on parse error
	}
	return d
}

// GetPlaybackRate returns the playback_rate value or the default.
func (c *ReplayConfig) GetPlaybackRate() float64 {
	if c.PlaybackRate == nil || *c.PlaybackRate <= 0 {
		return DefaultPlaybackRate
	}
	return *c.PlaybackRate
}

// GetAutoplay returns the autoplay value or the default.
func (c *ReplayConfig) GetAutoplay() bool {
	if c.Autoplay == nil {
		return false // default: wait for a restart
	}
	return *c.Autoplay
}

// GetLightenStep returns the lighten_step value or the default.
func (c *ReplayConfig) GetLightenStep() float64 {
	if c.LightenStep == nil {
		return DefaultLightenStep
	}
	return *c.LightenStep
}

// GetSimplifyTolerance returns the path_simplify_tolerance value or 0 (off).
func (c *ReplayConfig) GetSimplifyTolerance() float64 {
	if c.SimplifyTolerance == nil {
		return 0
	}
	return *c.SimplifyTolerance
}

// GetDefaultConfidence returns the default_confidence value or the default.
func (c *ReplayConfig) GetDefaultConfidence() float64 {
	if c.DefaultConfidence == nil {
		return DefaultConfidence
	}
	return *c.DefaultConfidence
}

// GetDatasetConfidence reports whether per-feature confidence values are used.
func (c *ReplayConfig) GetDatasetConfidence() bool {
	if c.DatasetConfidence == nil {
		return true
	}
	return *c.DatasetConfidence
}

// GetOrigin returns the configured origin coordinate, if any.
func (c *ReplayConfig) GetOrigin() (lon, lat float64, ok bool) {
	if len(c.Origin) != 2 {
		return 0, 0, false
	}
	return c.Origin[0], c.Origin[1], true
}

// GetMapStyle returns the initial map style or the default.
func (c *ReplayConfig) GetMapStyle() string {
	if c.MapStyle == nil || *c.MapStyle == "" {
		return DefaultMapStyle
	}
	return *c.MapStyle
}

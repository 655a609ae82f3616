// Package playback owns the single replay session: its state container, the
// timer-driven replay engine and the control surface that mutates it.
//
// All mutation goes through Session methods. The engine reveals one track
// observation per step and schedules the next step on an owned, cancelable
// timer; restart, fast-forward and close cancel that timer before touching
// state, so two runs never overlap.
package playback

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/droneview/internal/monitoring"
	"github.com/banshee-data/droneview/internal/timeutil"
	"github.com/banshee-data/droneview/internal/track"
)

var (
	// ErrAnimating rejects path selection while a run is in progress or
	// about to start.
	ErrAnimating = errors.New("playback is animating")
	// ErrUnknownVehicle is returned when selecting a vehicle not in the track.
	ErrUnknownVehicle = errors.New("unknown vehicle")
	// ErrClosed is returned by control methods after Close.
	ErrClosed = errors.New("playback session closed")
)

// DefaultRestartDelay separates clearing state from starting the next run
// so the companion video sees a stopped phase and reloads.
const DefaultRestartDelay = 100 * time.Millisecond

var logf = monitoring.Tagged("playback")

// Options configures a Session. The zero value is usable: timestamp
// pacing, real clock, rate 1, default lighten step, no simplification.
type Options struct {
	Pacer Pacer
	Clock timeutil.Clock

	// RestartDelay is the wait between Restart and the first step.
	RestartDelay time.Duration

	// PlaybackRate divides every scheduled delay. Values <= 0 mean 1.
	PlaybackRate float64

	// LightenStep is the per-point lightening for path highlights. Zero
	// means track.DefaultLightenStep; negative disables the gradient.
	LightenStep float64

	// SimplifyTolerance, in degrees, thins highlighted paths. Zero is off.
	SimplifyTolerance float64

	// MapStyle is the initial basemap; empty means DefaultMapStyle.
	MapStyle string

	// Autoplay starts a run as soon as the session is created.
	Autoplay bool
}

// State is the playback state container.
type State struct {
	CurrentIndex    int
	Animating       bool
	Visible         []track.Observation
	Discovered      []DiscoveredVehicle
	SelectedVehicle string
	MapStyle        string
}

// VideoState tells the companion video what to do. Epoch changes on every
// restart so players reload from the beginning.
type VideoState struct {
	Playing bool `json:"playing"`
	Epoch   int  `json:"epoch"`
}

// Snapshot is an immutable copy of the session for observers.
type Snapshot struct {
	RunID           string              `json:"run_id,omitempty"`
	Run             int                 `json:"run"`
	CurrentIndex    int                 `json:"current_index"`
	TrackLength     int                 `json:"track_length"`
	Animating       bool                `json:"is_animating"`
	Starting        bool                `json:"starting"`
	Visible         []track.Observation `json:"-"`
	VisibleCount    int                 `json:"visible_count"`
	Discovered      []DiscoveredVehicle `json:"discovered"`
	SelectedVehicle string              `json:"selected_vehicle,omitempty"`
	MapStyle        string              `json:"map_style"`
	Pacing          string              `json:"pacing"`
	PlaybackRate    float64             `json:"playback_rate"`
	Video           VideoState          `json:"video"`
	ShowPathHint    bool                `json:"show_path_hint"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Session is the single replay session of the process.
type Session struct {
	store        *track.Store
	obs          []track.Observation
	pacer        Pacer
	clock        timeutil.Clock
	restartDelay time.Duration
	rate         float64
	lightenStep  float64
	simplifyTol  float64

	mu       sync.Mutex
	state    State
	revealed int
	runID    string
	run      int
	starting bool
	pending  timeutil.Timer
	gen      uint64
	closed   bool
	updated  time.Time

	subMu       sync.Mutex
	subscribers map[string]chan Snapshot
}

// NewSession creates an idle session over store.
func NewSession(store *track.Store, opts Options) *Session {
	s := &Session{
		store:        store,
		obs:          store.Observations(),
		pacer:        opts.Pacer,
		clock:        opts.Clock,
		restartDelay: max(opts.RestartDelay, 0),
		rate:         opts.PlaybackRate,
		lightenStep:  opts.LightenStep,
		simplifyTol:  opts.SimplifyTolerance,
		subscribers:  make(map[string]chan Snapshot),
	}
	if s.pacer == nil {
		s.pacer = TimestampPacer{}
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.rate <= 0 {
		s.rate = 1
	}
	if s.lightenStep == 0 {
		s.lightenStep = track.DefaultLightenStep
	}
	s.state.MapStyle = opts.MapStyle
	if s.state.MapStyle == "" {
		s.state.MapStyle = DefaultMapStyle
	}
	s.updated = s.clock.Now()

	if opts.Autoplay {
		// A fresh session cannot be closed yet.
		_ = s.Restart()
	}
	return s
}

// Store returns the track being replayed.
func (s *Session) Store() *track.Store { return s.store }

// Pacer returns the active pacing strategy.
func (s *Session) Pacer() Pacer { return s.pacer }

// Rate returns the playback rate.
func (s *Session) Rate() float64 { return s.rate }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	discovered := make([]DiscoveredVehicle, len(s.state.Discovered))
	copy(discovered, s.state.Discovered)
	return Snapshot{
		RunID:           s.runID,
		Run:             s.run,
		CurrentIndex:    s.state.CurrentIndex,
		TrackLength:     len(s.obs),
		Animating:       s.state.Animating,
		Starting:        s.starting,
		Visible:         slices.Clone(s.state.Visible),
		VisibleCount:    len(s.state.Visible),
		Discovered:      discovered,
		SelectedVehicle: s.state.SelectedVehicle,
		MapStyle:        s.state.MapStyle,
		Pacing:          s.pacer.Name(),
		PlaybackRate:    s.rate,
		Video:           VideoState{Playing: s.state.Animating, Epoch: s.run},
		ShowPathHint:    len(discovered) > 0 && !s.state.Animating && !s.starting,
		UpdatedAt:       s.updated,
	}
}

// commitLocked stamps the change and fans the new snapshot out.
func (s *Session) commitLocked() {
	s.updated = s.clock.Now()
	s.publishLocked(s.snapshotLocked())
}

// cancelPendingLocked stops any scheduled step or delayed start. Bumping
// the generation turns a callback already past Stop into a no-op.
func (s *Session) cancelPendingLocked() {
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.starting = false
}

// Restart clears the run and schedules a new one after the restart delay.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.cancelPendingLocked()
	s.state.Visible = nil
	s.state.CurrentIndex = 0
	s.state.Discovered = nil
	s.state.SelectedVehicle = ""
	s.state.Animating = false
	s.revealed = 0
	s.run++
	s.runID = uuid.NewString()

	s.starting = true
	gen := s.gen
	s.pending = s.clock.AfterFunc(s.restartDelay, func() { s.start(gen) })
	logf("run %s (#%d) scheduled in %v", s.runID, s.run, s.restartDelay)

	s.commitLocked()
	return nil
}

func (s *Session) start(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.pending = nil
	s.starting = false
	s.state.Animating = true
	logf("run %s started: %d observations, pacing=%s, rate=%.2f", s.runID, len(s.obs), s.pacer.Name(), s.rate)

	s.evaluateLocked()
	s.commitLocked()
}

// evaluateLocked performs one replay step for the current index. It is a
// no-op while not animating.
func (s *Session) evaluateLocked() {
	if !s.state.Animating {
		return
	}
	i := s.state.CurrentIndex
	n := len(s.obs)
	if i >= n {
		s.state.Animating = false
		return
	}

	cur := s.obs[i]
	s.state.Visible = append(s.state.Visible, cur)
	s.revealed = i + 1
	s.state.Discovered = DeriveDiscovered(s.obs, i+1)

	if i < n-1 {
		delay := scale(s.pacer.Delay(cur, s.obs[i+1]), s.rate)
		gen := s.gen
		s.pending = s.clock.AfterFunc(delay, func() { s.advance(gen) })
		return
	}

	s.state.Animating = false
	logf("run %s finished: %d vehicles discovered", s.runID, len(s.state.Discovered))
}

func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen || !s.state.Animating {
		return
	}
	s.pending = nil
	s.state.CurrentIndex++
	s.evaluateLocked()
	s.commitLocked()
}

// ForwardToEnd reveals the whole track at once and stops the run.
func (s *Session) ForwardToEnd() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.cancelPendingLocked()
	s.state.Visible = slices.Clone(s.obs)
	s.state.Discovered = DeriveDiscovered(s.obs, len(s.obs))
	s.state.CurrentIndex = len(s.obs)
	s.state.Animating = false
	s.state.SelectedVehicle = ""
	s.revealed = len(s.obs)
	logf("run %s forwarded to end: %d vehicles discovered", s.runID, len(s.state.Discovered))

	s.commitLocked()
	return nil
}

// SetMapStyle sets the basemap style. Any string is accepted.
func (s *Session) SetMapStyle(style string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state.MapStyle = style
	s.commitLocked()
}

// SelectVehicle replaces the visible set with one vehicle's full path,
// lightened point by point to show direction of travel.
func (s *Session) SelectVehicle(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Animating || s.starting {
		return ErrAnimating
	}
	if !s.store.HasVehicle(id) {
		return fmt.Errorf("%w: %q", ErrUnknownVehicle, id)
	}

	path := track.Simplify(s.store.Path(id), s.simplifyTol)
	path = track.Gradient(path, s.lightenStep)
	s.state.Visible = path
	s.state.SelectedVehicle = id

	s.commitLocked()
	return nil
}

// ClearSelection restores the observations revealed by the last run.
func (s *Session) ClearSelection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state.Animating || s.starting {
		return ErrAnimating
	}
	s.state.Visible = s.store.Prefix(s.revealed)
	s.state.SelectedVehicle = ""

	s.commitLocked()
	return nil
}

// Close cancels pending work and closes every subscriber channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked()
	s.closed = true
	s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

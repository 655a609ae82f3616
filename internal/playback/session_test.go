package playback

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/droneview/internal/monitoring"
	"github.com/banshee-data/droneview/internal/testutil"
	"github.com/banshee-data/droneview/internal/timeutil"
	"github.com/banshee-data/droneview/internal/track"
)

func init() {
	monitoring.SetLogger(nil)
}

var epoch = time.Date(2024, 12, 9, 10, 0, 0, 0, time.UTC)

// fixedPacer waits the same duration between every pair of observations.
type fixedPacer time.Duration

func (fixedPacer) Name() string { return "fixed" }

func (p fixedPacer) Delay(cur, next track.Observation) time.Duration { return time.Duration(p) }

func sampleStore(t *testing.T) *track.Store {
	t.Helper()
	s, err := track.Load(strings.NewReader(testutil.SampleTrackGeoJSON), track.LoadOptions{})
	require.NoError(t, err)
	return s
}

func newTestSession(t *testing.T, opts Options) (*Session, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	opts.Clock = clock
	if opts.RestartDelay == 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	s := NewSession(sampleStore(t), opts)
	t.Cleanup(s.Close)
	return s, clock
}

func drain(c <-chan Snapshot) []Snapshot {
	var out []Snapshot
	for {
		select {
		case snap, ok := <-c:
			if !ok {
				return out
			}
			out = append(out, snap)
		default:
			return out
		}
	}
}

func vehicleIDs(d []DiscoveredVehicle) []string {
	ids := make([]string, len(d))
	for i, v := range d {
		ids[i] = v.VehicleID
	}
	return ids
}

func TestNewSession_Idle(t *testing.T) {
	s, clock := newTestSession(t, Options{})
	snap := s.Snapshot()

	assert.False(t, snap.Animating)
	assert.False(t, snap.Starting)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, 0, snap.VisibleCount)
	assert.Empty(t, snap.Discovered)
	assert.Equal(t, DefaultMapStyle, snap.MapStyle)
	assert.Equal(t, PacingTimestamp, snap.Pacing)
	assert.Equal(t, testutil.SampleTrackLen, snap.TrackLength)
	assert.Equal(t, 0, clock.Pending())
}

func TestSession_TimestampPacedRun(t *testing.T) {
	s, clock := newTestSession(t, Options{})
	id, c := s.Subscribe()
	defer s.Unsubscribe(id)

	require.NoError(t, s.Restart())
	snap := s.Snapshot()
	assert.True(t, snap.Starting)
	assert.False(t, snap.Animating)
	assert.Equal(t, 1, snap.Run)
	assert.NotEmpty(t, snap.RunID)

	// Start, then origin -> vehicle_2 has no gap so both reveal together.
	clock.Advance(DefaultRestartDelay)
	snap = s.Snapshot()
	require.True(t, snap.Animating)
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 2, snap.VisibleCount)
	assert.True(t, snap.Video.Playing)

	steps := []struct {
		advance   time.Duration
		wantIndex int
	}{
		{500 * time.Millisecond, 2},
		{1000 * time.Millisecond, 4}, // vehicle_1 -> vehicle_3 share a timestamp
		{1500 * time.Millisecond, 5},
		{499 * time.Millisecond, 5},
		{1 * time.Millisecond, 6},
	}
	for _, step := range steps {
		clock.Advance(step.advance)
		assert.Equal(t, step.wantIndex, s.Snapshot().CurrentIndex, "after advancing %v", step.advance)
	}

	final := s.Snapshot()
	assert.False(t, final.Animating)
	assert.Equal(t, testutil.SampleTrackLen, final.VisibleCount)
	assert.Equal(t, 0, clock.Pending())
	assert.True(t, final.ShowPathHint)

	// Indices observed by a subscriber strictly increase from 0 to N-1.
	var visited []int
	for _, snap := range drain(c) {
		if snap.VisibleCount == 0 {
			continue
		}
		if n := len(visited); n > 0 && visited[n-1] == snap.CurrentIndex {
			continue
		}
		visited = append(visited, snap.CurrentIndex)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, visited)
}

func TestSession_FrameTimePacedRun(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: FrameTimePacer{}})
	require.NoError(t, s.Restart())

	clock.Advance(DefaultRestartDelay)
	assert.Equal(t, 1, s.Snapshot().CurrentIndex)

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 2, s.Snapshot().CurrentIndex)

	// 1000ms to index 3, then 0 (same frame) and 0 (vehicle_3 not eligible).
	clock.Advance(1000 * time.Millisecond)
	assert.Equal(t, 5, s.Snapshot().CurrentIndex)

	clock.Advance(500 * time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, 6, snap.CurrentIndex)
	assert.False(t, snap.Animating)
}

func TestSession_DiscoveredUniquePerVehicle(t *testing.T) {
	s, clock := newTestSession(t, Options{})
	require.NoError(t, s.Restart())
	clock.Advance(time.Minute)

	snap := s.Snapshot()
	assert.Equal(t, []string{track.OriginVehicleID, "vehicle_2", "vehicle_1", "vehicle_3"}, vehicleIDs(snap.Discovered))

	seen := map[string]int{}
	for _, d := range snap.Discovered {
		seen[d.VehicleID]++
	}
	for _, o := range snap.Visible {
		assert.Equal(t, 1, seen[o.VehicleID], "vehicle %s", o.VehicleID)
	}
}

func TestSession_ForwardToEndMatchesFullRun(t *testing.T) {
	full, clock := newTestSession(t, Options{})
	require.NoError(t, full.Restart())
	clock.Advance(time.Minute)

	fast, _ := newTestSession(t, Options{})
	require.NoError(t, fast.ForwardToEnd())

	a, b := full.Snapshot(), fast.Snapshot()
	if diff := cmp.Diff(a.Discovered, b.Discovered); diff != "" {
		t.Errorf("discovered mismatch (-full +forward):\n%s", diff)
	}
	if diff := cmp.Diff(a.Visible, b.Visible); diff != "" {
		t.Errorf("visible mismatch (-full +forward):\n%s", diff)
	}
	assert.Equal(t, testutil.SampleTrackLen, b.CurrentIndex)
	assert.False(t, b.Animating)
}

func TestSession_ForwardToEndCancelsRun(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second)})
	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)
	require.Equal(t, 1, clock.Pending())

	require.NoError(t, s.ForwardToEnd())
	assert.Equal(t, 0, clock.Pending())

	clock.Advance(time.Minute)
	snap := s.Snapshot()
	assert.Equal(t, testutil.SampleTrackLen, snap.CurrentIndex)
	assert.Equal(t, testutil.SampleTrackLen, snap.VisibleCount)
}

func TestSession_RestartReproducesFirstStep(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second)})

	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)
	first := s.Snapshot()
	require.Equal(t, 1, first.VisibleCount)

	clock.Advance(2500 * time.Millisecond)
	require.Equal(t, 2, s.Snapshot().CurrentIndex)

	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)
	again := s.Snapshot()

	if diff := cmp.Diff(first.Visible, again.Visible); diff != "" {
		t.Errorf("visible mismatch (-fresh +restarted):\n%s", diff)
	}
	if diff := cmp.Diff(first.Discovered, again.Discovered); diff != "" {
		t.Errorf("discovered mismatch (-fresh +restarted):\n%s", diff)
	}
	assert.Equal(t, first.CurrentIndex, again.CurrentIndex)
	assert.Equal(t, first.Animating, again.Animating)
	assert.NotEqual(t, first.RunID, again.RunID)
	assert.Equal(t, first.Video.Epoch+1, again.Video.Epoch)
}

func TestSession_RestartCancelsPendingStep(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second)})
	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)
	require.Equal(t, 1, clock.Pending())

	clock.Advance(900 * time.Millisecond)
	require.NoError(t, s.Restart())
	// Only the delayed start remains; the old step timer is gone.
	assert.Equal(t, 1, clock.Pending())
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.VisibleCount)
	assert.Empty(t, snap.Discovered)

	// The old run's step would have fired here.
	clock.Advance(100 * time.Millisecond)
	snap = s.Snapshot()
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.Equal(t, 1, snap.VisibleCount)

	clock.Advance(time.Second)
	snap = s.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, 2, snap.VisibleCount)
}

func TestSession_DoubleRestartStartsOnce(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second)})
	require.NoError(t, s.Restart())
	clock.Advance(50 * time.Millisecond)
	require.NoError(t, s.Restart())
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(50 * time.Millisecond)
	assert.True(t, s.Snapshot().Starting, "second restart should reset the start delay")

	clock.Advance(50 * time.Millisecond)
	snap := s.Snapshot()
	assert.True(t, snap.Animating)
	assert.Equal(t, 1, snap.VisibleCount)
	assert.Equal(t, 2, snap.Run)
}

func TestSession_StaleCallbackIsNoop(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	s.mu.Lock()
	s.state.Animating = true
	gen := s.gen
	s.gen++
	s.mu.Unlock()

	s.advance(gen)
	s.start(gen)
	assert.Equal(t, 0, s.Snapshot().CurrentIndex)
	assert.Equal(t, 0, s.Snapshot().VisibleCount)
}

func TestSession_PlaybackRate(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second), PlaybackRate: 4})
	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)

	deadline, ok := clock.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, deadline.Sub(clock.Now()))
	assert.Equal(t, 4.0, s.Snapshot().PlaybackRate)
}

func TestSession_SelectVehicle(t *testing.T) {
	s, clock := newTestSession(t, Options{})

	require.NoError(t, s.Restart())
	assert.ErrorIs(t, s.SelectVehicle("vehicle_1"), ErrAnimating, "pending start counts as animating")
	clock.Advance(DefaultRestartDelay)
	assert.ErrorIs(t, s.SelectVehicle("vehicle_1"), ErrAnimating)

	require.NoError(t, s.ForwardToEnd())
	assert.ErrorIs(t, s.SelectVehicle("vehicle_42"), ErrUnknownVehicle)

	require.NoError(t, s.SelectVehicle("vehicle_1"))
	snap := s.Snapshot()
	assert.Equal(t, "vehicle_1", snap.SelectedVehicle)
	require.Len(t, snap.Visible, 3)
	assert.Equal(t, "#3366CC", snap.Visible[0].Color)

	prev := -1.0
	for i, o := range snap.Visible {
		assert.Equal(t, "vehicle_1", o.VehicleID)
		l, err := track.Lightness(o.Color)
		require.NoError(t, err)
		assert.Greater(t, l, prev, "point %d", i)
		prev = l
	}

	// The track keeps its canonical colours.
	for _, o := range s.Store().Path("vehicle_1") {
		assert.Equal(t, "#3366CC", o.Color)
	}

	require.NoError(t, s.ClearSelection())
	snap = s.Snapshot()
	assert.Empty(t, snap.SelectedVehicle)
	assert.Equal(t, testutil.SampleTrackLen, snap.VisibleCount)
}

func TestSession_ClearSelectionAfterFinishedRun(t *testing.T) {
	s, clock := newTestSession(t, Options{})
	require.NoError(t, s.Restart())
	clock.Advance(time.Minute)

	require.NoError(t, s.SelectVehicle("vehicle_3"))
	assert.Equal(t, 1, s.Snapshot().VisibleCount)
	require.NoError(t, s.ClearSelection())
	assert.Equal(t, testutil.SampleTrackLen, s.Snapshot().VisibleCount)
}

func TestSession_SelectVehicleSimplified(t *testing.T) {
	s, _ := newTestSession(t, Options{SimplifyTolerance: 0.01, LightenStep: -1})
	require.NoError(t, s.ForwardToEnd())
	require.NoError(t, s.SelectVehicle("vehicle_1"))

	snap := s.Snapshot()
	// All three vehicle_1 points sit within 0.01 deg of the end-to-end line.
	require.Len(t, snap.Visible, 2)
	for _, o := range snap.Visible {
		assert.Equal(t, "#3366CC", o.Color, "negative lighten step disables the gradient")
	}
}

func TestSession_SetMapStyle(t *testing.T) {
	s, _ := newTestSession(t, Options{MapStyle: MapStyles[2].Value})
	assert.Equal(t, MapStyles[2].Value, s.Snapshot().MapStyle)

	s.SetMapStyle("not-a-known-style")
	assert.Equal(t, "not-a-known-style", s.Snapshot().MapStyle)
}

func TestSession_Autoplay(t *testing.T) {
	s, clock := newTestSession(t, Options{Autoplay: true})
	snap := s.Snapshot()
	assert.True(t, snap.Starting)
	assert.Equal(t, 1, snap.Run)

	clock.Advance(DefaultRestartDelay)
	assert.True(t, s.Snapshot().Animating)
}

func TestSession_Close(t *testing.T) {
	s, clock := newTestSession(t, Options{Pacer: fixedPacer(time.Second)})
	_, c := s.Subscribe()

	require.NoError(t, s.Restart())
	clock.Advance(DefaultRestartDelay)
	s.Close()

	assert.Equal(t, 0, clock.Pending())
	assert.ErrorIs(t, s.Restart(), ErrClosed)
	assert.ErrorIs(t, s.ForwardToEnd(), ErrClosed)
	assert.ErrorIs(t, s.SelectVehicle("vehicle_1"), ErrClosed)
	assert.ErrorIs(t, s.ClearSelection(), ErrClosed)
	s.SetMapStyle("ignored")
	s.Close()

	for range c {
	}
	_, late := s.Subscribe()
	_, ok := <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestSession_SubscribeReceivesLatest(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	id, c := s.Subscribe()
	defer s.Unsubscribe(id)

	first := <-c
	assert.Equal(t, DefaultMapStyle, first.MapStyle)

	for i := 0; i < subscriberBuffer*2; i++ {
		s.SetMapStyle(MapStyles[i%len(MapStyles)].Value)
	}
	s.SetMapStyle("final")

	snaps := drain(c)
	require.NotEmpty(t, snaps)
	assert.LessOrEqual(t, len(snaps), subscriberBuffer)
	assert.Equal(t, "final", snaps[len(snaps)-1].MapStyle)
	assert.Equal(t, 1, s.Subscribers())

	s.Unsubscribe(id)
	assert.Equal(t, 0, s.Subscribers())
}

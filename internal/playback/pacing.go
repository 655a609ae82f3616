package playback

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/droneview/internal/track"
)

// Pacing strategy names accepted by NewPacer and the config file.
const (
	PacingTimestamp = "timestamp"
	PacingFrameTime = "frame_time"
)

// ErrUnknownPacing is returned by NewPacer for an unrecognised name.
var ErrUnknownPacing = errors.New("unknown pacing strategy")

// Pacer computes the wait between revealing cur and revealing next.
// Implementations return 0 rather than a negative delay.
type Pacer interface {
	Name() string
	Delay(cur, next track.Observation) time.Duration
}

// NewPacer returns the named strategy.
func NewPacer(name string) (Pacer, error) {
	switch name {
	case PacingTimestamp, "":
		return TimestampPacer{}, nil
	case PacingFrameTime:
		return FrameTimePacer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacing, name)
	}
}

// TimestampPacer waits for the gap between ordering timestamps.
type TimestampPacer struct{}

func (TimestampPacer) Name() string { return PacingTimestamp }

func (TimestampPacer) Delay(cur, next track.Observation) time.Duration {
	if cur.Timestamp.IsZero() || next.Timestamp.IsZero() {
		return 0
	}
	return nonNegative(next.Timestamp.Sub(cur.Timestamp))
}

// FrameTimePacer waits for the gap between capture frame times, but only
// when cur is delay eligible. Frames holding several detections mark only
// their first detection eligible, so the rest follow immediately.
type FrameTimePacer struct{}

func (FrameTimePacer) Name() string { return PacingFrameTime }

func (FrameTimePacer) Delay(cur, next track.Observation) time.Duration {
	if !cur.DelayEligible {
		return 0
	}
	a, err := cur.FrameOffset()
	if err != nil {
		return 0
	}
	b, err := next.FrameOffset()
	if err != nil {
		return 0
	}
	return nonNegative(b - a)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// scale divides d by a playback rate; rates <= 0 are treated as 1.
func scale(d time.Duration, rate float64) time.Duration {
	if rate <= 0 || rate == 1 {
		return d
	}
	return time.Duration(float64(d) / rate)
}

// Timeline returns the scheduled wait after each step of a full run:
// element i is the delay between revealing index i and i+1.
func Timeline(store *track.Store, pacer Pacer, rate float64) []time.Duration {
	n := store.Len()
	if n < 2 {
		return nil
	}
	out := make([]time.Duration, n-1)
	for i := 0; i < n-1; i++ {
		out[i] = scale(pacer.Delay(store.At(i), store.At(i+1)), rate)
	}
	return out
}

// DelayStats summarises a Timeline in milliseconds.
type DelayStats struct {
	Steps   int     `json:"steps"`
	TotalMs float64 `json:"total_ms"`
	MeanMs  float64 `json:"mean_ms"`
	StdDev  float64 `json:"stddev_ms"`
	Median  float64 `json:"median_ms"`
	P95     float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
	Zero    int     `json:"zero_steps"`
}

// Stats computes DelayStats for delays.
func Stats(delays []time.Duration) DelayStats {
	if len(delays) == 0 {
		return DelayStats{}
	}
	ms := make([]float64, len(delays))
	zero := 0
	for i, d := range delays {
		ms[i] = float64(d) / float64(time.Millisecond)
		if d == 0 {
			zero++
		}
	}
	sorted := slices.Clone(ms)
	slices.Sort(sorted)

	st := DelayStats{
		Steps:   len(ms),
		TotalMs: floats.Sum(ms),
		MeanMs:  stat.Mean(ms, nil),
		Median:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMs:   floats.Max(ms),
		Zero:    zero,
	}
	if len(ms) > 1 {
		st.StdDev = stat.StdDev(ms, nil)
	}
	return st
}

package heatmap

import (
	"context"
	"time"

	"github.com/sudorandom/lane-heat/pkg/feed"
)

const (
	// DefaultMaxDelta bounds the time one tick may account for, so a paused
	// host does not wipe the overlay in a single frame.
	DefaultMaxDelta = time.Second
	// BaseTickRate drives Run; frames are further limited by the FPS cap.
	BaseTickRate = 60
)

// Source hands out the newest sample batch, if one arrived since the last call.
type Source interface {
	Take() ([]feed.Sample, bool)
}

// Scheduler turns irregular ticks into capped-rate renderer frames. While the
// renderer is Disabled its clock is held, so decay is frozen rather than
// caught up on re-enable.
type Scheduler struct {
	r        *Renderer
	src      Source
	maxDelta time.Duration

	active  bool // renderer was Enabled at the previous tick
	last    time.Time
	pending time.Duration

	frames  uint64
	skipped uint64
}

type SchedulerOption func(*Scheduler)

func WithMaxDelta(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxDelta = d
		}
	}
}

func NewScheduler(r *Renderer, src Source, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{r: r, src: src, maxDelta: DefaultMaxDelta}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick accounts for the time since the previous tick and renders a frame once
// a full frame interval has accumulated. It reports whether a frame ran.
func (s *Scheduler) Tick(now time.Time) bool {
	// Ticks while Disabled, and the first tick after enabling, only re-anchor
	// the clock.
	if enabled := s.r.Enabled(); !enabled || !s.active {
		s.active = enabled
		s.last = now
		s.pending = 0
		return false
	}

	dt := now.Sub(s.last)
	s.last = now
	if dt < 0 {
		dt = 0
	}
	if dt > s.maxDelta {
		dt = s.maxDelta
	}
	s.pending += dt
	if s.pending < s.r.Config().FrameInterval() {
		return false
	}

	var batch []feed.Sample
	fresh := false
	if s.src != nil {
		batch, fresh = s.src.Take()
	}
	elapsed := s.pending
	s.pending = 0
	if !s.r.Frame(elapsed, batch, fresh) {
		s.skipped++
		return false
	}
	s.frames++
	return true
}

// Frames returns how many frames ran and how many were skipped by the renderer.
func (s *Scheduler) Frames() (rendered, skipped uint64) {
	return s.frames, s.skipped
}

// Run ticks at BaseTickRate until ctx is cancelled. onFrame, when set, is
// called after every rendered frame.
func (s *Scheduler) Run(ctx context.Context, onFrame func()) {
	t := time.NewTicker(time.Second / BaseTickRate)
	defer t.Stop()
	s.Tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if s.Tick(now) && onFrame != nil {
				onFrame()
			}
		}
	}
}

package heatmap

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/sudorandom/lane-heat/pkg/feed"
)

func TestSchedulerFrameCap(t *testing.T) {
	r := newTestRenderer(Config{FPSCap: 10}, 16, 16)
	s := NewScheduler(r, feed.NewSlot[[]feed.Sample]())

	start := time.Unix(1000, 0)
	if s.Tick(start) {
		t.Fatal("first tick rendered a frame")
	}
	// 60 Hz ticks for one second against a 10 fps cap.
	rendered := 0
	for i := 1; i <= 60; i++ {
		if s.Tick(start.Add(time.Duration(i) * time.Second / 60)) {
			rendered++
		}
	}
	if rendered < 9 || rendered > 10 {
		t.Errorf("rendered %d frames in one second at a 10 fps cap", rendered)
	}
}

func TestSchedulerTakesLatestBatch(t *testing.T) {
	r := newTestRenderer(Config{FPSCap: 30}, 32, 32)
	slot := feed.NewSlot[[]feed.Sample]()
	s := NewScheduler(r, slot)

	start := time.Unix(1000, 0)
	s.Tick(start)
	slot.Publish([]feed.Sample{at(2, 2, 32)})
	slot.Publish([]feed.Sample{at(20, 20, 32), at(25, 25, 32)})
	if !s.Tick(start.Add(100 * time.Millisecond)) {
		t.Fatal("no frame after 100ms")
	}
	if st := r.Stats(); st.Total != 2 {
		t.Errorf("frame used a batch of %d, want the latest (2)", st.Total)
	}
	if r.Intensity(20, 20) == 0 {
		t.Error("latest batch not splatted")
	}

	// A frame without a new batch decays but does not splat again.
	before := r.Intensity(20, 20)
	if !s.Tick(start.Add(200 * time.Millisecond)) {
		t.Fatal("no frame after another 100ms")
	}
	if got := r.Intensity(20, 20); got >= before {
		t.Errorf("intensity %v did not decay from %v", got, before)
	}
}

func TestSchedulerClampsDelta(t *testing.T) {
	r := newTestRenderer(Config{HalfLife: 0.5, Intensity: 3}, 16, 16)
	r.Frame(0, []feed.Sample{at(8, 8, 16)}, true)
	prior := r.Intensity(8, 8)

	s := NewScheduler(r, nil)
	start := time.Unix(1000, 0)
	s.Tick(start)
	// The host was suspended for an hour.
	if !s.Tick(start.Add(time.Hour)) {
		t.Fatal("no frame after a long pause")
	}
	want := float64(prior) * math.Exp(-math.Ln2/0.5*DefaultMaxDelta.Seconds())
	if got := r.Intensity(8, 8); math.Abs(float64(got)-want) > 1e-6 {
		t.Errorf("intensity after clamped pause = %v, want %v", got, want)
	}

	s = NewScheduler(r, nil, WithMaxDelta(250*time.Millisecond))
	s.Tick(start)
	before := r.Intensity(8, 8)
	s.Tick(start.Add(time.Minute))
	want = float64(before) * math.Exp(-math.Ln2/0.5*0.25)
	if got := r.Intensity(8, 8); math.Abs(float64(got)-want) > 1e-6 {
		t.Errorf("intensity with 250ms clamp = %v, want %v", got, want)
	}
}

func TestSchedulerBackwardsClock(t *testing.T) {
	r := newTestRenderer(Config{}, 16, 16)
	s := NewScheduler(r, nil)
	start := time.Unix(1000, 0)
	s.Tick(start)
	if s.Tick(start.Add(-time.Minute)) {
		t.Error("a clock step backwards rendered a frame")
	}
}

// Decay is frozen while the overlay is Disabled: re-enabling after five
// seconds (two half-lives) leaves the buffer untouched, and the next frame
// only decays by its own interval.
func TestSchedulerFreezesWhileDisabled(t *testing.T) {
	r := newTestRenderer(Config{HalfLife: 2.5, Intensity: 3, FPSCap: 20}, 32, 32)
	slot := feed.NewSlot[[]feed.Sample]()
	s := NewScheduler(r, slot)

	start := time.Unix(1000, 0)
	s.Tick(start)
	slot.Publish([]feed.Sample{at(16, 16, 32)})
	if !s.Tick(start.Add(50 * time.Millisecond)) {
		t.Fatal("no frame to splat the batch")
	}
	prior := r.Intensity(16, 16)

	r.SetEnabled(false)
	for i := 1; i <= 300; i++ {
		s.Tick(start.Add(50*time.Millisecond + time.Duration(i)*time.Second/60))
	}
	if got := r.Intensity(16, 16); got != prior {
		t.Fatalf("intensity changed while Disabled: %v -> %v", prior, got)
	}

	r.SetEnabled(true)
	reenabled := start.Add(50*time.Millisecond + 5*time.Second)
	if s.Tick(reenabled) {
		t.Error("re-enabling tick rendered a frame")
	}
	if got := r.Intensity(16, 16); got != prior {
		t.Errorf("re-enabling changed intensity: %v -> %v", prior, got)
	}

	if !s.Tick(reenabled.Add(50 * time.Millisecond)) {
		t.Fatal("no frame after re-enable")
	}
	want := float64(prior) * math.Exp(-math.Ln2/2.5*0.05)
	if got := r.Intensity(16, 16); math.Abs(float64(got)-want) > 1e-6 {
		t.Errorf("first enabled frame intensity = %v, want %v (%.1f%% of prior)", got, want, 100*want/float64(prior))
	}
}

func TestSchedulerRun(t *testing.T) {
	r := newTestRenderer(Config{FPSCap: 30}, 16, 16)
	slot := feed.NewSlot[[]feed.Sample]()
	slot.Publish([]feed.Sample{at(8, 8, 16)})
	s := NewScheduler(r, slot)

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func() {
			select {
			case frames <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("Run produced no frame")
	}
	cancel()
	<-done

	if rendered, _ := s.Frames(); rendered == 0 {
		t.Error("frame counter not advanced")
	}
	if r.Intensity(8, 8) == 0 {
		t.Error("published batch not splatted")
	}
}

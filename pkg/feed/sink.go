package feed

import (
	"log"
	"sync/atomic"
)

// Sink decodes bridge frames and publishes their contents to latest-wins slots.
type Sink struct {
	Samples *Slot[[]Sample]
	Signals *Slot[[]Signal]

	frames  atomic.Uint64
	dropped atomic.Uint64
	bad     atomic.Uint64
}

func NewSink() *Sink {
	return &Sink{
		Samples: NewSlot[[]Sample](),
		Signals: NewSlot[[]Signal](),
	}
}

// Handle processes one raw frame. Malformed frames are counted and skipped.
func (s *Sink) Handle(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		if s.bad.Add(1)%100 == 1 {
			log.Printf("[FEED] Skipping malformed frame: %v", err)
		}
		return
	}
	switch f.Type {
	case FrameViz:
		s.frames.Add(1)
		if s.Samples.Publish(f.Samples()) {
			s.dropped.Add(1)
		}
		if len(f.TLS) > 0 {
			s.Signals.Publish(f.Signals())
		}
	case FrameError:
		log.Printf("[FEED] Bridge error: %s", f.Message)
	}
}

// SinkStats counts frames seen by a Sink.
type SinkStats struct {
	Frames    uint64
	Dropped   uint64
	Malformed uint64
}

func (s *Sink) Stats() SinkStats {
	return SinkStats{
		Frames:    s.frames.Load(),
		Dropped:   s.dropped.Load(),
		Malformed: s.bad.Load(),
	}
}

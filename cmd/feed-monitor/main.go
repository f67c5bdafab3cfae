package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sudorandom/lane-heat/pkg/feed"
)

const stoppedSpeed = 0.5 // m/s

type SignalChurn struct {
	Changes   int
	LastState string
}

type Stats struct {
	mu sync.Mutex

	Frames    int
	Malformed int
	Errors    int
	Vehicles  int // summed over frames
	Stopped   int // summed over frames
	SpeedSum  float64
	SpeedN    int
	StepStuck int // frames whose step did not advance

	Unique    map[string]struct{}
	Signals   map[string]*SignalChurn
	LastStep  float64
	LastFrame time.Time
	StartTime time.Time
}

func NewStats(now time.Time) *Stats {
	return &Stats{
		Unique:    make(map[string]struct{}),
		Signals:   make(map[string]*SignalChurn),
		StartTime: now,
		LastStep:  -1,
	}
}

// Record tallies one raw frame received at now.
func (s *Stats) Record(msg []byte, now time.Time, showJSON bool) {
	f, err := feed.DecodeFrame(msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.Malformed++
		return
	}
	switch f.Type {
	case feed.FrameError:
		s.Errors++
		log.Printf("Bridge error: %s", f.Message)
		return
	case feed.FrameViz:
	default:
		return
	}

	s.Frames++
	s.LastFrame = now
	if f.Step <= s.LastStep {
		s.StepStuck++
	}
	s.LastStep = f.Step

	for _, v := range f.Vehicles {
		sample, ok := v.Sample()
		if !ok {
			continue
		}
		s.Vehicles++
		s.Unique[sample.ID] = struct{}{}
		if sample.Speed != nil {
			s.SpeedSum += *sample.Speed
			s.SpeedN++
			if *sample.Speed < stoppedSpeed {
				s.Stopped++
			}
		}
	}
	for _, sig := range f.Signals() {
		c, ok := s.Signals[sig.ID]
		if !ok {
			s.Signals[sig.ID] = &SignalChurn{LastState: sig.State}
			continue
		}
		if c.LastState != sig.State {
			c.Changes++
			c.LastState = sig.State
		}
	}

	if showJSON {
		var pretty bytes.Buffer
		_ = json.Indent(&pretty, msg, "", "  ")
		fmt.Printf("%s\n\n", pretty.String())
	}
}

func (s *Stats) Report(now time.Time, freeFlow float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	perFrame := 0.0
	if s.Frames > 0 {
		perFrame = float64(s.Vehicles) / float64(s.Frames)
	}

	fmt.Printf("\033[H\033[2J") // Clear screen
	fmt.Printf("Bridge Feed Monitor (Running for %.1fs)\n", elapsed)
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Frames:          %d (%.2f/s)\n", s.Frames, float64(s.Frames)/elapsed)
	fmt.Printf("Malformed:       %d\n", s.Malformed)
	fmt.Printf("Bridge errors:   %d\n", s.Errors)
	fmt.Printf("Vehicles/frame:  %.1f\n", perFrame)
	fmt.Printf("Unique vehicles: %d\n", len(s.Unique))
	fmt.Printf("Mean speed:      %.2f m/s\n", s.meanSpeed())
	fmt.Printf("Signals:         %d\n", len(s.Signals))
	fmt.Printf("--------------------------------------------------\n")

	fmt.Printf("LIKELY CONCLUSIONS:\n")
	conclusions := s.analyze(now, freeFlow)
	if len(conclusions) == 0 {
		fmt.Printf("  - Traffic flowing normally\n")
	} else {
		for _, c := range conclusions {
			fmt.Printf("  - %s\n", c)
		}
	}
	fmt.Printf("--------------------------------------------------\n")

	type signalChanges struct {
		ID      string
		Changes int
	}
	var list []signalChanges
	for id, c := range s.Signals {
		list = append(list, signalChanges{id, c.Changes})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Changes != list[j].Changes {
			return list[i].Changes > list[j].Changes
		}
		return list[i].ID < list[j].ID
	})
	if len(list) > 5 {
		list = list[:5]
	}
	if len(list) > 0 {
		fmt.Printf("Top %d Switching Signals:\n", len(list))
		for _, p := range list {
			fmt.Printf("  %s: %d phase changes (%s)\n", p.ID, p.Changes, s.Signals[p.ID].LastState)
		}
	}
}

func (s *Stats) meanSpeed() float64 {
	if s.SpeedN == 0 {
		return 0
	}
	return s.SpeedSum / float64(s.SpeedN)
}

func (s *Stats) analyze(now time.Time, freeFlow float64) []string {
	var results []string

	if s.Frames == 0 || now.Sub(s.LastFrame) > 5*time.Second {
		results = append(results, "Stale feed (no frames in the last 5s)")
	}
	if s.Frames > 0 && s.Malformed > s.Frames/10 {
		results = append(results, "Malformed frames (bridge and viewer disagree on the wire format)")
	}
	if s.Frames > 10 && s.StepStuck > s.Frames/2 {
		results = append(results, "Simulation paused (step is not advancing)")
	}
	if s.SpeedN > 0 {
		if mean := s.meanSpeed(); mean < 0.3*freeFlow {
			results = append(results, fmt.Sprintf("Congestion (mean speed %.1f m/s below 30%% of free flow)", mean))
		}
		if s.Stopped*2 > s.SpeedN {
			results = append(results, "Gridlock (most vehicles are stopped)")
		}
	}
	return results
}

func main() {
	url := flag.String("ws", "ws://localhost:8765/viz", "Bridge websocket URL")
	subscribe := flag.String("subscribe", "", "Message sent after connecting")
	freeFlow := flag.Float64("free-flow", 13.9, "Free-flow speed in m/s")
	timeout := flag.Duration("timeout", 0, "How long to run before exiting (0 for infinite)")
	showJSON := flag.Bool("json", false, "Dump raw JSON instead of showing stats")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	log.Printf("Connecting to %s", *url)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, *url, nil)
	if err != nil {
		log.Printf("dial: %v", err)
		return
	}
	defer func() {
		_ = c.Close()
	}()

	stats := NewStats(time.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				return
			}
			stats.Record(message, time.Now(), *showJSON)
		}
	}()

	if *subscribe != "" {
		if err := c.WriteMessage(websocket.TextMessage, []byte(*subscribe)); err != nil {
			log.Printf("subscribe error: %v", err)
			return
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !*showJSON {
				stats.Report(time.Now(), *freeFlow)
			}
		case <-ctx.Done():
			log.Println("Exiting...")
			if !*showJSON {
				stats.Report(time.Now(), *freeFlow)
			}
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}

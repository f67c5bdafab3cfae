package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
	// Frames from large networks carry thousands of vehicles.
	maxLineSize = 64 * 1024 * 1024
)

// ListenWebSocket streams frames from url into sink until ctx is cancelled,
// reconnecting with capped exponential backoff. When subscribe is not empty it
// is sent after every successful dial.
func ListenWebSocket(ctx context.Context, url, subscribe string, sink *Sink) {
	dialer := websocket.DefaultDialer
	backoff := minBackoff
	for ctx.Err() == nil {
		log.Printf("[FEED] Connecting to %s", url)
		c, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Printf("[FEED] Dial error: %v. Retrying in %v...", err, backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		if subscribe != "" {
			if err := c.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
				log.Printf("[FEED] Subscribe error: %v", err)
				_ = c.Close()
				continue
			}
		}

		// Unblock ReadMessage on shutdown.
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[FEED] Read error: %v. Reconnecting...", err)
				}
				break
			}
			sink.Handle(message)
		}
		stop()
		_ = c.Close()
		if !sleep(ctx, minBackoff) {
			return
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ReadFrames feeds newline-delimited JSON frames from r into sink until EOF or
// ctx is cancelled.
func ReadFrames(ctx context.Context, r io.Reader, sink *Sink) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		sink.Handle(line)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read frames: %w", err)
	}
	return nil
}

// RunCommand starts a bridge process and reads its stdout as frames. It
// returns when the process exits or ctx is cancelled, which kills it.
func RunCommand(ctx context.Context, name string, args []string, sink *Sink) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start bridge %s: %w", name, err)
	}
	log.Printf("[FEED] Started bridge %s (pid %d)", name, cmd.Process.Pid)

	readErr := ReadFrames(ctx, stdout, sink)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil && !errors.Is(readErr, os.ErrClosed) {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("bridge %s exited: %w", name, waitErr)
	}
	return nil
}

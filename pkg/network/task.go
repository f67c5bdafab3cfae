package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Request asks for one ingestion.
type Request struct {
	SourceURL string `json:"sourceUrl"`
}

// Failure is the wire shape of a failed ingestion.
type Failure struct {
	Message string `json:"message"`
}

// Response carries exactly one of Model or Err.
type Response struct {
	Model *Model
	Err   error
}

// Payload returns the value sent back to the requester: the model on success
// or a Failure.
func (r Response) Payload() any {
	if r.Err != nil {
		return Failure{Message: r.Err.Error()}
	}
	return r.Model
}

// Ingest fetches and parses one network document.
func Ingest(ctx context.Context, f *Fetcher, sourceURL string, opts ...Option) (*Model, error) {
	start := time.Now()
	log.Printf("[INGEST] Fetching %s", sourceURL)
	data, err := f.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}
	log.Printf("[INGEST] Fetched %d bytes in %v", len(data), time.Since(start).Round(time.Millisecond))
	m, err := Parse(data, opts...)
	if err != nil {
		return nil, err
	}
	log.Printf("[INGEST] Ingestion of %s finished in %v", sourceURL, time.Since(start).Round(time.Millisecond))
	return m, nil
}

// Start runs one ingestion on its own goroutine. The returned channel yields
// exactly one Response and is then closed. Nothing is shared with the caller
// besides the request value and the response.
func Start(ctx context.Context, f *Fetcher, req Request, opts ...Option) <-chan Response {
	out := make(chan Response, 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Response{Err: &InvalidFormatError{Err: fmt.Errorf("ingestion panicked: %v", r)}}
			}
		}()
		if req.SourceURL == "" {
			out <- Response{Err: &RetrievalError{URL: req.SourceURL, Err: errors.New("no source url")}}
			return
		}
		if err := ctx.Err(); err != nil {
			out <- Response{Err: &RetrievalError{URL: req.SourceURL, Err: err}}
			return
		}
		m, err := Ingest(ctx, f, req.SourceURL, opts...)
		if err != nil {
			log.Printf("[INGEST] Ingestion of %s failed: %v", req.SourceURL, err)
			out <- Response{Err: err}
			return
		}
		out <- Response{Model: m}
	}()
	return out
}

package network

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sudorandom/lane-heat/pkg/utils"
)

const cacheBustParam = "_cb"

// Fetcher retrieves network documents over HTTP(S) or from local files.
type Fetcher struct {
	Client *http.Client
	// now is replaced in tests to make the cache-busting parameter predictable.
	now func() time.Time
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{Client: &http.Client{Timeout: timeout}}
}

// Fetch returns the document body. A failed HTTP attempt is retried once with
// stronger no-cache directives. Every failure is a *RetrievalError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if path, ok := localPath(rawURL); ok {
		return f.readFile(rawURL, path)
	}

	body, err := f.get(ctx, rawURL, false)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, retrievalError(rawURL, ctx.Err(), "fetch cancelled")
	}
	log.Printf("[INGEST] First fetch of %s failed (%v), retrying without cache", rawURL, err)

	body, err = f.get(ctx, rawURL, true)
	if err != nil {
		return nil, retrievalError(rawURL, err, "fetch after retry")
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string, strict bool) ([]byte, error) {
	target, err := f.bust(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if strict {
		req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		req.Header.Set("Pragma", "no-cache")
		req.Header.Set("Expires", "0")
	} else {
		req.Header.Set("Cache-Control", "no-cache")
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer utils.CloseQuietly(resp.Body, "response body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	body, err := utils.ReadAllWithProgress(resp.Body, "[INGEST] "+rawURL)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// bust appends a unique cache-busting query parameter, keeping the existing query.
func (f *Fetcher) bust(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	q := u.Query()
	q.Set(cacheBustParam, strconv.FormatInt(now().UnixNano(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) readFile(rawURL, path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, retrievalError(rawURL, err, "open file")
	}
	defer utils.CloseQuietly(file, path)
	body, err := utils.ReadAllWithProgress(file, "[INGEST] "+path)
	if err != nil {
		return nil, retrievalError(rawURL, err, "read file")
	}
	if len(body) == 0 {
		return nil, retrievalError(rawURL, ErrEmptyBody, "read file")
	}
	return body, nil
}

// localPath reports whether rawURL names a file rather than an HTTP resource.
func localPath(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return strings.TrimPrefix(rawURL, "file://"), true
		}
		return u.Path, true
	}
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return "", false
	}
	return rawURL, true
}

// Package source fetches measurement rows from the published best-IP page.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/measure"
)

// ErrSourceUnavailable is returned when no rows could be obtained.
var ErrSourceUnavailable = errors.New("measurement source unavailable")

const (
	FormatHTML = "html"
	FormatJSON = "json"

	defaultAttempts = 3
	defaultDelay    = time.Second
	maxBodySize     = 8 << 20
)

// Source yields measurement rows for one run.
type Source interface {
	Rows(ctx context.Context) ([]measure.Row, error)
}

// HTTPSource reads rows from a page over HTTP.
type HTTPSource struct {
	Log     logr.Logger
	URL     string
	Format  string
	Timeout time.Duration
	Client  *http.Client

	// Attempts and Delay tune retries; zero values use 3 attempts starting
	// at one second with exponential backoff.
	Attempts uint
	Delay    time.Duration

	// MaxBodySize caps the page size; zero means 8 MiB. Larger pages fail.
	MaxBodySize int64
}

// Rows fetches the page and parses it according to Format. Every failure
// wraps ErrSourceUnavailable.
func (s *HTTPSource) Rows(ctx context.Context) ([]measure.Row, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	var rows []measure.Row
	switch s.Format {
	case FormatJSON:
		rows, err = parseJSONRows(body)
	case FormatHTML, "":
		rows, err = parseHTMLTable(body)
	default:
		err = fmt.Errorf("unknown format %q", s.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows in %s", ErrSourceUnavailable, s.URL)
	}

	s.Log.Info("fetched measurement rows", "url", s.URL, "format", s.Format, "rows", len(rows))
	return rows, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	attempts := s.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	delay := s.Delay
	if delay == 0 {
		delay = defaultDelay
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			return s.get(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			s.Log.Info("fetching measurement page failed, retrying", "attempt", attempt+1, "error", err.Error())
		}),
	)
}

func (s *HTTPSource) get(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "yk-dns-optimizer")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("GET %s returned status %d", s.URL, resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}

	limit := s.MaxBodySize
	if limit <= 0 {
		limit = maxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, retry.Unrecoverable(fmt.Errorf("GET %s: body exceeds %d bytes", s.URL, limit))
	}
	return body, nil
}

// Static is a fixed set of rows.
type Static []measure.Row

// Rows returns the rows, or ErrSourceUnavailable when there are none.
func (s Static) Rows(context.Context) ([]measure.Row, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrSourceUnavailable)
	}
	return s, nil
}

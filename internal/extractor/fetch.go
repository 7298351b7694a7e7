package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"triagefm/internal/domain"
)

type fetched struct {
	body        []byte
	contentType string
	finalURL    *url.URL
}

// fetch performs a rate limited, time bounded GET and returns the body.
// The timeout covers waiting for the host's rate limit too. Every failure
// is a FetchError.
func (e *Extractor) fetch(ctx context.Context, rawURL string) (*fetched, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, err, "invalid URL %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	// Wait fails at once when the next slot lies beyond the deadline.
	if err := e.limiters.get(u.Host).Wait(ctx); err != nil {
		return nil, domain.NewError(domain.KindFetch, err, "rate limit for %s exceeds the %s fetch timeout", u.Host, e.cfg.FetchTimeout)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.KindFetch, err, "invalid request for %s", rawURL)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindFetch, err, "timed out after %s fetching %s", e.cfg.FetchTimeout, rawURL)
		}
		return nil, domain.NewError(domain.KindFetch, err, "could not reach %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, domain.NewError(domain.KindFetch, nil, "%s returned HTTP %d", rawURL, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, e.cfg.MaxBytes)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindFetch, err, "timed out after %s reading %s", e.cfg.FetchTimeout, rawURL)
		}
		return nil, domain.NewError(domain.KindFetch, err, "reading %s", rawURL)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "" {
		mediaType = http.DetectContentType(body)
		mediaType, _, _ = mime.ParseMediaType(mediaType)
	}

	return &fetched{
		body:        body,
		contentType: mediaType,
		finalURL:    resp.Request.URL,
	}, nil
}

var errTooLarge = errors.New("response too large")

// readLimited reads at most max bytes and fails if r holds more.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", errTooLarge, max)
	}
	return data, nil
}

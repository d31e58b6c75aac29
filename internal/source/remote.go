package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"path"
	"strings"
	"time"
)

// fetcher downloads remote images with a hard byte cap and deadline.
// Every failure is terminal: a flaky CDN should surface in the build
// log, not hide behind silent retries.
type fetcher struct {
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
}

func newFetcher(maxBytes int64, timeout time.Duration) *fetcher {
	return &fetcher{client: &http.Client{}, maxBytes: maxBytes, timeout: timeout}
}

// fetch retrieves url within the configured deadline. The declared
// Content-Length is checked before the body is read and the actual byte
// count is re-checked after, since headers can be absent or wrong.
func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, Kind, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %v: %w", url, err, ErrFetch)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%s after %s: %w", url, f.timeout, ErrFetchTimeout)
		}
		return nil, 0, fmt.Errorf("%s: %v: %w", url, err, ErrFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, fmt.Errorf("%s: status %d: %w", url, resp.StatusCode, ErrFetch)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, 0, fmt.Errorf("%s declares %d bytes, cap is %d: %w",
			url, resp.ContentLength, f.maxBytes, ErrRemoteTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("%s after %s: %w", url, f.timeout, ErrFetchTimeout)
		}
		return nil, 0, fmt.Errorf("%s: read body: %v: %w", url, err, ErrFetch)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, 0, fmt.Errorf("%s exceeds %d bytes: %w", url, f.maxBytes, ErrRemoteTooLarge)
	}

	kind, err := detectKind(resp.Header.Get("Content-Type"), url, data)
	if err != nil {
		return nil, 0, err
	}
	return data, kind, nil
}

// detectKind determines the image kind from the response content type,
// then the URL extension, then a content sniff, in that order.
func detectKind(contentType, url string, data []byte) (Kind, error) {
	if ct, _, _ := strings.Cut(contentType, ";"); ct != "" {
		if kind, err := kindFromMIME(ct); err == nil {
			return kind, nil
		}
	}
	if u, err := neturl.Parse(url); err == nil {
		if kind, err := kindFromExt(path.Ext(u.Path)); err == nil {
			return kind, nil
		}
	}
	if kind, err := kindFromMIME(http.DetectContentType(data)); err == nil {
		return kind, nil
	}
	return 0, fmt.Errorf("%s: %w", url, ErrUnsupportedFormat)
}

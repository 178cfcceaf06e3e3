package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 5 * time.Second
	maxAttempts    = 3
	retryDelay     = 150 * time.Millisecond
	maxBodyBytes   = 1 << 20
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// getJSON issues a GET and decodes the body into out, retrying transient
// network failures. All failures wrap ErrSourceUnavailable.
func getJSON(ctx context.Context, client *http.Client, source, url string, out any) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := doGetJSON(ctx, client, url, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) || attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("request %s: %w: %w", source, ErrSourceUnavailable, ctx.Err())
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("request %s: %w: %w", source, ErrSourceUnavailable, lastErr)
}

func doGetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "reset by peer")
}

func unsupported(source, symbol string) error {
	return fmt.Errorf("%s: %w: %s", source, ErrUnsupportedSymbol, symbol)
}

func invalid(source, detail string) error {
	return fmt.Errorf("%s: %w: %s", source, ErrInvalidResponse, detail)
}

package tts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// requestFunc builds a fresh request for every attempt so bodies can be re-read.
type requestFunc func(ctx context.Context) (*http.Request, error)

// errorParser converts a non-2xx response into an error.
type errorParser func(resp *http.Response) error

// restClient is the HTTP plumbing shared by the REST providers.
type restClient struct {
	provider   string
	client     *http.Client
	logger     *slog.Logger
	maxRetries int
	retryDelay time.Duration
	parseError errorParser
}

// do performs the request, retrying transport errors, 429s and 5xx responses
// with linear backoff. Any other status is returned as a parsed error.
func (r *restClient) do(ctx context.Context, build requestFunc) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, WrapError(r.provider, err)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(r.provider, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = r.parseError(resp)
			resp.Body.Close()
			r.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return nil, r.parseError(resp)
		}

		return resp, nil
	}

	return nil, lastErr
}

// readAudio performs the request and returns the full response body.
func (r *restClient) readAudio(ctx context.Context, build requestFunc) ([]byte, error) {
	resp, err := r.do(ctx, build)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(r.provider, err)
	}
	if len(audio) == 0 {
		return nil, WrapError(r.provider, ErrEmptyAudio)
	}
	return audio, nil
}

// ping performs a request and discards the body.
func (r *restClient) ping(ctx context.Context, build requestFunc) error {
	resp, err := r.do(ctx, build)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// jsonError extracts a message and code from a JSON error body using pick,
// falling back to the raw body.
func jsonError(provider string, resp *http.Response, pick func(body []byte) (message, code string)) error {
	body, _ := io.ReadAll(resp.Body)

	message, code := pick(body)
	if message == "" {
		message = string(body)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}

// unmarshalInto is a helper for error pickers.
func unmarshalInto(body []byte, v any) bool {
	return json.Unmarshal(body, v) == nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 512

// transport performs the JSON POST shared by every adapter, bounded by the
// provider timeout and optionally rate limited.
type transport struct {
	httpClient *http.Client
	limiter    *rateLimiter
	cfg        ProviderConfig
}

func newTransport(cfg ProviderConfig) *transport {
	t := &transport{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	if cfg.RateLimit > 0 {
		t.limiter = newRateLimiter(cfg.RateLimit)
	}
	return t
}

// post sends body as JSON to url and returns the 2xx response body.
func (t *transport) post(ctx context.Context, url string, headers map[string]string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.wait(ctx); err != nil {
			return nil, t.classify(ctx, err)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, t.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := data
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &ProviderResponseError{
			Provider:   t.cfg.ID,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
			Err:        ErrUnexpectedStatus,
		}
	}

	return data, nil
}

// classify turns deadline failures into ProviderTimeoutError.
func (t *transport) classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &ProviderTimeoutError{Provider: t.cfg.ID, Timeout: t.cfg.Timeout, Err: err}
	}
	return fmt.Errorf("provider %s request failed: %w", t.cfg.ID, err)
}

// decode unmarshals a raw backend envelope.
func decode(provider string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return malformed(provider, "cannot decode response envelope: %v", err)
	}
	return nil
}

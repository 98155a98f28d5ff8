package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sailsdock/pkg/circuitbreaker"
	"sailsdock/pkg/metrics"
)

// apiClient wraps provider HTTP calls with a circuit breaker, call metrics
// and uniform error translation. 401/403 become CredentialError, every other
// failure becomes FetchError.
type apiClient struct {
	provider string
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func newAPIClient(provider string, timeout time.Duration, logger *zap.Logger) *apiClient {
	return &apiClient{
		provider: provider,
		http:     &http.Client{Timeout: timeout},
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:   logger,
	}
}

func (c *apiClient) do(ctx context.Context, operation, method, url, token string, headers map[string]string, body []byte) ([]byte, error) {
	var respBody []byte
	start := time.Now()
	status := "ok"

	err := c.breaker.Execute(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return &FetchError{Provider: c.provider, Operation: operation, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &FetchError{Provider: c.provider, Operation: operation, Err: err}
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return &FetchError{Provider: c.provider, Operation: operation, Err: err}
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &CredentialError{Reason: fmt.Sprintf("%s returned status %d", c.provider, resp.StatusCode)}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return &FetchError{Provider: c.provider, Operation: operation, StatusCode: resp.StatusCode}
		}
		return nil
	})

	if err != nil {
		status = "error"
	}
	metrics.RecordProviderCall(c.provider, operation, status, time.Since(start))
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *apiClient) getJSON(ctx context.Context, operation, url, token string, out any) error {
	body, err := c.do(ctx, operation, http.MethodGet, url, token, nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Provider: c.provider, Operation: operation, Err: err}
	}
	return nil
}

func (c *apiClient) getText(ctx context.Context, operation, url, token string) (string, error) {
	body, err := c.do(ctx, operation, http.MethodGet, url, token, map[string]string{"Accept": "text/plain"}, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *apiClient) sendJSON(ctx context.Context, operation, method, url, token string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &FetchError{Provider: c.provider, Operation: operation, Err: err}
	}
	_, err = c.do(ctx, operation, method, url, token, map[string]string{"Content-Type": "application/json"}, body)
	return err
}

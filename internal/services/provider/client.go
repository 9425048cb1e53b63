package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "settlr/internal/errors"
	"settlr/internal/metrics"
	"settlr/internal/models"

	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20

// apiClient performs provider HTTP calls and translates transport failures
// into the settlement error taxonomy.
type apiClient struct {
	provider models.Provider
	baseURL  string
	http     *http.Client
	log      *zap.Logger
	metrics  metrics.Collector
}

func newAPIClient(p models.Provider, baseURL string, timeout time.Duration, log *zap.Logger, collector metrics.Collector) *apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	if collector == nil {
		collector = metrics.NoopCollector{}
	}
	return &apiClient{
		provider: p,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		log:      log.Named(string(p)),
		metrics:  collector,
	}
}

type apiRequest struct {
	op     string
	method string
	path   string
	body   interface{}
	auth   func(*http.Request)
}

type apiResponse struct {
	status int
	body   []byte
}

// do sends the request. A non-nil response is returned for every answered call,
// including 4xx ones, so callers can inspect provider messages.
func (c *apiClient) do(ctx context.Context, r apiRequest) (*apiResponse, error) {
	start := time.Now()
	resp, err := c.send(ctx, r)
	result := "ok"
	if err != nil {
		var de *apperrors.DomainError
		if errors.As(err, &de) {
			result = strings.ToLower(de.Code)
		} else {
			result = "error"
		}
	}
	c.metrics.RecordProviderCall(string(c.provider), r.op, result, time.Since(start))
	return resp, err
}

func (c *apiClient) send(ctx context.Context, r apiRequest) (*apiResponse, error) {
	var payload io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", r.op, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", r.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth != nil {
		r.auth(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("provider call failed",
			zap.String("op", r.op),
			zap.Error(err),
		)
		if isTimeout(err) {
			return nil, apperrors.ErrTimeout.WithCause(err)
		}
		return nil, apperrors.ErrProviderUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.ErrTimeout.WithCause(err)
		}
		return nil, apperrors.ErrProviderUnavailable.WithCause(err)
	}
	out := &apiResponse{status: resp.StatusCode, body: body}

	switch {
	case resp.StatusCode >= 500:
		c.log.Warn("provider server error",
			zap.String("op", r.op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return out, apperrors.ErrProviderUnavailable.WithCause(fmt.Errorf("%s: status %d", r.op, resp.StatusCode))
	case resp.StatusCode >= 400:
		c.log.Warn("provider rejected request",
			zap.String("op", r.op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return out, apperrors.ErrProviderRejected.WithCause(fmt.Errorf("%s: status %d", r.op, resp.StatusCode))
	}
	return out, nil
}

// decode unmarshals a provider body, mapping garbage to ErrInvalidResponse.
func (c *apiClient) decode(op string, body []byte, dest interface{}) error {
	if err := json.Unmarshal(body, dest); err != nil {
		c.log.Warn("undecodable provider response",
			zap.String("op", op),
			zap.ByteString("body", body),
		)
		return apperrors.ErrInvalidResponse.WithCause(fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/echocode/echo/backend/internal/logging"
	model "github.com/echocode/echo/backend/internal/model/generation"
)

// DefaultTimeout bounds one request to the generation service.
const DefaultTimeout = 60 * time.Second

var (
	// ErrMissingCode is returned when the service answers without a code field.
	ErrMissingCode = errors.New("generation response missing code")
	// ErrNoEndpoint is returned by NewClient for a blank endpoint.
	ErrNoEndpoint = errors.New("generation endpoint not configured")
)

// StatusError reports a non-2xx answer from the generation service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generation service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("generation service returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to a remote /generate endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a Client for endpoint. A non-positive timeout uses DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.OrDiscard(logger),
	}, nil
}

// Endpoint returns the URL requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Generate posts req and decodes the paired code/explanation answer.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return model.Result{}, fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Result{}, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.Result{}, fmt.Errorf("call generation service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Result{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var result model.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Result{}, fmt.Errorf("decode generation response: %w", err)
	}
	if strings.TrimSpace(result.Code) == "" {
		return model.Result{}, ErrMissingCode
	}

	c.logger.Debug("generation service answered",
		"endpoint", c.endpoint,
		"elapsed", time.Since(start),
		"code_bytes", len(result.Code),
	)
	return result, nil
}

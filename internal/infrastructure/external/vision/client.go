// Package vision implements the client of the hosted image analysis service.
// The core never re-invokes it on its own: a failed ingest is retried with
// the scores already obtained.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/glowscan/glowscan-core/internal/domain/scan"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
	"github.com/glowscan/glowscan-core/pkg/circuitbreaker"
	"github.com/glowscan/glowscan-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// AnalyzePath is the endpoint that accepts images.
const AnalyzePath = "/api/openai-vision"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ClientConfig contains configuration for the vision client.
type ClientConfig struct {
	// BaseURL is the service origin, e.g. "https://app.example.com".
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 60 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client uploads images to the vision service.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a new vision client.
func NewClient(config ClientConfig) *Client {
	log := logger.OrNop(config.Logger).With(logger.Component("vision"))
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.VisionBreaker(countsAsFailure, func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// Analyze uploads image for userID and returns the validated analysis.
// Transport failures, 5xx responses and an open circuit are reported as
// shared.ErrVisionUnavailable; a response that does not fit the score
// model as shared.ErrMalformedInput.
func (c *Client) Analyze(ctx context.Context, userID string, image io.Reader, filename string) (*scan.Analysis, error) {
	if err := shared.RequireUserID("vision", "Analyze", userID); err != nil {
		return nil, err
	}
	if image == nil {
		return nil, shared.NewDomainError("vision", "Analyze", shared.ErrMalformedInput, "no image")
	}

	var result Result
	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.upload(ctx, userID, image, filename, &result)
	})
	if err != nil {
		c.log.Warn("analysis request failed", logger.UserID(userID), logger.Latency(time.Since(start)), logger.Err(err))
		return nil, classify(err)
	}

	c.log.Debug("analysis received", logger.UserID(userID), logger.Latency(time.Since(start)))
	return ToAnalysis(&result)
}

func (c *Client) upload(ctx context.Context, userID string, image io.Reader, filename string, out *Result) error {
	body, contentType, err := multipartBody(userID, image, filename)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+AnalyzePath, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var e ErrorDTO
		if json.Unmarshal(respBody, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func multipartBody(userID string, image io.Reader, filename string) (io.Reader, string, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", filepath.Base(filename))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	if err := w.WriteField("userId", userID); err != nil {
		return nil, "", fmt.Errorf("write user id: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// decodeError marks a 2xx response whose body is not valid JSON.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// countsAsFailure decides what trips the breaker: only failures of the
// service itself.
func countsAsFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ServerSide()
	}
	var decErr *decodeError
	return !errors.As(err, &decErr) && !errors.Is(err, context.Canceled)
}

func classify(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && !apiErr.ServerSide() {
		return shared.WrapError("vision", "Analyze", shared.ErrMalformedInput, "request rejected", err)
	}
	var decErr *decodeError
	if errors.As(err, &decErr) {
		return shared.WrapError("vision", "Analyze", shared.ErrMalformedInput, "unreadable response", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.WrapError("vision", "Analyze", shared.ErrVisionUnavailable, "request timed out", err)
	}
	return shared.WrapError("vision", "Analyze", shared.ErrVisionUnavailable, "service unavailable", err)
}

package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/banking/fraud-dashboard/internal/config"
	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/sony/gobreaker"
)

// AnalyzePath is the analyzer endpoint receiving the uploaded CSV
const AnalyzePath = "/analyze"

// FormField is the multipart field carrying the CSV bytes
const FormField = "file"

const errorExcerptBytes = 512

// Client calls the external fraud analyzer
type Client struct {
	baseURL          string
	httpClient       *http.Client
	breaker          *gobreaker.CircuitBreaker
	maxResponseBytes int64
}

// NewClient creates an analyzer client from configuration
func NewClient(cfg config.AnalyzerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analyzer",
		MaxRequests: 1,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// Cancelled submissions say nothing about analyzer health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:       &http.Client{Timeout: timeout},
		breaker:          breaker,
		maxResponseBytes: maxBytes,
	}
}

// Analyze uploads the CSV and returns the raw response body. Network errors,
// non-2xx statuses and an open breaker are all reported as
// domain.ErrAnalyzerRequestFailed.
func (c *Client) Analyze(ctx context.Context, fileName string, content []byte) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, fileName, content)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAnalyzerRequestFailed) ||
			errors.Is(err, domain.ErrMalformedResponse) ||
			errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAnalyzerRequestFailed, err)
	}
	return body.([]byte), nil
}

func (c *Client) post(ctx context.Context, fileName string, content []byte) ([]byte, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile(FormField, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AnalyzePath, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAnalyzerRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorExcerptBytes))
		return nil, fmt.Errorf("%w: status %d: %s",
			domain.ErrAnalyzerRequestFailed, resp.StatusCode, strings.TrimSpace(string(excerpt)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: failed to read body: %v", domain.ErrAnalyzerRequestFailed, err)
	}
	if int64(len(data)) > c.maxResponseBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", domain.ErrMalformedResponse, c.maxResponseBytes)
	}

	return data, nil
}

// State exposes the breaker state for health reporting
func (c *Client) State() string {
	return c.breaker.State().String()
}

package intelligence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/platform/observability"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultRPS       = 1
	rateLimiterBurst = 2
	analyzePath      = "/v1/analyze"
	maxErrorBodyLen  = 2048
)

type httpClient struct {
	baseURL     string
	apiKey      string
	model       string
	client      *http.Client
	rateLimiter *rate.Limiter
	logger      *zerolog.Logger
}

func newHTTPClient(cfg Config, logger *zerolog.Logger) *httpClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = defaultRPS
	}

	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client: &http.Client{
			Timeout: timeout,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rps)), rateLimiterBurst),
		logger:      logger,
	}
}

// Analyze sends one batch payload and decodes the structured response.
// Timeouts, non-2xx statuses, and malformed bodies are all surfaced as
// errors; the caller treats any of them as fatal for the batch.
func (c *httpClient) Analyze(ctx context.Context, req *Request) (*Analysis, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Model", c.model)

	start := time.Now()

	resp, err := c.client.Do(httpReq)

	observability.GatewayRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("batch_id", req.BatchID).
			Str("body", truncate(string(respBody), maxErrorBodyLen)).
			Msg("analysis service error")

		return nil, fmt.Errorf("%w: %d", errs.ErrGatewayStatus, resp.StatusCode)
	}

	if len(respBody) == 0 {
		return nil, errs.ErrEmptyResponse
	}

	var analysis Analysis
	if err := json.Unmarshal(respBody, &analysis); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}

	return &analysis, nil
}

// truncate caps s at n bytes, stepping back to a rune boundary so the
// logged text stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

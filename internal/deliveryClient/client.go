// Package deliveryClient implements the HTTP transport of FLAGSHIP event
// delivery: RFC 8935 push with retry, backoff and a per-endpoint circuit
// breaker, and RFC 8936 style poll and acknowledge calls.
package deliveryClient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grcorsair/flagship/internal/model"
)

var clientLog = log.New(os.Stdout, "DELIVER: ", log.Ldate|log.Ltime)

var (
	// ErrCircuitOpen pre-empts a delivery while the endpoint's breaker is
	// open. No network call is made.
	ErrCircuitOpen = errors.New("circuit open for endpoint")

	// ErrUnauthorized is a 401 from the receiver. Not retried.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrClientError is any non-2xx outside {401, 429, 5xx}. Not retried.
	ErrClientError = errors.New("client error")

	// ErrRetriesExhausted is a retryable failure that outlasted the retry
	// budget.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

type Config struct {
	MaxRetries              int
	BaseDelay               time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerPause     time.Duration
	Timeout                 time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:              3,
		BaseDelay:               time.Second,
		CircuitBreakerThreshold: 3,
		CircuitBreakerPause:     60 * time.Second,
		Timeout:                 10 * time.Second,
	}
}

/*
Client delivers signed SETs over HTTP. One Client instance serves any number
of streams; breaker state is shared per destination URL. A caller cannot
interrupt an in-flight retry loop before it exhausts or succeeds; only the
per-request timeout bounds each attempt.
*/
type Client struct {
	cfg      Config
	baseUrl  string
	apiKey   string
	http     *http.Client
	breakers *endpointTracker

	// seams for fake-clock tests
	now   func() time.Time
	sleep func(time.Duration)
}

// NewClient builds a delivery client with the default configuration.
// baseUrl is the transmitter base for poll and acknowledge calls and may be
// empty for push-only use. apiKey is presented as a bearer credential on
// every request.
func NewClient(baseUrl string, apiKey string) *Client {
	return NewClientWithConfig(baseUrl, apiKey, DefaultConfig())
}

func NewClientWithConfig(baseUrl string, apiKey string, cfg Config) *Client {
	return &Client{
		cfg:      cfg,
		baseUrl:  strings.TrimSuffix(baseUrl, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		breakers: newEndpointTracker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerPause),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

/*
PushEvent POSTs a signed SET to the receiver endpoint per RFC 8935. Retryable
failures (429, 5xx, network errors) are retried up to MaxRetries times with
exponential backoff, honoring a valid Retry-After on 429. 401 and other
client errors surface immediately. A 2xx closes the endpoint's breaker.
*/
func (c *Client) PushEvent(endpoint string, setToken string) error {
	if c.breakers.open(endpoint, c.now()) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, endpoint)
	}

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.post(endpoint, setToken)
		if err != nil {
			// Network or timeout failures follow the retryable path.
			if attempt < c.cfg.MaxRetries {
				c.sleep(c.backoff(attempt))
				continue
			}
			c.recordFailure(endpoint)
			return fmt.Errorf("%w: pushing to %s: %v", ErrRetriesExhausted, endpoint, err)
		}

		status := resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch {
		case status >= 200 && status < 300:
			c.breakers.reset(endpoint)
			return nil

		case status == http.StatusUnauthorized:
			c.recordFailure(endpoint)
			return fmt.Errorf("%w: POST %s", ErrUnauthorized, endpoint)

		case status == http.StatusTooManyRequests || status >= 500:
			if attempt < c.cfg.MaxRetries {
				c.sleep(c.retryDelay(resp, status, attempt))
				continue
			}
			c.recordFailure(endpoint)
			return fmt.Errorf("%w: POST %s returned %d", ErrRetriesExhausted, endpoint, status)

		default:
			c.recordFailure(endpoint)
			return fmt.Errorf("%w: POST %s returned %d", ErrClientError, endpoint, status)
		}
	}
	// Unreachable: the loop always returns.
	return fmt.Errorf("%w: POST %s", ErrRetriesExhausted, endpoint)
}

func (c *Client) post(endpoint string, setToken string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(setToken))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/secevent+jwt")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.http.Do(req)
}

func (c *Client) recordFailure(endpoint string) {
	c.breakers.recordFailure(endpoint, c.now())
	failures := c.breakers.failures(endpoint)
	if failures >= c.cfg.CircuitBreakerThreshold {
		clientLog.Printf("Breaker OPEN for %s after %d consecutive failures", endpoint, failures)
	}
}

// retryDelay prefers a valid Retry-After (seconds) on 429 and falls back to
// exponential backoff for everything else.
func (c *Client) retryDelay(resp *http.Response, status int, attempt int) time.Duration {
	if status == http.StatusTooManyRequests {
		// Zero is a valid value: retry without waiting.
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return c.backoff(attempt)
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.BaseDelay * (1 << attempt)
}

/*
PollEvents fetches the pending SETs for a stream. There is no retry policy;
the caller owns the re-poll cadence. 401 and other non-2xx statuses surface
immediately.
*/
func (c *Client) PollEvents(streamId string) (*model.PollResponse, error) {
	url := fmt.Sprintf("%s/streams/%s/events", c.baseUrl, streamId)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling stream %s: %w", streamId, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: GET %s", ErrUnauthorized, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrClientError, url, resp.StatusCode)
	}

	var pollResp model.PollResponse
	if err := json.NewDecoder(resp.Body).Decode(&pollResp); err != nil {
		return nil, fmt.Errorf("parsing poll response: %w", err)
	}
	return &pollResp, nil
}

// AcknowledgeEvent reports durable processing of one token. Same
// immediate-surface semantics as PollEvents, no retry.
func (c *Client) AcknowledgeEvent(streamId string, jti string) error {
	url := fmt.Sprintf("%s/streams/%s/acknowledge", c.baseUrl, streamId)
	body, _ := json.Marshal(model.AckRequest{Jti: jti})

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("acknowledging %s on stream %s: %w", jti, streamId, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: POST %s", ErrUnauthorized, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: POST %s returned %d", ErrClientError, url, resp.StatusCode)
	}
	return nil
}

package deliveryClient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grcorsair/flagship/internal/model"
)

func testConfig() Config {
	return Config{
		MaxRetries:              3,
		BaseDelay:               10 * time.Millisecond,
		CircuitBreakerThreshold: 3,
		CircuitBreakerPause:     time.Minute,
		Timeout:                 time.Second,
	}
}

// fakeClock replaces the client's time seams so that backoff delays are
// recorded instead of slept and breaker pauses can be advanced instantly.
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func installFakeClock(c *Client) *fakeClock {
	clock := &fakeClock{current: time.Now()}
	c.now = func() time.Time { return clock.current }
	c.sleep = func(d time.Duration) { clock.slept = append(clock.slept, d) }
	return clock
}

func TestPushEventDelivers(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "secret-key", testConfig())
	err := client.PushEvent(server.URL, "header.payload.sig")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "application/secevent+jwt", gotContentType)
	assert.Equal(t, "header.payload.sig", gotBody)
}

func TestPushEventUnauthorizedNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "bad-key", testConfig())
	installFakeClock(client)

	err := client.PushEvent(server.URL, "token")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPushEventClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	installFakeClock(client)

	err := client.PushEvent(server.URL, "token")
	assert.ErrorIs(t, err, ErrClientError)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPushEventRetriesServerErrorsWithBackoff(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	clock := installFakeClock(client)

	err := client.PushEvent(server.URL, "token")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls), "initial attempt plus 3 retries")

	// Exponential: base, 2x, 4x
	require.Len(t, clock.slept, 3)
	assert.Equal(t, 10*time.Millisecond, clock.slept[0])
	assert.Equal(t, 20*time.Millisecond, clock.slept[1])
	assert.Equal(t, 40*time.Millisecond, clock.slept[2])
}

func TestPushEventRecoversMidRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	installFakeClock(client)

	require.NoError(t, client.PushEvent(server.URL, "token"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, client.breakers.failures(server.URL), "success resets the breaker")
}

func TestPushEventHonorsRetryAfter(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	clock := installFakeClock(client)

	require.NoError(t, client.PushEvent(server.URL, "token"))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 2*time.Second, clock.slept[0], "Retry-After seconds preferred over backoff")
}

func TestPushEventRetryAfterZeroMeansImmediate(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	clock := installFakeClock(client)

	require.NoError(t, client.PushEvent(server.URL, "token"))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, time.Duration(0), clock.slept[0], "zero seconds retries without a backoff wait")
}

func TestPushEventInvalidRetryAfterFallsBack(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "Wed, 21 Oct 2026 07:28:00 GMT")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	clock := installFakeClock(client)

	require.NoError(t, client.PushEvent(server.URL, "token"))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 10*time.Millisecond, clock.slept[0])
}

func TestCircuitBreakerTripAndHeal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClientWithConfig("", "key", testConfig())
	clock := installFakeClock(client)

	// Three consecutive failures trip the breaker.
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, client.PushEvent(server.URL, "token"), ErrClientError)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// Open breaker pre-empts without a network call.
	assert.ErrorIs(t, client.PushEvent(server.URL, "token"), ErrCircuitOpen)
	assert.ErrorIs(t, client.PushEvent(server.URL, "token"), ErrCircuitOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// After the pause elapses one probe is let through; its failure
	// re-trips immediately.
	clock.current = clock.current.Add(time.Minute + time.Second)
	assert.ErrorIs(t, client.PushEvent(server.URL, "token"), ErrClientError)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))

	assert.ErrorIs(t, client.PushEvent(server.URL, "token"), ErrCircuitOpen)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestBreakerSharedAcrossStreamsPerEndpoint(t *testing.T) {
	badServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badServer.Close()
	goodServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer goodServer.Close()

	client := NewClientWithConfig("", "key", testConfig())
	installFakeClock(client)

	for i := 0; i < 3; i++ {
		_ = client.PushEvent(badServer.URL, "token")
	}
	assert.ErrorIs(t, client.PushEvent(badServer.URL, "token"), ErrCircuitOpen)

	// A different endpoint is unaffected.
	assert.NoError(t, client.PushEvent(goodServer.URL, "token"))
}

func TestPollEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/streams/stream-1/events", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(model.PollResponse{Sets: []string{"a.b.c", "d.e.f"}})
	}))
	defer server.Close()

	client := NewClientWithConfig(server.URL, "key", testConfig())
	resp, err := client.PollEvents("stream-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b.c", "d.e.f"}, resp.Sets)
}

func TestPollEventsSurfacesErrorsImmediately(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientWithConfig(server.URL, "key", testConfig())
	_, err := client.PollEvents("stream-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "poll has no retry policy")
}

func TestAcknowledgeEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/streams/stream-1/acknowledge", r.URL.Path)
		var ack model.AckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ack))
		assert.Equal(t, "jti-123", ack.Jti)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithConfig(server.URL, "key", testConfig())
	assert.NoError(t, client.AcknowledgeEvent("stream-1", "jti-123"))
}

func TestAcknowledgeEventSurfacesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClientWithConfig(server.URL, "key", testConfig())
	assert.ErrorIs(t, client.AcknowledgeEvent("stream-1", "jti-123"), ErrClientError)
}

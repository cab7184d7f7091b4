package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herdsync/engine/internal/models"
)

type memoryTokens struct {
	token   string
	cleared atomic.Bool
}

func (m *memoryTokens) Token(ctx context.Context) (string, error) { return m.token, nil }

func (m *memoryTokens) Clear(ctx context.Context) error {
	m.cleared.Store(true)
	m.token = ""
	return nil
}

func onlineProbe() Probe {
	return ProbeFunc(func(ctx context.Context) bool { return true })
}

func offlineProbe() Probe {
	return ProbeFunc(func(ctx context.Context) bool { return false })
}

func TestClientRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("offline probe short-circuits before any request", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "dev", &memoryTokens{token: "t"}, offlineProbe())
		res, err := c.Request(ctx, http.MethodGet, "/anything", nil)
		require.NoError(t, err)
		assert.True(t, res.Offline())
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("success carries the body and auth headers", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
			assert.Equal(t, "device-42", r.Header.Get("X-Device-ID"))
			w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "device-42", &memoryTokens{token: "tok-9"}, onlineProbe())
		res, err := c.Request(ctx, http.MethodGet, "/ping", nil)
		require.NoError(t, err)
		require.True(t, res.OK())

		var body struct {
			OK bool `json:"ok"`
		}
		require.NoError(t, res.Decode(&body))
		assert.True(t, body.OK)
	})

	t.Run("server errors are retried until one attempt lands", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "dev", &memoryTokens{token: "t"}, onlineProbe(),
			WithRetries(3), WithRetryDelay(time.Millisecond))
		res, err := c.Request(ctx, http.MethodGet, "/flaky", nil)
		require.NoError(t, err)
		assert.True(t, res.OK())
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("exhausted retries come back as an error result", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "dev", &memoryTokens{token: "t"}, onlineProbe(),
			WithRetries(2), WithRetryDelay(time.Millisecond))
		res, err := c.Request(ctx, http.MethodGet, "/down", nil)
		require.NoError(t, err)
		assert.Equal(t, ResultError, res.Kind)
		// Initial attempt plus two retries.
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("client errors are final, not retried", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte("bad tag"))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "dev", &memoryTokens{token: "t"}, onlineProbe(),
			WithRetries(3), WithRetryDelay(time.Millisecond))
		res, err := c.Request(ctx, http.MethodPost, "/records", map[string]string{"tag": ""})
		require.NoError(t, err)
		assert.Equal(t, ResultError, res.Kind)
		assert.Equal(t, http.StatusUnprocessableEntity, res.Status)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("401 clears credentials and raises", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		tokens := &memoryTokens{token: "stale"}
		var notified atomic.Bool
		c := NewClient(srv.URL, "dev", tokens, onlineProbe(),
			WithRetries(3), WithRetryDelay(time.Millisecond),
			WithAuthExpiredHandler(func() { notified.Store(true) }))

		_, err := c.Request(ctx, http.MethodGet, "/secure", nil)
		assert.ErrorIs(t, err, models.ErrAuthExpired)
		assert.True(t, tokens.cleared.Load())
		assert.True(t, notified.Load())
		assert.Empty(t, tokens.token)
	})
}

func TestClientOnline(t *testing.T) {
	c := NewClient("http://example.invalid", "dev", &memoryTokens{}, offlineProbe())
	assert.False(t, c.Online(context.Background()))
}

func TestHTTPProbe(t *testing.T) {
	t.Run("reachable endpoint reports connected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodHead, r.Method)
		}))
		defer srv.Close()

		p := NewHTTPProbe(srv.URL)
		assert.True(t, p.IsConnected(context.Background()))
	})

	t.Run("closed endpoint reports offline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		p := NewHTTPProbe(srv.URL)
		assert.False(t, p.IsConnected(context.Background()))
	})
}

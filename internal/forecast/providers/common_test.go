package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientGet_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient("retry", srv.Client(), BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientGet_NotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient("notfound", srv.Client(), BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond})
	_, err := c.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientGet_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("limited", srv.Client(), BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond})
	_, err := c.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, errRateLimited)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("status", srv.Client(), DefaultBackoff)
	code, err := c.Status(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, err = NewClient("nil", nil, DefaultBackoff).Status(context.Background(), srv.URL)
	require.ErrorIs(t, err, errNoHTTPClient)
}

func TestJoinURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://host/a/b/c.grib2", joinURL("https://host/a/b", "c.grib2"))
	assert.Equal(t, "https://host/a/b/06/", joinURL("https://host/a/b/", "06/"))
	assert.Equal(t, "https://other/x", joinURL("https://host/a/", "https://other/x"))
}

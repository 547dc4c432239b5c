package chainsource

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransportConfig(t *testing.T) {
	config := DefaultTransportConfig()

	assert.Equal(t, 1000, config.MaxIdleConns)
	assert.Equal(t, 20, config.MaxIdleConnsPerHost)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, config.BackoffFactor)
	assert.Equal(t, 3*time.Second, config.ConnectTimeout)
	assert.Equal(t, 30*time.Second, config.ReadTimeout)
}

func TestRetryTransportRetriesOnTransientStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryTransport(TransportConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		MaxRetries:          3,
		BackoffFactor:       time.Millisecond,
		ConnectTimeout:      time.Second,
		ReadTimeout:         time.Second,
	})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestRetryTransportGivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRetryTransport(TransportConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		MaxRetries:          2,
		BackoffFactor:       time.Millisecond,
		ConnectTimeout:      time.Second,
		ReadTimeout:         time.Second,
	})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 3, attempts) // initial attempt + 2 retries
}

func TestRetryTransportDoesNotRetryNonTransientStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewRetryTransport(TransportConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		MaxRetries:          3,
		BackoffFactor:       time.Millisecond,
		ConnectTimeout:      time.Second,
		ReadTimeout:         time.Second,
	})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

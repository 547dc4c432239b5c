package chainsource

import (
	"math"
	"net"
	"net/http"
	"time"
)

// retryableStatuses is the fixed set of transient HTTP statuses a
// source request retries on. 429/5xx are capacity/availability
// signals; 404 is included because some providers return it
// transiently during chain reindexing.
var retryableStatuses = map[int]bool{
	404: true,
	429: true,
	500: true,
	503: true,
	504: true,
}

// TransportConfig tunes the shared connection pool and retry policy one
// adapter's HTTP client uses.
type TransportConfig struct {
	MaxIdleConns       int
	MaxIdleConnsPerHost int
	MaxRetries         int
	BackoffFactor      time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
}

// DefaultTransportConfig matches the pool sizing and retry policy every
// chain-source adapter shares: 20 connections per host, 1000-connection
// pool cap, 3 retries at a 0.1s exponential backoff factor, 3s connect /
// 30s read timeouts.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 20,
		MaxRetries:          3,
		BackoffFactor:       100 * time.Millisecond,
		ConnectTimeout:      3 * time.Second,
		ReadTimeout:         30 * time.Second,
	}
}

// RetryTransport wraps an http.RoundTripper, retrying requests whose
// response status is in retryableStatuses with exponential backoff.
// Retries never return an error from the retry loop itself — the final
// attempt's response or error is what the caller sees.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    time.Duration
}

// NewRetryTransport builds an *http.Client with a pooled base transport
// wrapped in retry behavior per config.
func NewRetryTransport(config TransportConfig) *http.Client {
	base := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: config.ReadTimeout,
	}
	return &http.Client{
		Timeout: config.ConnectTimeout + config.ReadTimeout,
		Transport: &RetryTransport{
			Base:       base,
			MaxRetries: config.MaxRetries,
			Backoff:    config.BackoffFactor,
		},
	}
}

// RoundTrip implements http.RoundTripper. Each attempt gets its own
// cloned request with the body re-derived from GetBody, since the base
// transport drains (and may close) req.Body on the first attempt — a
// retry reusing the original request would resend an empty body for
// any POST, which is exactly how the JSON-RPC adapters fetch.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt <= t.MaxRetries; attempt++ {
		attemptReq := req
		if attempt > 0 {
			attemptReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return nil, bodyErr
				}
				attemptReq.Body = body
			}
		}

		resp, err = t.Base.RoundTrip(attemptReq)
		if err != nil {
			return resp, err
		}
		if !retryableStatuses[resp.StatusCode] {
			return resp, nil
		}
		if attempt == t.MaxRetries {
			return resp, nil
		}
		resp.Body.Close()
		time.Sleep(t.Backoff * time.Duration(math.Pow(2, float64(attempt))))
	}
	return resp, err
}

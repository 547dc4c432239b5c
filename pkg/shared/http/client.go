// Package http builds *http.Client instances with the pool sizing,
// timeouts and TLS options this service needs for its various HTTP
// collaborators (chain-source adapters, Slack, Prometheus scraping).
package http

import (
	"crypto/tls"
	"net/http"
	"time"
)

// ClientConfig describes how to build an *http.Client's transport.
type ClientConfig struct {
	Timeout                time.Duration
	MaxRetries              int
	DisableSSLVerification  bool
	MaxIdleConns            int
	IdleConnTimeout         time.Duration
	TLSHandshakeTimeout     time.Duration
	ResponseHeaderTimeout   time.Duration
}

// DefaultClientConfig is a conservative, general-purpose baseline.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:                30 * time.Second,
		MaxRetries:             3,
		DisableSSLVerification: false,
		MaxIdleConns:           10,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  15 * time.Second,
	}
}

// NewClient builds an *http.Client from config. MaxRetries is informational
// here — callers needing retry behavior wrap the returned client's
// Transport (see pkg/chainsource.RetryTransport).
func NewClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}
	if config.DisableSSLVerification {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}
}

// NewClientWithTimeout builds a client using DefaultClientConfig with Timeout overridden.
func NewClientWithTimeout(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	return NewClient(config)
}

// NewDefaultClient builds a client from DefaultClientConfig.
func NewDefaultClient() *http.Client {
	return NewClient(DefaultClientConfig())
}

// SlackClientConfig is tuned for posting error reports to Slack's webhook
// API: short timeout, few retries (the error-report path must not itself
// become a source of worker stalls).
func SlackClientConfig() ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = 10 * time.Second
	config.MaxRetries = 2
	return config
}

// PrometheusClientConfig is tuned for scraping/pushing metrics: the
// response-header timeout is half the overall timeout so a slow server
// fails the request well before the client timeout fires.
func PrometheusClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 2
	return config
}

// ChainSourceClientConfig is tuned for polling third-party chain-data
// services: the response-header timeout is a third of the overall
// timeout, leaving room for the connect phase plus a slow body.
func ChainSourceClientConfig(timeout time.Duration) ClientConfig {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.ResponseHeaderTimeout = timeout / 3
	return config
}

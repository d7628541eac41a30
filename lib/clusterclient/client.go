// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clusterclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Config describes how to reach the API server. Zero durations and
// counts take the defaults noted on each field.
type Config struct {
	// CAFile is a PEM bundle of trusted CAs. Empty uses system roots.
	CAFile string

	// CertFile and KeyFile are a PEM client certificate and key.
	CertFile string
	KeyFile  string

	// ServerName overrides the name checked in the server certificate.
	ServerName string

	InsecureSkipVerify bool

	// BearerTokenFile, when set, supplies the Authorization header.
	BearerTokenFile string

	// Default: 256
	MaxIdleConns int
	// Default: 64
	MaxIdleConnsPerHost int
	// Default: 90s
	IdleConnTimeout time.Duration
	// Default: 10s
	DialTimeout time.Duration
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	Logger *slog.Logger
}

// New returns a pooled client for the API server. The client has no
// overall timeout; callers bound each request with its context.
func New(config Config) (*http.Client, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConfig, err := buildTLSConfig(config)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{
		Timeout:   orDefault(config.DialTimeout, 10*time.Second),
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          orDefaultInt(config.MaxIdleConns, 256),
		MaxIdleConnsPerHost:   orDefaultInt(config.MaxIdleConnsPerHost, 64),
		IdleConnTimeout:       orDefault(config.IdleConnTimeout, 90*time.Second),
		TLSHandshakeTimeout:   orDefault(config.TLSHandshakeTimeout, 10*time.Second),
		ExpectContinueTimeout: time.Second,
		// Bodies are returned to controllers byte for byte, including
		// whatever Content-Encoding the server chose.
		DisableCompression: true,
	}

	var roundTripper http.RoundTripper = transport
	if config.BearerTokenFile != "" {
		tokens := newTokenFile(config.BearerTokenFile, logger)
		if _, err := tokens.Token(); err != nil {
			return nil, err
		}
		roundTripper = &bearerTransport{next: transport, tokens: tokens}
	}

	if config.InsecureSkipVerify {
		logger.Warn("cluster certificate verification disabled")
	}

	return &http.Client{
		Transport: roundTripper,
		CheckRedirect: func(request *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

func buildTLSConfig(config Config) (*tls.Config, error) {
	if (config.CertFile == "") != (config.KeyFile == "") {
		return nil, errors.New("client certificate and key must be set together")
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         config.ServerName,
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	if config.CAFile != "" {
		pem, err := os.ReadFile(config.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no certificates", config.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if config.CertFile != "" {
		certificate, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{certificate}
	}

	return tlsConfig, nil
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func orDefaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

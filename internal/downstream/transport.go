package downstream

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/wudi/hitcounter/config"
)

// TransportConfig configures the HTTP downstream transport.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration

	InsecureSkipVerify bool
	CAFile             string
}

// DefaultTransportConfig provides default transport settings
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	DialTimeout:         10 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// TransportConfigFrom overlays the non-zero settings of cfg on the defaults.
func TransportConfigFrom(cfg config.HTTPDownstreamConfig) TransportConfig {
	tc := DefaultTransportConfig
	if cfg.MaxIdleConnsPerHost > 0 {
		tc.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.DialTimeout > 0 {
		tc.DialTimeout = cfg.DialTimeout
	}
	tc.CAFile = cfg.CAFile
	tc.InsecureSkipVerify = cfg.InsecureSkipVerify
	return tc
}

// NewTransport creates an HTTP transport. An unreadable or empty CA file is
// an error rather than a silent fallback to the system roots.
func NewTransport(cfg TransportConfig) (*http.Transport, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("downstream: reading ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("downstream: no certificates in ca_file %q", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
	}, nil
}

// DefaultTransport creates a transport with default settings
func DefaultTransport() *http.Transport {
	t, _ := NewTransport(DefaultTransportConfig)
	return t
}

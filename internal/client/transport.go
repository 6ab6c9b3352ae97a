package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// TransportOptions tunes the HTTP transport used by simulated users.
type TransportOptions struct {
	Insecure            bool
	MaxIdleConnsPerHost int
}

func newTransport(opts TransportOptions) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	maxIdle := opts.MaxIdleConnsPerHost
	if maxIdle <= 0 {
		maxIdle = 64
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: opts.Insecure},
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

package net

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// TransportPool hands out http.Clients that share one Transport per proxy, so
// TCP connections are reused across the API client and image downloads.
type TransportPool struct {
	transportCache sync.Map // proxy key -> *http.Transport
	maxIdleConns   int
	idleTimeout    time.Duration
}

// NewTransportPool creates an empty pool.
func NewTransportPool() *TransportPool {
	return &TransportPool{
		maxIdleConns: 100,
		idleTimeout:  90 * time.Second,
	}
}

// ParseProxy parses a proxy URL; an empty string means a direct connection.
func ParseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q: scheme and host required", raw)
	}
	return u, nil
}

// Client returns a client bound to the pooled transport for proxyURL (nil for
// direct). A proxied transport that fails at the network level is evicted,
// so the next request dials a fresh one.
func (p *TransportPool) Client(proxyURL *url.URL, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &pooledTransport{pool: p, proxy: proxyURL},
		Timeout:   timeout,
	}
}

type pooledTransport struct {
	pool  *TransportPool
	proxy *url.URL
}

func (t *pooledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.pool.Transport(t.proxy).RoundTrip(req)
	if err != nil && t.proxy != nil && req.Context().Err() == nil {
		t.pool.Evict(t.proxy)
	}
	return resp, err
}

// Transport returns the shared transport for proxyURL, creating it on first use.
func (p *TransportPool) Transport(proxyURL *url.URL) *http.Transport {
	key := "direct"
	if proxyURL != nil {
		key = proxyURL.String()
	}
	if val, ok := p.transportCache.Load(key); ok {
		return val.(*http.Transport)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = p.maxIdleConns
	tr.MaxIdleConnsPerHost = 10
	tr.IdleConnTimeout = p.idleTimeout
	if proxyURL != nil {
		tr.Proxy = http.ProxyURL(proxyURL)
	}

	// LoadOrStore 防止并发重复创建
	actual, loaded := p.transportCache.LoadOrStore(key, tr)
	if loaded {
		tr.CloseIdleConnections()
	}
	return actual.(*http.Transport)
}

// Evict drops the transport of a proxy that stopped working.
func (p *TransportPool) Evict(proxyURL *url.URL) {
	key := "direct"
	if proxyURL != nil {
		key = proxyURL.String()
	}
	if val, ok := p.transportCache.LoadAndDelete(key); ok {
		val.(*http.Transport).CloseIdleConnections()
	}
}

// CloseIdle closes idle connections of every pooled transport.
func (p *TransportPool) CloseIdle() {
	p.transportCache.Range(func(_, val any) bool {
		val.(*http.Transport).CloseIdleConnections()
		return true
	})
}

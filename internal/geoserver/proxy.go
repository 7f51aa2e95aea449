// Package geoserver proxies WMS map-tile requests to an upstream GeoServer
// instance. Raster visualization is served by GeoServer itself; this proxy
// only adds circuit breaking so a wedged upstream fails fast instead of
// holding client connections.
package geoserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/climabr/climabr/internal/resilience"
)

// ErrUpstreamOpen is returned while the breaker refuses upstream calls.
var ErrUpstreamOpen = errors.New("geoserver upstream circuit open")

// ProxyConfig holds configuration for the WMS proxy.
type ProxyConfig struct {
	// UpstreamURL is the base GeoServer URL, e.g. http://geoserver:8080/geoserver.
	UpstreamURL string

	// Timeout bounds each upstream request. Default: 30 seconds.
	Timeout time.Duration

	// Logger for proxy operations.
	Logger zerolog.Logger
}

// Proxy forwards /wms requests to GeoServer behind a circuit breaker.
type Proxy struct {
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  zerolog.Logger
}

// NewProxy creates a WMS proxy for the upstream URL.
func NewProxy(cfg ProxyConfig) (*Proxy, error) {
	upstream, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", cfg.UpstreamURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger := cfg.Logger
	breakerCfg := resilience.DefaultBreakerConfig("geoserver")
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state change")
	}

	p := &Proxy{
		breaker: resilience.NewBreaker[*http.Response](breakerCfg),
		logger:  logger,
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(upstream)
			r.Out.Host = upstream.Host
		},
		Transport: &breakerTransport{
			breaker: p.breaker,
			inner:   &http.Transport{ResponseHeaderTimeout: timeout},
		},
		ErrorHandler: p.handleError,
	}
	p.proxy = rp
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		status = http.StatusServiceUnavailable
		err = ErrUpstreamOpen
	}
	p.logger.Error().Err(err).Str("path", r.URL.Path).Msg("wms proxy failed")
	http.Error(w, err.Error(), status)
}

// breakerTransport runs each upstream round trip through the circuit
// breaker. Only transport errors and 5xx responses count as failures; WMS
// client errors (bad layer name etc.) pass through without tripping it.
type breakerTransport struct {
	breaker *gobreaker.CircuitBreaker[*http.Response]
	inner   http.RoundTripper
}

func (t *breakerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.inner.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if resp != nil {
		// A 5xx counted against the breaker but still has a body to relay.
		return resp, nil
	}
	return resp, err
}

// StripPrefix returns the handler mounted under prefix with the prefix
// removed, so /wms/ows maps to {upstream}/ows.
func (p *Proxy) StripPrefix(prefix string) http.Handler {
	return http.StripPrefix(strings.TrimSuffix(prefix, "/"), p)
}

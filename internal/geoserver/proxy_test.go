package geoserver_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/climabr/climabr/internal/geoserver"
)

func newProxy(t *testing.T, upstreamURL string) *geoserver.Proxy {
	t.Helper()
	p, err := geoserver.NewProxy(geoserver.ProxyConfig{
		UpstreamURL: upstreamURL,
		Logger:      zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return p
}

func TestProxy_ForwardsRequests(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ows", r.URL.Path)
		assert.Equal(t, "GetMap", r.URL.Query().Get("request"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	defer upstream.Close()

	srv := httptest.NewServer(newProxy(t, upstream.URL).StripPrefix("/wms"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/wms/ows?request=GetMap")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "tile-bytes", string(body))
}

func TestProxy_ClientErrorsPassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown layer", http.StatusBadRequest)
	}))
	defer upstream.Close()

	srv := httptest.NewServer(newProxy(t, upstream.URL))
	defer srv.Close()

	// Well past the breaker's minimum request count; 4xx must never trip it.
	for i := 0; i < 10; i++ {
		resp, err := http.Get(srv.URL + "/ows")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestProxy_BreakerOpensOnUpstreamFailures(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	srv := httptest.NewServer(newProxy(t, upstream.URL))
	defer srv.Close()

	// Drive the breaker past its failure threshold.
	for i := 0; i < 6; i++ {
		resp, err := http.Get(srv.URL + "/ows")
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/ows")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "open breaker fails fast")
}

func TestNewProxy_RejectsRelativeURL(t *testing.T) {
	_, err := geoserver.NewProxy(geoserver.ProxyConfig{UpstreamURL: "/geoserver"})
	assert.Error(t, err)
}

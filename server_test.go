package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LexiconIndonesia/creator-crawler-service/common/config"
	"github.com/LexiconIndonesia/creator-crawler-service/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, apiKey string) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Security.BackendApiKey = apiKey
	s, err := NewAppHttpServer(cfg)
	require.NoError(t, err)
	s.setRoutes(routes{
		health: handler.NewHealthHandler(nil),
	})
	s.setupRoute()
	return s.router
}

func TestSwaggerDocIsServed(t *testing.T) {
	h := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Swagger  string                    `json:"swagger"`
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Swagger)
	assert.Equal(t, "/v1", doc.BasePath)
	for _, path := range []string{"/crawler/start", "/crawler/changes", "/settings", "/runs/{runID}", "/exports/creators"} {
		assert.Contains(t, doc.Paths, path)
	}
	assert.Contains(t, doc.Paths["/settings"], "put")
}

func TestApiKeyGuardsVersionedRoutes(t *testing.T) {
	h := newTestServer(t, "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-API-KEY", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

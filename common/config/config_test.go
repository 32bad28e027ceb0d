package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.Crawl.SearchInterval)
	assert.Equal(t, time.Second, cfg.Crawl.ProfileJitter)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, cfg.Crawl.ProfileTypes)
	assert.Equal(t, 120*time.Second, cfg.Crawl.DefaultInterval)
	assert.Equal(t, "/api/v1/oec/affiliate/creator/marketplace/find", cfg.Browser.FindPath)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen.Addr())
	assert.Equal(t, "redis", cfg.KVBackend)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LISTEN_PORT", "9090")
	t.Setenv("CRAWL_SEARCH_INTERVAL", "10s")
	t.Setenv("CRAWL_PROFILE_JITTER", "250ms")
	t.Setenv("CRAWL_PROFILE_TYPES", "1, 3,5")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("SINK_DATA_ENDPOINT", "http://sink.local/creators")
	t.Setenv("NATS_PORT", "4333")
	t.Setenv("KV_BACKEND", "memory")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, uint(9090), cfg.Listen.Port)
	assert.Equal(t, 10*time.Second, cfg.Crawl.SearchInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.ProfileJitter)
	assert.Equal(t, []int{1, 3, 5}, cfg.Crawl.ProfileTypes)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://sink.local/creators", cfg.Crawl.DataEndpoint)
	assert.Equal(t, "nats://localhost:4333", cfg.Nats.URL())
	assert.Equal(t, "memory", cfg.KVBackend)
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("CRAWL_SEARCH_INTERVAL", "soon")
	t.Setenv("CRAWL_PROFILE_TYPES", "1,x")
	t.Setenv("LISTEN_PORT", "port")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 5*time.Second, cfg.Crawl.SearchInterval)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, cfg.Crawl.ProfileTypes)
	assert.Equal(t, uint(8080), cfg.Listen.Port)
}

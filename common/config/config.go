package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvBool(key string, result *bool) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return
	}
	*result = b
}

func loadEnvDuration(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Ignoring invalid duration")
		return
	}
	*result = d
}

func loadEnvInts(key string, result *[]int) {
	s, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Ignoring invalid integer list")
			return
		}
		out = append(out, n)
	}
	*result = out
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Enabled:  true,
		Host:     "localhost",
		Port:     5432,
		Database: "database",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvBool("POSTGRES_ENABLED", &p.Enabled)
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

type natsConfig struct {
	Host             string
	Port             uint
	Username         string
	Password         string
	JetStreamEnabled bool
}

func (c *natsConfig) loadFromEnv() {
	c.Host = getEnv("NATS_HOST", c.Host)
	loadEnvUint("NATS_PORT", &c.Port)
	c.Username = getEnv("NATS_USER", c.Username)
	c.Password = getEnv("NATS_PASSWORD", c.Password)
	loadEnvBool("NATS_JETSTREAM_ENABLED", &c.JetStreamEnabled)
}

func (c *natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:             "localhost",
		Port:             4222,
		Username:         "",
		Password:         "",
		JetStreamEnabled: true,
	}
}

type securityConfig struct {
	BackendApiKey string
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", "")
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey: "",
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

func (r redisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)

	// Load DB number with a default of 0
	if dbStr := getEnv("REDIS_DB", "0"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	log.Info().Interface("redis", r).Msg("Redis config loaded")
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
	SignedURLTTL    time.Duration
}

func (g *GCSConfig) Enabled() bool {
	return g.Bucket != ""
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
	loadEnvDuration("GCS_SIGNED_URL_TTL", &g.SignedURLTTL)
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
		SignedURLTTL:    time.Hour,
	}
}

/* Browser Configuration */

type BrowserConfig struct {
	// ControlURL attaches to an already running Chrome instead of launching one.
	ControlURL     string
	Bin            string
	Headless       bool
	UserDataDir    string
	StartURL       string
	SearchSelector string
	FindPath       string
	ElementTimeout time.Duration
}

func (b *BrowserConfig) loadFromEnv() {
	loadEnvString("BROWSER_CONTROL_URL", &b.ControlURL)
	loadEnvString("BROWSER_BIN", &b.Bin)
	loadEnvBool("BROWSER_HEADLESS", &b.Headless)
	loadEnvString("BROWSER_USER_DATA_DIR", &b.UserDataDir)
	loadEnvString("BROWSER_START_URL", &b.StartURL)
	loadEnvString("BROWSER_SEARCH_SELECTOR", &b.SearchSelector)
	loadEnvString("BROWSER_FIND_PATH", &b.FindPath)
	loadEnvDuration("BROWSER_ELEMENT_TIMEOUT", &b.ElementTimeout)
}

func defaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		StartURL:       "https://affiliate.tiktok.com/connection/creator?shop_region=VN",
		SearchSelector: `input[data-tid="m4b_input_search"]`,
		FindPath:       "/api/v1/oec/affiliate/creator/marketplace/find",
		ElementTimeout: 10 * time.Second,
	}
}

/* Crawl Configuration */

type CrawlConfig struct {
	SearchInterval  time.Duration
	ProfileJitter   time.Duration
	ProfileTimeout  time.Duration
	ProfileTypes    []int
	SinkTimeout     time.Duration
	DefaultInterval time.Duration
	// Sink defaults used when the config scope leaves a field empty.
	DataEndpoint       string
	ErrorEndpoint      string
	CreatorIDsEndpoint string
	AuthHeaderName     string
	AuthHeaderValue    string
}

func (c *CrawlConfig) loadFromEnv() {
	loadEnvDuration("CRAWL_SEARCH_INTERVAL", &c.SearchInterval)
	loadEnvDuration("CRAWL_PROFILE_JITTER", &c.ProfileJitter)
	loadEnvDuration("CRAWL_PROFILE_TIMEOUT", &c.ProfileTimeout)
	loadEnvInts("CRAWL_PROFILE_TYPES", &c.ProfileTypes)
	loadEnvDuration("CRAWL_SINK_TIMEOUT", &c.SinkTimeout)
	loadEnvDuration("CRAWL_DEFAULT_INTERVAL", &c.DefaultInterval)
	loadEnvString("SINK_DATA_ENDPOINT", &c.DataEndpoint)
	loadEnvString("SINK_ERROR_ENDPOINT", &c.ErrorEndpoint)
	loadEnvString("SINK_CREATOR_IDS_ENDPOINT", &c.CreatorIDsEndpoint)
	loadEnvString("SINK_AUTH_HEADER_NAME", &c.AuthHeaderName)
	loadEnvString("SINK_AUTH_HEADER_VALUE", &c.AuthHeaderValue)
}

func defaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		SearchInterval:  5 * time.Second,
		ProfileJitter:   time.Second,
		ProfileTimeout:  30 * time.Second,
		ProfileTypes:    []int{1, 2, 3, 4, 5},
		SinkTimeout:     30 * time.Second,
		DefaultInterval: 120 * time.Second,
	}
}

/* Log Configuration */

type LogConfig struct {
	Level      string
	Env        string
	File       string
	MaxSizeMB  uint
	MaxBackups uint
	MaxAgeDays uint
	Database   bool
}

func (l *LogConfig) loadFromEnv() {
	loadEnvString("LOG_LEVEL", &l.Level)
	loadEnvString("APP_ENV", &l.Env)
	loadEnvString("LOG_FILE", &l.File)
	loadEnvUint("LOG_FILE_MAX_SIZE_MB", &l.MaxSizeMB)
	loadEnvUint("LOG_FILE_MAX_BACKUPS", &l.MaxBackups)
	loadEnvUint("LOG_FILE_MAX_AGE_DAYS", &l.MaxAgeDays)
	loadEnvBool("LOG_DATABASE", &l.Database)
}

func defaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Env:        "production",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Database:   true,
	}
}

type Config struct {
	Listen   listenConfig
	PgSql    pgSqlConfig
	Security securityConfig
	Nats     natsConfig
	Redis    redisConfig
	GCS      GCSConfig
	Browser  BrowserConfig
	Crawl    CrawlConfig
	Log      LogConfig
	// KVBackend selects the key-value store: "redis" or "memory".
	KVBackend string
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Browser.loadFromEnv()
	c.Crawl.loadFromEnv()
	c.Log.loadFromEnv()
	loadEnvString("KV_BACKEND", &c.KVBackend)
}

func DefaultConfig() Config {
	return Config{
		Listen:    defaultListenConfig(),
		PgSql:     defaultPgSql(),
		Security:  defaultSecurityConfig(),
		Nats:      defaultNatsConfig(),
		Redis:     defaultRedisConfig(),
		GCS:       defaultGcsConfig(),
		Browser:   defaultBrowserConfig(),
		Crawl:     defaultCrawlConfig(),
		Log:       defaultLogConfig(),
		KVBackend: "redis",
	}
}

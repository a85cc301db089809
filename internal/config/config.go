package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int
	Env            string // "development" | "production"
	DSN            string // MySQL DSN
	RedisURL       string // empty when Redis is not configured
	RedisPrefix    string
	Database       DatabaseRuntimeConfig
	Redis          RedisRuntimeConfig
	Mongo          MongoRuntimeConfig
	Selector       SelectorRuntimeConfig
	Paths          RuntimePathsConfig
	AllowedOrigins []string
	JWTSecret      string
}

type DatabaseRuntimeConfig struct {
	DSN       string
	Host      string
	Port      int
	User      string
	Password  string
	Name      string
	Charset   string
	ParseTime bool
	Loc       string
	Params    map[string]string
}

type RedisRuntimeConfig struct {
	URL      string
	Host     string
	Port     int
	Username string
	Password string
	DB       int
	TLS      bool
}

type MongoRuntimeConfig struct {
	URI      string
	Database string
}

// SelectorRuntimeConfig tunes selector sessions.
type SelectorRuntimeConfig struct {
	Source        string
	Retain        string
	PageSize      int
	Debounce      time.Duration
	FetchTimeout  time.Duration
	RetainTTL     time.Duration
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// OpenRateLimit caps anonymous session opens per client and second; 0
	// disables the limit.
	OpenRateLimit int
}

type RuntimePathsConfig struct {
	Logs string
}

type rawAppConfig struct {
	Port               int               `yaml:"port"`
	Env                string            `yaml:"env"`
	NodeEnv            string            `yaml:"node_env"`
	DSN                string            `yaml:"dsn"`
	DatabaseURL        string            `yaml:"database_url"`
	RedisURL           string            `yaml:"redis_url"`
	Database           rawDatabaseConfig `yaml:"database"`
	Redis              rawRedisConfig    `yaml:"redis"`
	Mongo              rawMongoConfig    `yaml:"mongo"`
	Selector           rawSelectorConfig `yaml:"selector"`
	LogDir             string            `yaml:"log_dir"`
	AllowedOrigins     []string          `yaml:"allowed_origins"`
	CORSAllowedOrigins []string          `yaml:"cors_allowed_origins"`
	JWTSecret          string            `yaml:"jwt_secret"`
}

type rawDatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       *int   `yaml:"db"`
	TLS      *bool  `yaml:"tls"`
	Prefix   string `yaml:"prefix"`
}

type rawMongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type rawSelectorConfig struct {
	Source        string `yaml:"source"`
	Retain        string `yaml:"retain"`
	PageSize      int    `yaml:"page_size"`
	Debounce      string `yaml:"debounce"`
	FetchTimeout  string `yaml:"fetch_timeout"`
	RetainTTL     string `yaml:"retain_ttl"`
	IdleTTL       string `yaml:"idle_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
	OpenRateLimit *int   `yaml:"open_rate_limit"`
}

// Load reads and validates the config file. Every problem found is reported
// at once.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML config content. Unknown keys are rejected.
func Parse(content []byte) (*AppConfig, error) {
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	cfg := defaultAppConfig()
	var result *multierror.Error
	if err := applyRawAppConfig(&cfg, raw); err != nil {
		result = multierror.Append(result, err)
	}
	if err := cfg.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port:        defaultPort,
		Env:         defaultEnv,
		RedisPrefix: defaultKeyPrefix,
		Database: DatabaseRuntimeConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Mongo: MongoRuntimeConfig{Database: defaultMongoDB},
		Selector: SelectorRuntimeConfig{
			Source:        SourceSQL,
			PageSize:      defaultPageSize,
			Debounce:      defaultDebounce,
			FetchTimeout:  defaultFetchTimeout,
			RetainTTL:     defaultRetainTTL,
			IdleTTL:       defaultIdleTTL,
			SweepInterval: defaultSweepInterval,
			OpenRateLimit: defaultOpenRateLimit,
		},
	}
	cfg.DSN = cfg.Database.DSNValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := firstNonEmpty(raw.NodeEnv, raw.Env); v != "" {
		cfg.Env = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}
	cfg.JWTSecret = strings.TrimSpace(raw.JWTSecret)

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.DSN = cfg.Database.DSNValue()

	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)
	redisSection := raw.Redis
	redisSection.Prefix = ""
	if raw.RedisURL != "" || redisSection != (rawRedisConfig{}) {
		cfg.RedisURL = cfg.Redis.URLValue()
	}
	if v := strings.TrimSpace(raw.Redis.Prefix); v != "" {
		cfg.RedisPrefix = v
	}

	if v := strings.TrimSpace(raw.Mongo.URI); v != "" {
		cfg.Mongo.URI = v
	}
	if v := strings.TrimSpace(raw.Mongo.Database); v != "" {
		cfg.Mongo.Database = v
	}

	return applyRawSelectorConfig(&cfg.Selector, raw.Selector, cfg.RedisURL != "")
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	db := raw.Database
	if v := firstNonEmpty(db.DSN, raw.DSN, raw.DatabaseURL); v != "" {
		current.DSN = v
	}
	if v := strings.TrimSpace(db.Host); v != "" {
		current.Host = v
	}
	if db.Port != 0 {
		current.Port = db.Port
	}
	if v := strings.TrimSpace(db.User); v != "" {
		current.User = v
	}
	if v := strings.TrimSpace(db.Password); v != "" {
		current.Password = v
	}
	if v := strings.TrimSpace(db.Name); v != "" {
		current.Name = v
	}
	if v := strings.TrimSpace(db.Charset); v != "" {
		current.Charset = v
	}
	if db.ParseTime != nil {
		current.ParseTime = *db.ParseTime
	}
	if v := strings.TrimSpace(db.Loc); v != "" {
		current.Loc = v
	}
	if db.Params != nil {
		current.Params = copyStringMap(db.Params)
	}
	return current
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	r := raw.Redis
	if v := firstNonEmpty(r.URL, raw.RedisURL); v != "" {
		current.URL = normalizeRedisRawURL(v)
	}
	if v := strings.TrimSpace(r.Host); v != "" {
		current.Host = v
	}
	if r.Port != 0 {
		current.Port = r.Port
	}
	if v := strings.TrimSpace(r.Username); v != "" {
		current.Username = v
	}
	if v := strings.TrimSpace(r.Password); v != "" {
		current.Password = v
	}
	if r.DB != nil {
		current.DB = *r.DB
	}
	if r.TLS != nil {
		current.TLS = *r.TLS
	}
	return current
}

func applyRawSelectorConfig(current *SelectorRuntimeConfig, raw rawSelectorConfig, hasRedis bool) error {
	var result *multierror.Error

	if v := strings.ToLower(strings.TrimSpace(raw.Source)); v != "" {
		current.Source = v
	}
	current.Retain = RetainDatabase
	if hasRedis {
		current.Retain = RetainRedis
	}
	if v := strings.ToLower(strings.TrimSpace(raw.Retain)); v != "" {
		current.Retain = v
	}
	if raw.PageSize != 0 {
		current.PageSize = raw.PageSize
	}
	if raw.OpenRateLimit != nil {
		current.OpenRateLimit = *raw.OpenRateLimit
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"selector.debounce", raw.Debounce, &current.Debounce},
		{"selector.fetch_timeout", raw.FetchTimeout, &current.FetchTimeout},
		{"selector.retain_ttl", raw.RetainTTL, &current.RetainTTL},
		{"selector.idle_ttl", raw.IdleTTL, &current.IdleTTL},
		{"selector.sweep_interval", raw.SweepInterval, &current.SweepInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid %s %q: %w", d.key, v, err))
			continue
		}
		*d.dst = parsed
	}
	return result.ErrorOrNil()
}

func (c *AppConfig) validate() error {
	var result *multierror.Error
	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port %d, expected 1-65535", c.Port))
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid database.port %d, expected 1-65535", c.Database.Port))
	}
	if _, err := mysql.ParseDSN(c.DSN); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid database dsn: %w", err))
	}
	if c.RedisURL != "" {
		if c.Redis.Port < 1 || c.Redis.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("invalid redis.port %d, expected 1-65535", c.Redis.Port))
		}
		if c.Redis.DB < 0 {
			result = multierror.Append(result, fmt.Errorf("invalid redis.db %d, expected >= 0", c.Redis.DB))
		}
	}

	s := c.Selector
	if !slices.Contains([]string{SourceSQL, SourceMongo, SourceMemory}, s.Source) {
		result = multierror.Append(result, fmt.Errorf("invalid selector.source %q, expected sql, mongo or memory", s.Source))
	}
	if s.Source == SourceMongo && c.Mongo.URI == "" {
		result = multierror.Append(result, errors.New("selector.source mongo needs mongo.uri"))
	}
	if !slices.Contains([]string{RetainRedis, RetainDatabase, RetainMemory}, s.Retain) {
		result = multierror.Append(result, fmt.Errorf("invalid selector.retain %q, expected redis, database or memory", s.Retain))
	}
	if s.Retain == RetainRedis && c.RedisURL == "" {
		result = multierror.Append(result, errors.New("selector.retain redis needs redis to be configured"))
	}
	if s.PageSize < 1 || s.PageSize > maxPageSize {
		result = multierror.Append(result, fmt.Errorf("invalid selector.page_size %d, expected 1-%d", s.PageSize, maxPageSize))
	}
	for key, d := range map[string]time.Duration{
		"selector.debounce":       s.Debounce,
		"selector.fetch_timeout":  s.FetchTimeout,
		"selector.retain_ttl":     s.RetainTTL,
		"selector.idle_ttl":       s.IdleTTL,
		"selector.sweep_interval": s.SweepInterval,
	} {
		if d < 0 {
			result = multierror.Append(result, fmt.Errorf("invalid %s %s, expected >= 0", key, d))
		}
	}
	if s.OpenRateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid selector.open_rate_limit %d, expected >= 0", s.OpenRateLimit))
	}
	return result.ErrorOrNil()
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// LogDir is where daily log files are written.
func (c *AppConfig) LogDir() string {
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func copyStringMap(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

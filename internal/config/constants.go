package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "dualpanel"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0
	defaultKeyPrefix  = "dualpanel:"
	defaultMongoDB    = "dualpanel"

	defaultPageSize      = 1000
	maxPageSize          = 10000
	defaultDebounce      = 300 * time.Millisecond
	defaultFetchTimeout  = 10 * time.Second
	defaultRetainTTL     = 24 * time.Hour
	defaultIdleTTL       = 30 * time.Minute
	defaultSweepInterval = time.Minute
	defaultOpenRateLimit = 20
)

// Record sources a selector can read candidates from.
const (
	SourceSQL    = "sql"
	SourceMongo  = "mongo"
	SourceMemory = "memory"
)

// Stores a cancelled selection can be retained in.
const (
	RetainRedis    = "redis"
	RetainDatabase = "database"
	RetainMemory   = "memory"
)

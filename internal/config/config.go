package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	globalConfig *Config
	once         sync.Once
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	KMS           KMSConfig
	Hashing       HashingConfig
	Auth          AuthConfig
	JWT           JWTConfig
	Bucketing     BucketingConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	AutoCertDir  string
	Domain       string
	Email        string
	CertFile     string
	KeyFile      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Brokers           []string
	SecurityTopic     string
	NotificationTopic string
}

type ClickhouseConfig struct {
	URL      string
	Database string
	Username string
	Password string
}

type ElasticsearchConfig struct {
	URL      string
	Username string
	Password string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type HashingConfig struct {
	Argon2MemoryCost  int // KiB
	Argon2TimeCost    int
	Argon2Parallelism int
}

// AuthConfig carries the security engine constants. Defaults match the
// documented policy: 10 consecutive failures lock the account for an hour,
// at most 5 concurrent sessions, and every login response takes at least
// the configured floor.
type AuthConfig struct {
	LockoutThreshold      int
	LockoutDuration       time.Duration
	MaxConcurrentSessions int
	ResponseTimeFloor     time.Duration
	SessionExpiry         time.Duration
	RememberMeExpiry      time.Duration
	MFAChallengeTTL       time.Duration
	EmailRateLimitMax     int
	EmailRateLimitWindow  time.Duration
	IPRateLimitMax        int
	IPRateLimitWindow     time.Duration
}

type JWTConfig struct {
	PrivateKeyPath  string
	PublicKeyPath   string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads .env (if present) and builds the configuration.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/lib/autocert"),
			Domain:       getEnv("SERVER_DOMAIN", ""),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    splitList(getEnv("SCYLLA_NODES", "localhost:9042")),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "crm_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			SecurityTopic:     getEnv("KAFKA_SECURITY_TOPIC", "crm.security.events"),
			NotificationTopic: getEnv("KAFKA_NOTIFICATION_TOPIC", "crm.notifications"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "crm_audit"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("KMS_REGION", "eu-central-1"),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_KIB", 65536),
			Argon2TimeCost:    getEnvInt("ARGON2_ITERATIONS", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		Auth: AuthConfig{
			LockoutThreshold:      getEnvInt("AUTH_LOCKOUT_THRESHOLD", 10),
			LockoutDuration:       getEnvDuration("AUTH_LOCKOUT_DURATION", time.Hour),
			MaxConcurrentSessions: getEnvInt("AUTH_MAX_CONCURRENT_SESSIONS", 5),
			ResponseTimeFloor:     getEnvDuration("AUTH_RESPONSE_TIME_FLOOR", 200*time.Millisecond),
			SessionExpiry:         getEnvDuration("AUTH_SESSION_EXPIRY", 7*24*time.Hour),
			RememberMeExpiry:      getEnvDuration("AUTH_REMEMBER_ME_EXPIRY", 30*24*time.Hour),
			MFAChallengeTTL:       getEnvDuration("AUTH_MFA_CHALLENGE_TTL", 5*time.Minute),
			// Keep the email quota above the lockout threshold so the
			// locked response can surface before the window closes.
			EmailRateLimitMax:     getEnvInt("AUTH_EMAIL_RATE_LIMIT_MAX", 15),
			EmailRateLimitWindow:  getEnvDuration("AUTH_EMAIL_RATE_LIMIT_WINDOW", 15*time.Minute),
			IPRateLimitMax:        getEnvInt("AUTH_IP_RATE_LIMIT_MAX", 20),
			IPRateLimitWindow:     getEnvDuration("AUTH_IP_RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		JWT: JWTConfig{
			PrivateKeyPath:  getEnv("JWT_PRIVATE_KEY_PATH", "certs/jwt_private.pem"),
			PublicKeyPath:   getEnv("JWT_PUBLIC_KEY_PATH", "certs/jwt_public.pem"),
			Issuer:          getEnv("JWT_ISSUER", "crm-backend"),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("BUCKETING_USER_BUCKETS", 128),
			EventBuckets: getEnvInt("BUCKETING_EVENT_BUCKETS", 64),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	once.Do(func() { globalConfig = cfg })
	return cfg
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

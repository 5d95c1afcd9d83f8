package config

import (
	"time"
)

// Store backends
const (
	StoreDynamoDB = "dynamodb"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Downstream backends
const (
	DownstreamLambda = "lambda"
	DownstreamHTTP   = "http"
	DownstreamNATS   = "nats"
)

// Response modes for the HTTP front
const (
	ResponseModeRaw        = "raw"
	ResponseModeAPIGateway = "apigateway"
)

// Environment bindings resolved once at start-up. They take precedence over
// the configuration file.
const (
	EnvHitsTableName          = "HITS_TABLE_NAME"
	EnvDownstreamFunctionName = "DOWNSTREAM_FUNCTION_NAME"
)

// Config represents the complete hit counter configuration
type Config struct {
	Listener   ListenerConfig   `yaml:"listener"`
	Admin      AdminConfig      `yaml:"admin"`
	Store      StoreConfig      `yaml:"store"`
	Downstream DownstreamConfig `yaml:"downstream"`
	AWS        AWSConfig        `yaml:"aws"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Secrets    SecretsConfig    `yaml:"secrets"`
}

// SecretsConfig controls ${scheme:ref} resolution.
type SecretsConfig struct {
	// FileAllowedPrefixes limits ${file:...} to these directories. Empty allows any path.
	FileAllowedPrefixes []string `yaml:"file_allowed_prefixes"`
}

// ListenerConfig defines the HTTP front settings
type ListenerConfig struct {
	Address      string        `yaml:"address"` // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodySize  int64         `yaml:"max_body_size"` // bytes
	ResponseMode string        `yaml:"response_mode"` // "raw" or "apigateway"
}

// AdminConfig defines admin API settings
type AdminConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	HitsLimit int    `yaml:"hits_limit"` // default page size for /hits
}

// StoreConfig selects and configures the counter store.
type StoreConfig struct {
	Type     string         `yaml:"type"`
	Timeout  time.Duration  `yaml:"timeout"` // per-operation, 0 = caller's deadline only
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// DynamoDBConfig defines the DynamoDB hits table.
type DynamoDBConfig struct {
	Table         string `yaml:"table"`
	ReadCapacity  int64  `yaml:"read_capacity"`  // 5..20, used by provision
	WriteCapacity int64  `yaml:"write_capacity"` // used by provision
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password" redact:"true"`
	DB          int           `yaml:"db"`
	TLS         bool          `yaml:"tls"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Prefix      string        `yaml:"prefix"`
	Key         string        `yaml:"key"` // hash holding path -> hits
}

// PostgresConfig defines the Postgres hits table.
type PostgresConfig struct {
	DSN          string `yaml:"dsn" redact:"true"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// DownstreamConfig selects and configures the downstream handler.
type DownstreamConfig struct {
	Type   string               `yaml:"type"`
	Lambda LambdaConfig         `yaml:"lambda"`
	HTTP   HTTPDownstreamConfig `yaml:"http"`
	NATS   NATSConfig           `yaml:"nats"`
}

// LambdaConfig defines AWS Lambda downstream settings.
type LambdaConfig struct {
	FunctionName string `yaml:"function_name"`
	Qualifier    string `yaml:"qualifier"` // version or alias
}

// HTTPDownstreamConfig defines an HTTP downstream that receives the event as a JSON POST.
type HTTPDownstreamConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`

	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
	CAFile              string        `yaml:"ca_file"`
	InsecureSkipVerify  bool          `yaml:"insecure_skip_verify"`
}

// NATSConfig defines a NATS request/reply downstream.
type NATSConfig struct {
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"` // applied when the caller sets no deadline
	Name    string        `yaml:"name"`    // connection name
	Token   string        `yaml:"token" redact:"true"`
}

// AWSConfig holds options shared by every AWS client.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"` // LocalStack / DynamoDB Local
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" redact:"true"`
	SessionToken    string `yaml:"session_token" redact:"true"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Format   string            `yaml:"format"` // "json" or "console"
	Level    string            `yaml:"level"`
	Output   string            `yaml:"output"` // "stdout", "stderr" or a file path
	Rotation LogRotationConfig `yaml:"rotation"`
}

// LogRotationConfig defines log file rotation settings (powered by lumberjack).
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // max megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups"` // old rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age"`     // days to retain old files (default 28)
	Compress   bool `yaml:"compress"`    // gzip rotated files (default true)
	LocalTime  bool `yaml:"local_time"`  // use local time in backup filenames (default false)
}

// TracingConfig defines OpenTelemetry tracing settings
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
	SampleRate  float64           `yaml:"sample_rate"` // 0.0 to 1.0
	Insecure    bool              `yaml:"insecure"`    // use insecure gRPC connection
	Headers     map[string]string `yaml:"headers"`     // extra headers for OTLP exporter
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodySize:  6 << 20, // Lambda synchronous payload limit
			ResponseMode: ResponseModeRaw,
		},
		Admin: AdminConfig{
			Address:   ":8081",
			HitsLimit: 100,
		},
		Store: StoreConfig{
			Type: StoreDynamoDB,
			DynamoDB: DynamoDBConfig{
				ReadCapacity:  5,
				WriteCapacity: 5,
			},
			Redis: RedisConfig{
				Address:     "localhost:6379",
				DialTimeout: 5 * time.Second,
				Prefix:      "hitcounter:",
				Key:         "hits",
			},
			Postgres: PostgresConfig{
				Table:        "hits",
				MaxOpenConns: 10,
			},
		},
		Downstream: DownstreamConfig{
			Type: DownstreamLambda,
			HTTP: HTTPDownstreamConfig{
				Timeout:             30 * time.Second,
				MaxIdleConnsPerHost: 10,
				DialTimeout:         10 * time.Second,
			},
			NATS: NATSConfig{
				Timeout: 30 * time.Second,
				Name:    "hitcounter",
			},
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
			Output: "stdout",
			Rotation: LogRotationConfig{
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
				Compress:   true,
			},
		},
		Tracing: TracingConfig{
			ServiceName: "hitcounter",
			SampleRate:  1.0,
		},
	}
}

// TableName returns the identifier of the counter table for the selected store.
func (s StoreConfig) TableName() string {
	switch s.Type {
	case StoreDynamoDB:
		return s.DynamoDB.Table
	case StoreRedis:
		return s.Redis.Prefix + s.Redis.Key
	case StorePostgres:
		return s.Postgres.Table
	}
	return s.Type
}

// Target returns the identifier of the downstream handler.
func (d DownstreamConfig) Target() string {
	switch d.Type {
	case DownstreamLambda:
		return d.Lambda.FunctionName
	case DownstreamHTTP:
		return d.HTTP.URL
	case DownstreamNATS:
		return d.NATS.Subject
	}
	return d.Type
}

package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/wudi/hitcounter/config"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
	lookupEnv  func(string) (string, bool)
	secrets    *config.SecretRegistry
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	l := &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
		lookupEnv:  os.LookupEnv,
		secrets:    config.NewSecretRegistry(),
	}
	l.secrets.Register(&config.EnvProvider{Lookup: func(k string) (string, bool) { return l.lookupEnv(k) }})
	l.secrets.Register(&config.FileProvider{})
	return l
}

// RegisterSecretProvider adds a provider for ${scheme:ref} values.
func (l *Loader) RegisterSecretProvider(p config.SecretProvider) {
	l.secrets.Register(p)
}

// Load reads and parses a configuration file. An empty path yields the
// defaults plus environment bindings, which is how the Lambda runtime starts.
func (l *Loader) Load(path string) (*config.Config, error) {
	if path == "" {
		return l.finish(config.DefaultConfig())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*config.Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := config.DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return l.finish(cfg)
}

func (l *Loader) finish(cfg *config.Config) (*config.Config, error) {
	l.applyEnvBindings(cfg)

	secrets := l.secrets
	if len(cfg.Secrets.FileAllowedPrefixes) > 0 {
		secrets = secrets.Clone()
		secrets.Register(&config.FileProvider{AllowedPrefixes: cfg.Secrets.FileAllowedPrefixes})
	}
	if err := config.ResolveSecrets(context.Background(), cfg, secrets); err != nil {
		return nil, err
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
// Scheme references such as ${env:NAME} are left for ResolveSecrets.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := l.lookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// applyEnvBindings lets the deployment environment name the hits table and
// the downstream function without a config file.
func (l *Loader) applyEnvBindings(cfg *config.Config) {
	if table, ok := l.lookupEnv(config.EnvHitsTableName); ok && table != "" {
		switch cfg.Store.Type {
		case config.StoreDynamoDB:
			cfg.Store.DynamoDB.Table = table
		case config.StoreRedis:
			cfg.Store.Redis.Key = table
		case config.StorePostgres:
			cfg.Store.Postgres.Table = table
		}
	}
	if fn, ok := l.lookupEnv(config.EnvDownstreamFunctionName); ok && fn != "" {
		if cfg.Downstream.Type == config.DownstreamLambda {
			cfg.Downstream.Lambda.FunctionName = fn
		}
	}
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *config.Config) error {
	if cfg.Listener.Address == "" {
		return fmt.Errorf("listener: address is required")
	}
	if cfg.Listener.MaxBodySize < 0 {
		return fmt.Errorf("listener: max_body_size must be >= 0")
	}
	switch cfg.Listener.ResponseMode {
	case config.ResponseModeRaw, config.ResponseModeAPIGateway:
	default:
		return fmt.Errorf("listener: invalid response_mode: %s", cfg.Listener.ResponseMode)
	}

	if cfg.Admin.Enabled && cfg.Admin.Address == "" {
		return fmt.Errorf("admin: address is required when enabled")
	}
	if cfg.Admin.HitsLimit < 0 {
		return fmt.Errorf("admin: hits_limit must be >= 0")
	}

	if err := validateStore(cfg.Store); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := validateDownstream(cfg.Downstream); err != nil {
		return fmt.Errorf("downstream: %w", err)
	}

	if cfg.Tracing.Enabled && (cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing: sample_rate must be between 0 and 1")
	}

	return nil
}

func validateStore(s config.StoreConfig) error {
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	switch s.Type {
	case config.StoreDynamoDB:
		if s.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required (or set %s)", config.EnvHitsTableName)
		}
		if rc := s.DynamoDB.ReadCapacity; rc != 0 && (rc < 5 || rc > 20) {
			return fmt.Errorf("dynamodb.read_capacity must be between 5 and 20, got %d", rc)
		}
		if s.DynamoDB.WriteCapacity < 0 {
			return fmt.Errorf("dynamodb.write_capacity must be >= 0")
		}
	case config.StoreRedis:
		if s.Redis.Address == "" {
			return fmt.Errorf("redis.address is required")
		}
		if s.Redis.Key == "" {
			return fmt.Errorf("redis.key is required")
		}
	case config.StorePostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required")
		}
		if s.Postgres.Table == "" {
			return fmt.Errorf("postgres.table is required")
		}
	case config.StoreMemory:
	default:
		return fmt.Errorf("invalid type: %q", s.Type)
	}
	return nil
}

func validateDownstream(d config.DownstreamConfig) error {
	switch d.Type {
	case config.DownstreamLambda:
		if d.Lambda.FunctionName == "" {
			return fmt.Errorf("lambda.function_name is required (or set %s)", config.EnvDownstreamFunctionName)
		}
	case config.DownstreamHTTP:
		if d.HTTP.URL == "" {
			return fmt.Errorf("http.url is required")
		}
		u, err := url.Parse(d.HTTP.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("http.url must be an absolute http(s) URL: %q", d.HTTP.URL)
		}
		if d.HTTP.Timeout < 0 {
			return fmt.Errorf("http.timeout must be >= 0")
		}
	case config.DownstreamNATS:
		if d.NATS.URL == "" {
			return fmt.Errorf("nats.url is required")
		}
		if d.NATS.Subject == "" {
			return fmt.Errorf("nats.subject is required")
		}
	default:
		return fmt.Errorf("invalid type: %q", d.Type)
	}
	return nil
}

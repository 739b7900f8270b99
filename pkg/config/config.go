package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SignalFusion/pkg/logger"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// CORS is a string so an explicit "disabled" survives defaulting.
		CORS      string `yaml:"cors" default:"enabled" validate:"oneof=enabled disabled"`
		RateLimit struct {
			RPS   float64 `yaml:"rps" default:"20"`
			Burst int     `yaml:"burst" default:"40"`
		} `yaml:"rate_limit"`
		// Auth guards the write endpoints with HS256 bearer tokens when Secret is set.
		Auth struct {
			Secret string `yaml:"secret"`
			Issuer string `yaml:"issuer" default:"signalfusion"`
		} `yaml:"auth"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine struct {
		ConfigPath string        `yaml:"config_path"`
		Pairs      []string      `yaml:"pairs"`
		Timeframe  string        `yaml:"timeframe" default:"1h"`
		Bars       int           `yaml:"bars" default:"200" validate:"gte=20"`
		Interval   time.Duration `yaml:"interval" default:"1m"`
	} `yaml:"engine"`
	Producers struct {
		Builtin []string         `yaml:"builtin"`
		Remote  []RemoteProducer `yaml:"remote" validate:"dive"`
		Breaker struct {
			MaxRequests  uint32        `yaml:"max_requests" default:"1"`
			Interval     time.Duration `yaml:"interval" default:"60s"`
			Timeout      time.Duration `yaml:"timeout" default:"30s"`
			FailureRatio float64       `yaml:"failure_ratio" default:"0.6"`
			MinRequests  uint32        `yaml:"min_requests" default:"3"`
		} `yaml:"breaker"`
	} `yaml:"producers"`
	Store struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis postgres"`
	} `yaml:"store"`
	// Cache fronts candle reads so the scheduler and API share fetched bars.
	Cache struct {
		Backend    string        `yaml:"backend" default:"memory" validate:"oneof=none memory redis layered"`
		CandleTTL  time.Duration `yaml:"candle_ttl" default:"15s"`
		LocalTTL   time.Duration `yaml:"local_ttl" default:"5s"`
		MaxEntries int           `yaml:"max_entries" default:"512" validate:"gte=1"`
	} `yaml:"cache"`
	Audit struct {
		Sinks []string `yaml:"sinks" validate:"dive,oneof=log clickhouse kafka"`
	} `yaml:"audit"`
	Redis struct {
		Addr      string `yaml:"addr" default:"localhost:6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"fusion"`
	} `yaml:"redis"`
	Postgres struct {
		Driver   string        `yaml:"driver" default:"pgx" validate:"oneof=pgx postgres"`
		DSN      string        `yaml:"dsn"`
		MaxConns int           `yaml:"max_conns" default:"10"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"postgres"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"fusion.decisions"`
		AuditTopic     string   `yaml:"audit_topic" default:"fusion.audit"`
		OutcomesTopic  string   `yaml:"outcomes_topic" default:"fusion.outcomes"`
		RequiredAcks   int      `yaml:"required_acks" default:"1"`
		Compression    string   `yaml:"compression" default:"snappy"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"fusion-feedback"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fusion"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=1"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		CandleTable      string        `yaml:"candle_table" default:"candles"`
		AuditTable       string        `yaml:"audit_table" default:"decision_audit"`
	} `yaml:"clickhouse"`
}

// RemoteProducer is a module served over HTTP.
type RemoteProducer struct {
	ID      string        `yaml:"id" validate:"required"`
	Type    string        `yaml:"type" validate:"required"`
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" default:"3s"`
	Retries int           `yaml:"retries" default:"1"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default returns a config with every default applied, for one-shot commands.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FUSION_PAIRS"); v != "" {
		c.Engine.Pairs = strings.Split(v, ",")
	}
	if v := os.Getenv("FUSION_ENGINE_CONFIG"); v != "" {
		c.Engine.ConfigPath = v
	}
	if v := os.Getenv("FUSION_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("FUSION_AUTH_SECRET"); v != "" {
		c.Server.Auth.Secret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Store.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required for store.backend=postgres")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when the outcome consumer is enabled")
	}
	for _, s := range c.Audit.Sinks {
		if s == "kafka" && len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka audit sink")
		}
		if s == "clickhouse" && !c.ClickHouse.Enabled {
			return fmt.Errorf("clickhouse.enabled must be true for the clickhouse audit sink")
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"5"`
			Burst int     `yaml:"burst" default:"10"`
		} `yaml:"rate_limit"`
		ProofBaseURL string `yaml:"proof_base_url" default:"http://localhost:8080/api"`
	} `yaml:"server"`
	Logging struct {
		Level   string `yaml:"level" default:"info"`
		Format  string `yaml:"format" default:"json"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled       bool          `yaml:"enabled"`
			Topic         string        `yaml:"topic" default:"ops-logs"`
			FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
			MaxEntries    int           `yaml:"max_entries" default:"100"`
		} `yaml:"collect"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns" default:"10"`
		MinConns        int32         `yaml:"min_conns" default:"1"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"cardsignals"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecTime  time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Topics       struct {
			Sales    string `yaml:"sales" default:"sales"`
			Listings string `yaml:"listings" default:"listings"`
			Signals  string `yaml:"signals" default:"signals"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"cardsignals-ingest"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"ingest-dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"cardsignals"`
	} `yaml:"redis"`
	Pipeline struct {
		Schedule     string        `yaml:"schedule" default:"0 */15 * * * *"`
		TouchedHours int           `yaml:"touched_hours" default:"24"`
		ListingLimit int           `yaml:"listing_limit" default:"200"`
		Workers      int           `yaml:"workers" default:"4"`
		LockKey      int64         `yaml:"lock_key" default:"4242"`
		IO           IOConfig      `yaml:"io"`
		RunTimeout   time.Duration `yaml:"run_timeout" default:"10m"`
	} `yaml:"pipeline"`
	Scoring struct {
		Windows []int `yaml:"windows" default:"[30,90]"`
		Weights struct {
			Edge       float64 `yaml:"edge" default:"0.6"`
			Comps      float64 `yaml:"comps" default:"0.3"`
			Volatility float64 `yaml:"volatility" default:"0.05"`
			Freshness  float64 `yaml:"freshness" default:"0.05"`
		} `yaml:"weights"`
		Guardrails struct {
			MinComps        int   `yaml:"min_comps" default:"3"`
			MaxFreshDays    int   `yaml:"max_fresh_days" default:"14"`
			MaxVolatilityBp int64 `yaml:"max_volatility_bp" default:"1200"`
			MinPriceCents   int64 `yaml:"min_price_cents" default:"200"`
		} `yaml:"guardrails"`
	} `yaml:"scoring"`
	FairValue struct {
		UpperThreshold     float64       `yaml:"upper_threshold" default:"0.15"`
		LowerThreshold     float64       `yaml:"lower_threshold" default:"-0.15"`
		PerQuoteConfidence float64       `yaml:"per_quote_confidence" default:"30"`
		ConfidenceCap      float64       `yaml:"confidence_cap" default:"100"`
		MinDiscountPct     float64       `yaml:"min_discount_pct" default:"15"`
		MinConfidence      float64       `yaml:"min_confidence" default:"0.5"`
		CacheTTL           time.Duration `yaml:"cache_ttl" default:"5m"`
		CompLookbackDays   int           `yaml:"comp_lookback_days" default:"90"`
		CompLimit          int           `yaml:"comp_limit" default:"50"`
		QuoteTimeout       time.Duration `yaml:"quote_timeout" default:"3s"`
		Sources            []QuoteSource `yaml:"sources"`
	} `yaml:"fair_value"`
	Alerts struct {
		Backends     []string `yaml:"backends" default:"[\"websocket\"]"`
		RedisChannel string   `yaml:"redis_channel" default:"deals"`
	} `yaml:"alerts"`
	Queue struct {
		Enabled     bool          `yaml:"enabled"`
		Name        string        `yaml:"name" default:"jobs"`
		Workers     int           `yaml:"workers" default:"2"`
		MaxRetries  int           `yaml:"max_retries" default:"3"`
		RetryDelay  time.Duration `yaml:"retry_delay" default:"10s"`
		PollTimeout time.Duration `yaml:"poll_timeout" default:"2s"`
	} `yaml:"queue"`
}

// IOConfig bounds every store call made by the batch pipeline.
type IOConfig struct {
	Timeout         time.Duration `yaml:"timeout" default:"5s"`
	Retries         int           `yaml:"retries" default:"2"`
	BackoffBase     time.Duration `yaml:"backoff_base" default:"100ms"`
	BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" default:"30s"`
}

// QuoteSource is an external fair-value provider.
type QuoteSource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("PROOF_BASE_URL"); v != "" {
		c.Server.ProofBaseURL = strings.TrimRight(v, "/")
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// KafkaEnabled reports whether any Kafka brokers are configured.
func (c *Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

// HasAlertBackend reports whether the named alert backend is selected.
func (c *Config) HasAlertBackend(name string) bool {
	for _, b := range c.Alerts.Backends {
		if b == name {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment == "" {
		errs = append(errs, errors.New("environment is required"))
	}
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be positive, got %d", c.Server.Port))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be >= 1"))
	}
	if c.Pipeline.TouchedHours <= 0 {
		errs = append(errs, errors.New("pipeline.touched_hours must be positive"))
	}
	if c.Pipeline.ListingLimit <= 0 {
		errs = append(errs, errors.New("pipeline.listing_limit must be positive"))
	}
	for _, w := range c.Scoring.Windows {
		if w <= 0 {
			errs = append(errs, fmt.Errorf("scoring.windows: %d is not a positive window", w))
		}
	}
	if c.FairValue.UpperThreshold < 0 || c.FairValue.LowerThreshold > 0 {
		errs = append(errs, errors.New("fair_value thresholds must straddle zero"))
	}
	for _, b := range c.Alerts.Backends {
		switch b {
		case "kafka":
			if !c.KafkaEnabled() {
				errs = append(errs, errors.New("alerts backend kafka requires kafka.brokers"))
			}
		case "redis":
			if !c.Redis.Enabled {
				errs = append(errs, errors.New("alerts backend redis requires redis.enabled"))
			}
		case "websocket":
		default:
			errs = append(errs, fmt.Errorf("unknown alerts backend %q", b))
		}
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("queue.enabled requires redis.enabled"))
	}
	for i, s := range c.FairValue.Sources {
		if s.Name == "" || s.URL == "" {
			errs = append(errs, fmt.Errorf("fair_value.sources[%d] needs name and url", i))
		}
	}
	return errors.Join(errs...)
}

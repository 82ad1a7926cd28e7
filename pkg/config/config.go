package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PriceCast/pkg/logger"
)

const (
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"

	ModelProfile = "profile"
	ModelHTTP    = "http"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Logger      logger.Config `yaml:"logger"`
	Server      Server        `yaml:"server"`
	Metrics     Metrics       `yaml:"metrics"`
	Backend     Backend       `yaml:"backend"`
	ClickHouse  ClickHouse    `yaml:"clickhouse"`
	Redis       Redis         `yaml:"redis"`
	Kafka       Kafka         `yaml:"kafka"`
	Model       Model         `yaml:"model"`
	Cycle       Cycle         `yaml:"cycle"`
	Publish     Publish       `yaml:"publish"`
	Holidays    []Holiday     `yaml:"holidays" validate:"dive"`
}

type Server struct {
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	SnapshotTTL     time.Duration `yaml:"snapshot_ttl" default:"1m"`
	CacheEntries    int           `yaml:"cache_entries" default:"64" validate:"gte=0"` // in-process snapshot cache bound
	CORS            bool          `yaml:"cors" default:"true"`
	RateLimit       float64       `yaml:"rate_limit" default:"10" validate:"gte=0"` // requests/s per client; 0 disables
	RateBurst       int           `yaml:"rate_burst" default:"20" validate:"gte=0"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type Backend struct {
	Type       string `yaml:"type" default:"clickhouse" validate:"oneof=clickhouse memory"`
	HistoryCSV string `yaml:"history_csv" validate:"required_if=Type memory"`
	StateFile  string `yaml:"state_file"` // memory backend only; empty keeps state in process
}

type ClickHouse struct {
	Host             string        `yaml:"host" default:"localhost" validate:"required"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"pricecast" validate:"required"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

// Redis backs the cycle lock. When disabled an in-process lock is used.
type Redis struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"6379"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Prefix      string        `yaml:"prefix" default:"pricecast"`
	PoolSize    int           `yaml:"pool_size" default:"4" validate:"gte=0"`
	MinIdle     int           `yaml:"min_idle" default:"1" validate:"gte=0"`
	PoolTimeout time.Duration `yaml:"pool_timeout" default:"30s"`
}

type Kafka struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true"`
	Topic        string        `yaml:"topic" default:"pricecast.snapshots"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type Model struct {
	Type          string        `yaml:"type" default:"profile" validate:"oneof=profile http"`
	URL           string        `yaml:"url" validate:"required_if=Type http"`
	Timeout       time.Duration `yaml:"timeout"` // zero leaves the call bounded only by the cycle
	IntervalWidth float64       `yaml:"interval_width" default:"0.95" validate:"gt=0,lt=1"`
	ProfileWeeks  int           `yaml:"profile_weeks" default:"8" validate:"min=1"`
	LongestSeason time.Duration `yaml:"longest_season" default:"168h" validate:"gt=0"`
	SnapshotPath  string        `yaml:"snapshot_path" default:"models/snapshot.json" validate:"required"`
}

type Cycle struct {
	Timezone      string        `yaml:"timezone" default:"Europe/Istanbul" validate:"required"`
	Deadline      time.Duration `yaml:"deadline" default:"2h" validate:"gt=0"`
	MinCoverage   float64       `yaml:"min_coverage" default:"0.8" validate:"gt=0,lte=1"`
	MAPEFloor     float64       `yaml:"mape_floor" default:"100" validate:"gte=0"`
	BootstrapFrom string        `yaml:"bootstrap_from" validate:"omitempty,datetime=2006-01-02"`
	// Schedule is the Monday wall clock time at which serve fires the weekly cycle; empty disables.
	Schedule      string        `yaml:"schedule" validate:"omitempty,datetime=15:04"`
	// LockDir holds cycle lease files when Redis is disabled; empty uses the snapshot directory.
	LockDir       string        `yaml:"lock_dir"`
}

type Publish struct {
	OutputDir    string `yaml:"output_dir" default:"public" validate:"required"`
	ForecastDays int    `yaml:"forecast_days" default:"7" validate:"min=1,max=7"`
	HistoryWeeks int    `yaml:"history_weeks" default:"8" validate:"min=1,max=52"`
	CSV          bool   `yaml:"csv" default:"true"`
}

// Holiday is one static calendar date; each date also flags the following day.
type Holiday struct {
	Name string `yaml:"name" validate:"required"`
	Date string `yaml:"date" validate:"required,datetime=2006-01-02"`
}

// Location resolves the market timezone.
func (c Cycle) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
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

// Parse applies defaults, decodes the YAML document over them and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, the YAML config and then environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CLICKHOUSE_PORT: %w", err)
		}
		c.ClickHouse.Port = port
	}
	if v := os.Getenv("CLICKHOUSE_USER"); v != "" {
		c.ClickHouse.User = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return nil, fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		c.Model.URL = v
		c.Model.Type = ModelHTTP
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
	if _, err := c.Cycle.Location(); err != nil {
		return err
	}
	return nil
}

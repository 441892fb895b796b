// Package config loads service configuration from a .env file, an optional
// YAML file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string  `yaml:"port"`
	DatabaseURL string  `yaml:"database_url"`
	DBMigrate   bool    `yaml:"db_migrate"`
	RedisURL    string  `yaml:"redis_url"`
	RateRPS     float64 `yaml:"rate_rps"`
	RateBurst   int     `yaml:"rate_burst"`
	LogLevel    string  `yaml:"log_level"`
	LogFormat   string  `yaml:"log_format"`
	Auth        Auth    `yaml:"auth"`
	Webhook     Webhook `yaml:"webhook"`
	Solver      Solver  `yaml:"solver"`
}

// Auth selects how bearer tokens are checked. Requests without a token fall
// back to the X-Tenant-Id and X-Role headers unless RequireToken is set.
type Auth struct {
	Mode         string `yaml:"mode"`
	HMACSecret   string `yaml:"hmac_secret"`
	TenantClaim  string `yaml:"tenant_claim"`
	RoleClaim    string `yaml:"role_claim"`
	RequireToken bool   `yaml:"require_token"`
}

// Webhook configures solve completion callbacks.
type Webhook struct {
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	Workers     int           `yaml:"workers"`
}

// Solver holds the process-wide solver defaults. Tenants may override them.
type Solver struct {
	TimeBudget      time.Duration `yaml:"time_budget"`
	Workers         int           `yaml:"workers"`
	DispatchCost    int64         `yaml:"dispatch_cost"`
	Metaheuristic   string        `yaml:"metaheuristic"`
	Alpha           float64       `yaml:"alpha"`
	MaxStallRounds  int           `yaml:"max_stall_rounds"`
	SpreadFleet     bool          `yaml:"spread_fleet"`
	OmitIdle        bool          `yaml:"omit_idle"`
	MaxVehicles     int           `yaml:"max_vehicles"`
	DistanceDivisor float64       `yaml:"distance_divisor"`
	SpeedKmPerMin   float64       `yaml:"speed_km_per_min"`
	ServiceMinutes  float64       `yaml:"service_minutes"`
	OriginLat       float64       `yaml:"origin_lat"`
	OriginLng       float64       `yaml:"origin_lng"`
}

// Default returns the built-in configuration. The origin is Matsuyama.
func Default() Config {
	return Config{
		Port:      "8080",
		DBMigrate: true,
		RateRPS:   5,
		RateBurst: 10,
		LogLevel:  "info",
		LogFormat: "json",
		Auth:      Auth{Mode: "dev", TenantClaim: "tenant", RoleClaim: "role"},
		Webhook:   Webhook{MaxAttempts: 5, Timeout: 5 * time.Second, Workers: 2},
		Solver: Solver{
			TimeBudget:      30 * time.Second,
			Workers:         1,
			DispatchCost:    1000,
			Metaheuristic:   "guided",
			Alpha:           0.2,
			MaxStallRounds:  300,
			MaxVehicles:     25,
			DistanceDivisor: 1000,
			SpeedKmPerMin:   0.667,
			ServiceMinutes:  60,
			OriginLat:       33.85,
			OriginLng:       132.75,
		},
	}
}

// Load reads .env (if present), then CONFIG_FILE (default config.yaml, if
// present), then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	path := GetEnv("CONFIG_FILE", "config.yaml")
	if err := cfg.mergeFile(path); err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = GetEnv("PORT", c.Port)
	c.DatabaseURL = GetEnv("DATABASE_URL", c.DatabaseURL)
	c.DBMigrate = GetEnvAsBool("DB_MIGRATE", c.DBMigrate)
	c.RedisURL = GetEnv("REDIS_URL", c.RedisURL)
	c.RateRPS = GetEnvAsFloat("RATE_RPS", c.RateRPS)
	c.RateBurst = GetEnvAsInt("RATE_BURST", c.RateBurst)
	c.LogLevel = GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = GetEnv("LOG_FORMAT", c.LogFormat)

	c.Auth.Mode = GetEnv("AUTH_MODE", c.Auth.Mode)
	c.Auth.HMACSecret = GetEnv("AUTH_HMAC_SECRET", c.Auth.HMACSecret)
	c.Auth.TenantClaim = GetEnv("AUTH_TENANT_CLAIM", c.Auth.TenantClaim)
	c.Auth.RoleClaim = GetEnv("AUTH_ROLE_CLAIM", c.Auth.RoleClaim)
	c.Auth.RequireToken = GetEnvAsBool("AUTH_REQUIRE_TOKEN", c.Auth.RequireToken)

	c.Webhook.Secret = GetEnv("WEBHOOK_SECRET", c.Webhook.Secret)
	c.Webhook.MaxAttempts = GetEnvAsInt("WEBHOOK_MAX_ATTEMPTS", c.Webhook.MaxAttempts)
	c.Webhook.Timeout = GetEnvAsDuration("WEBHOOK_TIMEOUT", c.Webhook.Timeout)
	c.Webhook.Workers = GetEnvAsInt("WEBHOOK_WORKERS", c.Webhook.Workers)

	s := &c.Solver
	s.TimeBudget = GetEnvAsDuration("SOLVER_TIME_BUDGET", s.TimeBudget)
	s.Workers = GetEnvAsInt("SOLVER_WORKERS", s.Workers)
	s.DispatchCost = int64(GetEnvAsInt("SOLVER_DISPATCH_COST", int(s.DispatchCost)))
	s.Metaheuristic = GetEnv("SOLVER_METAHEURISTIC", s.Metaheuristic)
	s.Alpha = GetEnvAsFloat("SOLVER_GLS_ALPHA", s.Alpha)
	s.MaxStallRounds = GetEnvAsInt("SOLVER_MAX_STALL_ROUNDS", s.MaxStallRounds)
	s.SpreadFleet = GetEnvAsBool("SOLVER_SPREAD_FLEET", s.SpreadFleet)
	s.OmitIdle = GetEnvAsBool("SOLVER_OMIT_IDLE", s.OmitIdle)
	s.MaxVehicles = GetEnvAsInt("SOLVER_MAX_VEHICLES", s.MaxVehicles)
	s.SpeedKmPerMin = GetEnvAsFloat("SOLVER_SPEED_KM_PER_MIN", s.SpeedKmPerMin)
	s.ServiceMinutes = GetEnvAsFloat("SOLVER_SERVICE_MINUTES", s.ServiceMinutes)
	s.OriginLat = GetEnvAsFloat("DEFAULT_ORIGIN_LAT", s.OriginLat)
	s.OriginLng = GetEnvAsFloat("DEFAULT_ORIGIN_LNG", s.OriginLng)
}

// Validate rejects settings the solver cannot run with.
func (c Config) Validate() error {
	s := c.Solver
	var errs []error
	if s.TimeBudget <= 0 {
		errs = append(errs, fmt.Errorf("solver.time_budget must be positive"))
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("solver.workers must be >= 1"))
	}
	if s.DispatchCost < 0 {
		errs = append(errs, fmt.Errorf("solver.dispatch_cost must be >= 0"))
	}
	if s.Metaheuristic != "guided" && s.Metaheuristic != "none" {
		errs = append(errs, fmt.Errorf("solver.metaheuristic %q: want guided or none", s.Metaheuristic))
	}
	if s.MaxVehicles < 1 {
		errs = append(errs, fmt.Errorf("solver.max_vehicles must be >= 1"))
	}
	if s.SpeedKmPerMin <= 0 || s.DistanceDivisor <= 0 {
		errs = append(errs, fmt.Errorf("solver speed and distance divisor must be positive"))
	}
	if s.OriginLat < -90 || s.OriginLat > 90 || s.OriginLng < -180 || s.OriginLng > 180 {
		errs = append(errs, fmt.Errorf("default origin (%v, %v) out of range", s.OriginLat, s.OriginLng))
	}
	if m := strings.ToLower(c.Auth.Mode); m != "dev" && m != "hmac" {
		errs = append(errs, fmt.Errorf("auth.mode %q: want dev or hmac", c.Auth.Mode))
	} else if m == "hmac" && c.Auth.HMACSecret == "" {
		errs = append(errs, fmt.Errorf("auth.hmac_secret is required in hmac mode"))
	}
	if c.Webhook.MaxAttempts < 1 || c.Webhook.Workers < 1 {
		errs = append(errs, fmt.Errorf("webhook.max_attempts and webhook.workers must be >= 1"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}
	return log
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvAsFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(GetEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(GetEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvAsDuration accepts Go durations ("45s") or plain seconds ("45").
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Coint      CointConfig      `yaml:"coint"`
	Trading    TradingConfig    `yaml:"trading"`
	Kalman     KalmanConfig     `yaml:"kalman"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Database   DatabaseConfig   `yaml:"database"`
	DBWriter   DBWriterConfig   `yaml:"db_writer"`
}

// CointConfig holds the cointegration scanner settings.
type CointConfig struct {
	MinHistoryDays     int      `yaml:"min_history_days"`
	MaxPairs           int      `yaml:"max_pairs"`
	SignificanceLevel  float64  `yaml:"significance_level"`
	HalfLifeMin        float64  `yaml:"half_life_min"`
	HalfLifeMax        float64  `yaml:"half_life_max"`
	MinCorrelation     float64  `yaml:"min_correlation"`
	RescanEnabled      FlexBool `yaml:"rescan_enabled"`
	RescanIntervalDays int      `yaml:"rescan_interval_days"`
}

// TradingConfig holds signal thresholds and execution frictions.
type TradingConfig struct {
	EntryZ         float64  `yaml:"entry_z"`
	ExitZ          float64  `yaml:"exit_z"`
	StopZ          float64  `yaml:"stop_z"`
	MaxPositionPct float64  `yaml:"max_position_pct"`
	MaxPairsActive int      `yaml:"max_pairs_active"`
	InitialCapital float64  `yaml:"initial_capital"`
	CommissionBps  Bps      `yaml:"commission_bps"`
	SlippageBps    Bps      `yaml:"slippage_bps"`
	Parallel       FlexBool `yaml:"parallel"` // one worker per pair inside a bar
}

// KalmanConfig holds the hedge-ratio filter settings.
type KalmanConfig struct {
	Delta            float64 `yaml:"delta"`             // process noise on [intercept, beta]
	ObservationNoise float64 `yaml:"observation_noise"` // initial R
	InitialStateCov  float64 `yaml:"initial_state_cov"` // initial P diagonal
}

// MonitoringConfig holds alert thresholds.
type MonitoringConfig struct {
	AlertLatencyMs   float64 `yaml:"alert_latency_ms"`
	AlertDrawdownPct float64 `yaml:"alert_drawdown_pct"`
	MinThroughputTPS float64 `yaml:"min_throughput_tps"`
}

// BacktestConfig holds the simulation driver settings.
type BacktestConfig struct {
	TrainPct     float64 `yaml:"train_pct"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// DatabaseConfig holds the TimescaleDB connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // Loaded from env
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DBWriterConfig controls the export sink.
type DBWriterConfig struct {
	Enabled   FlexBool `yaml:"enabled"`
	BatchSize int      `yaml:"batch_size"`
}

// URL returns the postgres connection URL for the database.
func (d DatabaseConfig) URL() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, sslMode)
}

// Default returns a Config populated with the stock parameter set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Coint: CointConfig{
			MinHistoryDays:     252,
			MaxPairs:           200,
			SignificanceLevel:  0.05,
			HalfLifeMin:        5,
			HalfLifeMax:        60,
			MinCorrelation:     0.50,
			RescanIntervalDays: 30,
		},
		Trading: TradingConfig{
			EntryZ:         2.0,
			ExitZ:          0.5,
			StopZ:          4.0,
			MaxPositionPct: 0.05,
			MaxPairsActive: 20,
			InitialCapital: 10_000_000,
			CommissionBps:  5,
			SlippageBps:    3,
		},
		Kalman: KalmanConfig{
			Delta:            1e-4,
			ObservationNoise: 1.0,
			InitialStateCov:  1.0,
		},
		Monitoring: MonitoringConfig{
			AlertLatencyMs:   100,
			AlertDrawdownPct: 0.10,
			MinThroughputTPS: 1000,
		},
		Backtest: BacktestConfig{
			TrainPct:     0.33,
			RiskFreeRate: 0.04,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "pt_user",
			Name:    "pairs_trading",
			SSLMode: "disable",
		},
		DBWriter: DBWriterConfig{
			BatchSize: 500,
		},
	}
}

// LoadConfig loads configuration from the specified YAML file path
// and environment variables. Fields missing from the file keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv loads sensitive data and overrides from environment variables.
func applyEnv(cfg *Config) error {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dbHost := os.Getenv("PT_DB_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("PT_DB_PORT"); dbPort != "" {
		port, err := strconv.Atoi(dbPort)
		if err != nil {
			return fmt.Errorf("invalid PT_DB_PORT %q: %w", dbPort, err)
		}
		cfg.Database.Port = port
	}
	if dbUser := os.Getenv("PT_DB_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPassword := os.Getenv("PT_DB_PASSWORD"); dbPassword != "" {
		cfg.Database.Password = dbPassword
	}
	if dbName := os.Getenv("PT_DB_NAME"); dbName != "" {
		cfg.Database.Name = dbName
	}
	return nil
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks threshold ordering and ranges. All problems are reported
// together.
func (c *Config) Validate() error {
	var err error

	t := c.Trading
	if !(t.ExitZ >= 0 && t.ExitZ < t.EntryZ && t.EntryZ < t.StopZ) {
		err = multierr.Append(err, invalid("z thresholds must satisfy 0 <= exit_z < entry_z < stop_z (got %.2f, %.2f, %.2f)", t.ExitZ, t.EntryZ, t.StopZ))
	}
	if t.MaxPositionPct <= 0 || t.MaxPositionPct > 1 {
		err = multierr.Append(err, invalid("max_position_pct must be in (0, 1], got %v", t.MaxPositionPct))
	}
	if t.MaxPairsActive <= 0 {
		err = multierr.Append(err, invalid("max_pairs_active must be positive, got %d", t.MaxPairsActive))
	}
	if t.InitialCapital <= 0 {
		err = multierr.Append(err, invalid("initial_capital must be positive, got %v", t.InitialCapital))
	}
	if t.CommissionBps < 0 || t.SlippageBps < 0 {
		err = multierr.Append(err, invalid("commission_bps and slippage_bps must be non-negative"))
	}

	co := c.Coint
	if co.MinHistoryDays < 3 {
		err = multierr.Append(err, invalid("min_history_days must be at least 3, got %d", co.MinHistoryDays))
	}
	if co.MaxPairs <= 0 {
		err = multierr.Append(err, invalid("max_pairs must be positive, got %d", co.MaxPairs))
	}
	if co.SignificanceLevel <= 0 || co.SignificanceLevel >= 1 {
		err = multierr.Append(err, invalid("significance_level must be in (0, 1), got %v", co.SignificanceLevel))
	}
	if co.HalfLifeMin < 0 || co.HalfLifeMin > co.HalfLifeMax {
		err = multierr.Append(err, invalid("half_life_min/max out of order (%v, %v)", co.HalfLifeMin, co.HalfLifeMax))
	}
	if co.MinCorrelation < 0 || co.MinCorrelation > 1 {
		err = multierr.Append(err, invalid("min_correlation must be in [0, 1], got %v", co.MinCorrelation))
	}
	if co.RescanEnabled && co.RescanIntervalDays <= 0 {
		err = multierr.Append(err, invalid("rescan_interval_days must be positive when rescan is enabled"))
	}

	if c.Kalman.Delta <= 0 || c.Kalman.ObservationNoise <= 0 || c.Kalman.InitialStateCov <= 0 {
		err = multierr.Append(err, invalid("kalman delta, observation_noise and initial_state_cov must be positive"))
	}

	if c.Backtest.TrainPct <= 0 || c.Backtest.TrainPct >= 1 {
		err = multierr.Append(err, invalid("train_pct must be in (0, 1), got %v", c.Backtest.TrainPct))
	}
	return err
}

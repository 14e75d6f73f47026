package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ktrade/sentinel/internal/logger"
)

// Config is the top-level TOML structure for sentinel.
type Config struct {
	EnvFiles  []string        `mapstructure:"env_files"`
	Bot       BotConfig       `mapstructure:"bot"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Envelope  EnvelopeConfig  `mapstructure:"envelope"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Store     StoreConfig     `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       logger.Config   `mapstructure:"log"`
}

// BotConfig describes the monitored trading process.
type BotConfig struct {
	Command      string        `mapstructure:"command"`
	WorkDir      string        `mapstructure:"work_dir"`
	PIDFile      string        `mapstructure:"pid_file"`
	ProcessMatch string        `mapstructure:"process_match"` // cmdline substring for process-table fallback
	StopGrace    time.Duration `mapstructure:"stop_grace"`
	ConfigPath   string        `mapstructure:"config_path"` // strategy config the optimizer may rewrite
}

type WatchdogConfig struct {
	HeartbeatPath string        `mapstructure:"heartbeat_path"`
	Threshold     time.Duration `mapstructure:"threshold"`
	StartupGrace  time.Duration `mapstructure:"startup_grace"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	LockDir       string        `mapstructure:"lock_dir"`
	Schedule      string        `mapstructure:"schedule"`
}

type OptimizerConfig struct {
	Schedule     string        `mapstructure:"schedule"`
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	Window       time.Duration `mapstructure:"window"`
	AgentCommand string        `mapstructure:"agent_command"`
	ReportDir    string        `mapstructure:"report_dir"`
}

// EnvelopeConfig parameterizes the hard safety envelope. The field lists
// name the strategy enable flags and risk-control fields of the bot's own
// config, so the optimizer can recognize what a proposal touches.
type EnvelopeConfig struct {
	MaxPositionSizePct float64  `mapstructure:"max_position_size_pct"`
	StrategyFlags      []string `mapstructure:"strategy_flags"`
	RiskFields         []string `mapstructure:"risk_fields"`
}

type AlertConfig struct {
	WebhookURL   string        `mapstructure:"webhook_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FallbackPath string        `mapstructure:"fallback_path"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the TOML config at path, applies defaults, loads any
// configured env files into the process environment, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	for _, ef := range c.EnvFiles {
		if !filepath.IsAbs(ef) {
			ef = filepath.Join(filepath.Dir(path), ef)
		}
		if err := godotenv.Load(ef); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("env file %s: %w", ef, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.stop_grace", "30s")
	v.SetDefault("bot.pid_file", "/var/lib/sentinel/bot.pid")
	v.SetDefault("watchdog.heartbeat_path", "/var/lib/sentinel/heartbeat")
	v.SetDefault("watchdog.threshold", "600s")
	v.SetDefault("watchdog.startup_grace", "300s")
	v.SetDefault("watchdog.cooldown", "15m")
	v.SetDefault("watchdog.lock_dir", "/var/lib/sentinel/locks")
	v.SetDefault("watchdog.schedule", "*/10 * * * *")
	v.SetDefault("optimizer.schedule", "0 3 * * 1")
	v.SetDefault("optimizer.cycle_timeout", "30m")
	v.SetDefault("optimizer.window", "168h")
	v.SetDefault("optimizer.report_dir", "/var/lib/sentinel/reports")
	v.SetDefault("envelope.max_position_size_pct", 20.0)
	v.SetDefault("envelope.strategy_flags", []string{
		"enable_simple_momentum", "enable_dca", "enable_grid_trading", "enable_sentiment_momentum",
	})
	v.SetDefault("envelope.risk_fields", []string{
		"max_position_size_pct", "max_portfolio_exposure_pct", "daily_loss_limit_pct", "default_stop_loss_pct",
	})
	v.SetDefault("alert.timeout", "10s")
	v.SetDefault("alert.fallback_path", "/var/lib/sentinel/alerts.log")
	v.SetDefault("store.dsn", "/var/lib/sentinel/sentinel.db")
	v.SetDefault("server.addr", "127.0.0.1:8787")
}

// Validate rejects configurations the supervision layer cannot run with.
func (c *Config) Validate() error {
	if c.Bot.Command == "" {
		return errors.New("bot.command is required")
	}
	if c.Watchdog.HeartbeatPath == "" {
		return errors.New("watchdog.heartbeat_path is required")
	}
	if c.Watchdog.Threshold <= 0 {
		return errors.New("watchdog.threshold must be positive")
	}
	if c.Optimizer.CycleTimeout <= 0 {
		return errors.New("optimizer.cycle_timeout must be positive")
	}
	if c.Envelope.MaxPositionSizePct <= 0 || c.Envelope.MaxPositionSizePct > 100 {
		return fmt.Errorf("envelope.max_position_size_pct out of range: %v", c.Envelope.MaxPositionSizePct)
	}
	return nil
}

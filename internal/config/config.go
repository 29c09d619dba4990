package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Social   SocialConfig   `mapstructure:"social"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Markets  MarketsConfig  `mapstructure:"markets"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SocialConfig holds mention-source configuration.
type SocialConfig struct {
	APIBaseURL           string        `mapstructure:"api_base_url"`
	BearerToken          string        `mapstructure:"bearer_token"`
	BotHandle            string        `mapstructure:"bot_handle"`
	Timeout              time.Duration `mapstructure:"timeout"`
	MinFollowers         int           `mapstructure:"min_followers"`
	MinAccountAgeDays    int           `mapstructure:"min_account_age_days"`
	MaxSignalsPerUserDay int           `mapstructure:"max_signals_per_user_per_day"`
	MinSignalsToPublish  int           `mapstructure:"min_signals_to_publish"`
}

// LLMConfig holds classification-collaborator configuration.
type LLMConfig struct {
	APIBaseURL        string        `mapstructure:"api_base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// MarketsConfig holds market-data collaborator configuration.
type MarketsConfig struct {
	APIBaseURL string        `mapstructure:"api_base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	TopN       int           `mapstructure:"top_n"`
}

// TradingConfig holds sizing and risk configuration. Bankroll is the
// original configured bankroll; the drawdown breaker compares against it,
// not the live one.
type TradingConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ExecutionBaseURL    string        `mapstructure:"execution_base_url"`
	ExecutionAPIKey     string        `mapstructure:"execution_api_key"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Bankroll            float64       `mapstructure:"bankroll"`
	BasePositionPct     float64       `mapstructure:"base_position_pct"`
	MaxPositionPct      float64       `mapstructure:"max_position_pct"`
	CashReservePct      float64       `mapstructure:"cash_reserve_pct"`
	MinPositionUSD      float64       `mapstructure:"min_position_usd"`
	MaxOpenPositions    int           `mapstructure:"max_open_positions"`
	DrawdownBreakerPct  float64       `mapstructure:"drawdown_breaker_pct"`
	MaxThemeExposurePct float64       `mapstructure:"max_theme_exposure_pct"`
	StopLossPercent     float64       `mapstructure:"stop_loss_percent"`
	TakeProfitMultiple  float64       `mapstructure:"take_profit_multiple"`
	MinEdgeScore        float64       `mapstructure:"min_edge_score"`
	MinSignalsToAct     int           `mapstructure:"min_signals_to_act"`
	SignalStrengthNorm  float64       `mapstructure:"signal_strength_norm"`
}

// CampaignConfig holds orchestrator loop configuration.
type CampaignConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	SignalWindow  time.Duration `mapstructure:"signal_window"`
	DigestHourUTC int           `mapstructure:"digest_hour_utc"`
}

// TelegramConfig holds the optional ops notification channel.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// minPollInterval is the floor on the polling loop to respect upstream
// mention-API rate limits.
const minPollInterval = 10 * time.Second

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("CHATTERBET")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("social.timeout", "30s")
	v.SetDefault("social.min_followers", 50)
	v.SetDefault("social.min_account_age_days", 30)
	v.SetDefault("social.max_signals_per_user_per_day", 10)
	v.SetDefault("social.min_signals_to_publish", 2)

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_base", "1s")
	v.SetDefault("llm.requests_per_second", 2.0)

	v.SetDefault("markets.timeout", "30s")
	v.SetDefault("markets.cache_ttl", "15m")
	v.SetDefault("markets.top_n", 25)

	v.SetDefault("trading.enabled", false)
	v.SetDefault("trading.timeout", "30s")
	v.SetDefault("trading.bankroll", 10000.0)
	v.SetDefault("trading.base_position_pct", 0.02)
	v.SetDefault("trading.max_position_pct", 0.05)
	v.SetDefault("trading.cash_reserve_pct", 0.20)
	v.SetDefault("trading.min_position_usd", 50.0)
	v.SetDefault("trading.max_open_positions", 5)
	v.SetDefault("trading.drawdown_breaker_pct", 0.70)
	v.SetDefault("trading.max_theme_exposure_pct", 0.10)
	v.SetDefault("trading.stop_loss_percent", 0.30)
	v.SetDefault("trading.take_profit_multiple", 1.8)
	v.SetDefault("trading.min_edge_score", 0.15)
	v.SetDefault("trading.min_signals_to_act", 3)
	v.SetDefault("trading.signal_strength_norm", 20.0)

	v.SetDefault("campaign.poll_interval", "2m")
	v.SetDefault("campaign.signal_window", "24h")
	v.SetDefault("campaign.digest_hour_utc", 16)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.db_path", "./data/chatterbet.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Social.APIBaseURL == "" {
		return fmt.Errorf("social.api_base_url is required")
	}
	if c.Social.BotHandle == "" {
		return fmt.Errorf("social.bot_handle is required")
	}
	if c.Social.MaxSignalsPerUserDay < 1 {
		return fmt.Errorf("social.max_signals_per_user_per_day must be at least 1")
	}

	if c.LLM.APIBaseURL == "" {
		return fmt.Errorf("llm.api_base_url is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.RequestsPerSecond <= 0 {
		return fmt.Errorf("llm.requests_per_second must be positive")
	}

	if c.Markets.APIBaseURL == "" {
		return fmt.Errorf("markets.api_base_url is required")
	}
	if c.Markets.CacheTTL < time.Minute {
		return fmt.Errorf("markets.cache_ttl must be at least 1 minute")
	}
	if c.Markets.TopN < 1 {
		return fmt.Errorf("markets.top_n must be at least 1")
	}

	if c.Trading.Bankroll <= 0 {
		return fmt.Errorf("trading.bankroll must be positive")
	}
	for name, pct := range map[string]float64{
		"trading.base_position_pct":      c.Trading.BasePositionPct,
		"trading.max_position_pct":       c.Trading.MaxPositionPct,
		"trading.cash_reserve_pct":       c.Trading.CashReservePct,
		"trading.drawdown_breaker_pct":   c.Trading.DrawdownBreakerPct,
		"trading.max_theme_exposure_pct": c.Trading.MaxThemeExposurePct,
	} {
		if pct < 0.0 || pct > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	if c.Trading.MaxOpenPositions < 1 {
		return fmt.Errorf("trading.max_open_positions must be at least 1")
	}
	if c.Trading.StopLossPercent <= 0.0 || c.Trading.StopLossPercent >= 1.0 {
		return fmt.Errorf("trading.stop_loss_percent must be in (0.0, 1.0)")
	}
	if c.Trading.TakeProfitMultiple <= 1.0 {
		return fmt.Errorf("trading.take_profit_multiple must be greater than 1.0")
	}
	if c.Trading.SignalStrengthNorm <= 0 {
		return fmt.Errorf("trading.signal_strength_norm must be positive")
	}
	if c.Trading.MinSignalsToAct < 1 {
		return fmt.Errorf("trading.min_signals_to_act must be at least 1")
	}
	if c.Trading.Enabled && c.Trading.ExecutionBaseURL == "" {
		return fmt.Errorf("trading.execution_base_url is required when trading is enabled")
	}

	if c.Campaign.PollInterval < minPollInterval {
		return fmt.Errorf("campaign.poll_interval must be at least %v", minPollInterval)
	}
	if c.Campaign.SignalWindow < time.Hour {
		return fmt.Errorf("campaign.signal_window must be at least 1 hour")
	}
	if c.Campaign.DigestHourUTC < 0 || c.Campaign.DigestHourUTC > 23 {
		return fmt.Errorf("campaign.digest_hour_utc must be between 0 and 23")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

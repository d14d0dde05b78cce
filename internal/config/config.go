// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Symbols    []string         `yaml:"symbols"`
	LargeOrder LargeOrderConfig `yaml:"large_order"`
	Taker      TakerConfig      `yaml:"taker"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	PriceCache PriceCacheConfig `yaml:"price_cache"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	System     SystemConfig     `yaml:"system"`
}

// ExchangeConfig identifies the upstream venue endpoints
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	WSURL   string `yaml:"ws_url"`
	RestURL string `yaml:"rest_url"`
}

// LargeOrderConfig parameterises the large-order cumulative detector
type LargeOrderConfig struct {
	WindowMinutes   int     `yaml:"window_minutes"`
	ThresholdUsd    float64 `yaml:"threshold_usd"`
	CooldownMinutes int     `yaml:"cooldown_minutes"`
	ResetOnDispatch bool    `yaml:"reset_on_dispatch"`
}

// Window returns the aggregation window as a duration
func (c LargeOrderConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// Cooldown returns the suppression duration per (symbol, side)
func (c LargeOrderConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// TakerConfig parameterises the taker-flow detectors
type TakerConfig struct {
	SingleThresholds map[string]float64  `yaml:"single_thresholds"`
	Cumulative       CumulativeConfig    `yaml:"cumulative"`
	Cooldown         TakerCooldownConfig `yaml:"cooldown"`
}

// CumulativeConfig parameterises the taker cumulative detector
type CumulativeConfig struct {
	WindowSeconds int     `yaml:"window_seconds"`
	ThresholdUsd  float64 `yaml:"threshold_usd"`
	MinOrders     int     `yaml:"min_orders"`
}

// Window returns the aggregation window as a duration
func (c CumulativeConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// TakerCooldownConfig holds per-kind suppression durations. Zero
// disables suppression for that kind.
type TakerCooldownConfig struct {
	SingleSeconds     int `yaml:"single_seconds"`
	CumulativeSeconds int `yaml:"cumulative_seconds"`
}

// Single returns the SINGLE alert cooldown
func (c TakerCooldownConfig) Single() time.Duration {
	return time.Duration(c.SingleSeconds) * time.Second
}

// Cumulative returns the CUMULATIVE alert cooldown
func (c TakerCooldownConfig) Cumulative() time.Duration {
	return time.Duration(c.CumulativeSeconds) * time.Second
}

// DispatcherConfig parameterises the alert dispatch queue
type DispatcherConfig struct {
	RateLimitPerMinute  int  `yaml:"rate_limit_per_minute"`
	QueueCapacity       int  `yaml:"queue_capacity"`
	RetryDelaySeconds   int  `yaml:"retry_delay_seconds"`
	DrainTimeoutSeconds int  `yaml:"drain_timeout_seconds"`
	DrainPending        bool `yaml:"drain_pending"`
}

// RetryDelay returns the delay before a failed alert is re-queued
func (c DispatcherConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// DrainTimeout returns the shutdown drain deadline
func (c DispatcherConfig) DrainTimeout() time.Duration {
	return time.Duration(c.DrainTimeoutSeconds) * time.Second
}

// RecoveryConfig parameterises reconnection policy
type RecoveryConfig struct {
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
	BaseBackoffSeconds   int `yaml:"base_backoff_seconds"`
	MaxBackoffSeconds    int `yaml:"max_backoff_seconds"`
	CriticalThreshold    int `yaml:"critical_threshold"`
}

// BaseBackoff returns the backoff base
func (c RecoveryConfig) BaseBackoff() time.Duration {
	return time.Duration(c.BaseBackoffSeconds) * time.Second
}

// MaxBackoff returns the backoff cap
func (c RecoveryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffSeconds) * time.Second
}

// PriceCacheConfig parameterises the quote->USD rate cache
type PriceCacheConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the cache entry lifetime
func (c PriceCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ArchiveConfig parameterises the optional JSON-Lines archival hook
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseDir string `yaml:"base_dir"`
	// RetentionDays bounds how many daily directories are kept.
	// Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// TelegramConfig parameterises the telegram sink
type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BotToken  string   `yaml:"bot_token"`
	Whitelist []string `yaml:"whitelist"`
	// APIBaseURL overrides the telegram endpoint, mainly for tests
	APIBaseURL string `yaml:"api_base_url"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel              string `yaml:"log_level"`
	StatusIntervalSeconds int    `yaml:"status_interval_seconds"`
}

// StatusInterval returns the health probe cadence
func (c SystemConfig) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalSeconds) * time.Second
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion. Absent keys keep their defaults; explicit zero
// values are rejected by validation where the option has no zero
// meaning.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	// yaml merges into pre-populated maps, which would mix user
	// thresholds with defaults. Replace wholesale instead.
	config.Taker.SingleThresholds = nil

	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Taker.SingleThresholds == nil {
		config.Taker.SingleThresholds = defaultSingleThresholds()
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// normalize uppercases symbols wherever they key behaviour
func (c *Config) normalize() {
	for i, s := range c.Symbols {
		c.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	normalized := make(map[string]float64, len(c.Taker.SingleThresholds))
	for sym, qty := range c.Taker.SingleThresholds {
		normalized[strings.ToUpper(strings.TrimSpace(sym))] = qty
	}
	c.Taker.SingleThresholds = normalized
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateExchange(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSymbols(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateLargeOrder(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTaker(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateDispatcher(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateRecovery(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validatePriceCache(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateArchive(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateTelegram(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystem(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateExchange() error {
	if c.Exchange.WSURL == "" {
		return ValidationError{
			Field:   "exchange.ws_url",
			Message: "websocket URL is required",
		}
	}
	if !strings.HasPrefix(c.Exchange.WSURL, "ws://") && !strings.HasPrefix(c.Exchange.WSURL, "wss://") {
		return ValidationError{
			Field:   "exchange.ws_url",
			Value:   c.Exchange.WSURL,
			Message: "must be a ws:// or wss:// URL",
		}
	}
	if c.Exchange.RestURL == "" {
		return ValidationError{
			Field:   "exchange.rest_url",
			Message: "REST URL is required",
		}
	}
	return nil
}

func (c *Config) validateSymbols() error {
	if len(c.Symbols) == 0 {
		return ValidationError{
			Field:   "symbols",
			Message: "at least one symbol must be monitored",
		}
	}
	for _, s := range c.Symbols {
		if s == "" {
			return ValidationError{
				Field:   "symbols",
				Message: "empty symbol",
			}
		}
	}
	return nil
}

func (c *Config) validateLargeOrder() error {
	if c.LargeOrder.WindowMinutes < 1 || c.LargeOrder.WindowMinutes > 1440 {
		return ValidationError{
			Field:   "large_order.window_minutes",
			Value:   c.LargeOrder.WindowMinutes,
			Message: "must be between 1 and 1440 minutes",
		}
	}
	if c.LargeOrder.ThresholdUsd <= 0 {
		return ValidationError{
			Field:   "large_order.threshold_usd",
			Value:   c.LargeOrder.ThresholdUsd,
			Message: "must be positive",
		}
	}
	if c.LargeOrder.CooldownMinutes < 0 {
		return ValidationError{
			Field:   "large_order.cooldown_minutes",
			Value:   c.LargeOrder.CooldownMinutes,
			Message: "must not be negative (0 disables suppression)",
		}
	}
	return nil
}

func (c *Config) validateTaker() error {
	for sym, qty := range c.Taker.SingleThresholds {
		if qty <= 0 {
			return ValidationError{
				Field:   fmt.Sprintf("taker.single_thresholds.%s", sym),
				Value:   qty,
				Message: "threshold quantity must be positive",
			}
		}
	}
	if c.Taker.Cumulative.WindowSeconds < 1 || c.Taker.Cumulative.WindowSeconds > 1440*60 {
		return ValidationError{
			Field:   "taker.cumulative.window_seconds",
			Value:   c.Taker.Cumulative.WindowSeconds,
			Message: "must be between 1 second and 1440 minutes",
		}
	}
	if c.Taker.Cumulative.ThresholdUsd <= 0 {
		return ValidationError{
			Field:   "taker.cumulative.threshold_usd",
			Value:   c.Taker.Cumulative.ThresholdUsd,
			Message: "must be positive",
		}
	}
	if c.Taker.Cumulative.MinOrders < 1 {
		return ValidationError{
			Field:   "taker.cumulative.min_orders",
			Value:   c.Taker.Cumulative.MinOrders,
			Message: "must be at least 1",
		}
	}
	if c.Taker.Cooldown.SingleSeconds < 0 || c.Taker.Cooldown.CumulativeSeconds < 0 {
		return ValidationError{
			Field:   "taker.cooldown",
			Message: "cooldowns must not be negative (0 disables suppression)",
		}
	}
	return nil
}

func (c *Config) validateDispatcher() error {
	if c.Dispatcher.RateLimitPerMinute < 1 {
		return ValidationError{
			Field:   "dispatcher.rate_limit_per_minute",
			Value:   c.Dispatcher.RateLimitPerMinute,
			Message: "must be at least 1",
		}
	}
	if c.Dispatcher.QueueCapacity < 1 {
		return ValidationError{
			Field:   "dispatcher.queue_capacity",
			Value:   c.Dispatcher.QueueCapacity,
			Message: "must be at least 1",
		}
	}
	if c.Dispatcher.RetryDelaySeconds < 0 {
		return ValidationError{
			Field:   "dispatcher.retry_delay_seconds",
			Value:   c.Dispatcher.RetryDelaySeconds,
			Message: "must not be negative",
		}
	}
	if c.Dispatcher.DrainTimeoutSeconds < 0 {
		return ValidationError{
			Field:   "dispatcher.drain_timeout_seconds",
			Value:   c.Dispatcher.DrainTimeoutSeconds,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateRecovery() error {
	if c.Recovery.MaxReconnectAttempts < 1 {
		return ValidationError{
			Field:   "recovery.max_reconnect_attempts",
			Value:   c.Recovery.MaxReconnectAttempts,
			Message: "must be at least 1",
		}
	}
	if c.Recovery.BaseBackoffSeconds < 1 {
		return ValidationError{
			Field:   "recovery.base_backoff_seconds",
			Value:   c.Recovery.BaseBackoffSeconds,
			Message: "must be at least 1 second",
		}
	}
	if c.Recovery.MaxBackoffSeconds < c.Recovery.BaseBackoffSeconds {
		return ValidationError{
			Field:   "recovery.max_backoff_seconds",
			Value:   c.Recovery.MaxBackoffSeconds,
			Message: "must be at least the base backoff",
		}
	}
	if c.Recovery.CriticalThreshold < 1 || c.Recovery.CriticalThreshold > c.Recovery.MaxReconnectAttempts {
		return ValidationError{
			Field:   "recovery.critical_threshold",
			Value:   c.Recovery.CriticalThreshold,
			Message: "must be between 1 and max_reconnect_attempts",
		}
	}
	return nil
}

func (c *Config) validatePriceCache() error {
	if c.PriceCache.TTLSeconds < 1 {
		return ValidationError{
			Field:   "price_cache.ttl_seconds",
			Value:   c.PriceCache.TTLSeconds,
			Message: "must be at least 1 second",
		}
	}
	return nil
}

func (c *Config) validateArchive() error {
	if !c.Archive.Enabled {
		return nil
	}
	if c.Archive.BaseDir == "" {
		return ValidationError{
			Field:   "archive.base_dir",
			Message: "base directory is required when archiving is enabled",
		}
	}
	if c.Archive.RetentionDays < 0 {
		return ValidationError{
			Field:   "archive.retention_days",
			Value:   c.Archive.RetentionDays,
			Message: "must not be negative",
		}
	}
	return nil
}

func (c *Config) validateTelegram() error {
	if !c.Telegram.Enabled {
		return nil
	}
	if c.Telegram.BotToken == "" {
		return ValidationError{
			Field:   "telegram.bot_token",
			Message: "bot token is required when telegram is enabled",
		}
	}
	if len(c.Telegram.Whitelist) == 0 {
		return ValidationError{
			Field:   "telegram.whitelist",
			Message: "at least one recipient is required when telegram is enabled",
		}
	}
	return nil
}

func (c *Config) validateSystem() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.System.StatusIntervalSeconds < 1 {
		return ValidationError{
			Field:   "system.status_interval_seconds",
			Value:   c.System.StatusIntervalSeconds,
			Message: "must be at least 1 second",
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Telegram.BotToken = maskString(configCopy.Telegram.BotToken)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func defaultSingleThresholds() map[string]float64 {
	return map[string]float64{
		"BTCUSDT": 50,
		"ETHUSDT": 2000,
	}
}

// DefaultConfig returns the documented defaults; tests build on it
func DefaultConfig() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Name:    "binance",
			WSURL:   "wss://stream.binance.com:9443/ws",
			RestURL: "https://api.binance.com",
		},
		Symbols: []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
		LargeOrder: LargeOrderConfig{
			WindowMinutes:   5,
			ThresholdUsd:    2_000_000,
			CooldownMinutes: 10,
			ResetOnDispatch: true,
		},
		Taker: TakerConfig{
			SingleThresholds: defaultSingleThresholds(),
			Cumulative: CumulativeConfig{
				WindowSeconds: 60,
				ThresholdUsd:  1_000_000,
				MinOrders:     5,
			},
			Cooldown: TakerCooldownConfig{
				SingleSeconds:     60,
				CumulativeSeconds: 300,
			},
		},
		Dispatcher: DispatcherConfig{
			RateLimitPerMinute:  12,
			QueueCapacity:       1024,
			RetryDelaySeconds:   10,
			DrainTimeoutSeconds: 5,
			DrainPending:        true,
		},
		Recovery: RecoveryConfig{
			MaxReconnectAttempts: 10,
			BaseBackoffSeconds:   2,
			MaxBackoffSeconds:    300,
			CriticalThreshold:    3,
		},
		PriceCache: PriceCacheConfig{
			TTLSeconds: 60,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			BaseDir:       "data/trades",
			RetentionDays: 7,
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9102,
			EnableMetrics: true,
		},
		System: SystemConfig{
			LogLevel:              "INFO",
			StatusIntervalSeconds: 30,
		},
	}
}

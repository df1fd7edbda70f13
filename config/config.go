// Package config provides hspbot configuration loaded via Viper.
package config

import "time"

// Config is the root configuration for hspbot
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Booking BookingConfig `mapstructure:"booking"`
	Server  ServerConfig  `mapstructure:"server"`
	Data    DataConfig    `mapstructure:"data"`
}

// APIConfig configures the upstream booking API
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BookingConfig configures the booking race behaviour
type BookingConfig struct {
	ProductID            int64   `mapstructure:"product_id"`
	OpenOffsetDays       int     `mapstructure:"open_offset_days"`
	PollIntervalMS       int     `mapstructure:"poll_interval_ms"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
}

// ServerConfig configures the local HTTP/WebSocket server
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DataConfig configures where persistent state lives
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// HTTPTimeout returns the outbound HTTP timeout as a duration
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// PollInterval returns the scheduled-job polling interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Booking.PollIntervalMS) * time.Millisecond
}

// OpenOffset returns how long before course start registration opens
func (c *Config) OpenOffset() time.Duration {
	return time.Duration(c.Booking.OpenOffsetDays) * 24 * time.Hour
}

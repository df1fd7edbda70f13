package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Upstream booking API defaults
	v.SetDefault("api.base_url", "https://backbone-web-api.production.munster.delcom.nl")
	v.SetDefault("api.timeout_seconds", 15)

	// Booking race defaults
	v.SetDefault("booking.product_id", 285) // volleyball
	v.SetDefault("booking.open_offset_days", 6)
	v.SetDefault("booking.poll_interval_ms", 500)
	v.SetDefault("booking.max_requests_per_second", 4.0)

	// Local server defaults
	v.SetDefault("server.listen_addr", ":3000")

	// Data directory for token store and scheduled jobs
	v.SetDefault("data.dir", "data")
}

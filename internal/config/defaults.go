package config

import "github.com/spf13/viper"

// setDefaults seeds every key with its default value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.requests_per_second", 2.0)
	v.SetDefault("remote.timeout_seconds", 30)

	v.SetDefault("archive.path", "")
	v.SetDefault("archive.layout", "hierarchical")

	v.SetDefault("rules.path", "rules")

	v.SetDefault("transfers.confirmed_date_days", 2)
	v.SetDefault("transfers.suspected_date_days", 4)
	v.SetDefault("transfers.amount_tolerance", 0.0)
	v.SetDefault("transfers.fx_tolerance_percent", 5.0)

	v.SetDefault("sync.concurrency", 4)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

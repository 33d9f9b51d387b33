// Package config loads beansync's layered configuration: defaults,
// then an optional beansync.toml, then BEANSYNC_-prefixed environment
// variables. The file is optional because the API key alone, passed by
// environment, is enough to run a clone.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/beansync/beansync/internal/archive"
	"github.com/beansync/beansync/internal/remote"
	"github.com/beansync/beansync/internal/transfers"
)

// Config is the complete beansync configuration.
type Config struct {
	Remote    RemoteConfig    `toml:"remote" mapstructure:"remote"`
	Archive   ArchiveConfig   `toml:"archive" mapstructure:"archive"`
	Rules     RulesConfig     `toml:"rules" mapstructure:"rules"`
	Transfers TransfersConfig `toml:"transfers" mapstructure:"transfers"`
	Sync      SyncConfig      `toml:"sync" mapstructure:"sync"`
	Logging   LoggingConfig   `toml:"logging" mapstructure:"logging"`

	// configPath is the file the values came from, empty when only
	// defaults and environment applied.
	configPath string `toml:"-" mapstructure:"-"`
}

// Path returns the configuration file the values were loaded from.
func (c *Config) Path() string { return c.configPath }

// RemoteConfig holds the ledger-service connection settings.
type RemoteConfig struct {
	// APIKey is the developer key sent on every request.
	APIKey string `toml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the production API endpoint.
	BaseURL string `toml:"base_url" mapstructure:"base_url"`
	// RequestsPerSecond throttles the client.
	RequestsPerSecond float64 `toml:"requests_per_second" mapstructure:"requests_per_second"`
	// TimeoutSeconds bounds each HTTP request.
	TimeoutSeconds int `toml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// ClientConfig translates the section into the remote client's shape.
func (r RemoteConfig) ClientConfig() remote.ClientConfig {
	return remote.ClientConfig{
		BaseURL:           r.BaseURL,
		APIKey:            r.APIKey,
		RequestsPerSecond: r.RequestsPerSecond,
	}
}

// Timeout returns the per-request timeout.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ArchiveConfig holds the local archive settings.
type ArchiveConfig struct {
	// Path is the archive directory or primary file. Empty means the
	// working directory, letting the store auto-detect.
	Path string `toml:"path" mapstructure:"path"`
	// Layout selects "hierarchical" or "single" for clone targets.
	Layout string `toml:"layout" mapstructure:"layout"`
}

// StoreLayout maps the layout name onto the archive's enum.
func (a ArchiveConfig) StoreLayout() archive.Layout {
	if a.Layout == "single" {
		return archive.LayoutSingle
	}
	return archive.LayoutHierarchical
}

// RulesConfig holds the classification rule settings.
type RulesConfig struct {
	// Path is the rules file or directory.
	Path string `toml:"path" mapstructure:"path"`
}

// TransfersConfig holds the transfer-detection thresholds.
type TransfersConfig struct {
	ConfirmedDateDays  int      `toml:"confirmed_date_days" mapstructure:"confirmed_date_days"`
	SuspectedDateDays  int      `toml:"suspected_date_days" mapstructure:"suspected_date_days"`
	AmountTolerance    float64  `toml:"amount_tolerance" mapstructure:"amount_tolerance"`
	FXTolerancePercent float64  `toml:"fx_tolerance_percent" mapstructure:"fx_tolerance_percent"`
	FXAccounts         []string `toml:"fx_accounts" mapstructure:"fx_accounts"`
	NameVariations     []string `toml:"name_variations" mapstructure:"name_variations"`
}

// Criteria translates the section into detection criteria, starting
// from the detector's defaults so unset thresholds keep their meaning.
func (t TransfersConfig) Criteria() transfers.DetectionCriteria {
	c := transfers.DefaultCriteria()
	if t.ConfirmedDateDays > 0 {
		c.ConfirmedDateDays = t.ConfirmedDateDays
	}
	if t.SuspectedDateDays > 0 {
		c.SuspectedDateDays = t.SuspectedDateDays
	}
	if t.AmountTolerance > 0 {
		c.AmountTolerance = decimal.NewFromFloat(t.AmountTolerance)
	}
	if t.FXTolerancePercent > 0 {
		c.FXTolerancePercent = decimal.NewFromFloat(t.FXTolerancePercent)
	}
	if len(t.FXAccounts) > 0 {
		c.FXAccounts = append([]string(nil), t.FXAccounts...)
	}
	if len(t.NameVariations) > 0 {
		c.NameVariations = append([]string(nil), t.NameVariations...)
	}
	return c
}

// SyncConfig holds workflow settings.
type SyncConfig struct {
	// Concurrency bounds parallel remote updates during push.
	Concurrency int `toml:"concurrency" mapstructure:"concurrency"`
}

// LoggingConfig holds the diagnostic logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" mapstructure:"level"`
	// Format is "console" or "json".
	Format string `toml:"format" mapstructure:"format"`
}

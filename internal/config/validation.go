package config

import "fmt"

// Validate checks the configuration for values no workflow could use.
// The API key is deliberately not required here: local-only commands
// run without one, and the CLI enforces it for remote commands.
func (c *Config) Validate() error {
	if c.Remote.RequestsPerSecond <= 0 {
		return fmt.Errorf("remote.requests_per_second must be positive, got %v", c.Remote.RequestsPerSecond)
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be positive, got %d", c.Remote.TimeoutSeconds)
	}

	switch c.Archive.Layout {
	case "hierarchical", "single":
	default:
		return fmt.Errorf("archive.layout must be \"hierarchical\" or \"single\", got %q", c.Archive.Layout)
	}

	if c.Transfers.ConfirmedDateDays < 0 {
		return fmt.Errorf("transfers.confirmed_date_days must not be negative, got %d", c.Transfers.ConfirmedDateDays)
	}
	if c.Transfers.SuspectedDateDays < c.Transfers.ConfirmedDateDays {
		return fmt.Errorf("transfers.suspected_date_days (%d) must not be below transfers.confirmed_date_days (%d)",
			c.Transfers.SuspectedDateDays, c.Transfers.ConfirmedDateDays)
	}
	if c.Transfers.AmountTolerance < 0 {
		return fmt.Errorf("transfers.amount_tolerance must not be negative, got %v", c.Transfers.AmountTolerance)
	}
	if c.Transfers.FXTolerancePercent < 0 || c.Transfers.FXTolerancePercent > 100 {
		return fmt.Errorf("transfers.fx_tolerance_percent must be between 0 and 100, got %v", c.Transfers.FXTolerancePercent)
	}

	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}

package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if c.HTTP.Timeout <= 0 || c.HTTP.Timeout > MaxHTTPTimeout {
		return fmt.Errorf("http timeout must be > 0 and <= %s", MaxHTTPTimeout)
	}
	if c.Pipeline.Workers <= 0 || c.Pipeline.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", MaxWorkers)
	}
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0")
	}
	if c.Pipeline.CallTimeout <= 0 {
		return fmt.Errorf("pipeline call timeout must be > 0")
	}
	if c.Browser.MaxSessions <= 0 || c.Browser.MaxSessions > MaxBrowserSessions {
		return fmt.Errorf("browser max sessions must be between 1 and %d", MaxBrowserSessions)
	}
	if c.API.MaxPages <= 0 {
		return fmt.Errorf("api max pages must be > 0")
	}

	for name, p := range map[string]RatePolicy{
		"static":  c.Static.Rate,
		"api":     c.API.Rate,
		"dynamic": c.Dynamic.Rate,
	} {
		switch strings.ToLower(p.Policy) {
		case PolicyNone, PolicyQuota:
		case PolicyFixed:
			if p.Delay <= 0 {
				return fmt.Errorf("%s: fixed rate policy needs a delay > 0", name)
			}
		default:
			return fmt.Errorf("%s: unknown rate policy %q", name, p.Policy)
		}
	}

	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite", "postgres", "json":
		if c.Store.DSN == "" {
			return fmt.Errorf("store %s needs a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q (expected memory, sqlite, postgres or json)", c.Store.Driver)
	}
	return nil
}

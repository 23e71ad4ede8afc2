package conf

import (
	"fmt"
	"strings"
)

// ValidateSettings checks the loaded settings for values that would make the
// pipeline misbehave at runtime. It returns the first problem found.
func ValidateSettings(settings *Settings) error {
	if err := validateThresholds(&settings.Identify.Thresholds); err != nil {
		return err
	}
	if err := validateRetry(&settings.Identify.Retry); err != nil {
		return err
	}
	if settings.Identify.TimeoutMS <= 0 {
		return fmt.Errorf("identify.timeoutms must be positive, got %d", settings.Identify.TimeoutMS)
	}
	if err := validateOutput(&settings.Output); err != nil {
		return err
	}
	if settings.Security.ReviewerRole == "" {
		return fmt.Errorf("security.reviewerrole must not be empty")
	}
	return nil
}

func validateThresholds(t *ThresholdSettings) error {
	for name, v := range map[string]float64{
		"species": t.Species,
		"bird":    t.Bird,
		"macro":   t.Macro,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("identify.thresholds.%s must be between 0.0 and 1.0, got %f", name, v)
		}
	}
	return nil
}

func validateRetry(r *RetrySettings) error {
	if r.MaxAttempts < 1 {
		return fmt.Errorf("identify.retry.maxattempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.DelayMS < 0 {
		return fmt.Errorf("identify.retry.delayms must not be negative, got %d", r.DelayMS)
	}
	if r.MaxDelayMS < r.DelayMS {
		return fmt.Errorf("identify.retry.maxdelayms (%d) must not be below delayms (%d)", r.MaxDelayMS, r.DelayMS)
	}
	switch strings.ToLower(r.Backoff) {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("identify.retry.backoff must be fixed, linear or exponential, got %q", r.Backoff)
	}
	return nil
}

func validateOutput(o *OutputSettings) error {
	if !o.SQLite.Enabled && !o.MySQL.Enabled {
		return fmt.Errorf("either output.sqlite or output.mysql must be enabled")
	}
	if o.SQLite.Enabled && o.SQLite.Path == "" {
		return fmt.Errorf("output.sqlite.path must not be empty when SQLite is enabled")
	}
	if o.MySQL.Enabled {
		if o.MySQL.Host == "" || o.MySQL.Port == "" {
			return fmt.Errorf("output.mysql.host and output.mysql.port must be set when MySQL is enabled")
		}
		if o.MySQL.Database == "" {
			return fmt.Errorf("output.mysql.database must not be empty when MySQL is enabled")
		}
	}
	return nil
}

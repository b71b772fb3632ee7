package utils

import (
	"fmt"
	"time"
)

// ParseTimeoutWithDefault parses a duration string from configuration,
// falling back to the default when the value is empty.
func ParseTimeoutWithDefault(value, name string, defaultValue time.Duration) (time.Duration, error) {
	if value == "" {
		return defaultValue, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout value for %s: %q", name, value)
	}

	if duration < 0 {
		return 0, fmt.Errorf("timeout value for %s cannot be negative: %q", name, value)
	}

	return duration, nil
}

package auth

import "time"

// IsOutsideThresholdPeriod reports whether t lies further in the past than
// the duration described by pattern (e.g. "24h").
func IsOutsideThresholdPeriod(t time.Time, pattern string) (bool, error) {
	threshold, err := time.ParseDuration(pattern)
	if err != nil {
		return false, err
	}
	return time.Since(t) > threshold, nil
}

package risk

import (
	"time"

	"github.com/nixlim/fieldwatch/internal/config"
)

// Config holds the rule thresholds.
type Config struct {
	// DuplicateWindow links two submissions from one device when their gap is
	// strictly below it.
	DuplicateWindow time.Duration
	// DuplicateHigh raises a burst to high severity when its smallest gap is
	// strictly below it.
	DuplicateHigh time.Duration

	PatternMinResponses       int
	FastCompletionRatio       float64
	DefaultSecondsPerQuestion float64

	// DeviceClusterThreshold is the number of distinct device ids a
	// fingerprint cluster must exceed to be flagged.
	DeviceClusterThreshold int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		DuplicateWindow:           10 * time.Minute,
		DuplicateHigh:             5 * time.Minute,
		PatternMinResponses:       3,
		FastCompletionRatio:       0.2,
		DefaultSecondsPerQuestion: 60,
		DeviceClusterThreshold:    2,
	}
}

// ConfigFrom converts the [detection] config section.
func ConfigFrom(d config.DetectionConfig) Config {
	return Config{
		DuplicateWindow:           minutes(d.DuplicateWindowMinutes),
		DuplicateHigh:             minutes(d.DuplicateHighMinutes),
		PatternMinResponses:       d.PatternMinResponses,
		FastCompletionRatio:       d.FastCompletionRatio,
		DefaultSecondsPerQuestion: d.DefaultSecondsPerQuestion,
		DeviceClusterThreshold:    d.DeviceClusterThreshold,
	}
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

package resilience

import (
	"time"
)

// FromRetryConfig builds a RetryConfig from the configured attempt budget.
// Backoff shape keeps the package defaults.
func FromRetryConfig(maxAttempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, cooldownSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.ResetTimeout = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

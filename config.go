package conductor

import (
	"fmt"
	"time"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from JSON, YAML, environment variables, etc. The
// zero-value is useful; all nested fields inherit their package defaults.
type Config struct {
	Executor     ExecutorConfig     `json:"executor" yaml:"executor"`
	Notification NotificationConfig `json:"notification" yaml:"notification"`
	Status       StatusConfig       `json:"status" yaml:"status"`
}

type ExecutorConfig struct {
	// StepTimeout bounds an agent call when the step declares no timeout,
	// e.g. "30s".
	StepTimeout string `json:"stepTimeout" yaml:"stepTimeout"`
}

func (c *ExecutorConfig) stepTimeout() time.Duration {
	return parseDuration(c.StepTimeout, 30*time.Second)
}

type NotificationConfig struct {
	Workers        int    `json:"workers" yaml:"workers"`
	MaxRetries     int    `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay     string `json:"retryDelay" yaml:"retryDelay"`
	RequestTimeout string `json:"requestTimeout" yaml:"requestTimeout"`
}

func (c *NotificationConfig) retryDelay() time.Duration {
	return parseDuration(c.RetryDelay, 500*time.Millisecond)
}

func (c *NotificationConfig) requestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

type StatusConfig struct {
	// GraceDelay is how long subscriber channels stay open after a terminal
	// transition, e.g. "100ms".
	GraceDelay string `json:"graceDelay" yaml:"graceDelay"`
}

func (c *StatusConfig) graceDelay() time.Duration {
	return parseDuration(c.GraceDelay, 100*time.Millisecond)
}

// DefaultConfig returns a Config populated with the package defaults.
// Callers may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{StepTimeout: "30s"},
		Notification: NotificationConfig{
			Workers:        3,
			MaxRetries:     3,
			RetryDelay:     "500ms",
			RequestTimeout: "10s",
		},
		Status: StatusConfig{GraceDelay: "100ms"},
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Notification.Workers < 0 {
		return fmt.Errorf("notification.workers must be >= 0")
	}
	if c.Notification.MaxRetries < 0 {
		return fmt.Errorf("notification.maxRetries must be >= 0")
	}
	for _, value := range []string{
		c.Executor.StepTimeout,
		c.Notification.RetryDelay,
		c.Notification.RequestTimeout,
		c.Status.GraceDelay,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
	}
	return nil
}

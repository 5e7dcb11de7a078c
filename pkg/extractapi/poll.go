package extractapi

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInterval = 1500 * time.Millisecond
	defaultMaxAttempts  = 80
)

// ErrPollExhausted is returned by PollTask when the task is still live after
// the attempt budget.
var ErrPollExhausted = eris.New("extractapi: poll attempts exhausted")

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval    time.Duration
	maxAttempts int
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		interval:    defaultPollInterval,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithPollInterval overrides the fixed delay between status requests.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithMaxAttempts overrides the number of status requests before giving up.
func WithMaxAttempts(n int) PollOption {
	return func(c *pollConfig) {
		c.maxAttempts = n
	}
}

// PollTask polls GetTaskStatus at a fixed interval until the task reaches a
// terminal state, the attempt budget runs out, or the context expires. Both
// terminal states return a nil error; callers branch on TaskStatus.State and
// read Result or Error from the status. When the budget runs out the last
// observed status is returned alongside ErrPollExhausted.
func PollTask(ctx context.Context, client Client, taskID string, opts ...PollOption) (*TaskStatus, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	for attempt := 1; ; attempt++ {
		status, err := client.GetTaskStatus(ctx, taskID)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("extractapi: poll task %s", taskID))
		}
		if status.Terminal() {
			return status, nil
		}
		if attempt >= cfg.maxAttempts {
			return status, ErrPollExhausted
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), fmt.Sprintf("extractapi: poll task %s interrupted", taskID))
		case <-time.After(cfg.interval):
		}
	}
}

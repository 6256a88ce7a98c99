package service

import (
	"context"
	"time"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"go.uber.org/zap"
)

// WaitOptions bounds a wait for a concurrent request's provider resource.
type WaitOptions struct {
	MaxWait      time.Duration
	PollInterval time.Duration
}

var DefaultWaitOptions = WaitOptions{
	MaxWait:      1500 * time.Millisecond,
	PollInterval: 150 * time.Millisecond,
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultWaitOptions.MaxWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultWaitOptions.PollInterval
	}
	if o.PollInterval > o.MaxWait {
		o.PollInterval = o.MaxWait
	}
	return o
}

// WaitForExistingStripeResource polls the attempt until a checkout session or
// payment intent id shows up, and returns it. It returns nil, nil once the window
// elapses. An attempt that turns failed or canceled is returned immediately,
// without a resource. Zero options fall back to the service defaults.
func (s *AttemptService) WaitForExistingStripeResource(ctx context.Context, attemptID string, opts WaitOptions) (*domain.PaymentAttempt, error) {
	if opts == (WaitOptions{}) {
		opts = s.wait
	}
	opts = opts.withDefaults()

	start := time.Now()
	deadline := time.NewTimer(opts.MaxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	finish := func(outcome string) {
		waiterOutcomes.WithLabelValues(outcome).Inc()
		waiterDuration.Observe(time.Since(start).Seconds())
	}

	// poll reports done once the attempt can end the wait.
	poll := func() (*domain.PaymentAttempt, bool, error) {
		attempt, err := s.store.GetAttempt(ctx, attemptID)
		if err != nil {
			finish(outcomeError)
			return nil, true, err
		}
		if attempt == nil {
			finish(outcomeError)
			return nil, true, &domain.NotFoundError{Resource: "payment attempt", ID: attemptID}
		}
		if HasStripeResource(attempt) {
			finish(outcomeFound)
			return attempt, true, nil
		}
		if attempt.Status.Closed() {
			finish(outcomeClosed)
			return attempt, true, nil
		}
		return nil, false, nil
	}

	for {
		select {
		case <-ctx.Done():
			finish(outcomeCanceled)
			return nil, ctx.Err()
		case <-deadline.C:
			// The last tick can coincide with the deadline; look once more before giving up.
			if attempt, done, err := poll(); done {
				return attempt, err
			}
			finish(outcomeTimeout)
			s.log.Info("gave up waiting for provider resource",
				zap.String("attempt_id", attemptID),
				zap.Duration("waited", time.Since(start)),
			)
			return nil, nil
		case <-ticker.C:
			if attempt, done, err := poll(); done {
				return attempt, err
			}
		}
	}
}

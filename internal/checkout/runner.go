// Package checkout runs the payment-initiating flows on top of the attempt
// lifecycle: fingerprint, ensure, claim, then either one provider call or the
// resource an earlier request already created.
package checkout

import (
	"context"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/provider"
	"github.com/cicconel11/TeamMeet/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Attempts  *service.AttemptService
	Directory domain.Directory
	Provider  provider.Provider
	Config    *config.Config
	Log       *zap.Logger
}

// runner holds what both orchestrators share.
type runner struct {
	attempts  *service.AttemptService
	directory domain.Directory
	provider  provider.Provider
	cfg       *config.Config
	log       *zap.Logger
	wait      service.WaitOptions
}

func newRunner(p Params, name string) runner {
	return runner{
		attempts:  p.Attempts,
		directory: p.Directory,
		provider:  p.Provider,
		cfg:       p.Config,
		log:       p.Log.Named(name),
	}
}

// begin ensures the attempt and tries to claim it for this request.
func (r *runner) begin(ctx context.Context, ensure service.EnsureParams) (*service.ClaimResult, error) {
	attempt, err := r.attempts.EnsurePaymentAttempt(ctx, ensure)
	if err != nil {
		return nil, err
	}
	return r.attempts.ClaimPaymentAttempt(ctx, service.ClaimParams{
		Attempt:                  attempt,
		AmountCents:              ensure.AmountCents,
		Currency:                 ensure.Currency,
		StripeConnectedAccountID: ensure.StripeConnectedAccountID,
		RequestFingerprint:       ensure.RequestFingerprint,
	})
}

// existing resolves an attempt this request did not claim. It returns the attempt
// once usable reports it can be served, waiting briefly for a concurrent winner.
func (r *runner) existing(ctx context.Context, attempt *domain.PaymentAttempt, usable func(*domain.PaymentAttempt) bool) (*domain.PaymentAttempt, error) {
	if usable(attempt) {
		return attempt, nil
	}
	if attempt.Status.Closed() {
		return nil, closedError(attempt)
	}

	awaited, err := r.attempts.WaitForExistingStripeResource(ctx, attempt.ID, r.wait)
	if err != nil {
		return nil, err
	}
	if awaited != nil && usable(awaited) {
		return awaited, nil
	}
	if awaited != nil && awaited.Status.Closed() {
		return nil, closedError(awaited)
	}

	r.log.Info("payment still in flight for idempotency key",
		zap.String("attempt_id", attempt.ID),
		zap.String("idempotency_key", attempt.IdempotencyKey),
	)
	return nil, &domain.InFlightError{IdempotencyKey: attempt.IdempotencyKey, AttemptID: attempt.ID}
}

// providerFailed records the failure on the attempt and wraps it for the caller.
// markFailed closes the attempt; use it only when no provider object was created.
func (r *runner) providerFailed(ctx context.Context, attempt *domain.PaymentAttempt, err error, markFailed bool) error {
	r.log.Error("payment provider call failed",
		zap.String("attempt_id", attempt.ID),
		zap.String("idempotency_key", attempt.IdempotencyKey),
		zap.String("flow", string(attempt.FlowType)),
		zap.Error(err),
	)
	r.attempts.RecordFailure(ctx, service.AttemptRef{ID: attempt.ID, IdempotencyKey: attempt.IdempotencyKey}, err.Error(), markFailed)
	return &domain.ProviderError{IdempotencyKey: attempt.IdempotencyKey, AttemptID: attempt.ID, Err: err}
}

func (r *runner) origin(requested string) string {
	if o := strings.TrimRight(strings.TrimSpace(requested), "/"); o != "" {
		return o
	}
	return r.cfg.PublicOrigin
}

func closedError(a *domain.PaymentAttempt) error {
	e := &domain.AttemptClosedError{IdempotencyKey: a.IdempotencyKey, AttemptID: a.ID, Status: a.Status}
	if a.LastError != nil {
		e.LastError = *a.LastError
	}
	return e
}

func processing() *domain.AttemptStatus {
	s := domain.StatusProcessing
	return &s
}

func ptr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func copyMetadata(md map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(md)+len(extra))
	for k, v := range md {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

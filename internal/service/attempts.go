package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/clock"
	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/fingerprint"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 255

type Params struct {
	fx.In

	Store  domain.AttemptStore
	Log    *zap.Logger
	Clock  clock.Clock
	Config *config.Config `optional:"true"`
}

// AttemptService owns the payment attempt lifecycle. All coordination between
// concurrent requests goes through the store; the service keeps no shared state.
type AttemptService struct {
	store domain.AttemptStore
	log   *zap.Logger
	clock clock.Clock
	wait  WaitOptions
}

func NewAttemptService(p Params) *AttemptService {
	wait := DefaultWaitOptions
	if p.Config != nil {
		wait = WaitOptions{MaxWait: p.Config.WaiterMaxWait, PollInterval: p.Config.WaiterPollInterval}.withDefaults()
	}
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &AttemptService{
		store: p.Store,
		log:   p.Log.Named("payments.attempts"),
		clock: c,
		wait:  wait,
	}
}

// EnsureParams describes the attempt a request wants to run under.
type EnsureParams struct {
	// PaymentAttemptID loads an existing attempt instead of creating one.
	PaymentAttemptID string
	// IdempotencyKey is generated when empty.
	IdempotencyKey string

	FlowType                 domain.FlowType
	AmountCents              int64
	Currency                 string
	OrganizationID           *string
	UserID                   *string
	StripeConnectedAccountID *string
	RequestFingerprint       string
	Metadata                 map[string]string
}

// EnsurePaymentAttempt returns the attempt for the request, creating it on first
// sighting of its key. An existing row is returned unchanged; whether it still
// matches the request is decided at claim time.
func (s *AttemptService) EnsurePaymentAttempt(ctx context.Context, p EnsureParams) (*domain.PaymentAttempt, error) {
	currency, err := validateEnsure(&p)
	if err != nil {
		return nil, err
	}

	if p.PaymentAttemptID != "" {
		attempt, err := s.store.GetAttempt(ctx, p.PaymentAttemptID)
		if err != nil {
			return nil, err
		}
		if attempt == nil {
			return nil, &domain.NotFoundError{Resource: "payment attempt", ID: p.PaymentAttemptID}
		}
		if p.IdempotencyKey != "" && p.IdempotencyKey != attempt.IdempotencyKey {
			return nil, &domain.ConflictError{
				IdempotencyKey: p.IdempotencyKey,
				AttemptID:      attempt.ID,
				Reason:         "payment attempt belongs to another idempotency key",
			}
		}
		attemptsEnsured.WithLabelValues(string(p.FlowType), outcomeLoaded).Inc()
		return attempt, nil
	}

	key := p.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	} else {
		existing, err := s.store.GetAttemptByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			attemptsEnsured.WithLabelValues(string(p.FlowType), outcomeExisting).Inc()
			return existing, nil
		}
	}

	now := s.clock.Now()
	attempt := &domain.PaymentAttempt{
		ID:                       uuid.NewString(),
		IdempotencyKey:           key,
		FlowType:                 p.FlowType,
		AmountCents:              p.AmountCents,
		Currency:                 currency,
		OrganizationID:           nonEmpty(p.OrganizationID),
		UserID:                   nonEmpty(p.UserID),
		StripeConnectedAccountID: nonEmpty(p.StripeConnectedAccountID),
		RequestFingerprint:       p.RequestFingerprint,
		Status:                   domain.StatusCreated,
		Metadata:                 p.Metadata,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	inserted, err := s.store.InsertAttempt(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if inserted {
		attemptsEnsured.WithLabelValues(string(p.FlowType), outcomeCreated).Inc()
		s.log.Debug("payment attempt created",
			zap.String("attempt_id", attempt.ID),
			zap.String("idempotency_key", key),
			zap.String("flow", string(p.FlowType)),
		)
		return attempt, nil
	}

	// Lost the insert race; the winner's row is authoritative.
	winner, err := s.store.GetAttemptByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("payment attempt for key %q vanished after insert conflict", key)
	}
	attemptsEnsured.WithLabelValues(string(p.FlowType), outcomeRaced).Inc()
	return winner, nil
}

func validateEnsure(p *EnsureParams) (string, error) {
	p.PaymentAttemptID = strings.TrimSpace(p.PaymentAttemptID)
	p.IdempotencyKey = strings.TrimSpace(p.IdempotencyKey)

	if !p.FlowType.Valid() {
		return "", domain.ErrInvalidFlow
	}
	if p.AmountCents < 0 {
		return "", domain.ErrInvalidAmount
	}
	currency := fingerprint.NormalizeCurrency(p.Currency)
	if !validCurrency(currency) {
		return "", domain.ErrInvalidCurrency
	}
	if strings.TrimSpace(p.RequestFingerprint) == "" {
		return "", domain.ErrInvalidFingerprint
	}
	if len(p.IdempotencyKey) > maxIdempotencyKeyLen {
		return "", fmt.Errorf("%w: idempotency key longer than %d characters", domain.ErrInvalidRequest, maxIdempotencyKeyLen)
	}
	return currency, nil
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ClaimParams carries what the current request presents for an attempt.
type ClaimParams struct {
	Attempt                  *domain.PaymentAttempt
	AmountCents              int64
	Currency                 string
	StripeConnectedAccountID *string
	RequestFingerprint       string
}

type ClaimResult struct {
	Attempt *domain.PaymentAttempt
	// Claimed is true for exactly one caller per attempt: the one allowed to call the provider.
	Claimed bool
}

// ClaimPaymentAttempt moves a created attempt to processing for exactly one caller.
// The status is re-read from the store and the transition is a single conditional
// update there. A request that does not match the recorded one is rejected with a
// ConflictError whatever the status, and the row is left untouched.
func (s *AttemptService) ClaimPaymentAttempt(ctx context.Context, p ClaimParams) (*ClaimResult, error) {
	if p.Attempt == nil {
		return nil, fmt.Errorf("%w: attempt is required", domain.ErrInvalidRequest)
	}

	current, err := s.store.GetAttempt(ctx, p.Attempt.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &domain.NotFoundError{Resource: "payment attempt", ID: p.Attempt.ID}
	}
	flow := string(current.FlowType)

	if reason := mismatch(current, p); reason != "" {
		attemptClaims.WithLabelValues(flow, outcomeConflict).Inc()
		s.log.Warn("idempotency key reused for a different request",
			zap.String("attempt_id", current.ID),
			zap.String("idempotency_key", current.IdempotencyKey),
			zap.String("reason", reason),
		)
		return nil, &domain.ConflictError{
			IdempotencyKey: current.IdempotencyKey,
			AttemptID:      current.ID,
			Reason:         reason,
		}
	}

	if current.Status != domain.StatusCreated {
		outcome := outcomeExisting
		if current.Status.Closed() {
			outcome = outcomeClosed
		}
		attemptClaims.WithLabelValues(flow, outcome).Inc()
		return &ClaimResult{Attempt: current, Claimed: false}, nil
	}

	now := s.clock.Now()
	swapped, err := s.store.CompareAndSwapStatus(ctx, current.ID, domain.StatusCreated, domain.StatusProcessing, now)
	if err != nil {
		return nil, err
	}
	if swapped {
		attemptClaims.WithLabelValues(flow, outcomeClaimed).Inc()
		current.Status = domain.StatusProcessing
		current.UpdatedAt = now
		return &ClaimResult{Attempt: current, Claimed: true}, nil
	}

	attemptClaims.WithLabelValues(flow, outcomeLost).Inc()
	latest, err := s.store.GetAttempt(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, &domain.NotFoundError{Resource: "payment attempt", ID: current.ID}
	}
	return &ClaimResult{Attempt: latest, Claimed: false}, nil
}

func mismatch(recorded *domain.PaymentAttempt, p ClaimParams) string {
	switch {
	case recorded.RequestFingerprint != p.RequestFingerprint:
		return "request fingerprint differs"
	case recorded.AmountCents != p.AmountCents:
		return "amount differs"
	case recorded.Currency != fingerprint.NormalizeCurrency(p.Currency):
		return "currency differs"
	case deref(recorded.StripeConnectedAccountID) != deref(p.StripeConnectedAccountID):
		return "connected account differs"
	}
	return ""
}

// UpdatePaymentAttempt merges the patch into the attempt. Provider ids keep the
// first value ever written; every other field takes the latest write.
func (s *AttemptService) UpdatePaymentAttempt(ctx context.Context, id string, patch domain.AttemptPatch) error {
	if patch.Empty() {
		return nil
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, *patch.Status)
	}
	return s.store.UpdateAttempt(ctx, id, patch, s.clock.Now())
}

// AttemptRef identifies an attempt by id, or by key when the id is not known yet.
type AttemptRef struct {
	ID             string
	IdempotencyKey string
}

// RecordFailure stores the error text on the attempt and, if markFailed is set,
// moves it to failed. It is best effort: errors are logged and dropped so the
// caller can still return the original failure.
func (s *AttemptService) RecordFailure(ctx context.Context, ref AttemptRef, message string, markFailed bool) {
	patch := domain.AttemptPatch{LastError: &message}
	if markFailed {
		failed := domain.StatusFailed
		patch.Status = &failed
	}

	var err error
	now := s.clock.Now()
	switch {
	case ref.ID != "":
		err = s.store.UpdateAttempt(ctx, ref.ID, patch, now)
	case ref.IdempotencyKey != "":
		err = s.store.UpdateAttemptByKey(ctx, ref.IdempotencyKey, patch, now)
	default:
		return
	}
	if err != nil {
		s.log.Error("failed to record payment attempt error",
			zap.String("attempt_id", ref.ID),
			zap.String("idempotency_key", ref.IdempotencyKey),
			zap.Error(err),
		)
	}
}

// GetPaymentAttempt loads an attempt by id.
func (s *AttemptService) GetPaymentAttempt(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	attempt, err := s.store.GetAttempt(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, &domain.NotFoundError{Resource: "payment attempt", ID: id}
	}
	return attempt, nil
}

// HasStripeResource reports whether a provider object was already recorded for the attempt.
func HasStripeResource(a *domain.PaymentAttempt) bool {
	if a == nil {
		return false
	}
	return deref(a.StripeCheckoutSessionID) != "" || deref(a.StripePaymentIntentID) != ""
}

func nonEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

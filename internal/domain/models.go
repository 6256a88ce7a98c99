package domain

import (
	"context"
	"time"
)

// FlowType identifies which checkout flow created a payment attempt.
type FlowType string

const (
	FlowDonationCheckout      FlowType = "donation_checkout"
	FlowDonationPaymentIntent FlowType = "donation_payment_intent"
	FlowSubscriptionCheckout  FlowType = "subscription_checkout"
)

func (f FlowType) Valid() bool {
	switch f {
	case FlowDonationCheckout, FlowDonationPaymentIntent, FlowSubscriptionCheckout:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of a payment attempt.
type AttemptStatus string

const (
	StatusCreated    AttemptStatus = "created"
	StatusProcessing AttemptStatus = "processing"
	StatusSucceeded  AttemptStatus = "succeeded"
	StatusFailed     AttemptStatus = "failed"
	StatusCanceled   AttemptStatus = "canceled"
)

func (s AttemptStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Closed reports whether the attempt ended without the provider call going through.
func (s AttemptStatus) Closed() bool {
	return s == StatusFailed || s == StatusCanceled
}

// PaymentAttempt is the durable record of one logical payment request.
// The idempotency key is unique across all attempts and rows are never deleted.
type PaymentAttempt struct {
	ID                       string            `json:"id"`
	IdempotencyKey           string            `json:"idempotency_key"`
	FlowType                 FlowType          `json:"flow_type"`
	AmountCents              int64             `json:"amount_cents"`
	Currency                 string            `json:"currency"`
	OrganizationID           *string           `json:"organization_id,omitempty"`
	UserID                   *string           `json:"user_id,omitempty"`
	StripeConnectedAccountID *string           `json:"stripe_connected_account_id,omitempty"`
	RequestFingerprint       string            `json:"request_fingerprint"`
	Status                   AttemptStatus     `json:"status"`
	StripePaymentIntentID    *string           `json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID  *string           `json:"stripe_checkout_session_id,omitempty"`
	CheckoutURL              *string           `json:"checkout_url,omitempty"`
	LastError                *string           `json:"last_error,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
	UpdatedAt                time.Time         `json:"updated_at"`
}

// AttemptPatch is a partial update. Nil fields are left untouched.
type AttemptPatch struct {
	Status                   *AttemptStatus
	StripePaymentIntentID    *string
	StripeCheckoutSessionID  *string
	CheckoutURL              *string
	StripeConnectedAccountID *string
	LastError                *string
}

func (p AttemptPatch) Empty() bool {
	return p.Status == nil &&
		p.StripePaymentIntentID == nil &&
		p.StripeCheckoutSessionID == nil &&
		p.CheckoutURL == nil &&
		p.StripeConnectedAccountID == nil &&
		p.LastError == nil
}

// Organization is the subset of an organization row the payment flows read.
type Organization struct {
	ID                     string  `json:"id"`
	Slug                   string  `json:"slug"`
	Name                   string  `json:"name"`
	StripeConnectAccountID *string `json:"stripe_connect_account_id,omitempty"`
}

// AttemptStore is the durable store behind the lifecycle manager. It must provide
// a unique constraint on the idempotency key and single-statement conditional updates.
type AttemptStore interface {
	// InsertAttempt inserts the row unless its idempotency key already exists.
	// It reports whether this call created the row.
	InsertAttempt(ctx context.Context, attempt *PaymentAttempt) (bool, error)
	// GetAttempt returns nil, nil when the id is unknown.
	GetAttempt(ctx context.Context, id string) (*PaymentAttempt, error)
	// GetAttemptByKey returns nil, nil when the key is unknown.
	GetAttemptByKey(ctx context.Context, key string) (*PaymentAttempt, error)
	// CompareAndSwapStatus sets status to `to` only where the row is still in `from`.
	CompareAndSwapStatus(ctx context.Context, id string, from, to AttemptStatus, at time.Time) (bool, error)
	UpdateAttempt(ctx context.Context, id string, patch AttemptPatch, at time.Time) error
	UpdateAttemptByKey(ctx context.Context, key string, patch AttemptPatch, at time.Time) error
}

// Directory resolves the organization and event rows the orchestrators validate against.
type Directory interface {
	OrganizationByID(ctx context.Context, id string) (*Organization, error)
	OrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	EventBelongsTo(ctx context.Context, eventID, organizationID string) (bool, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

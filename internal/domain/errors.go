package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidFingerprint   = errors.New("request fingerprint is required")
	ErrInvalidFlow          = errors.New("invalid flow type")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrOrganizationNotReady = errors.New("stripe onboarding is not completed for this organization")
	ErrDonationsDisabled    = errors.New("stripe is not connected for this organization")
	ErrSlugTaken            = errors.New("slug is already taken")
	ErrSalesLed             = errors.New("this plan is sold through sales; contact us to continue")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrPlanUnavailable      = errors.New("this plan is not available right now")
)

// ConflictError means an idempotency key was reused for a semantically different
// request. It is never retried automatically.
type ConflictError struct {
	IdempotencyKey string
	AttemptID      string
	Reason         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q was already used for a different request (%s)", e.IdempotencyKey, e.Reason)
}

// InFlightError means another request holds the claim and its provider resource
// is not visible yet. Retrying with the same key is safe.
type InFlightError struct {
	IdempotencyKey string
	AttemptID      string
}

func (e *InFlightError) Error() string {
	return "payment is already in progress for this idempotency key; retry shortly with the same key"
}

// AttemptClosedError means the attempt failed or was canceled before any provider
// resource was recorded. The key cannot be reused.
type AttemptClosedError struct {
	IdempotencyKey string
	AttemptID      string
	Status         AttemptStatus
	LastError      string
}

func (e *AttemptClosedError) Error() string {
	msg := fmt.Sprintf("payment attempt is %s; start a new payment with a new idempotency key", e.Status)
	if e.LastError != "" {
		msg += ": " + e.LastError
	}
	return msg
}

// ProviderError wraps a failed call to the payment provider after a successful claim.
type ProviderError struct {
	IdempotencyKey string
	AttemptID      string
	Err            error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

package models

import "github.com/shopspring/decimal"

// DonationRequest is the payload of POST /api/v1/donations. Amount is in major
// units, e.g. 25.00 for $25.
type DonationRequest struct {
	OrganizationID         string           `json:"organizationId"`
	OrganizationSlug       string           `json:"organizationSlug"`
	Amount                 decimal.Decimal  `json:"amount"`
	Currency               string           `json:"currency"`
	DonorName              *string          `json:"donorName"`
	DonorEmail             *string          `json:"donorEmail"`
	EventID                *string          `json:"eventId"`
	Purpose                *string          `json:"purpose"`
	Mode                   string           `json:"mode"`
	IdempotencyKey         string           `json:"idempotencyKey"`
	PaymentAttemptID       string           `json:"paymentAttemptId"`
	PlatformFeeAmountCents *decimal.Decimal `json:"platformFeeAmountCents"`
}

// OrgCheckoutRequest is the payload of POST /api/v1/organizations/checkout.
type OrgCheckoutRequest struct {
	Name             string  `json:"name"`
	Slug             string  `json:"slug"`
	Description      string  `json:"description"`
	PrimaryColor     *string `json:"primaryColor"`
	BillingInterval  string  `json:"billingInterval"`
	AlumniBucket     string  `json:"alumniBucket"`
	IdempotencyKey   string  `json:"idempotencyKey"`
	PaymentAttemptID string  `json:"paymentAttemptId"`
}

// ErrorResponse is the body of every non-2xx response. Idempotency failures also
// name the key and attempt so the client can decide whether to retry.
type ErrorResponse struct {
	Error            string `json:"error"`
	IdempotencyKey   string `json:"idempotencyKey,omitempty"`
	PaymentAttemptID string `json:"paymentAttemptId,omitempty"`
	Retryable        *bool  `json:"retryable,omitempty"`
}

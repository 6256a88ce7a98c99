// Package provider is the contract the checkout orchestrators hold against the
// external payment provider. Every create call carries the attempt's idempotency
// key so the provider deduplicates retries on its side as well.
package provider

import "context"

type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// LineItem is either inline price data (Name, UnitAmountCents, Currency) or a
// reference to a configured price.
type LineItem struct {
	PriceID         string
	Name            string
	UnitAmountCents int64
	Currency        string
	Quantity        int64
	ProductMetadata map[string]string
}

type CheckoutSessionParams struct {
	Mode          CheckoutMode
	SubmitType    string
	LineItems     []LineItem
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string

	// Applied to the payment intent of a payment-mode session.
	PaymentIntentMetadata map[string]string
	ReceiptEmail          string
	ApplicationFeeCents   int64

	// Applied to the subscription of a subscription-mode session.
	SubscriptionMetadata map[string]string

	// ConnectedAccountID creates the session on a connected account when set.
	ConnectedAccountID string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type PaymentIntentParams struct {
	AmountCents         int64
	Currency            string
	ReceiptEmail        string
	Description         string
	Metadata            map[string]string
	ApplicationFeeCents int64
	ConnectedAccountID  string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Provider creates and reads payment objects. Create calls must be idempotent
// per key on the provider side.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams, idempotencyKey string) (*CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams, idempotencyKey string) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id, connectedAccountID string) (*PaymentIntent, error)
	UpdatePaymentIntentMetadata(ctx context.Context, id string, metadata map[string]string, connectedAccountID, idempotencyKey string) error
	// ConnectAccountReady reports whether a connected account can take charges.
	ConnectAccountReady(ctx context.Context, accountID string) (bool, error)
}

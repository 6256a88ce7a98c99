package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/provider"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Client implements provider.Provider on the Stripe API.
type Client struct {
	api *client.API
	log *zap.Logger
}

func New(secretKey string, log *zap.Logger) *Client {
	return NewWithBackends(secretKey, nil, log)
}

// NewWithBackends lets callers point the client at a different API host.
func NewWithBackends(secretKey string, backends *stripe.Backends, log *zap.Logger) *Client {
	return &Client{
		api: client.New(secretKey, backends),
		log: log.Named("payments.stripe"),
	}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p provider.CheckoutSessionParams, idempotencyKey string) (*provider.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(p.Mode)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	if p.SubmitType != "" {
		params.SubmitType = stripe.String(p.SubmitType)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}

	for _, item := range p.LineItems {
		li := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(quantity(item.Quantity))}
		if item.PriceID != "" {
			li.Price = stripe.String(item.PriceID)
		} else {
			li.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:     stripe.String(item.Name),
					Metadata: item.ProductMetadata,
				},
			}
		}
		params.LineItems = append(params.LineItems, li)
	}

	switch p.Mode {
	case provider.ModePayment:
		pi := &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: p.PaymentIntentMetadata}
		if p.ReceiptEmail != "" {
			pi.ReceiptEmail = stripe.String(p.ReceiptEmail)
		}
		if p.ApplicationFeeCents > 0 {
			pi.ApplicationFeeAmount = stripe.Int64(p.ApplicationFeeCents)
		}
		params.PaymentIntentData = pi
	case provider.ModeSubscription:
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.SubscriptionMetadata}
	}

	params.SetIdempotencyKey(idempotencyKey)
	if p.ConnectedAccountID != "" {
		params.SetStripeAccount(p.ConnectedAccountID)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, c.wrap("create checkout session", err)
	}

	out := &provider.CheckoutSession{ID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, p provider.PaymentIntentParams, idempotencyKey string) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.AmountCents),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	if p.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(p.ReceiptEmail)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.ApplicationFeeCents > 0 {
		params.ApplicationFeeAmount = stripe.Int64(p.ApplicationFeeCents)
	}
	params.SetIdempotencyKey(idempotencyKey)
	if p.ConnectedAccountID != "" {
		params.SetStripeAccount(p.ConnectedAccountID)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, c.wrap("create payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id, connectedAccountID string) (*provider.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, c.wrap("retrieve payment intent", err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) UpdatePaymentIntentMetadata(ctx context.Context, id string, metadata map[string]string, connectedAccountID, idempotencyKey string) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.Metadata = metadata
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if connectedAccountID != "" {
		params.SetStripeAccount(connectedAccountID)
	}

	if _, err := c.api.PaymentIntents.Update(id, params); err != nil {
		return c.wrap("update payment intent", err)
	}
	return nil
}

func (c *Client) ConnectAccountReady(ctx context.Context, accountID string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, c.wrap("retrieve connected account", err)
	}
	return acct.ChargesEnabled && acct.DetailsSubmitted, nil
}

// Error is a Stripe API failure reduced to the fields worth storing and logging.
type Error struct {
	Op         string
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (c *Client) wrap(op string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.log.Warn("stripe request failed",
		zap.String("op", op),
		zap.String("type", string(se.Type)),
		zap.String("code", string(se.Code)),
		zap.String("param", se.Param),
		zap.Int("status", se.HTTPStatusCode),
		zap.String("request_id", se.RequestID),
	)
	return &Error{
		Op:         op,
		Code:       string(se.Code),
		Message:    se.Msg,
		StatusCode: se.HTTPStatusCode,
		Err:        err,
	}
}

func toPaymentIntent(pi *stripe.PaymentIntent) *provider.PaymentIntent {
	return &provider.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
}

func quantity(q int64) int64 {
	if q <= 0 {
		return 1
	}
	return q
}

func newFromConfig(cfg *config.Config, log *zap.Logger) provider.Provider {
	if cfg.StripeSecretKey == "" {
		log.Warn("STRIPE_SECRET_KEY is not set; provider calls will be rejected")
	}
	return New(cfg.StripeSecretKey, log)
}

var Module = fx.Module("provider",
	fx.Provide(newFromConfig),
)

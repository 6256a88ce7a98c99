package stripe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/cicconel11/TeamMeet/internal/provider"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedRequest struct {
	path    string
	headers http.Header
	form    url.Values
}

func newTestClient(t *testing.T, status int, body string) (*Client, *[]capturedRequest) {
	t.Helper()
	var seen []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen = append(seen, capturedRequest{path: r.URL.Path, headers: r.Header.Clone(), form: r.PostForm})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	return NewWithBackends("sk_test_123", backends, zap.NewNop()), &seen
}

func TestCreateCheckoutSession_PassesIdempotencyAndAccount(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK,
		`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.test/cs_1","payment_intent":"pi_1"}`)

	session, err := c.CreateCheckoutSession(context.Background(), provider.CheckoutSessionParams{
		Mode:       provider.ModePayment,
		SubmitType: "donate",
		LineItems: []provider.LineItem{{
			Name:            "Donation to River Rowing",
			UnitAmountCents: 2500,
			Currency:        "usd",
			Quantity:        1,
		}},
		SuccessURL:            "https://teammeet.test/river/donations?donation=success",
		CancelURL:             "https://teammeet.test/river/donations?donation=cancelled",
		Metadata:              map[string]string{"flow": "checkout"},
		PaymentIntentMetadata: map[string]string{"flow": "checkout"},
		ApplicationFeeCents:   125,
		ConnectedAccountID:    "acct_1",
	}, "k1")
	require.NoError(t, err)

	assert.Equal(t, "cs_1", session.ID)
	assert.Equal(t, "https://checkout.stripe.test/cs_1", session.URL)
	assert.Equal(t, "pi_1", session.PaymentIntentID)

	require.Len(t, *seen, 1)
	req := (*seen)[0]
	assert.Equal(t, "/v1/checkout/sessions", req.path)
	assert.Equal(t, "k1", req.headers.Get("Idempotency-Key"))
	assert.Equal(t, "acct_1", req.headers.Get("Stripe-Account"))
	assert.Equal(t, "payment", req.form.Get("mode"))
	assert.Equal(t, "donate", req.form.Get("submit_type"))
	assert.Equal(t, "2500", req.form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "125", req.form.Get("payment_intent_data[application_fee_amount]"))
}

func TestCreatePaymentIntent(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK,
		`{"id":"pi_9","object":"payment_intent","client_secret":"pi_9_secret","status":"requires_payment_method"}`)

	pi, err := c.CreatePaymentIntent(context.Background(), provider.PaymentIntentParams{
		AmountCents: 2500,
		Currency:    "usd",
		Description: "Donation to River Rowing",
	}, "k2")
	require.NoError(t, err)
	assert.Equal(t, "pi_9", pi.ID)
	assert.Equal(t, "pi_9_secret", pi.ClientSecret)

	req := (*seen)[0]
	assert.Equal(t, "k2", req.headers.Get("Idempotency-Key"))
	assert.Empty(t, req.headers.Get("Stripe-Account"))
	assert.Equal(t, "true", req.form.Get("automatic_payment_methods[enabled]"))
}

func TestConnectAccountReady(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK,
		`{"id":"acct_1","object":"account","charges_enabled":true,"details_submitted":false}`)

	ready, err := c.ConnectAccountReady(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestStripeErrorIsReduced(t *testing.T) {
	c, _ := newTestClient(t, http.StatusPaymentRequired,
		`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)

	_, err := c.CreatePaymentIntent(context.Background(), provider.PaymentIntentParams{AmountCents: 100, Currency: "usd"}, "k3")
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "card_declined", se.Code)
	assert.Equal(t, "Your card was declined.", se.Message)
	assert.Equal(t, http.StatusPaymentRequired, se.StatusCode)
}

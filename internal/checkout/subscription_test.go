package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func subscription(key string) SubscriptionRequest {
	return SubscriptionRequest{
		UserID:         "user-1",
		UserEmail:      "founder@example.com",
		Name:           "Harbor Alumni",
		Slug:           "harbor-alumni",
		Description:    "Alumni of the harbor rowing club",
		Interval:       "month",
		Bucket:         "0-200",
		IdempotencyKey: key,
		Origin:         "https://app.teammeet.test/",
	}
}

func TestStartCheckout_CreatesOnceAndReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var sent provider.CheckoutSessionParams
	f.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything, "sub-1").
		Run(func(args mock.Arguments) { sent = args.Get(1).(provider.CheckoutSessionParams) }).
		Return(&provider.CheckoutSession{ID: "cs_sub", URL: "https://checkout.stripe.test/cs_sub"}, nil).Once()

	first, err := f.subscription.StartCheckout(ctx, subscription("sub-1"))
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.test/cs_sub", first.URL)

	assert.Equal(t, provider.ModeSubscription, sent.Mode)
	require.Len(t, sent.LineItems, 2)
	assert.Equal(t, "price_base_month", sent.LineItems[0].PriceID)
	assert.Equal(t, "price_alumni_small_month", sent.LineItems[1].PriceID)
	assert.Equal(t, "https://app.teammeet.test/app?org=harbor-alumni&checkout=success", sent.SuccessURL)
	assert.Equal(t, "founder@example.com", sent.CustomerEmail)
	assert.Equal(t, "#1e3a5f", sent.SubscriptionMetadata["organization_color"])

	stored, err := f.store.GetAttemptByKey(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FlowSubscriptionCheckout, stored.FlowType)
	assert.Equal(t, int64(0), stored.AmountCents)
	assert.Equal(t, "usd", stored.Currency)
	assert.Equal(t, stored.Metadata["pending_org_id"], sent.Metadata["organization_id"])

	second, err := f.subscription.StartCheckout(ctx, subscription("sub-1"))
	require.NoError(t, err)
	assert.Equal(t, first.URL, second.URL)
	assert.True(t, second.Replayed)
	f.provider.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
}

func TestStartCheckout_ChangedPlanConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything, "sub-2").
		Return(&provider.CheckoutSession{ID: "cs_sub", URL: "https://checkout.stripe.test/cs_sub"}, nil).Once()

	_, err := f.subscription.StartCheckout(ctx, subscription("sub-2"))
	require.NoError(t, err)
	before, err := f.store.GetAttemptByKey(ctx, "sub-2")
	require.NoError(t, err)

	req := subscription("sub-2")
	req.Interval = "year"
	_, err = f.subscription.StartCheckout(ctx, req)
	require.Error(t, err)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict), "got %T: %v", err, err)
	assert.Equal(t, "sub-2", conflict.IdempotencyKey)

	after, err := f.store.GetAttemptByKey(ctx, "sub-2")
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.RequestFingerprint, after.RequestFingerprint)
	f.provider.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
}

func TestStartCheckout_UnpricedPlanIsUnavailable(t *testing.T) {
	f := newFixture(t)

	req := subscription("sub-unpriced")
	req.Bucket = "601-1500"
	_, err := f.subscription.StartCheckout(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrPlanUnavailable)

	stored, err := f.store.GetAttemptByKey(context.Background(), "sub-unpriced")
	require.NoError(t, err)
	assert.Nil(t, stored)
	f.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := subscription("sub-v")
	req.UserID = ""
	_, err := f.subscription.StartCheckout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	req = subscription("sub-v")
	req.Slug = "  "
	_, err = f.subscription.StartCheckout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	req = subscription("sub-v")
	req.Slug = "river-rowing"
	_, err = f.subscription.StartCheckout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	req = subscription("sub-v")
	req.Bucket = "1500+"
	_, err = f.subscription.StartCheckout(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSalesLed)

	f.provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartCheckout_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.On("CreateCheckoutSession", mock.Anything, mock.Anything, "sub-3").
		Return(nil, errors.New("no such price")).Once()

	_, err := f.subscription.StartCheckout(ctx, subscription("sub-3"))
	var perr *domain.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "sub-3", perr.IdempotencyKey)

	stored, err := f.store.GetAttemptByKey(ctx, "sub-3")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, "year", normalizeInterval("year"))
	assert.Equal(t, "month", normalizeInterval("weekly"))
	assert.Equal(t, "601-1500", normalizeBucket("601-1500"))
	assert.Equal(t, "none", normalizeBucket("huge"))
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastWait = WaitOptions{MaxWait: 200 * time.Millisecond, PollInterval: 20 * time.Millisecond}

func claimedAttempt(t *testing.T, svc *AttemptService, key string) *domain.PaymentAttempt {
	t.Helper()
	ctx := context.Background()
	a, err := svc.EnsurePaymentAttempt(ctx, ensureParams(key, 2500))
	require.NoError(t, err)
	res, err := svc.ClaimPaymentAttempt(ctx, claimParams(a, 2500))
	require.NoError(t, err)
	require.True(t, res.Claimed)
	return res.Attempt
}

func TestWaitForExistingStripeResource_Timeout(t *testing.T) {
	svc, _ := newTestService(t)
	a := claimedAttempt(t, svc, "k-wait-timeout")

	start := time.Now()
	got, err := svc.WaitForExistingStripeResource(context.Background(), a.ID, fastWait)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitForExistingStripeResource_Found(t *testing.T) {
	svc, _ := newTestService(t)
	a := claimedAttempt(t, svc, "k-wait-found")

	go func() {
		time.Sleep(50 * time.Millisecond)
		cs := "cs_1"
		_ = svc.UpdatePaymentAttempt(context.Background(), a.ID, domain.AttemptPatch{StripeCheckoutSessionID: &cs})
	}()

	got, err := svc.WaitForExistingStripeResource(context.Background(), a.ID, fastWait)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cs_1", *got.StripeCheckoutSessionID)
}

func TestWaitForExistingStripeResource_StopsOnFailure(t *testing.T) {
	svc, _ := newTestService(t)
	a := claimedAttempt(t, svc, "k-wait-failed")
	svc.RecordFailure(context.Background(), AttemptRef{ID: a.ID}, "provider down", true)

	got, err := svc.WaitForExistingStripeResource(context.Background(), a.ID, WaitOptions{MaxWait: 5 * time.Second, PollInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.False(t, HasStripeResource(got))
}

func TestWaitForExistingStripeResource_ContextCanceled(t *testing.T) {
	svc, _ := newTestService(t)
	a := claimedAttempt(t, svc, "k-wait-cancel")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	got, err := svc.WaitForExistingStripeResource(ctx, a.ID, WaitOptions{MaxWait: 5 * time.Second, PollInterval: time.Second})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, got)
}

func TestWaitOptions_Defaults(t *testing.T) {
	o := WaitOptions{}.withDefaults()
	assert.Equal(t, DefaultWaitOptions, o)

	o = WaitOptions{MaxWait: 50 * time.Millisecond, PollInterval: time.Second}.withDefaults()
	assert.Equal(t, 50*time.Millisecond, o.PollInterval)
}

func TestWaitForExistingStripeResource_ChecksAgainAtDeadline(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// With the window equal to one poll, the only tick and the deadline fire together.
	opts := WaitOptions{MaxWait: 30 * time.Millisecond, PollInterval: 30 * time.Millisecond}
	for i := 0; i < 10; i++ {
		a := claimedAttempt(t, svc, fmt.Sprintf("k-wait-deadline-%d", i))
		cs := fmt.Sprintf("cs_deadline_%d", i)
		require.NoError(t, svc.UpdatePaymentAttempt(ctx, a.ID, domain.AttemptPatch{StripeCheckoutSessionID: &cs}))

		got, err := svc.WaitForExistingStripeResource(ctx, a.ID, opts)
		require.NoError(t, err)
		require.NotNil(t, got, "iteration %d", i)
		assert.Equal(t, cs, *got.StripeCheckoutSessionID)
	}
}

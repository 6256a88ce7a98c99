package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dbSeq atomic.Int64

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newAttempt(key string) *domain.PaymentAttempt {
	now := time.Now().UTC().Truncate(time.Millisecond)
	org := uuid.NewString()
	return &domain.PaymentAttempt{
		ID:                 uuid.NewString(),
		IdempotencyKey:     key,
		FlowType:           domain.FlowDonationCheckout,
		AmountCents:        2500,
		Currency:           "usd",
		OrganizationID:     &org,
		RequestFingerprint: "fp",
		Status:             domain.StatusCreated,
		Metadata:           map[string]string{"flow": "checkout"},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestInsertAttempt_UniqueKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newAttempt("k1")
	inserted, err := s.InsertAttempt(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := newAttempt("k1")
	inserted, err = s.InsertAttempt(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetAttemptByKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "checkout", got.Metadata["flow"])

	missing, err := s.GetAttempt(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCompareAndSwapStatus_SingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newAttempt("k-cas")
	_, err := s.InsertAttempt(ctx, a)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSwapStatus(ctx, a.ID, domain.StatusCreated, domain.StatusProcessing, time.Now().UTC())
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	got, err := s.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestUpdateAttempt_ProviderIDsFirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newAttempt("k-ids")
	_, err := s.InsertAttempt(ctx, a)
	require.NoError(t, err)

	cs1, url1 := "cs_1", "https://checkout.example/cs_1"
	require.NoError(t, s.UpdateAttempt(ctx, a.ID, domain.AttemptPatch{
		StripeCheckoutSessionID: &cs1,
		CheckoutURL:             &url1,
	}, time.Now().UTC()))

	cs2, url2, lastErr := "cs_2", "https://checkout.example/cs_2", "boom"
	failed := domain.StatusFailed
	require.NoError(t, s.UpdateAttemptByKey(ctx, "k-ids", domain.AttemptPatch{
		Status:                  &failed,
		StripeCheckoutSessionID: &cs2,
		CheckoutURL:             &url2,
		LastError:               &lastErr,
	}, time.Now().UTC()))

	got, err := s.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StripeCheckoutSessionID)
	assert.Equal(t, "cs_1", *got.StripeCheckoutSessionID)
	assert.Equal(t, url1, *got.CheckoutURL)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom", *got.LastError)
	assert.Nil(t, got.StripePaymentIntentID)
}

func TestDirectory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := "acct_1"
	org := domain.Organization{ID: uuid.NewString(), Slug: "river-rowing", Name: "River Rowing", StripeConnectAccountID: &acct}
	require.NoError(t, s.CreateOrganization(ctx, org))
	eventID := uuid.NewString()
	require.NoError(t, s.CreateEvent(ctx, eventID, org.ID, "Spring Regatta"))

	byID, err := s.OrganizationByID(ctx, org.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "river-rowing", byID.Slug)

	bySlug, err := s.OrganizationBySlug(ctx, "river-rowing")
	require.NoError(t, err)
	require.NotNil(t, bySlug)
	assert.Equal(t, org.ID, bySlug.ID)

	none, err := s.OrganizationBySlug(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, none)

	ok, err := s.EventBelongsTo(ctx, eventID, org.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.EventBelongsTo(ctx, eventID, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)

	taken, err := s.SlugExists(ctx, "river-rowing")
	require.NoError(t, err)
	assert.True(t, taken)
}

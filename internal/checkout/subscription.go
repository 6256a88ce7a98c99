package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/provider"
	"github.com/cicconel11/TeamMeet/internal/service"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPrimaryColor  = "#1e3a5f"
	maxDescriptionLength = 500
)

type SubscriptionRequest struct {
	UserID    string
	UserEmail string

	Name         string
	Slug         string
	Description  string
	PrimaryColor *string
	Interval     string
	Bucket       string

	IdempotencyKey   string
	PaymentAttemptID string
	Origin           string
}

type SubscriptionResult struct {
	URL              string `json:"url"`
	IdempotencyKey   string `json:"idempotencyKey"`
	PaymentAttemptID string `json:"paymentAttemptId"`
	Replayed         bool   `json:"-"`
}

type SubscriptionOrchestrator struct {
	runner
}

func NewSubscriptionOrchestrator(p Params) *SubscriptionOrchestrator {
	return &SubscriptionOrchestrator{runner: newRunner(p, "checkout.subscription")}
}

// StartCheckout opens a subscription checkout for an organization that will be
// created once the subscription is paid. The organization id handed to the
// provider is fixed by the first request for the idempotency key.
func (o *SubscriptionOrchestrator) StartCheckout(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	name := strings.TrimSpace(req.Name)
	slug := strings.TrimSpace(req.Slug)
	if name == "" || slug == "" {
		return nil, fmt.Errorf("%w: name and slug are required", domain.ErrInvalidRequest)
	}
	interval := normalizeInterval(req.Interval)
	bucket := normalizeBucket(req.Bucket)

	taken, err := o.directory.SlugExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlugTaken
	}
	if o.cfg.Pricing.IsSalesLed(bucket) {
		return nil, domain.ErrSalesLed
	}
	basePrice, alumniPrice, err := o.cfg.Pricing.PriceIDs(interval, bucket)
	if err != nil {
		o.log.Error("subscription plan has no price",
			zap.String("interval", interval),
			zap.String("bucket", bucket),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrPlanUnavailable, err)
	}

	flow := domain.SubscriptionCheckout{
		UserID:       userID,
		Name:         name,
		Slug:         slug,
		Interval:     interval,
		Bucket:       bucket,
		PrimaryColor: req.PrimaryColor,
	}
	claim, err := o.begin(ctx, service.EnsureParams{
		PaymentAttemptID:   req.PaymentAttemptID,
		IdempotencyKey:     req.IdempotencyKey,
		FlowType:           flow.Flow(),
		AmountCents:        0,
		Currency:           "usd",
		UserID:             &userID,
		RequestFingerprint: flow.Fingerprint(),
		Metadata: map[string]string{
			"pending_org_id":   uuid.NewString(),
			"slug":             slug,
			"alumni_bucket":    bucket,
			"billing_interval": interval,
		},
	})
	if err != nil {
		return nil, err
	}
	attempt := claim.Attempt

	if !claim.Claimed {
		ready, err := o.existing(ctx, attempt, servableSubscription)
		if err != nil {
			return nil, err
		}
		return &SubscriptionResult{
			URL:              *ready.CheckoutURL,
			IdempotencyKey:   ready.IdempotencyKey,
			PaymentAttemptID: ready.ID,
			Replayed:         true,
		}, nil
	}

	color := defaultPrimaryColor
	if c := deref(req.PrimaryColor); c != "" {
		color = c
	}
	metadata := map[string]string{
		"organization_id":          attempt.Metadata["pending_org_id"],
		"organization_slug":        slug,
		"organization_name":        name,
		"organization_description": truncate(strings.TrimSpace(req.Description), maxDescriptionLength),
		"organization_color":       color,
		"alumni_bucket":            bucket,
		"created_by":               userID,
		"base_interval":            interval,
		"payment_attempt_id":       attempt.ID,
	}
	if metadata["organization_id"] == "" {
		return nil, errors.New("payment attempt is missing its pending organization id")
	}

	items := []provider.LineItem{{PriceID: basePrice, Quantity: 1}}
	if alumniPrice != "" {
		items = append(items, provider.LineItem{PriceID: alumniPrice, Quantity: 1})
	}
	origin := o.origin(req.Origin)
	query := url.QueryEscape(slug)

	session, err := o.provider.CreateCheckoutSession(ctx, provider.CheckoutSessionParams{
		Mode:                 provider.ModeSubscription,
		LineItems:            items,
		CustomerEmail:        strings.TrimSpace(req.UserEmail),
		Metadata:             metadata,
		SubscriptionMetadata: metadata,
		SuccessURL:           fmt.Sprintf("%s/app?org=%s&checkout=success", origin, query),
		CancelURL:            fmt.Sprintf("%s/app?org=%s&checkout=cancel", origin, query),
	}, attempt.IdempotencyKey)
	if err != nil {
		return nil, o.providerFailed(ctx, attempt, err, true)
	}

	if err := o.attempts.UpdatePaymentAttempt(ctx, attempt.ID, domain.AttemptPatch{
		Status:                  processing(),
		StripeCheckoutSessionID: ptr(session.ID),
		CheckoutURL:             ptr(session.URL),
	}); err != nil {
		return nil, err
	}

	return &SubscriptionResult{
		URL:              session.URL,
		IdempotencyKey:   attempt.IdempotencyKey,
		PaymentAttemptID: attempt.ID,
	}, nil
}

func servableSubscription(a *domain.PaymentAttempt) bool {
	return deref(a.StripeCheckoutSessionID) != "" && deref(a.CheckoutURL) != ""
}

func normalizeInterval(v string) string {
	if strings.TrimSpace(v) == "year" {
		return "year"
	}
	return "month"
}

func normalizeBucket(v string) string {
	v = strings.TrimSpace(v)
	for _, b := range config.Buckets {
		if b == v {
			return b
		}
	}
	return "none"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/fingerprint"
	"github.com/cicconel11/TeamMeet/internal/provider"
	"github.com/cicconel11/TeamMeet/internal/service"
	"go.uber.org/zap"
)

const (
	ModeCheckout      = "checkout"
	ModePaymentIntent = "payment_intent"

	minDonationCents = 100
)

type DonationRequest struct {
	OrganizationID   string
	OrganizationSlug string
	AmountCents      int64
	Currency         string
	DonorName        *string
	DonorEmail       *string
	EventID          *string
	Purpose          *string
	// Mode is checkout unless payment_intent is asked for.
	Mode             string
	PlatformFeeCents int64

	IdempotencyKey   string
	PaymentAttemptID string
	// Origin is the site the donor came from; redirect URLs are built on it.
	Origin           string
}

type DonationResult struct {
	Mode             string `json:"mode"`
	SessionID        string `json:"sessionId,omitempty"`
	URL              string `json:"url,omitempty"`
	PaymentIntentID  string `json:"paymentIntentId,omitempty"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	IdempotencyKey   string `json:"idempotencyKey"`
	PaymentAttemptID string `json:"paymentAttemptId"`
	// Replayed is set when the response reuses a provider object created earlier.
	Replayed         bool   `json:"-"`
}

type DonationOrchestrator struct {
	runner
}

func NewDonationOrchestrator(p Params) *DonationOrchestrator {
	return &DonationOrchestrator{runner: newRunner(p, "checkout.donation")}
}

// Donate starts a donation to an organization's connected account. Repeating the
// call with the same idempotency key returns the same checkout session or payment
// intent without creating another one.
func (o *DonationOrchestrator) Donate(ctx context.Context, req DonationRequest) (*DonationResult, error) {
	org, err := o.organization(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < minDonationCents {
		return nil, fmt.Errorf("%w: amount must be at least $1.00", domain.ErrInvalidAmount)
	}

	account := deref(org.StripeConnectAccountID)
	if account == "" {
		return nil, domain.ErrDonationsDisabled
	}
	ready, err := o.provider.ConnectAccountReady(ctx, account)
	if err != nil {
		// An account whose status cannot be read is treated as not onboarded.
		o.log.Warn("could not read connected account status",
			zap.String("organization_id", org.ID),
			zap.String("account", account),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrOrganizationNotReady, err)
	}
	if !ready {
		return nil, domain.ErrOrganizationNotReady
	}

	eventID := deref(req.EventID)
	if eventID != "" {
		ok, err := o.directory.EventBelongsTo(ctx, eventID, org.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &domain.NotFoundError{Resource: "philanthropy event", ID: eventID}
		}
	}

	donation := domain.Donation{
		OrganizationID:   org.ID,
		OrganizationSlug: org.Slug,
		AmountCents:      req.AmountCents,
		Currency:         fingerprint.NormalizeCurrency(req.Currency),
		DonorName:        req.DonorName,
		DonorEmail:       req.DonorEmail,
		EventID:          ptr(eventID),
		Purpose:          req.Purpose,
		PlatformFeeCents: clampFee(req.PlatformFeeCents, req.AmountCents),
	}
	mode := ModeCheckout
	var flow domain.FlowRequest = domain.DonationCheckout{Donation: donation}
	if req.Mode == ModePaymentIntent {
		mode = ModePaymentIntent
		flow = domain.DonationPaymentIntent{Donation: donation}
	}
	metadata := donation.Metadata(mode)

	claim, err := o.begin(ctx, service.EnsureParams{
		PaymentAttemptID:         req.PaymentAttemptID,
		IdempotencyKey:           req.IdempotencyKey,
		FlowType:                 flow.Flow(),
		AmountCents:              donation.AmountCents,
		Currency:                 donation.Currency,
		OrganizationID:           &org.ID,
		StripeConnectedAccountID: &account,
		RequestFingerprint:       flow.Fingerprint(),
		Metadata:                 metadata,
	})
	if err != nil {
		return nil, err
	}
	attempt := claim.Attempt

	if !claim.Claimed {
		ready, err := o.existing(ctx, attempt, servableDonation)
		if err != nil {
			return nil, err
		}
		return o.replay(ctx, ready, account)
	}

	metadata["payment_attempt_id"] = attempt.ID
	if mode == ModePaymentIntent {
		return o.createPaymentIntent(ctx, attempt, org, donation, metadata, account)
	}
	return o.createCheckoutSession(ctx, attempt, org, donation, metadata, account, o.origin(req.Origin))
}

func (o *DonationOrchestrator) organization(ctx context.Context, req DonationRequest) (*domain.Organization, error) {
	var (
		org *domain.Organization
		err error
		ref string
	)
	switch {
	case strings.TrimSpace(req.OrganizationID) != "":
		ref = strings.TrimSpace(req.OrganizationID)
		org, err = o.directory.OrganizationByID(ctx, ref)
	case strings.TrimSpace(req.OrganizationSlug) != "":
		ref = strings.TrimSpace(req.OrganizationSlug)
		org, err = o.directory.OrganizationBySlug(ctx, ref)
	default:
		return nil, fmt.Errorf("%w: organizationId or organizationSlug is required", domain.ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, &domain.NotFoundError{Resource: "organization", ID: ref}
	}
	return org, nil
}

func (o *DonationOrchestrator) createCheckoutSession(ctx context.Context, attempt *domain.PaymentAttempt, org *domain.Organization, d domain.Donation, metadata map[string]string, account, origin string) (*DonationResult, error) {
	donorEmail := deref(d.DonorEmail)
	session, err := o.provider.CreateCheckoutSession(ctx, provider.CheckoutSessionParams{
		Mode:       provider.ModePayment,
		SubmitType: "donate",
		LineItems: []provider.LineItem{{
			Name:            "Donation to " + org.Name,
			UnitAmountCents: d.AmountCents,
			Currency:        d.Currency,
			Quantity:        1,
			ProductMetadata: metadata,
		}},
		CustomerEmail:         donorEmail,
		Metadata:              metadata,
		PaymentIntentMetadata: metadata,
		ReceiptEmail:          donorEmail,
		ApplicationFeeCents:   d.PlatformFeeCents,
		SuccessURL:            fmt.Sprintf("%s/%s/donations?donation=success&session_id={CHECKOUT_SESSION_ID}", origin, org.Slug),
		CancelURL:             fmt.Sprintf("%s/%s/donations?donation=cancelled", origin, org.Slug),
		ConnectedAccountID:    account,
	}, attempt.IdempotencyKey)
	if err != nil {
		return nil, o.providerFailed(ctx, attempt, err, true)
	}

	if err := o.attempts.UpdatePaymentAttempt(ctx, attempt.ID, domain.AttemptPatch{
		Status:                   processing(),
		StripePaymentIntentID:    ptr(session.PaymentIntentID),
		StripeCheckoutSessionID:  ptr(session.ID),
		CheckoutURL:              ptr(session.URL),
		StripeConnectedAccountID: &account,
	}); err != nil {
		return nil, err
	}

	if session.PaymentIntentID != "" {
		md := copyMetadata(metadata, map[string]string{"checkout_session_id": session.ID})
		if err := o.provider.UpdatePaymentIntentMetadata(ctx, session.PaymentIntentID, md, account, attempt.IdempotencyKey+":pi-metadata"); err != nil {
			o.log.Warn("failed to tag payment intent with checkout session",
				zap.String("attempt_id", attempt.ID),
				zap.String("payment_intent_id", session.PaymentIntentID),
				zap.Error(err),
			)
		}
	}

	return &DonationResult{
		Mode:             ModeCheckout,
		SessionID:        session.ID,
		URL:              session.URL,
		IdempotencyKey:   attempt.IdempotencyKey,
		PaymentAttemptID: attempt.ID,
	}, nil
}

func (o *DonationOrchestrator) createPaymentIntent(ctx context.Context, attempt *domain.PaymentAttempt, org *domain.Organization, d domain.Donation, metadata map[string]string, account string) (*DonationResult, error) {
	description := "Donation to " + org.Name
	if purpose := deref(d.Purpose); purpose != "" {
		description = "Donation: " + purpose
	}

	pi, err := o.provider.CreatePaymentIntent(ctx, provider.PaymentIntentParams{
		AmountCents:         d.AmountCents,
		Currency:            d.Currency,
		ReceiptEmail:        deref(d.DonorEmail),
		Description:         description,
		Metadata:            metadata,
		ApplicationFeeCents: d.PlatformFeeCents,
		ConnectedAccountID:  account,
	}, attempt.IdempotencyKey)
	if err != nil {
		return nil, o.providerFailed(ctx, attempt, err, true)
	}

	if err := o.attempts.UpdatePaymentAttempt(ctx, attempt.ID, domain.AttemptPatch{
		Status:                   processing(),
		StripePaymentIntentID:    ptr(pi.ID),
		StripeConnectedAccountID: &account,
	}); err != nil {
		return nil, err
	}

	return &DonationResult{
		Mode:             ModePaymentIntent,
		PaymentIntentID:  pi.ID,
		ClientSecret:     pi.ClientSecret,
		IdempotencyKey:   attempt.IdempotencyKey,
		PaymentAttemptID: attempt.ID,
	}, nil
}

// replay answers from the provider object an earlier request recorded.
func (o *DonationOrchestrator) replay(ctx context.Context, attempt *domain.PaymentAttempt, account string) (*DonationResult, error) {
	if deref(attempt.StripeCheckoutSessionID) != "" && deref(attempt.CheckoutURL) != "" {
		return &DonationResult{
			Mode:             ModeCheckout,
			SessionID:        *attempt.StripeCheckoutSessionID,
			URL:              *attempt.CheckoutURL,
			IdempotencyKey:   attempt.IdempotencyKey,
			PaymentAttemptID: attempt.ID,
			Replayed:         true,
		}, nil
	}

	pi, err := o.provider.RetrievePaymentIntent(ctx, *attempt.StripePaymentIntentID, account)
	if err != nil {
		return nil, o.providerFailed(ctx, attempt, err, false)
	}
	return &DonationResult{
		Mode:             ModePaymentIntent,
		PaymentIntentID:  pi.ID,
		ClientSecret:     pi.ClientSecret,
		IdempotencyKey:   attempt.IdempotencyKey,
		PaymentAttemptID: attempt.ID,
		Replayed:         true,
	}, nil
}

// servableDonation reports whether a replay can be answered: a checkout session
// with its URL, or a payment intent.
func servableDonation(a *domain.PaymentAttempt) bool {
	if deref(a.StripeCheckoutSessionID) != "" && deref(a.CheckoutURL) != "" {
		return true
	}
	return deref(a.StripePaymentIntentID) != ""
}

func clampFee(fee, amount int64) int64 {
	if fee < 0 {
		return 0
	}
	if fee > amount {
		return amount
	}
	return fee
}

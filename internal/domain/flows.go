package domain

import (
	"strconv"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/fingerprint"
)

// FlowRequest is the closed set of payment-initiating requests. Each variant
// carries only the fields its flow needs and knows its own fingerprint.
type FlowRequest interface {
	Flow() FlowType
	Fingerprint() string
	isFlowRequest()
}

// Donation holds the fields shared by both donation variants.
type Donation struct {
	OrganizationID   string
	OrganizationSlug string
	AmountCents      int64
	Currency         string
	DonorName        *string
	DonorEmail       *string
	EventID          *string
	Purpose          *string
	PlatformFeeCents int64
}

func (d Donation) fingerprint(mode string) string {
	return fingerprint.New().
		String("org_id", d.OrganizationID).
		Int("amount_cents", d.AmountCents).
		Currency("currency", d.Currency).
		String("mode", mode).
		OptText("donor_email", d.DonorEmail).
		OptText("donor_name", d.DonorName).
		OptString("event_id", d.EventID).
		OptText("purpose", d.Purpose).
		Int("platform_fee_cents", d.PlatformFeeCents).
		Sum()
}

// Metadata is attached both to the attempt row and to the provider objects.
func (d Donation) Metadata(mode string) map[string]string {
	md := map[string]string{
		"organization_id":   d.OrganizationID,
		"organization_slug": d.OrganizationSlug,
		"flow":              mode,
	}
	if v := trimmed(d.DonorName); v != "" {
		md["donor_name"] = v
	}
	if v := trimmed(d.DonorEmail); v != "" {
		md["donor_email"] = v
	}
	if v := trimmed(d.EventID); v != "" {
		md["event_id"] = v
	}
	if v := trimmed(d.Purpose); v != "" {
		md["purpose"] = v
	}
	if d.PlatformFeeCents > 0 {
		md["platform_fee_cents"] = strconv.FormatInt(d.PlatformFeeCents, 10)
	}
	return md
}

// DonationCheckout is a donation paid on a hosted checkout page.
type DonationCheckout struct {
	Donation
}

func (DonationCheckout) Flow() FlowType { return FlowDonationCheckout }
func (d DonationCheckout) Fingerprint() string { return d.fingerprint("checkout") }
func (DonationCheckout) isFlowRequest() {}

// DonationPaymentIntent is a donation confirmed client-side against a payment intent.
type DonationPaymentIntent struct {
	Donation
}

func (DonationPaymentIntent) Flow() FlowType { return FlowDonationPaymentIntent }
func (d DonationPaymentIntent) Fingerprint() string { return d.fingerprint("payment_intent") }
func (DonationPaymentIntent) isFlowRequest() {}

// SubscriptionCheckout starts a subscription for an organization that does not
// exist yet. Pricing comes from the provider, so the attempt amount is zero.
type SubscriptionCheckout struct {
	UserID       string
	Name         string
	Slug         string
	Interval     string
	Bucket       string
	PrimaryColor *string
}

func (SubscriptionCheckout) Flow() FlowType { return FlowSubscriptionCheckout }

func (s SubscriptionCheckout) Fingerprint() string {
	return fingerprint.New().
		String("user_id", s.UserID).
		Text("name", s.Name).
		Text("slug", s.Slug).
		String("interval", s.Interval).
		String("bucket", s.Bucket).
		OptText("primary_color", s.PrimaryColor).
		Sum()
}

func (SubscriptionCheckout) isFlowRequest() {}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

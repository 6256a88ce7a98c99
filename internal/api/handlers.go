package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/cicconel11/TeamMeet/internal/checkout"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/models"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

var (
	donationsEndpoint   = endpoint{http.MethodPost, "/donations"}
	orgCheckoutEndpoint = endpoint{http.MethodPost, "/organizations/checkout"}
	attemptEndpoint     = endpoint{http.MethodGet, "/payment-attempts/{id}"}
	healthEndpoint      = endpoint{http.MethodGet, "/health"}

	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, healthEndpoint, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateDonationHandler(w http.ResponseWriter, r *http.Request) {
	e := donationsEndpoint
	timer := e.timer()
	defer timer.ObserveDuration()

	var req models.DonationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, e, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}

	amount, err := toCents(req.Amount)
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}
	var fee int64
	if req.PlatformFeeAmountCents != nil {
		if fee, err = roundCents(*req.PlatformFeeAmountCents); err != nil {
			h.respondDomainError(w, e, err)
			return
		}
	}

	res, err := h.donations.Donate(r.Context(), checkout.DonationRequest{
		OrganizationID:   req.OrganizationID,
		OrganizationSlug: req.OrganizationSlug,
		AmountCents:      amount,
		Currency:         req.Currency,
		DonorName:        req.DonorName,
		DonorEmail:       req.DonorEmail,
		EventID:          req.EventID,
		Purpose:          req.Purpose,
		Mode:             req.Mode,
		PlatformFeeCents: fee,
		IdempotencyKey:   key,
		PaymentAttemptID: req.PaymentAttemptID,
		Origin:           r.Header.Get("Origin"),
	})
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	w.Header().Set("Location", "/api/v1/payment-attempts/"+res.PaymentAttemptID)
	h.respondJSON(w, e, code, res)
}

func (h *Handler) CreateOrgCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	e := orgCheckoutEndpoint
	timer := e.timer()
	defer timer.ObserveDuration()

	// Identity comes from the auth proxy in front of the service.
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		h.respondError(w, e, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.OrgCheckoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.respondError(w, e, http.StatusBadRequest, "Invalid request")
		return
	}

	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}

	res, err := h.subscriptions.StartCheckout(r.Context(), checkout.SubscriptionRequest{
		UserID:           userID,
		UserEmail:        r.Header.Get(headerUserEmail),
		Name:             req.Name,
		Slug:             req.Slug,
		Description:      req.Description,
		PrimaryColor:     req.PrimaryColor,
		Interval:         req.BillingInterval,
		Bucket:           req.AlumniBucket,
		IdempotencyKey:   key,
		PaymentAttemptID: req.PaymentAttemptID,
		Origin:           r.Header.Get("Origin"),
	})
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}

	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	h.respondJSON(w, e, code, res)
}

func (h *Handler) GetPaymentAttemptHandler(w http.ResponseWriter, r *http.Request) {
	e := attemptEndpoint
	timer := e.timer()
	defer timer.ObserveDuration()

	attempt, err := h.attempts.GetPaymentAttempt(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondDomainError(w, e, err)
		return
	}
	h.respondJSON(w, e, http.StatusOK, attempt)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

// idempotencyKey accepts the key from the header or the body, not two different ones.
func idempotencyKey(r *http.Request, body string) (string, error) {
	header := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	body = strings.TrimSpace(body)
	if header != "" && body != "" && header != body {
		return "", fmt.Errorf("%w: Idempotency-Key header and idempotencyKey field differ", domain.ErrInvalidRequest)
	}
	if header != "" {
		return header, nil
	}
	return body, nil
}

// toCents converts a major-unit amount to cents, rounding half away from zero.
func toCents(amount decimal.Decimal) (int64, error) {
	return roundCents(amount.Mul(hundred))
}

// roundCents rounds to whole cents and rejects values outside int64.
func roundCents(cents decimal.Decimal) (int64, error) {
	c := cents.Round(0)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %s is out of range", domain.ErrInvalidAmount, cents.String())
	}
	return c.IntPart(), nil
}

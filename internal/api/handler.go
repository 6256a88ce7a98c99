package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/cicconel11/TeamMeet/internal/checkout"
	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/cicconel11/TeamMeet/internal/models"
	"github.com/cicconel11/TeamMeet/internal/service"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teammeet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teammeet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerUserID         = "X-User-ID"
	headerUserEmail      = "X-User-Email"

	maxBodyBytes = 1 << 20
)

type Params struct {
	fx.In

	Attempts      *service.AttemptService
	Donations     *checkout.DonationOrchestrator
	Subscriptions *checkout.SubscriptionOrchestrator
	Log           *zap.Logger
}

type Handler struct {
	attempts      *service.AttemptService
	donations     *checkout.DonationOrchestrator
	subscriptions *checkout.SubscriptionOrchestrator
	log           *zap.Logger
}

func NewHandler(p Params) *Handler {
	return &Handler{
		attempts:      p.Attempts,
		donations:     p.Donations,
		subscriptions: p.Subscriptions,
		log:           p.Log.Named("api"),
	}
}

func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/donations", h.CreateDonationHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/organizations/checkout", h.CreateOrgCheckoutHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/payment-attempts/{id}", h.GetPaymentAttemptHandler).Methods(http.MethodGet)
	return r
}

// endpoint labels one route for metrics.
type endpoint struct {
	method string
	path   string
}

func (e endpoint) timer() *prometheus.Timer {
	return prometheus.NewTimer(httpRequestDuration.WithLabelValues(e.method, e.path))
}

func (h *Handler) respondJSON(w http.ResponseWriter, e endpoint, code int, payload interface{}) {
	httpRequestsTotal.WithLabelValues(e.method, e.path, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Warn("failed to write response", zap.String("endpoint", e.path), zap.Error(err))
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, e endpoint, code int, message string) {
	h.respondJSON(w, e, code, models.ErrorResponse{Error: message})
}

// respondDomainError maps service and orchestrator errors onto HTTP statuses.
func (h *Handler) respondDomainError(w http.ResponseWriter, e endpoint, err error) {
	var (
		conflict *domain.ConflictError
		inFlight *domain.InFlightError
		closed   *domain.AttemptClosedError
		provider *domain.ProviderError
	)

	switch {
	case errors.As(err, &conflict):
		h.respondJSON(w, e, http.StatusConflict, models.ErrorResponse{
			Error:            conflict.Error(),
			IdempotencyKey:   conflict.IdempotencyKey,
			PaymentAttemptID: conflict.AttemptID,
			Retryable:        boolPtr(false),
		})
	case errors.As(err, &inFlight):
		h.respondJSON(w, e, http.StatusConflict, models.ErrorResponse{
			Error:            inFlight.Error(),
			IdempotencyKey:   inFlight.IdempotencyKey,
			PaymentAttemptID: inFlight.AttemptID,
			Retryable:        boolPtr(true),
		})
	case errors.As(err, &closed):
		h.respondJSON(w, e, http.StatusConflict, models.ErrorResponse{
			Error:            closed.Error(),
			IdempotencyKey:   closed.IdempotencyKey,
			PaymentAttemptID: closed.AttemptID,
			Retryable:        boolPtr(false),
		})
	case domain.IsNotFound(err):
		h.respondError(w, e, http.StatusNotFound, err.Error())
	case errors.As(err, &provider):
		h.respondJSON(w, e, http.StatusBadGateway, models.ErrorResponse{
			Error:            provider.Error(),
			IdempotencyKey:   provider.IdempotencyKey,
			PaymentAttemptID: provider.AttemptID,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		h.respondError(w, e, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrSalesLed):
		h.respondError(w, e, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrPlanUnavailable):
		h.respondError(w, e, http.StatusServiceUnavailable, domain.ErrPlanUnavailable.Error())
	case errors.Is(err, domain.ErrSlugTaken):
		h.respondError(w, e, http.StatusConflict, "Slug is already taken")
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidFingerprint),
		errors.Is(err, domain.ErrInvalidFlow),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrOrganizationNotReady),
		errors.Is(err, domain.ErrDonationsDisabled):
		h.respondError(w, e, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", zap.String("endpoint", e.path), zap.Error(err))
		h.respondError(w, e, http.StatusInternalServerError, "Internal Server Error")
	}
}

func boolPtr(v bool) *bool { return &v }

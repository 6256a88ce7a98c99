package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptColumns = `id::text, idempotency_key, flow_type, amount_cents, currency,
	organization_id::text, user_id, stripe_connected_account_id, request_fingerprint, status,
	stripe_payment_intent_id, stripe_checkout_session_id, checkout_url, last_error, metadata,
	created_at, updated_at`

type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// InsertAttempt relies on the unique constraint: of two racing inserts for the
// same key exactly one affects a row.
func (s *PostgresStore) InsertAttempt(ctx context.Context, a *domain.PaymentAttempt) (bool, error) {
	metadata, err := json.Marshal(nonNilMetadata(a.Metadata))
	if err != nil {
		return false, fmt.Errorf("encode metadata: %w", err)
	}

	tag, err := s.Db.Exec(ctx,
		`INSERT INTO payment_attempts (
			id, idempotency_key, flow_type, amount_cents, currency, organization_id, user_id,
			stripe_connected_account_id, request_fingerprint, status, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		a.ID, a.IdempotencyKey, string(a.FlowType), a.AmountCents, a.Currency, a.OrganizationID, a.UserID,
		a.StripeConnectedAccountID, a.RequestFingerprint, string(a.Status), metadata, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment attempt: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := s.Db.QueryRow(ctx, "SELECT "+attemptColumns+" FROM payment_attempts WHERE id = $1", id)
	return scanAttempt(row)
}

func (s *PostgresStore) GetAttemptByKey(ctx context.Context, key string) (*domain.PaymentAttempt, error) {
	row := s.Db.QueryRow(ctx, "SELECT "+attemptColumns+" FROM payment_attempts WHERE idempotency_key = $1", key)
	return scanAttempt(row)
}

// CompareAndSwapStatus is one conditional UPDATE; the row count decides the winner.
func (s *PostgresStore) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.AttemptStatus, at time.Time) (bool, error) {
	tag, err := s.Db.Exec(ctx,
		"UPDATE payment_attempts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
		string(to), at, id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("claim payment attempt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateAttempt(ctx context.Context, id string, patch domain.AttemptPatch, at time.Time) error {
	return s.update(ctx, "id", id, patch, at)
}

func (s *PostgresStore) UpdateAttemptByKey(ctx context.Context, key string, patch domain.AttemptPatch, at time.Time) error {
	return s.update(ctx, "idempotency_key", key, patch, at)
}

// update merges the patch. Provider ids keep their first value.
func (s *PostgresStore) update(ctx context.Context, column, value string, patch domain.AttemptPatch, at time.Time) error {
	if column == "id" {
		if _, err := uuid.Parse(value); err != nil {
			return nil
		}
	}

	sets := []string{}
	args := []any{}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, strings.ReplaceAll(expr, "?", "$"+strconv.Itoa(len(args))))
	}

	if patch.Status != nil {
		add("status = ?", string(*patch.Status))
	}
	if patch.StripePaymentIntentID != nil {
		add("stripe_payment_intent_id = COALESCE(stripe_payment_intent_id, ?)", *patch.StripePaymentIntentID)
	}
	if patch.StripeCheckoutSessionID != nil {
		add("stripe_checkout_session_id = COALESCE(stripe_checkout_session_id, ?)", *patch.StripeCheckoutSessionID)
	}
	if patch.CheckoutURL != nil {
		add("checkout_url = COALESCE(checkout_url, ?)", *patch.CheckoutURL)
	}
	if patch.StripeConnectedAccountID != nil {
		add("stripe_connected_account_id = ?", *patch.StripeConnectedAccountID)
	}
	if patch.LastError != nil {
		add("last_error = ?", *patch.LastError)
	}
	add("updated_at = ?", at)

	args = append(args, value)
	query := fmt.Sprintf("UPDATE payment_attempts SET %s WHERE %s = $%d", strings.Join(sets, ", "), column, len(args))
	if _, err := s.Db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) OrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	return s.organization(ctx, "id", id)
}

func (s *PostgresStore) OrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return s.organization(ctx, "slug", slug)
}

func (s *PostgresStore) organization(ctx context.Context, column, value string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.Db.QueryRow(ctx,
		"SELECT id::text, slug, name, stripe_connect_account_id FROM organizations WHERE "+column+" = $1",
		value,
	).Scan(&org.ID, &org.Slug, &org.Name, &org.StripeConnectAccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return &org, nil
}

func (s *PostgresStore) EventBelongsTo(ctx context.Context, eventID, organizationID string) (bool, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return false, nil
	}
	var exists bool
	err := s.Db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM events WHERE id = $1 AND organization_id = $2)",
		eventID, organizationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query event: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)", slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query slug: %w", err)
	}
	return exists, nil
}

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var (
		a        domain.PaymentAttempt
		flow     string
		status   string
		metadata []byte
	)
	err := row.Scan(
		&a.ID, &a.IdempotencyKey, &flow, &a.AmountCents, &a.Currency,
		&a.OrganizationID, &a.UserID, &a.StripeConnectedAccountID, &a.RequestFingerprint, &status,
		&a.StripePaymentIntentID, &a.StripeCheckoutSessionID, &a.CheckoutURL, &a.LastError, &metadata,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment attempt: %w", err)
	}
	a.FlowType = domain.FlowType(flow)
	a.Status = domain.AttemptStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &a, nil
}

func nonNilMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}

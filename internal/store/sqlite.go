package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cicconel11/TeamMeet/internal/domain"
	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type attemptRow struct {
	ID                       string            `gorm:"column:id;primaryKey"`
	IdempotencyKey           string            `gorm:"column:idempotency_key;not null;uniqueIndex:ux_payment_attempts_idempotency_key"`
	FlowType                 string            `gorm:"column:flow_type;not null"`
	AmountCents              int64             `gorm:"column:amount_cents;not null"`
	Currency                 string            `gorm:"column:currency;not null"`
	OrganizationID           *string           `gorm:"column:organization_id;index"`
	UserID                   *string           `gorm:"column:user_id"`
	StripeConnectedAccountID *string           `gorm:"column:stripe_connected_account_id"`
	RequestFingerprint       string            `gorm:"column:request_fingerprint;not null"`
	Status                   string            `gorm:"column:status;not null"`
	StripePaymentIntentID    *string           `gorm:"column:stripe_payment_intent_id"`
	StripeCheckoutSessionID  *string           `gorm:"column:stripe_checkout_session_id"`
	CheckoutURL              *string           `gorm:"column:checkout_url"`
	LastError                *string           `gorm:"column:last_error"`
	Metadata                 datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt                time.Time         `gorm:"column:created_at;not null"`
	UpdatedAt                time.Time         `gorm:"column:updated_at;not null"`
}

func (attemptRow) TableName() string { return "payment_attempts" }

type organizationRow struct {
	ID                     string  `gorm:"column:id;primaryKey"`
	Slug                   string  `gorm:"column:slug;not null;uniqueIndex"`
	Name                   string  `gorm:"column:name;not null"`
	StripeConnectAccountID *string `gorm:"column:stripe_connect_account_id"`
	CreatedAt              time.Time
}

func (organizationRow) TableName() string { return "organizations" }

type eventRow struct {
	ID             string `gorm:"column:id;primaryKey"`
	OrganizationID string `gorm:"column:organization_id;not null;index"`
	Title          string `gorm:"column:title;not null"`
	CreatedAt      time.Time
}

func (eventRow) TableName() string { return "events" }

// SQLiteStore implements the attempt store on gorm + pure-Go sqlite. It serves
// local development and tests with the same conflict and CAS semantics as postgres.
type SQLiteStore struct {
	DB *gorm.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// sqlite allows one writer; a single connection keeps writes serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&organizationRow{}, &eventRow{}, &attemptRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{DB: db}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) InsertAttempt(ctx context.Context, a *domain.PaymentAttempt) (bool, error) {
	row := toAttemptRow(a)
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert payment attempt: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*domain.PaymentAttempt, error) {
	return s.findAttempt(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetAttemptByKey(ctx context.Context, key string) (*domain.PaymentAttempt, error) {
	return s.findAttempt(ctx, "idempotency_key = ?", key)
}

func (s *SQLiteStore) findAttempt(ctx context.Context, where string, arg string) (*domain.PaymentAttempt, error) {
	var row attemptRow
	err := s.DB.WithContext(ctx).Where(where, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query payment attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SQLiteStore) CompareAndSwapStatus(ctx context.Context, id string, from, to domain.AttemptStatus, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&attemptRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("claim payment attempt: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, id string, patch domain.AttemptPatch, at time.Time) error {
	return s.update(ctx, "id = ?", id, patch, at)
}

func (s *SQLiteStore) UpdateAttemptByKey(ctx context.Context, key string, patch domain.AttemptPatch, at time.Time) error {
	return s.update(ctx, "idempotency_key = ?", key, patch, at)
}

func (s *SQLiteStore) update(ctx context.Context, where, arg string, patch domain.AttemptPatch, at time.Time) error {
	values := map[string]any{"updated_at": at}
	if patch.Status != nil {
		values["status"] = string(*patch.Status)
	}
	if patch.StripePaymentIntentID != nil {
		values["stripe_payment_intent_id"] = gorm.Expr("COALESCE(stripe_payment_intent_id, ?)", *patch.StripePaymentIntentID)
	}
	if patch.StripeCheckoutSessionID != nil {
		values["stripe_checkout_session_id"] = gorm.Expr("COALESCE(stripe_checkout_session_id, ?)", *patch.StripeCheckoutSessionID)
	}
	if patch.CheckoutURL != nil {
		values["checkout_url"] = gorm.Expr("COALESCE(checkout_url, ?)", *patch.CheckoutURL)
	}
	if patch.StripeConnectedAccountID != nil {
		values["stripe_connected_account_id"] = *patch.StripeConnectedAccountID
	}
	if patch.LastError != nil {
		values["last_error"] = *patch.LastError
	}

	res := s.DB.WithContext(ctx).Model(&attemptRow{}).Where(where, arg).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update payment attempt: %w", res.Error)
	}
	return nil
}

func (s *SQLiteStore) OrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	return s.findOrganization(ctx, "id = ?", id)
}

func (s *SQLiteStore) OrganizationBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return s.findOrganization(ctx, "slug = ?", slug)
}

func (s *SQLiteStore) findOrganization(ctx context.Context, where, arg string) (*domain.Organization, error) {
	var row organizationRow
	err := s.DB.WithContext(ctx).Where(where, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return &domain.Organization{
		ID:                     row.ID,
		Slug:                   row.Slug,
		Name:                   row.Name,
		StripeConnectAccountID: row.StripeConnectAccountID,
	}, nil
}

func (s *SQLiteStore) EventBelongsTo(ctx context.Context, eventID, organizationID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&eventRow{}).
		Where("id = ? AND organization_id = ?", eventID, organizationID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("query event: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&organizationRow{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("query slug: %w", err)
	}
	return count > 0, nil
}

// CreateOrganization seeds an organization row for local runs and tests.
func (s *SQLiteStore) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return s.DB.WithContext(ctx).Create(&organizationRow{
		ID:                     org.ID,
		Slug:                   org.Slug,
		Name:                   org.Name,
		StripeConnectAccountID: org.StripeConnectAccountID,
		CreatedAt:              time.Now().UTC(),
	}).Error
}

// CreateEvent seeds an event row for local runs and tests.
func (s *SQLiteStore) CreateEvent(ctx context.Context, id, organizationID, title string) error {
	return s.DB.WithContext(ctx).Create(&eventRow{
		ID:             id,
		OrganizationID: organizationID,
		Title:          title,
		CreatedAt:      time.Now().UTC(),
	}).Error
}

func toAttemptRow(a *domain.PaymentAttempt) attemptRow {
	md := datatypes.JSONMap{}
	for k, v := range a.Metadata {
		md[k] = v
	}
	return attemptRow{
		ID:                       a.ID,
		IdempotencyKey:           a.IdempotencyKey,
		FlowType:                 string(a.FlowType),
		AmountCents:              a.AmountCents,
		Currency:                 a.Currency,
		OrganizationID:           a.OrganizationID,
		UserID:                   a.UserID,
		StripeConnectedAccountID: a.StripeConnectedAccountID,
		RequestFingerprint:       a.RequestFingerprint,
		Status:                   string(a.Status),
		StripePaymentIntentID:    a.StripePaymentIntentID,
		StripeCheckoutSessionID:  a.StripeCheckoutSessionID,
		CheckoutURL:              a.CheckoutURL,
		LastError:                a.LastError,
		Metadata:                 md,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}
}

func (r attemptRow) toDomain() *domain.PaymentAttempt {
	var md map[string]string
	if len(r.Metadata) > 0 {
		md = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			if s, ok := v.(string); ok {
				md[k] = s
			} else {
				md[k] = fmt.Sprint(v)
			}
		}
	}
	return &domain.PaymentAttempt{
		ID:                       r.ID,
		IdempotencyKey:           r.IdempotencyKey,
		FlowType:                 domain.FlowType(r.FlowType),
		AmountCents:              r.AmountCents,
		Currency:                 r.Currency,
		OrganizationID:           r.OrganizationID,
		UserID:                   r.UserID,
		StripeConnectedAccountID: r.StripeConnectedAccountID,
		RequestFingerprint:       r.RequestFingerprint,
		Status:                   domain.AttemptStatus(r.Status),
		StripePaymentIntentID:    r.StripePaymentIntentID,
		StripeCheckoutSessionID:  r.StripeCheckoutSessionID,
		CheckoutURL:              r.CheckoutURL,
		LastError:                r.LastError,
		Metadata:                 md,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cicconel11/TeamMeet/internal/config"
	"github.com/cicconel11/TeamMeet/internal/logger"
	"github.com/cicconel11/TeamMeet/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	TotalOrganizations = 100
	EventsPerOrg       = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal("seeder only supports the postgres store", zap.String("driver", cfg.StoreDriver))
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DBSource)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := store.Migrate(pool); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	// Demo organizations share one connected account so donations can be exercised end to end.
	account := os.Getenv("SEED_CONNECT_ACCOUNT_ID")

	if err := seed(ctx, pool, account, log); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Info("demo data already present", zap.String("constraint", pgErr.ConstraintName))
			return
		}
		log.Fatal("seed failed", zap.Error(err))
	}
}

func seed(ctx context.Context, pool *pgxpool.Pool, account string, log *zap.Logger) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM organizations").Scan(&count); err != nil {
		return err
	}
	if count >= TotalOrganizations {
		log.Info("database already seeded, skipping", zap.Int("organizations", count))
		return nil
	}

	var acct interface{}
	if account != "" {
		acct = account
	}

	now := time.Now().UTC()
	orgs := make([][]interface{}, 0, TotalOrganizations)
	events := make([][]interface{}, 0, TotalOrganizations*EventsPerOrg)
	for i := 1; i <= TotalOrganizations; i++ {
		orgID := uuid.NewString()
		orgs = append(orgs, []interface{}{orgID, fmt.Sprintf("demo-org-%03d", i), fmt.Sprintf("Demo Organization %d", i), acct, now})
		for j := 1; j <= EventsPerOrg; j++ {
			events = append(events, []interface{}{uuid.NewString(), orgID, fmt.Sprintf("Fundraiser %d", j), now})
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orgCount, err := tx.CopyFrom(ctx,
		pgx.Identifier{"organizations"},
		[]string{"id", "slug", "name", "stripe_connect_account_id", "created_at"},
		pgx.CopyFromRows(orgs),
	)
	if err != nil {
		return fmt.Errorf("copy organizations: %w", err)
	}

	eventCount, err := tx.CopyFrom(ctx,
		pgx.Identifier{"events"},
		[]string{"id", "organization_id", "title", "created_at"},
		pgx.CopyFromRows(events),
	)
	if err != nil {
		return fmt.Errorf("copy events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.Info("seeded demo data", zap.Int64("organizations", orgCount), zap.Int64("events", eventCount))
	return nil
}

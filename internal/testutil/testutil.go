package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/afftrack/afftrack/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420421

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetTrackingSchema drops and recreates the campaigns, clicks and
// conversions schemas for tests. Conversions go down first because of
// the foreign key on clicks.
func ResetTrackingSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	down := []string{
		"000003_conversions.down.sql",
		"000002_clicks.down.sql",
		"000001_campaigns.down.sql",
	}
	up := []string{
		"000001_campaigns.up.sql",
		"000002_clicks.up.sql",
		"000003_conversions.up.sql",
	}

	for _, name := range down {
		if err := applyMigration(ctx, pool, root, name); err != nil {
			return err
		}
	}
	for _, name := range up {
		if err := applyMigration(ctx, pool, root, name); err != nil {
			return err
		}
	}

	return nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, root, name string) error {
	path := filepath.Join(root, "migrations", name)
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestCampaign creates a test campaign with sensible defaults.
func NewTestCampaign(t testing.TB, id string) *model.Campaign {
	t.Helper()
	return &model.Campaign{
		ID:           id,
		Name:         "Campaign " + id,
		OfferPageURL: "https://offers.example.com/" + id,
		SafePageURL:  "https://safe.example.com/" + id,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewTestClick creates a valid test click with sensible defaults.
func NewTestClick(t testing.TB, campaignID string) *model.Click {
	t.Helper()
	return &model.Click{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64) TestBrowser/1.0",
		IsValid:    true,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewTestConversion creates a test conversion attached to a click.
func NewTestConversion(t testing.TB, clickID string, convType model.ConversionType) *model.Conversion {
	t.Helper()
	now := time.Now().UTC()
	return &model.Conversion{
		ID:        ulid.Make().String(),
		ClickID:   clickID,
		Type:      convType,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

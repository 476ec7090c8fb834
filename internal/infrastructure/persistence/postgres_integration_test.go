//go:build integration

package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/docsync/backend/internal/domain/fileevent"
	"github.com/docsync/backend/internal/domain/procurement"
	"github.com/docsync/backend/internal/infrastructure/migration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const migrationsDir = "../../../migrations"

// setupPostgresDB starts a throwaway postgres and applies the SQL migrations
func setupPostgresDB(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("docsync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, "postgres", migrationsDir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return NewDatabaseFromGorm(db)
}

func TestPostgres_ClaimPendingIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := setupPostgresDB(t)
	require.True(t, db.SupportsSkipLocked())
	repo := NewGormFileEventRepository(db)

	for _, name := range []string{
		"1001_23 Acme Invoice.pdf",
		"1001_24 Acme Invoice.pdf",
		"1001_25 Acme Invoice.pdf",
		"1001_26 Acme Invoice.pdf",
		"1001_27 Acme Invoice.pdf",
		"1001_28 Acme Invoice.pdf",
	} {
		_, dup, err := repo.Add(ctx, newInvoiceEvent(t, name))
		require.NoError(t, err)
		require.False(t, dup)
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]int{}
		wg      sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			evs, err := repo.ClaimPending(ctx, 2)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, ev := range evs {
				claimed[ev.ID]++
				assert.Equal(t, fileevent.StatusProcessing, ev.Status)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 6)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "event %s claimed more than once", id)
	}
}

func TestPostgres_PurchaseOrderUpsert(t *testing.T) {
	ctx := context.Background()
	db := setupPostgresDB(t)
	repo := NewGormPurchaseOrderRepository(db)

	first := savedPO(t, db)
	again, err := procurement.NewPurchaseOrder("1001", "23", "", "vendor")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, again))
	assert.Equal(t, first.ID, again.ID)

	var n int64
	require.NoError(t, db.DB.Model(&procurement.PurchaseOrder{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

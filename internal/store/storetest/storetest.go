// Package storetest provides an in-memory store for tests.
package storetest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// New returns a migrated store backed by a private in-memory SQLite database.
// The database is closed when the test ends.
func New(tb testing.TB) *store.Store {
	tb.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql handle: %v", err)
	}
	// One connection serializes writers the way row locks do on Postgres.
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return store.New(db, logger.NewNop())
}

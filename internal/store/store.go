// Package store persists customers, conversations, messages and settings.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateMessage is returned when a message id was already stored.
	ErrDuplicateMessage = errors.New("message already stored")
	// ErrOpenConversationExists is returned when a customer already has a
	// conversation that is not resolved.
	ErrOpenConversationExists = errors.New("customer already has an open conversation")
	// ErrDuplicatePhone is returned when a customer with the phone exists.
	ErrDuplicatePhone = errors.New("customer phone already exists")
)

// Store groups the repositories over one database handle.
type Store struct {
	DB            *gorm.DB
	Customers     *CustomerRepo
	Conversations *ConversationRepo
	Settings      *SettingsRepo
}

// New builds the repositories over db.
func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{
		DB:            db,
		Customers:     NewCustomerRepo(db, log),
		Conversations: NewConversationRepo(db, log),
		Settings:      NewSettingsRepo(db, log),
	}
}

// Open connects to the database. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, apperr.Config("store.Open", fmt.Errorf("unsupported driver %q", driver))
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, apperr.Storage("store.Open", fmt.Errorf("failed to connect to %s: %w", driver, err))
	}
	return db, nil
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Customer{},
		&model.Conversation{},
		&model.Message{},
		&settingsRow{},
	); err != nil {
		return apperr.Storage("store.Migrate", fmt.Errorf("failed to auto migrate: %w", err))
	}

	// At most one conversation per customer may be outside the resolved state.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_one_open
		ON conversations (customer_id)
		WHERE status <> 'resolved'
	`).Error; err != nil {
		return apperr.Storage("store.Migrate", fmt.Errorf("failed to create open conversation index: %w", err))
	}
	return nil
}

// Ping checks database connectivity.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return apperr.Storage("store.Ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.Storage("store.Ping", err)
	}
	return nil
}

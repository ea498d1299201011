package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// CustomerRepo reads and writes customers.
type CustomerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewCustomerRepo creates a customer repository.
func NewCustomerRepo(db *gorm.DB, log *logger.Logger) *CustomerRepo {
	return &CustomerRepo{db: db, log: log.With(zap.String("repo", "CustomerRepo"))}
}

// GetByPhone returns the customer with phone, or ErrNotFound.
func (r *CustomerRepo) GetByPhone(ctx context.Context, phone string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).Where("phone = ?", phone).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("store.GetCustomerByPhone", err)
	}
	return &c, nil
}

// GetByID returns the customer with id, or ErrNotFound.
func (r *CustomerRepo) GetByID(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperr.Storage("store.GetCustomerByID", err)
	}
	return &c, nil
}

// Create inserts c. A concurrent insert of the same phone yields ErrDuplicatePhone.
func (r *CustomerRepo) Create(ctx context.Context, c *model.Customer) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicatePhone
	}
	if err != nil {
		return apperr.Storage("store.CreateCustomer", err)
	}
	return nil
}

// UpdateName sets the display name.
func (r *CustomerRepo) UpdateName(ctx context.Context, id, name string, at time.Time) (*model.Customer, error) {
	return r.update(ctx, "store.UpdateCustomerName", id, map[string]interface{}{
		"name":       name,
		"updated_at": at,
	})
}

// SetBlocked toggles inbound processing for the customer.
func (r *CustomerRepo) SetBlocked(ctx context.Context, id string, blocked bool, at time.Time) (*model.Customer, error) {
	return r.update(ctx, "store.SetCustomerBlocked", id, map[string]interface{}{
		"is_blocked": blocked,
		"updated_at": at,
	})
}

func (r *CustomerRepo) update(ctx context.Context, op, id string, updates map[string]interface{}) (*model.Customer, error) {
	res := r.db.WithContext(ctx).Model(&model.Customer{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, apperr.Storage(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/internal/store"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// CustomerService finds, creates and edits customers.
type CustomerService struct {
	store  CustomerStore
	events *events
	log    *logger.Logger
	now    Clock
}

// NewCustomerService creates a customer service.
func NewCustomerService(s CustomerStore, pub Publisher, log *logger.Logger) *CustomerService {
	log = log.Component("customers")
	return &CustomerService{
		store:  s,
		events: newEvents(pub, log, utcNow),
		log:    log,
		now:    utcNow,
	}
}

// Resolve returns the customer for phone, creating it when absent. created
// reports whether this call inserted the record. When the customer exists
// and displayName differs from the stored name the name is updated; a
// failure to do so is logged and does not fail the call.
func (s *CustomerService) Resolve(ctx context.Context, phone, displayName string) (*model.Customer, bool, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, false, apperr.Validation("customers.Resolve", errors.New("phone is required"))
	}
	displayName = strings.TrimSpace(displayName)

	c, err := s.store.GetByPhone(ctx, phone)
	switch {
	case err == nil:
		return s.reconcileName(ctx, c, displayName), false, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, err
	}

	name := displayName
	if name == "" {
		name = model.PlaceholderName(phone)
	}
	now := s.now()
	c = &model.Customer{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Phone:     phone,
		Name:      &name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		if errors.Is(err, store.ErrDuplicatePhone) {
			// Lost a create race with a concurrent delivery.
			existing, getErr := s.store.GetByPhone(ctx, phone)
			if getErr != nil {
				return nil, false, getErr
			}
			return s.reconcileName(ctx, existing, displayName), false, nil
		}
		return nil, false, err
	}

	s.log.Info("Customer created", zap.String("customer_id", c.ID))
	s.events.customer(ctx, model.EventTypeInsert, c)
	return c, true, nil
}

func (s *CustomerService) reconcileName(ctx context.Context, c *model.Customer, displayName string) *model.Customer {
	if displayName == "" || (c.Name != nil && *c.Name == displayName) {
		return c
	}
	updated, err := s.store.UpdateName(ctx, c.ID, displayName, s.now())
	if err != nil {
		s.log.Warn("Failed to update customer name",
			zap.String("customer_id", c.ID),
			zap.Error(err),
		)
		return c
	}
	s.events.customer(ctx, model.EventTypeUpdate, updated)
	return updated
}

// SetBlocked blocks or unblocks the customer with phone.
func (s *CustomerService) SetBlocked(ctx context.Context, phone string, blocked bool) (*model.Customer, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, apperr.Validation("customers.SetBlocked", errors.New("phone is required"))
	}
	c, err := s.store.GetByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("customers.SetBlocked", errors.New("customer not found"))
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.store.SetBlocked(ctx, c.ID, blocked, s.now())
	if err != nil {
		return nil, notFound("customers.SetBlocked", err, "customer not found")
	}
	s.log.Info("Customer block state changed",
		zap.String("customer_id", c.ID),
		zap.Bool("is_blocked", blocked),
	)
	s.events.customer(ctx, model.EventTypeUpdate, updated)
	return updated, nil
}

// Rename sets a customer's display name.
func (s *CustomerService) Rename(ctx context.Context, id, name string) (*model.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("customers.Rename", errors.New("name is required"))
	}
	updated, err := s.store.UpdateName(ctx, id, name, s.now())
	if err != nil {
		return nil, notFound("customers.Rename", err, "customer not found")
	}
	s.events.customer(ctx, model.EventTypeUpdate, updated)
	return updated, nil
}

// Get returns a customer by id.
func (s *CustomerService) Get(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("customers.Get", err, "customer not found")
	}
	return c, nil
}

// NormalizePhone keeps only the digits of phone, matching the provider's wa_id form.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// notFound maps store.ErrNotFound to a classified not-found error.
func notFound(op string, err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, errors.New(msg))
	}
	return err
}

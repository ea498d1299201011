package service

import (
	"context"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/logger"
)

// SettingsService reads and edits the inbox settings.
type SettingsService struct {
	store SettingsStore
	log   *logger.Logger
}

// NewSettingsService creates a settings service.
func NewSettingsService(s SettingsStore, log *logger.Logger) *SettingsService {
	return &SettingsService{store: s, log: log.Component("settings")}
}

// Get returns the current settings, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context) (*model.AppSettings, error) {
	return s.store.Get(ctx)
}

// Update validates and replaces the settings.
func (s *SettingsService) Update(ctx context.Context, settings *model.AppSettings) (*model.AppSettings, error) {
	if err := settings.Validate(); err != nil {
		return nil, apperr.Validation("settings.Update", err)
	}
	if err := s.store.Save(ctx, settings); err != nil {
		return nil, err
	}
	s.log.Info("Settings updated")
	return settings, nil
}

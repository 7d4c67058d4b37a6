package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/radiowave/station-backend/internal/auth"
	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
)

type userStore interface {
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// seedAdmin creates the first administrator from RADIO_AUTH_ADMIN_EMAIL and
// RADIO_AUTH_ADMIN_PASSWORD. It does nothing once any user exists.
func seedAdmin(ctx context.Context, users userStore, cfg *config.AuthConfig) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	n, err := users.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := &models.User{
		Name:         "Administrator",
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := users.CreateUser(ctx, admin); err != nil {
		return err
	}
	slog.Info("seeded initial administrator", "user_id", admin.ID, "email", admin.Email)
	return nil
}

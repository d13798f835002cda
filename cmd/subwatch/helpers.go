package main

import (
	"context"
	"fmt"
	"math"

	"github.com/joshsymonds/subwatch/internal/config"
	"github.com/joshsymonds/subwatch/internal/secrets"
	"github.com/joshsymonds/subwatch/internal/service"
	"github.com/joshsymonds/subwatch/internal/storage"
	"github.com/spf13/viper"
)

// initStorage opens the SQLite database and brings the schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// openSecretsBox loads the configured token encryption key.
func openSecretsBox() (*secrets.Box, error) {
	key, err := config.LoadSecretKey()
	if err != nil {
		return nil, err
	}
	return secrets.NewBoxFromBase64(key)
}

func currentUserID() string {
	if id := viper.GetString("user.id"); id != "" {
		return id
	}
	return "default"
}

// amountToCents converts a decimal amount to integer cents. Rounding is
// required: many two-decimal values have no exact float representation, so
// truncation would lose a cent.
func amountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func formatCents(cents *int64, currency string) string {
	if cents == nil {
		return "-"
	}
	symbol := "$"
	if currency == "INR" {
		symbol = "₹"
	}
	return fmt.Sprintf("%s%.2f", symbol, float64(*cents)/100)
}

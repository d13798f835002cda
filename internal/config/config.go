// Package config provides configuration utilities for the application.
package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/secrets"
	"github.com/spf13/viper"
)

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// GmailCredentials holds the OAuth client registration used for mailbox
// access.
type GmailCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// LoadGmailCredentials resolves Gmail OAuth client settings. Precedence:
// 1. Viper configuration (config file or SUBWATCH_ env vars)
// 2. Direct environment variables (GMAIL_CLIENT_ID, GMAIL_CLIENT_SECRET)
func LoadGmailCredentials() (GmailCredentials, error) {
	creds := GmailCredentials{
		ClientID:     viper.GetString("gmail.client_id"),
		ClientSecret: viper.GetString("gmail.client_secret"),
		RedirectURL:  viper.GetString("gmail.redirect_url"),
	}
	if creds.ClientID == "" {
		creds.ClientID = os.Getenv("GMAIL_CLIENT_ID")
	}
	if creds.ClientSecret == "" {
		creds.ClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	}
	if creds.RedirectURL == "" {
		creds.RedirectURL = "http://localhost:8080/callback"
	}

	if creds.ClientID == "" || creds.ClientSecret == "" {
		return GmailCredentials{}, common.NewUserError(
			"Gmail credentials not configured. Set gmail.client_id and gmail.client_secret in your config file, or the GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET environment variables.",
			common.ErrMissingConfig)
	}
	return creds, nil
}

// LoadSecretKey resolves the base64-encoded token encryption key. Precedence:
// 1. Viper configuration (secrets.key)
// 2. SUBWATCH_SECRET_KEY environment variable
func LoadSecretKey() (string, error) {
	key := viper.GetString("secrets.key")
	if key == "" {
		key = os.Getenv("SUBWATCH_SECRET_KEY")
	}
	if key == "" {
		return "", common.NewUserError(
			"Token encryption key not configured. Set secrets.key in your config file, or the SUBWATCH_SECRET_KEY environment variable, to a base64-encoded 32-byte key.",
			common.ErrMissingConfig)
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != secrets.KeySize {
		return "", common.NewUserError(
			"Token encryption key is malformed. It must be a base64-encoded 32-byte key.",
			common.ErrInvalidConfig)
	}
	return key, nil
}

// DatabasePath resolves the SQLite database location, creating nothing.
func DatabasePath() string {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/subwatch/subwatch.db"
	}
	return ExpandPath(dbPath)
}

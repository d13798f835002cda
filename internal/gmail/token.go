package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/service"
)

// OAuthConfig builds the oauth2 configuration used for both the interactive
// connect flow and background token refresh.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  redirectURL,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
}

// Refresher exchanges refresh tokens for fresh access tokens, retrying
// transient provider failures with exponential backoff.
type Refresher struct {
	conf      *oauth2.Config
	logger    *slog.Logger
	retryOpts service.RetryOptions
}

// NewRefresher creates a token refresher.
func NewRefresher(conf *oauth2.Config) *Refresher {
	return &Refresher{
		conf:   conf,
		logger: slog.Default().With("component", "gmail"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Refresh exchanges a refresh token. An invalid_grant response means the
// stored token has been revoked; the caller must reconnect the mailbox and
// retrying is pointless.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
	var token *oauth2.Token

	err := common.WithRetry(ctx, func() error {
		source := r.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		fresh, err := source.Token()
		if err != nil {
			return classifyRefreshError(err)
		}
		token = fresh
		return nil
	}, r.retryOpts)
	if err != nil {
		if errors.Is(err, common.ErrReconnectRequired) {
			return "", "", time.Time{}, err
		}
		return "", "", time.Time{}, fmt.Errorf("token refresh failed: %w", err)
	}

	r.logger.Debug("Refreshed access token", "expiry", token.Expiry)

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return token.AccessToken, newRefresh, token.Expiry, nil
}

func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return &common.RetryableError{
				Err:       fmt.Errorf("refresh token is invalid: %w", common.ErrReconnectRequired),
				Retryable: false,
			}
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("token endpoint: %w", common.ErrRateLimit)
		}
	}
	// Network errors and 5xx responses are worth retrying.
	return &common.RetryableError{Err: err, Retryable: true}
}

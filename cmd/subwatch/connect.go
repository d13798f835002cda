package main

import (
	"fmt"
	"time"

	"github.com/joshsymonds/subwatch/internal/cli"
	"github.com/joshsymonds/subwatch/internal/config"
	"github.com/joshsymonds/subwatch/internal/gmail"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a Gmail account",
		Long: `Connect your Gmail account with read-only access.

This command will:
1. Start a local web server
2. Open Google's consent page in your browser
3. Store the granted tokens, encrypted, in the local database

Reconnecting replaces the stored tokens for the account.`,
		RunE: runConnect,
	}

	cmd.Flags().String("listen", ":8080", "address for the OAuth callback server")

	return cmd
}

func runConnect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	listenAddr, _ := cmd.Flags().GetString("listen")

	creds, err := config.LoadGmailCredentials()
	if err != nil {
		return err
	}
	box, err := openSecretsBox()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	conf := gmail.OAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURL)
	token, err := gmail.AuthorizeInteractive(ctx, conf, listenAddr)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	encAccess, err := box.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh := ""
	if token.RefreshToken != "" {
		encRefresh, err = box.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}

	conn := &model.MailboxConnection{
		UserID:         currentUserID(),
		Provider:       "gmail",
		AccessToken:    encAccess,
		RefreshToken:   encRefresh,
		TokenExpiresAt: expiresAt,
		Status:         model.ConnectionActive,
	}
	if err := store.SaveConnection(ctx, conn); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	fmt.Println(cli.SuccessStyle.Render("✓ Gmail account connected. Run 'subwatch sync' to scan for subscriptions."))
	return nil
}

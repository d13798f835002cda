package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joshsymonds/subwatch/internal/classifier"
	"github.com/joshsymonds/subwatch/internal/cli"
	"github.com/joshsymonds/subwatch/internal/common"
	"github.com/joshsymonds/subwatch/internal/config"
	"github.com/joshsymonds/subwatch/internal/extract"
	"github.com/joshsymonds/subwatch/internal/gmail"
	"github.com/joshsymonds/subwatch/internal/service"
	syncer "github.com/joshsymonds/subwatch/internal/sync"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scan the connected mailbox for subscription charges",
		Long: `Scan billing emails in the connected Gmail account and reconcile
them into the subscription ledger.

The first run scans the full look-back window; later runs only scan
mail that arrived since the last completed sync.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("force", false, "ignore the last sync marker and rescan the full window")
	cmd.Flags().Int("days-back", 90, "how many days to look back on a full scan")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	force, _ := cmd.Flags().GetBool("force")
	daysBack, _ := cmd.Flags().GetInt("days-back")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	box, err := openSecretsBox()
	if err != nil {
		return err
	}
	creds, err := config.LoadGmailCredentials()
	if err != nil {
		return err
	}

	gate, err := classifier.New(classifier.DefaultTables())
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}

	refresher := gmail.NewRefresher(gmail.OAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURL))
	newMailbox := func(ctx context.Context, accessToken string) (service.Mailbox, error) {
		return gmail.NewClient(ctx, accessToken)
	}

	orch := syncer.NewOrchestrator(store, refresher, newMailbox, box, gate, extract.NewParser(), syncer.DefaultConfig())

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Scanning billing emails...[reset]"),
	)
	orch.SetProgress(func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	})

	result, err := orch.Sync(ctx, currentUserID(), service.SyncRequest{Force: force, DaysBack: daysBack})
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if result != nil && result.Status == service.SyncFailed {
			fmt.Println(cli.ErrorStyle.Render(fmt.Sprintf("✗ Sync failed: %s", result.Message)))
		}
		if common.IsRetryable(err) {
			fmt.Println(cli.InfoStyle.Render("The mailbox provider had a temporary problem. Run 'subwatch sync' again in a few minutes."))
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncResult(result)
	return nil
}

func printSyncResult(result *service.SyncResult) {
	switch result.Status {
	case service.SyncLocked:
		fmt.Println(cli.WarningStyle.Render("Another sync is already running for this account."))
		return
	case service.SyncPartial:
		fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("Sync finished with gaps: %s", result.Message)))
	default:
		fmt.Println(cli.SuccessStyle.Render("✓ Sync complete"))
	}

	mode := "full"
	if result.IsIncremental {
		mode = "incremental"
	}
	fmt.Printf("  Mode:          %s (since %s)\n", mode, result.SyncFromDate.Format("2006-01-02"))
	fmt.Printf("  Emails:        %d evaluated, %d already seen\n", result.EmailsProcessed, result.EmailsSkipped)
	fmt.Printf("  Subscriptions: %d found (%d new, %d updated)\n",
		result.SubscriptionsFound, result.NewSubscriptions, result.UpdatedSubscriptions)
}

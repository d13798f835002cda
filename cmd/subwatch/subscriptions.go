package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joshsymonds/subwatch/internal/cli"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/service"
	"github.com/spf13/cobra"
)

func subscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscriptions",
		Aliases: []string{"subs"},
		Short:   "Manage the subscription ledger",
	}

	cmd.AddCommand(subscriptionsListCmd())
	cmd.AddCommand(subscriptionsAddCmd())
	cmd.AddCommand(subscriptionsCancelCmd())

	return cmd
}

func subscriptionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked subscriptions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			statusFlag, _ := cmd.Flags().GetString("status")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			filter := service.SubscriptionFilter{}
			if statusFlag != "" {
				status := model.SubscriptionStatus(statusFlag)
				filter.Status = &status
			}

			subs, err := store.GetSubscriptions(ctx, currentUserID(), filter)
			if err != nil {
				return fmt.Errorf("failed to list subscriptions: %w", err)
			}
			if len(subs) == 0 {
				fmt.Println(cli.InfoStyle.Render("No subscriptions found. Run 'subwatch sync' to scan your inbox."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tVENDOR\tAMOUNT\tCYCLE\tSTATUS\tLAST CHARGE\tNEXT RENEWAL")
			for _, sub := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(sub.ID),
					sub.VendorName,
					formatCents(sub.AmountCents, sub.Currency),
					cycleLabel(sub.Cycle),
					sub.Status,
					formatDate(sub.LastChargeAt),
					formatDate(sub.NextRenewalAt),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("status", "", "filter by status (active, cancelled, paused, expired)")

	return cmd
}

func subscriptionsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <vendor>",
		Short: "Add a subscription manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			amountStr, _ := cmd.Flags().GetString("amount")
			currency, _ := cmd.Flags().GetString("currency")
			cycle, _ := cmd.Flags().GetString("cycle")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			sub := &model.Subscription{
				UserID:     currentUserID(),
				VendorName: args[0],
				Currency:   currency,
				Cycle:      model.BillingCycle(cycle),
			}
			if amountStr != "" {
				amount, parseErr := strconv.ParseFloat(amountStr, 64)
				if parseErr != nil {
					return fmt.Errorf("invalid amount %q: %w", amountStr, parseErr)
				}
				cents := amountToCents(amount)
				sub.AmountCents = &cents
			}

			if err := store.CreateSubscription(ctx, sub); err != nil {
				return fmt.Errorf("failed to create subscription: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Added %q (ID: %s)", sub.VendorName, sub.ID)))
			return nil
		},
	}

	cmd.Flags().String("amount", "", "charge amount, e.g. 12.99")
	cmd.Flags().String("currency", "USD", "currency code")
	cmd.Flags().String("cycle", "monthly", "billing cycle (weekly, monthly, quarterly, yearly)")

	return cmd
}

func subscriptionsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Mark a subscription as cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := store.UpdateSubscriptionStatus(ctx, args[0], model.SubscriptionCancelled); err != nil {
				return fmt.Errorf("failed to cancel subscription: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Cancelled subscription %s", args[0])))
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cycleLabel(cycle model.BillingCycle) string {
	if cycle == model.CycleUnknown {
		return "unknown"
	}
	return string(cycle)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joshsymonds/subwatch/internal/cli"
	"github.com/joshsymonds/subwatch/internal/decision"
	"github.com/joshsymonds/subwatch/internal/model"
	"github.com/joshsymonds/subwatch/internal/service"
	"github.com/spf13/cobra"
)

// activityWindowDays is how far back billing-email activity counts for the
// individual engine's usage signal.
const activityWindowDays = 90

func decideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Recommend actions for tracked subscriptions",
		Long: `Evaluate every active subscription and recommend keeping,
cancelling, reviewing or setting a renewal reminder.

Recommendations are saved as pending decisions; use 'subwatch decisions'
to approve, reject or execute them.`,
		RunE: runDecideIndividual,
	}

	cmd.Flags().Bool("save", true, "persist recommendations as pending decisions")
	cmd.AddCommand(decideEnterpriseCmd())

	return cmd
}

func runDecideIndividual(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	save, _ := cmd.Flags().GetBool("save")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	userID := currentUserID()
	active := model.SubscriptionActive
	subs, err := store.GetSubscriptions(ctx, userID, service.SubscriptionFilter{Status: &active})
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		fmt.Println(cli.InfoStyle.Render("No active subscriptions to evaluate."))
		return nil
	}

	since := time.Now().AddDate(0, 0, -activityWindowDays)
	emailCounts := make(map[string]int, len(subs))
	byID := make(map[string]model.Subscription, len(subs))
	for _, sub := range subs {
		count, countErr := store.CountRecentBillingEmails(ctx, userID, sub.VendorKey, since)
		if countErr != nil {
			return fmt.Errorf("failed to count activity for %s: %w", sub.VendorName, countErr)
		}
		emailCounts[sub.ID] = count
		byID[sub.ID] = sub
	}

	engine := decision.NewIndividualEngine(decision.DefaultIndividualConfig())
	decisions := engine.EvaluateAll(subs, emailCounts)

	if save {
		for i := range decisions {
			if err := store.SaveDecision(ctx, &decisions[i]); err != nil {
				return fmt.Errorf("failed to save decision: %w", err)
			}
		}
	}

	printDecisions(decisions, byID)
	return nil
}

func decideEnterpriseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enterprise",
		Short: "Evaluate subscriptions with organization-wide context",
		Long: `Evaluate subscriptions against seat utilization, tool dependencies
and ownership data supplied as a JSON file of context snapshots.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			contextFile, _ := cmd.Flags().GetString("context")
			save, _ := cmd.Flags().GetBool("save")
			if contextFile == "" {
				return fmt.Errorf("--context is required")
			}

			data, err := os.ReadFile(contextFile) // #nosec G304
			if err != nil {
				return fmt.Errorf("failed to read context file: %w", err)
			}
			var contexts []model.SubscriptionContext
			if err := json.Unmarshal(data, &contexts); err != nil {
				return fmt.Errorf("failed to parse context file: %w", err)
			}

			engine := decision.NewEnterpriseEngine(decision.DefaultEnterpriseConfig())
			decisions := engine.EvaluateAll(contexts)

			if save {
				store, storeErr := initStorage(ctx)
				if storeErr != nil {
					return fmt.Errorf("failed to open database: %w", storeErr)
				}
				defer func() { _ = store.Close() }()
				for i := range decisions {
					if err := store.SaveDecision(ctx, &decisions[i]); err != nil {
						return fmt.Errorf("failed to save decision: %w", err)
					}
				}
			}

			printEnterpriseDecisions(decisions, contexts)
			return nil
		},
	}

	cmd.Flags().String("context", "", "JSON file of subscription context snapshots")
	cmd.Flags().Bool("save", true, "persist recommendations as pending decisions")

	return cmd
}

func printDecisions(decisions []model.Decision, subs map[string]model.Subscription) {
	actionable := decision.Actionable(decisions)
	if len(actionable) == 0 {
		fmt.Println(cli.SuccessStyle.Render("✓ Everything looks healthy. No action needed."))
		return
	}

	fmt.Println(cli.TitleStyle.Render("Recommended actions"))
	for _, d := range actionable {
		name := d.SubscriptionID
		if sub, ok := subs[d.SubscriptionID]; ok {
			name = sub.VendorName
		}
		fmt.Printf("%s %s: %s\n",
			decisionBadge(d.Type),
			cli.BoldStyle.Render(name),
			d.Explanation,
		)
	}

	savings := decision.PotentialSavings(decisions, subs)
	if savings > 0 {
		fmt.Println()
		fmt.Println(cli.InfoStyle.Render(fmt.Sprintf("Potential monthly savings: $%.2f", float64(savings)/100)))
	}
}

func printEnterpriseDecisions(decisions []model.Decision, contexts []model.SubscriptionContext) {
	names := make(map[string]string, len(contexts))
	for _, c := range contexts {
		names[c.SubscriptionID] = c.ToolName
	}

	fmt.Println(cli.TitleStyle.Render("Recommended actions"))
	var totalSavings int64
	for _, d := range decisions {
		line := fmt.Sprintf("%s %s: %s",
			decisionBadge(d.Type),
			cli.BoldStyle.Render(names[d.SubscriptionID]),
			d.Explanation,
		)
		if d.RequiresApproval {
			line += cli.WarningStyle.Render(" [approval required]")
		}
		if d.Priority == model.PriorityUrgent {
			line = cli.ErrorStyle.Render("URGENT ") + line
		}
		fmt.Println(line)
		totalSavings += d.SavingsCents
	}
	if totalSavings > 0 {
		fmt.Println()
		fmt.Println(cli.InfoStyle.Render(fmt.Sprintf("Potential annual savings: $%.2f", float64(totalSavings)/100)))
	}
}

func decisionBadge(t model.DecisionType) string {
	switch t {
	case model.DecisionCancel:
		return cli.ErrorStyle.Render("[cancel]")
	case model.DecisionReview:
		return cli.WarningStyle.Render("[review]")
	case model.DecisionRemind:
		return cli.InfoStyle.Render("[remind]")
	case model.DecisionDownsize:
		return cli.WarningStyle.Render("[downsize]")
	default:
		return cli.SubtleStyle.Render("[keep]")
	}
}

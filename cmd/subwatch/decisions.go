package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joshsymonds/subwatch/internal/cli"
	"github.com/spf13/cobra"
)

func decisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Review and act on saved recommendations",
	}

	cmd.AddCommand(decisionsListCmd())
	cmd.AddCommand(decisionTransitionCmd("approve", "Approve a pending decision"))
	cmd.AddCommand(decisionTransitionCmd("reject", "Reject a pending decision"))
	cmd.AddCommand(decisionTransitionCmd("execute", "Mark an approved decision as executed"))

	return cmd
}

func decisionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <subscription-id>",
		Short: "List decisions recorded for a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			decisions, err := store.GetDecisionsBySubscription(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to list decisions: %w", err)
			}
			if len(decisions) == 0 {
				fmt.Println(cli.InfoStyle.Render("No decisions recorded. Run 'subwatch decide' first."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tACTION\tSTATUS\tCONFIDENCE\tRISK\tCREATED\tEXPLANATION")
			for _, d := range decisions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
					shortID(d.ID),
					d.Type,
					d.Status,
					d.Confidence,
					d.RiskLevel,
					d.CreatedAt.Format("2006-01-02"),
					d.Explanation,
				)
			}
			return w.Flush()
		},
	}
}

func decisionTransitionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <id>", action),
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() { _ = store.Close() }()

			switch action {
			case "approve":
				err = store.ApproveDecision(ctx, args[0])
			case "reject":
				err = store.RejectDecision(ctx, args[0])
			case "execute":
				err = store.ExecuteDecision(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to %s decision: %w", action, err)
			}

			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("✓ Decision %s is now %s", args[0], pastTense(action))))
			return nil
		},
	}
}

func pastTense(action string) string {
	switch action {
	case "approve":
		return "approved"
	case "reject":
		return "rejected"
	default:
		return "executed"
	}
}

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/skillrouter/internal/storage"
)

var (
	decisionsLimit       int
	decisionsSurface     string
	decisionsSkill       string
	decisionsPassingOnly bool
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions [decision-id]",
	Short: "Inspect the routing decision log",
	Long: `List recent routing decisions, newest first, or print one decision by ID.
Requires storage to be configured.

Examples:
  skillrouter decisions --limit 20 --surface http
  skillrouter decisions --skill workflows-git
  skillrouter decisions 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecisions,
}

func init() {
	decisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", storage.DefaultDecisionLimit, "Maximum decisions to list")
	decisionsCmd.Flags().StringVar(&decisionsSurface, "surface", "", "Only decisions from this surface (cli, http, ws, mcp)")
	decisionsCmd.Flags().StringVar(&decisionsSkill, "skill", "", "Only decisions whose top skill matches")
	decisionsCmd.Flags().BoolVar(&decisionsPassingOnly, "passing-only", false, "Only decisions whose top recommendation passed the gate")
}

func runDecisions(cmd *cobra.Command, args []string) error {
	app, err := setup(appOptions{})
	if err != nil {
		return err
	}
	defer app.Cleanup()

	if app.Store == nil {
		return fmt.Errorf("decision log requires storage (configure the storage section)")
	}
	decisions := app.Store.Decisions()
	ctx := cmd.Context()

	if len(args) == 1 {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid decision id %q: %w", args[0], err)
		}
		d, err := decisions.GetDecision(ctx, id)
		if err != nil {
			return fmt.Errorf("getting decision %s: %w", id, err)
		}
		return writeJSON(cmd.OutOrStdout(), d)
	}

	list, err := decisions.ListDecisions(ctx, storage.DecisionFilter{
		Limit:       decisionsLimit,
		Surface:     decisionsSurface,
		TopSkill:    decisionsSkill,
		PassingOnly: decisionsPassingOnly,
	})
	if err != nil {
		return fmt.Errorf("listing decisions: %w", err)
	}
	if list == nil {
		list = []storage.Decision{}
	}
	return writeJSON(cmd.OutOrStdout(), list)
}

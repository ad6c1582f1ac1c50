package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/gateway"
	"github.com/jkaninda/skillrouter/internal/router"
)

var (
	routeThreshold      float64
	routeMaxUncertainty float64
	routePassingOnly    bool
	routeExplain        bool

	validateJSON bool
)

var routeCmd = &cobra.Command{
	Use:   "route [request text...]",
	Short: "Rank skills for a request",
	Long: `Rank the skill catalog against a free-text request and print the
recommendations as JSON, highest confidence first.

Examples:
  skillrouter route how do I commit my git changes
  skillrouter route --threshold 0.8 "search the codebase for auth"
  skillrouter route --explain "refactor the parser"

An empty request prints [].`,
	RunE: runRoute,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report skill catalog health",
	Long: `Print the catalog health report as JSON: skill count, skill names,
configured directories and any files that failed to load.

Always exits 0 so it can be used as a diagnostic in scripts.`,
	RunE: runHealth,
}

var validateCmd = &cobra.Command{
	Use:   "validate <skill-dir>...",
	Short: "Validate skill directories",
	Long: `Check that each directory holds a well-formed SKILL.md: frontmatter
present, a hyphen-case name and a single-line description.

Exit codes:
  0  all directories are valid
  1  at least one directory is invalid`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	routeCmd.Flags().Float64VarP(&routeThreshold, "threshold", "t", 0, "Drop recommendations below this confidence (0-1)")
	routeCmd.Flags().Float64Var(&routeMaxUncertainty, "max-uncertainty", 1.0, "Drop recommendations above this uncertainty (0-1)")
	routeCmd.Flags().BoolVar(&routePassingOnly, "passing-only", false, "Only print recommendations that clear the gate")
	routeCmd.Flags().BoolVar(&routeExplain, "explain", false, "Print the full candidate list with matched signals")

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print results as JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return writeJSON(cmd.OutOrStdout(), []router.Recommendation{})
	}

	req := gateway.RouteRequest{
		Text:        text,
		PassingOnly: routePassingOnly,
	}
	if routeThreshold > 0 {
		req.MinConfidence = routeThreshold
	}
	if cmd.Flags().Changed("max-uncertainty") {
		req.MaxUncertainty = &routeMaxUncertainty
	}
	if err := req.Validate(); err != nil {
		return err
	}

	app, err := setup(appOptions{})
	if err != nil {
		return err
	}
	defer app.Cleanup()

	ctx := router.WithCorrelationID(cmd.Context(), router.NewCorrelationID())

	if routeExplain {
		candidates, err := app.Router.Explain(ctx, text)
		if err != nil {
			return fmt.Errorf("explaining route: %w", err)
		}
		if candidates == nil {
			candidates = []router.Candidate{}
		}
		return writeJSON(cmd.OutOrStdout(), candidates)
	}

	resp, err := gateway.Route(ctx, app.RouterFor(surfaceCLI), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), resp.Recommendations)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	app, err := setup(appOptions{})
	if err != nil {
		return err
	}
	defer app.Cleanup()

	report := app.Health(cmd.Context())
	app.Obs.MetricsOrNil().RecordCatalogHealth(report.Err() == nil)
	return writeJSON(cmd.OutOrStdout(), report)
}

func runValidate(cmd *cobra.Command, args []string) error {
	results := make([]catalog.ValidationResult, 0, len(args))
	invalid := 0
	for _, dir := range args {
		res := catalog.ValidateSkillDir(dir)
		if !res.Valid {
			invalid++
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if validateJSON {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			mark := "ok"
			if !res.Valid {
				mark = "FAIL"
			}
			fmt.Fprintf(out, "%-4s %s: %s\n", mark, res.Path, res.Message)
			for _, w := range res.Warnings {
				fmt.Fprintf(out, "     warning: %s\n", w)
			}
		}
	}

	if invalid > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d skill directories invalid\n", invalid, len(results))
		os.Exit(1)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// skillrouter ranks a catalog of agent skills against free-text requests.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "skillrouter",
	Short: "skillrouter recommends which agent skill should handle a request.",
	Long: `skillrouter scores a catalog of skills (SKILL.md files) against a free-text
request using keyword tables, synonym expansion and fuzzy matching, and
reports a confidence and an uncertainty value for every candidate.
A recommendation is actionable when confidence >= 0.8 and uncertainty <= 0.35.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.skillrouter/config.yaml, env SKILLROUTER_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.AddCommand(routeCmd, healthCmd, validateCmd, serveCmd, mcpCmd, decisionsCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

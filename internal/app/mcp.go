package app

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/cohortwatch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP stdio server over the session store",
	Long: `Start a Model Context Protocol stdio server that an assistant can query.
The server exposes these tools:

  analyze_cohort     Full analytics report for a cohort
  analyze_entity     Summary and progress for one entity
  analyze_exercise   Statistics for one exercise
  at_risk_entities   Entities flagged for attention
  rank_entities      Top N entities by composite score
  cohort_insights    Automated findings, most severe first
  list_cohorts       Stored cohorts with counts

Example MCP client configuration:
  {"mcpServers":{"cohortwatch":{"command":"cohortwatch","args":["mcp"]}}}`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	srv := mcp.NewServer(e.orch, e.db, appVersion, e.logger)
	return srv.Run(cmd.Context(), os.Stdin, os.Stdout)
}

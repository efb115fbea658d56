package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/cohortwatch/internal/output"
	"github.com/blackwell-systems/cohortwatch/internal/records"
)

var (
	importCohort  string
	importReplace bool
)

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Load session records into the local store",
	Long: `Read session records from JSON files, directories of JSON files, or CSV
files and store them. Every record is validated before anything is written;
one invalid record rejects its whole file.

Examples:
  cohortwatch import sessions.csv --cohort spring-2025
  cohortwatch import ./exports/                # cohort taken from each record
  cohortwatch import week2.json --cohort c1 --replace`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importCohort, "cohort", "", "Assign every imported record to this cohort")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete the cohort's existing sessions first (requires --cohort)")
	rootCmd.AddCommand(importCmd)
}

// importResult is the JSON-serializable result of an import.
type importResult struct {
	Files    int    `json:"files"`
	Inserted int    `json:"inserted"`
	Replaced int64  `json:"replaced"`
	Cohort   string `json:"cohort,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	if importReplace && importCohort == "" {
		return fmt.Errorf("--replace requires --cohort")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	var res importResult
	res.Cohort = importCohort

	// Load everything before writing so a bad file leaves the store untouched.
	batches := make([][]records.SessionRecord, 0, len(args))
	for _, path := range args {
		rows, err := records.Load(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		batches = append(batches, rows)
	}

	if importReplace {
		n, err := e.db.DeleteCohort(ctx, importCohort)
		if err != nil {
			return fmt.Errorf("replacing cohort: %w", err)
		}
		res.Replaced = n
	}

	for i, rows := range batches {
		n, err := e.db.InsertSessions(ctx, importCohort, rows)
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[i], err)
		}
		res.Files++
		res.Inserted += n
		e.logger.Info("imported", zap.String("path", args[i]), zap.Int("records", n))
	}
	e.orch.Invalidate("")

	w := cmd.OutOrStdout()
	if flagJSON {
		return output.WriteJSON(w, res)
	}
	msg := fmt.Sprintf("Imported %d session(s) from %d file(s)", res.Inserted, res.Files)
	if res.Replaced > 0 {
		msg += fmt.Sprintf(", replacing %d", res.Replaced)
	}
	fmt.Fprintf(w, " %s\n", output.StyleSuccess.Render(msg))
	return nil
}

package main

import (
	"fmt"

	"github.com/aretw0/preflight/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// exitNotReplayable is returned by audit --strict.
const exitNotReplayable = 3

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check whether the last run can be replayed",
	Long: `Recomputes the audit of the last run from disk: every rule file hash is compared
with the hash stamped in the artifacts, and missing artifacts or rule files are listed.
With --pack, compares the active pack with the one the last run used instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		jsonMode, _ := cmd.Flags().GetBool("json")
		strict, _ := cmd.Flags().GetBool("strict")

		if pack, _ := cmd.Flags().GetBool("pack"); pack {
			st, err := eng.PackStatus(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(out, st); err != nil {
				return err
			}
			if strict && st.Stale {
				return &exitError{code: exitNotReplayable, msg: "active pack differs from the pack of the last run"}
			}
			return nil
		}

		report, err := eng.Audit(cmd.Context())
		if err != nil {
			return err
		}
		if jsonMode {
			if err := printJSON(out, report); err != nil {
				return err
			}
		} else {
			rendered, err := tui.NewRenderer(out)(tui.AuditMarkdown(report))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
		}
		if strict && !report.Replay.Replayable {
			return &exitError{code: exitNotReplayable, msg: "last run is not replayable"}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().Bool("json", false, "Print the report as JSON")
	auditCmd.Flags().Bool("pack", false, "Report pack staleness instead of the replay audit")
	auditCmd.Flags().Bool("strict", false, "Exit with status 3 when not replayable (or, with --pack, when stale)")
}

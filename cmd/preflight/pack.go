package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/preflight/pkg/domain"
	"github.com/aretw0/preflight/pkg/packs"
	"github.com/spf13/cobra"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Build, validate, activate and roll back rule packs",
	Long: `A pack is a snapshot of every rule file the config references, stored under
packs/<id> with a manifest of SHA-256 hashes. Every config change is preceded by a
byte-exact backup under backups/, which rollback restores.`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered packs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		list, err := eng.Packs().List()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var packStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active pack, history and backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		st, err := eng.Packs().Status()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var packValidateCmd = &cobra.Command{
	Use:   "validate [id]",
	Short: "Verify a pack against its manifest (default: the active pack)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		rep, err := eng.Packs().Validate(id)
		var ierr *domain.IntegrityError
		if err != nil && !(errors.As(err, &ierr) && rep != nil) {
			return err
		}
		if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil {
			return perr
		}
		return err
	},
}

var packCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Snapshot the referenced rule files into packs/<id>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		flags := cmd.Flags()
		from, _ := flags.GetString("from")
		version, _ := flags.GetString("version")
		description, _ := flags.GetString("description")
		force, _ := flags.GetBool("force")

		man, err := eng.Packs().Create(cmd.Context(), packs.CreateOptions{
			ID:          args[0],
			From:        from,
			Version:     version,
			Description: description,
			Force:       force,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Pack %s created with %d files (%d bytes)\n", man.PackID, man.FileCount, man.TotalBytes)
		return printJSON(cmd.OutOrStdout(), man)
	},
}

var packActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Validate and activate a pack",
	Long: `Validates the pack, then switches active_pack in the config after backing it up.
With --smoke, a sample request is evaluated against the new pack and the exact previous
config is restored if it does not compose.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		smoke, _ := cmd.Flags().GetBool("smoke")
		entry, err := eng.Activate(cmd.Context(), args[0], smoke)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), entry)
	},
}

var packRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the config before the last pack change",
	Long: `Restores the most recent config backup byte for byte and consumes it, so repeated
rollbacks walk back through history. With --to, activates that pack instead. Without
backups, falls back to the previously active pack.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		to, _ := cmd.Flags().GetString("to")
		smoke, _ := cmd.Flags().GetBool("smoke")
		res, err := eng.Rollback(cmd.Context(), to, smoke)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var packEvalCmd = &cobra.Command{
	Use:   "eval <id>",
	Short: "Compare a candidate pack with the active one",
	Long: `Evaluates a sample request on the active pack, activates the candidate with a smoke
check, evaluates again and reports which metrics changed. The report is written as
kg_pack_eval.json in the artifact directory. The baseline is restored unless --keep.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		keep, _ := cmd.Flags().GetBool("keep")
		rep, err := eng.Eval(cmd.Context(), args[0], keep)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
	packCmd.AddCommand(packListCmd, packStatusCmd, packValidateCmd, packCreateCmd,
		packActivateCmd, packRollbackCmd, packEvalCmd)

	packCreateCmd.Flags().String("from", "", "Source pack (default: the active pack)")
	packCreateCmd.Flags().String("version", "", "Pack version (default: the id)")
	packCreateCmd.Flags().String("description", "", "Free-form description")
	packCreateCmd.Flags().Bool("force", false, "Replace an existing pack directory")

	packActivateCmd.Flags().Bool("smoke", false, "Restore the previous config if a sample request fails")

	packRollbackCmd.Flags().String("to", "", "Activate this pack instead of restoring a backup")
	packRollbackCmd.Flags().Bool("smoke", false, "Verify the restored config with a sample request")

	packEvalCmd.Flags().Bool("keep", false, "Leave the candidate active")
}

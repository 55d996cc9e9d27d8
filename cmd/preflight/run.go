package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/preflight/internal/presentation/tui"
	"github.com/aretw0/preflight/internal/rules"
	"github.com/aretw0/preflight/pkg/domain"
	"github.com/spf13/cobra"
)

// exitBlocked is returned by run when the gate refuses the request.
const exitBlocked = 2

var runCmd = &cobra.Command{
	Use:   "run [payload.json|payload.yaml|-]",
	Short: "Evaluate one request through the pipeline",
	Long: `Classifies, resolves and gates a request, writing one artifact per stage.
The payload is read from a JSON or YAML file, from stdin ("-"), or assembled from flags.
Flags override fields of the file. Exits with status 2 when the request is blocked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(cmd, args)
		if err != nil {
			return err
		}
		eng, closeFn, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := eng.Evaluate(cmd.Context(), payload)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
			if err := printJSON(out, res); err != nil {
				return err
			}
		} else {
			rendered, err := tui.NewRenderer(out)(tui.RunMarkdown(res))
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			fmt.Fprintln(out, tui.Verdict(out, res))
		}

		if res.Blocked() {
			return &exitError{code: exitBlocked}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "Print the run result as JSON")
	runCmd.Flags().String("topic", "", "Request topic")
	runCmd.Flags().StringSlice("outline", nil, "Outline entries (repeat or comma separate)")
	runCmd.Flags().String("project-type", "", "Explicit project type, skipping keyword inference")
	runCmd.Flags().String("region", "", "Region key")
}

func readPayload(cmd *cobra.Command, args []string) (domain.Payload, error) {
	payload := domain.Payload{}
	if len(args) == 1 {
		var (
			data []byte
			err  error
			name = args[0]
		)
		if name == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
			name = "stdin.json"
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		if err := rules.Unmarshal(name, data, &payload); err != nil {
			return nil, err
		}
		if payload == nil {
			payload = domain.Payload{}
		}
	}

	flags := cmd.Flags()
	for flag, field := range map[string]string{"topic": "topic", "project-type": "project_type", "region": "region"} {
		if flags.Changed(flag) {
			v, _ := flags.GetString(flag)
			payload[field] = v
		}
	}
	if flags.Changed("outline") {
		entries, _ := flags.GetStringSlice("outline")
		outline := make([]any, 0, len(entries))
		for _, e := range entries {
			outline = append(outline, e)
		}
		payload["outline"] = outline
	}
	return payload, nil
}

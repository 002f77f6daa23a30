package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file] [pass...]",
	Short: "Run passes non-interactively and print the report",
	Long: `Run the named passes, or every pass, against a binary in non-interactive mode
and print the report as text, markdown or JSON.`,
	Example: `
# Run every pass
triage scan /path/to/binary

# Run two passes and write JSON to a file
triage scan -f json -o report.json /path/to/binary network c2
  `,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		opts, err := optionsFrom(cmd)
		if err != nil {
			return err
		}
		path, err := absPath(args[0])
		if err != nil {
			return err
		}

		start := time.Now()
		if !quiet {
			slog.Info("Running analysis", "file", path, "passes", args[1:])
		}
		doc, err := analyze(cmd.Context(), path, args[1:], opts)
		if err != nil {
			return err
		}
		if !quiet {
			slog.Info("Analysis complete", "findings", doc.Total, "elapsed", time.Since(start).Round(time.Millisecond))
		}

		if output != "" {
			if err := report.WriteFile(output, doc, format); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "report written to %s\n", output)
			}
			return nil
		}
		return report.Render(cmd.OutOrStdout(), doc, format)
	},
}

func init() {
	scanCmd.Flags().BoolP("quiet", "q", false, "Hide progress logging")
	scanCmd.Flags().StringP("format", "f", "text", "Report format: text, markdown or json")
	scanCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
}

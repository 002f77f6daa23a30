package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triage/internal/analysis"
	"triage/internal/loader"
	"triage/internal/passes"
)

var migCmd = &cobra.Command{
	Use:          "mig [file]",
	Short:        "Dump recovered MIG subsystem descriptors",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("sections")
		asJSON, _ := cmd.Flags().GetBool("json")
		maxRoutines, _ := cmd.Flags().GetUint64("max-routines")

		filter, err := passes.SectionPreset(preset)
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
		img, err := loader.Open(path, opts.open)
		if err != nil {
			return err
		}
		defer img.Close()

		limits := analysis.DefaultMIGLimits()
		if maxRoutines > 0 {
			limits.MaxRoutines = maxRoutines
		}
		found, err := analysis.RecoverAll(img, filter, analysis.MIGSubsystemLayout(limits))
		if err != nil {
			return fmt.Errorf("failed to recover mig subsystems: %v", err)
		}

		subs := make([]analysis.MIGSubsystem, 0, len(found))
		for _, c := range found {
			subs = append(subs, analysis.NewMIGSubsystem(c.Record))
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(subs)
		}

		if len(subs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no MIG subsystems found")
			return nil
		}

		colorAddr := color.New(color.Faint).SprintfFunc()
		colorName := color.New(color.FgHiBlue, color.Bold).SprintFunc()
		colorRange := color.New(color.FgHiMagenta).SprintfFunc()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)
		for _, s := range subs {
			name := s.Name
			if name == "" {
				name = "subsystem"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\troutines=%d\tmaxsize=%d\tserver=%#x\n",
				colorAddr("%#x:", s.Address),
				colorName(name),
				colorRange("%d-%d", s.Start, s.End-1),
				s.MsgCount,
				s.MaxSize,
				s.Server)
		}
		return w.Flush()
	},
}

func init() {
	migCmd.Flags().StringP("sections", "s", passes.PresetConst, "Section preset to search")
	migCmd.Flags().Bool("json", false, "Output as JSON")
	migCmd.Flags().Uint64("max-routines", 0, "Largest accepted routine count (default 512)")
}

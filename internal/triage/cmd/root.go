package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"triage/internal/report"
	"triage/internal/ui/colorize"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringP("type", "t", "auto", "Binary format: auto, elf, macho or raw")
	rootCmd.PersistentFlags().StringP("arch", "a", "", "Which architecture to use for fat/universal Mach-O")
	rootCmd.PersistentFlags().Uint64("base", 0, "Load address of a raw image")
	rootCmd.PersistentFlags().String("tables", "", "Directory of extra or overriding pattern tables")
	rootCmd.PersistentFlags().IntP("max-results", "m", 0, "Override every per-category result cap")

	rootCmd.Flags().BoolP("help", "h", false, "Help")
	rootCmd.Flags().BoolP("no-tui", "n", false, "Print the report without the TUI")
	rootCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
	rootCmd.Flags().StringP("output", "o", "", "Also write the report to a file (.json, .md or text)")
	rootCmd.Flags().StringSliceP("passes", "p", nil, "Passes to run (default all)")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")

	rootCmd.AddCommand(scanCmd, passesCmd, stringsCmd, migCmd, logsCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "triage [file]",
	Short: "Security triage of compiled binaries",
	Long: `Triage scans an ELF, Mach-O or raw binary for security relevant strings,
symbols and structures: network endpoints, persistence, anti-analysis checks,
privilege escalation, Mach IPC and more. Results are grouped per pass and
category with a bounded number of findings each.`,
	Example: `
# Explore the findings interactively
triage /path/to/binary

# Print a markdown report of two passes
triage -n -p network,persistence /path/to/binary

# Write JSON for regression testing
triage -j -o report.json /path/to/binary
  `,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		opts, err := optionsFrom(cmd)
		if err != nil {
			return err
		}
		path, err := absPath(args[0])
		if err != nil {
			return err
		}
		passNames, _ := cmd.Flags().GetStringSlice("passes")
		output, _ := cmd.Flags().GetString("output")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		noTUI, _ := cmd.Flags().GetBool("no-tui")

		if !jsonOutput && !noTUI && term.IsTerminal(os.Stdout.Fd()) {
			program := tea.NewProgram(
				NewModel(cmd.Context(), path, passNames, opts),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			final, err := program.Run()
			if err != nil {
				slog.Error("TUI run error", "error", err)
				return fmt.Errorf("TUI error: %v", err)
			}
			if m, ok := final.(model); ok && m.err != nil {
				return m.err
			}
			if m, ok := final.(model); ok && output != "" && m.doc != nil {
				return report.WriteFile(output, m.doc, report.FormatForPath(output))
			}
			return nil
		}

		doc, err := analyze(cmd.Context(), path, passNames, opts)
		if err != nil {
			return err
		}
		if output != "" {
			if err := report.WriteFile(output, doc, report.FormatForPath(output)); err != nil {
				return err
			}
			slog.Debug("Report written", "path", output)
		}
		if jsonOutput {
			return printJSON(cmd, doc, opts)
		}
		return printMarkdown(cmd, doc, opts)
	},
}

func printJSON(cmd *cobra.Command, doc *report.Document, opts options) error {
	b, err := report.JSON(doc)
	if err != nil {
		return err
	}
	out := string(b)
	if !opts.noColor {
		if colored, err := colorize.JSON(b); err == nil {
			out = colored
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func printMarkdown(cmd *cobra.Command, doc *report.Document, opts options) error {
	md := report.Markdown(doc)
	if !term.IsTerminal(os.Stdout.Fd()) {
		// piped output stays raw markdown
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), renderMarkdown(md, terminalWidth(), opts.noColor))
	return nil
}

func Execute() {
	// Bypass fang when printing a report or when output is piped so the
	// report is not wrapped in fang's own rendering.
	plain := !term.IsTerminal(os.Stdout.Fd())
	for _, arg := range os.Args[1:] {
		if arg == "--no-tui" || arg == "-n" || arg == "--json" || arg == "-j" {
			plain = true
			break
		}
	}

	if plain {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}

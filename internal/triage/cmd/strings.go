package cmd

import (
	"bufio"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"triage/internal/analysis"
	"triage/internal/loader"
	"triage/internal/passes"
)

var stringsCmd = &cobra.Command{
	Use:   "strings [file]",
	Short: "Dump the printable strings of a binary's string sections",
	Example: `
# Strings of the C string sections
triage strings /path/to/binary

# Everything at least 8 bytes long in constant data too
triage strings -s strings+const -n 8 /path/to/binary
  `,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, _ := cmd.Flags().GetString("sections")
		minLen, _ := cmd.Flags().GetInt("min-length")
		whitespace, _ := cmd.Flags().GetBool("whitespace")
		showSection, _ := cmd.Flags().GetBool("section")

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

		colorAddr := color.New(color.Faint).SprintfFunc()
		colorSection := color.New(color.FgHiBlue).SprintFunc()

		w := bufio.NewWriter(cmd.OutOrStdout())
		defer w.Flush()
		analysis.WalkStrings(img, filter, analysis.ExtractOptions{
			MinLength:       minLen,
			AllowWhitespace: whitespace,
		}, func(sec analysis.Section, addr uint64, text string) bool {
			if showSection {
				fmt.Fprintf(w, "%s %s %q\n", colorAddr("%#x:", addr), colorSection(sec.FullName()), text)
			} else {
				fmt.Fprintf(w, "%s %q\n", colorAddr("%#x:", addr), text)
			}
			return true
		})
		return nil
	},
}

func init() {
	stringsCmd.Flags().StringP("sections", "s", passes.PresetStrings, "Section preset: strings, const, strings+const or all")
	stringsCmd.Flags().IntP("min-length", "n", analysis.MinStringLength, "Minimum string length")
	stringsCmd.Flags().BoolP("whitespace", "w", false, "Allow tabs and newlines inside strings")
	stringsCmd.Flags().Bool("section", false, "Print the section of every string")
}

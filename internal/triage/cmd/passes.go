package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"triage/internal/triage/styles"
)

var passesCmd = &cobra.Command{
	Use:     "passes",
	Aliases: []string{"ls"},
	Short:   "List the analysis passes and their categories",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFrom(cmd)
		if err != nil {
			return err
		}
		reg, err := opts.registry()
		if err != nil {
			return err
		}
		verbose, _ := cmd.Flags().GetBool("verbose")

		out := cmd.OutOrStdout()
		for _, p := range reg.All() {
			fmt.Fprintf(out, "%s  %s\n", styles.PassName.Render(fmt.Sprintf("%-13s", p.Name())), p.Title())
			if d := p.Description(); d != "" && verbose {
				fmt.Fprintf(out, "    %s\n", styles.Dim.Render(d))
			}
			for _, c := range p.Table().Categories {
				scan := c.Scan
				if scan == "" {
					scan = "strings"
				}
				line := fmt.Sprintf("    %s %s", styles.Category.Render(fmt.Sprintf("%-20s", c.ID)), c.Title)
				if verbose {
					detail := fmt.Sprintf("%d patterns", len(c.Patterns))
					if c.Matcher != "" {
						detail = c.Matcher + " matcher"
					}
					line += styles.Dim.Render(fmt.Sprintf("  [%s, %s]", scan, detail))
				}
				fmt.Fprintln(out, line)
			}
			for _, s := range p.Table().Structures {
				fmt.Fprintf(out, "    %s %s\n", styles.Category.Render(fmt.Sprintf("%-20s", s.Layout)), styles.Dim.Render("structure in "+s.Sections+" sections"))
			}
		}
		return nil
	},
}

func init() {
	passesCmd.Flags().BoolP("verbose", "V", false, "Show descriptions and pattern counts")
}

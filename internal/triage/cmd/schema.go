package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"triage/internal/config"
	"triage/internal/passes"
	"triage/internal/report"
)

var schemaCmd = &cobra.Command{
	Use:       "schema [config|report|table]",
	Short:     "Generate JSON schema",
	Long:      "Generate the JSON schema of the environment configuration, the JSON report or a pattern table",
	Hidden:    true,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"config", "report", "table"},
	RunE: func(cmd *cobra.Command, args []string) error {
		which := "config"
		if len(args) == 1 {
			which = args[0]
		}
		bts, err := schemaFor(which)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(bts))
		return nil
	},
}

func schemaFor(which string) ([]byte, error) {
	switch which {
	case "report":
		return report.Schema()
	case "config":
		return reflectSchema(new(jsonschema.Reflector), &config.Config{})
	case "table":
		// tables are YAML; name properties after the yaml keys
		return reflectSchema(&jsonschema.Reflector{FieldNameTag: "yaml"}, &passes.Table{})
	}
	return nil, fmt.Errorf("unknown schema %q (want config, report or table)", which)
}

func reflectSchema(r *jsonschema.Reflector, v any) ([]byte, error) {
	bts, err := json.MarshalIndent(r.Reflect(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}

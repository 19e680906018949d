package main

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/carimport/internal/core"
)

// tableSchema is the exported description of a registered table.
type tableSchema struct {
	Key          string        `json:"key" yaml:"key"`
	Label        string        `json:"label" yaml:"label"`
	Group        string        `json:"group" yaml:"group"`
	IdentityKeys []string      `json:"identityKeys" yaml:"identity_keys"`
	Stamped      bool          `json:"stamped" yaml:"stamped"`
	Fields       []fieldSchema `json:"fields" yaml:"fields"`
}

type fieldSchema struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Size     int    `json:"size,omitempty" yaml:"size,omitempty"`
}

var schemaCmd = &cobra.Command{
	Use:         "schema [table...]",
	Short:       "Print the column classification of the registered tables",
	Annotations: map[string]string{noConfig: ""},
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		keys := args
		if len(keys) == 0 {
			keys = core.Keys()
		}

		schemas := make([]tableSchema, 0, len(keys))
		for _, key := range keys {
			def, ok := core.Get(key)
			if !ok {
				return eris.Errorf("unknown table %q (known: %v)", key, core.Keys())
			}
			schemas = append(schemas, newTableSchema(def))
		}

		return writeSchemas(cmd.OutOrStdout(), schemas, format)
	},
}

func init() {
	schemaCmd.Flags().String("format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(schemaCmd)
}

func newTableSchema(def core.TableDefinition) tableSchema {
	s := tableSchema{
		Key:          def.Info.Key,
		Label:        def.Info.Label,
		Group:        def.Info.Group,
		IdentityKeys: def.Info.IdentityKeys,
		Stamped:      def.Stamped,
		Fields:       make([]fieldSchema, len(def.FieldSpecs)),
	}
	for i, spec := range def.FieldSpecs {
		s.Fields[i] = fieldSchema{
			Name:     spec.Name,
			Type:     spec.Type.String(),
			Required: spec.Required,
			Size:     spec.Size,
		}
	}
	return s
}

func writeSchemas(w io.Writer, schemas []tableSchema, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(schemas); err != nil {
			return eris.Wrap(err, "encode schema")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "encode schema")
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(schemas); err != nil {
			return eris.Wrap(err, "encode schema")
		}
		return nil
	default:
		return eris.Errorf("unsupported format %q (use yaml or json)", format)
	}
}

package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"mercator-hq/exporter/pkg/cli"
	"mercator-hq/exporter/pkg/export/schema"
	"mercator-hq/exporter/pkg/export/shapes"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the export schema",
	Long: `Inspect the Exported* shapes: which raw record kind maps to which shape,
the columns of each shape, and its JSON Schema.

Examples:
  mercator-export schema list
  mercator-export schema show ExportedProcess
  mercator-export schema jsonschema ExportedFile > file.schema.json`,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List raw record kinds and their shapes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := kindTable{registry: shapes.MustRegistry()}
		format, _ := cli.ParseFormat(outputFmt)
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), list.entries())
		}
		return (&cli.TableFormatter{Footer: true}).FormatTo(cmd.OutOrStdout(), list)
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show <shape>",
	Short: "Show the columns of a shape",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shape, err := lookupShape(args[0])
		if err != nil {
			return err
		}
		format, _ := cli.ParseFormat(outputFmt)
		if format == cli.FormatJSON {
			return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), fieldTable{shape}.entries())
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s (kind %s, version %d)\n", shape.Name, shape.Kind, shape.Version)
		if err := (&cli.TableFormatter{}).FormatTo(w, fieldTable{shape}); err != nil {
			return err
		}
		if len(shape.Omitted) > 0 {
			fmt.Fprintln(w, "\nNot exported:")
			for _, o := range shape.Omitted {
				fmt.Fprintf(w, "  - %s: %s\n", o.Path, o.Reason)
			}
		}
		return nil
	},
}

var schemaJSONCmd = &cobra.Command{
	Use:   "jsonschema <shape>",
	Short: "Print the JSON Schema of a shape",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shape, err := lookupShape(args[0])
		if err != nil {
			return err
		}
		return (&cli.JSONFormatter{Indent: true}).FormatTo(cmd.OutOrStdout(), shape.JSONSchema())
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaListCmd, schemaShowCmd, schemaJSONCmd)
}

// lookupShape finds a shape by name, accepting the name without the
// "Exported" prefix.
func lookupShape(name string) (*schema.Shape, error) {
	reg := shapes.MustRegistry()
	if s, ok := reg.ShapeByName(name); ok {
		return s, nil
	}
	if s, ok := reg.ShapeByName("Exported" + name); ok {
		return s, nil
	}
	return nil, cli.NewCommandError("schema", fmt.Errorf("unknown shape %q", name))
}

type kindEntry struct {
	Kind    string `json:"kind"`
	Shape   string `json:"shape"`
	Version int    `json:"version"`
	Columns int    `json:"columns"`
}

type kindTable struct {
	registry *schema.Registry
}

func (k kindTable) entries() []kindEntry {
	var out []kindEntry
	for _, kind := range k.registry.Kinds() {
		s, err := k.registry.Lookup(kind)
		if err != nil {
			continue
		}
		out = append(out, kindEntry{
			Kind:    string(kind),
			Shape:   s.Name,
			Version: s.Version,
			Columns: len(s.Columns()),
		})
	}
	return out
}

func (k kindTable) Header() table.Row { return table.Row{"Kind", "Shape", "Version", "Columns"} }

func (k kindTable) Rows() []table.Row {
	entries := k.entries()
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{e.Kind, e.Shape, e.Version, e.Columns}
	}
	return rows
}

type fieldEntry struct {
	Column string   `json:"column"`
	Type   string   `json:"type"`
	Source string   `json:"source,omitempty"`
	Flags  []string `json:"flags,omitempty"`
}

type fieldTable struct {
	shape *schema.Shape
}

func (f fieldTable) entries() []fieldEntry {
	var out []fieldEntry
	if f.shape.HasMetadata {
		for _, c := range f.shape.Columns() {
			if strings.HasPrefix(c, "metadata.") {
				out = append(out, fieldEntry{Column: c, Type: "metadata"})
			}
		}
	}
	return appendFields(out, "", f.shape.Fields)
}

// appendFields lists fields depth first, nested columns with dotted names
// as they appear in flattened rows.
func appendFields(out []fieldEntry, prefix string, fields []schema.Field) []fieldEntry {
	for _, fd := range fields {
		if fd.Type == schema.TypeNested && fd.Nested != nil {
			out = appendFields(out, prefix+fd.Name+".", fd.Nested.Fields)
			continue
		}
		var flags []string
		if fd.Join {
			flags = append(flags, "joined")
		}
		if fd.Content {
			flags = append(flags, "contents")
		}
		if fd.Hash {
			flags = append(flags, "hash")
		}
		if fd.Deprecated {
			flags = append(flags, "deprecated")
		}
		if len(fd.Enum) > 0 {
			flags = append(flags, "enum")
		}
		out = append(out, fieldEntry{
			Column: prefix + fd.Name,
			Type:   fd.Type.String(),
			Source: fd.Source,
			Flags:  flags,
		})
	}
	return out
}

func (f fieldTable) Header() table.Row { return table.Row{"Column", "Type", "Source", "Flags"} }

func (f fieldTable) Rows() []table.Row {
	entries := f.entries()
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{e.Column, e.Type, e.Source, strings.Join(e.Flags, ",")}
	}
	return rows
}

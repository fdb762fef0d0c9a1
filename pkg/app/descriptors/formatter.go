package descriptors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes the response to stdout in the requested format
func FormatOutput(response *Response, format string) error {
	return WriteOutput(os.Stdout, response, format)
}

// WriteOutput writes the response to w. An export writes the document itself.
func WriteOutput(w io.Writer, response *Response, format string) error {
	if response.Action == ActionExport {
		return writeDocument(w, response.Document, format)
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats descriptors as a table
func formatTable(out io.Writer, response *Response) error {
	if len(response.Descriptors) == 0 {
		fmt.Fprintln(out, "No descriptors loaded.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "EXTENSION\tDEVELOPER\tHEADER\tFOOTER\tTRUNCATE\tNAME\n")
		fmt.Fprintf(w, "---------\t---------\t------\t------\t--------\t----\n")
		for _, d := range response.Descriptors {
			name := "-"
			if d.Name != nil {
				name = fmt.Sprintf("@%d/%d+%d", d.Name.Offset, d.Name.Size, d.Name.Padding)
			}
			truncate := "-"
			if d.Truncate > 0 {
				truncate = fmt.Sprintf("%d", d.Truncate)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				d.Extension, d.DeveloperID, describeGroup(d.Header), describeGroup(d.Footer), truncate, name)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "\nSource: %s (protocol %s)\n", response.Source, response.Protocol)
	fmt.Fprintf(out, "%d loaded, %d skipped\n", len(response.Descriptors), len(response.Skipped))
	for _, skipped := range response.Skipped {
		fmt.Fprintf(out, "  carver %d %s: %s\n", skipped.Index, skipped.Extension, skipped.Reason)
	}
	return nil
}

func describeGroup(g GroupInfo) string {
	if len(g.Patterns) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(g.Patterns))
	for _, p := range g.Patterns {
		parts = append(parts, fmt.Sprintf("%s@%d", p.Hex, p.Position))
	}
	return g.Logic + "(" + strings.Join(parts, ",") + ")"
}

// writeDocument writes an exported document as indented JSON or as YAML.
// Table output falls back to JSON.
func writeDocument(w io.Writer, document []byte, format string) error {
	switch format {
	case "json", "table":
		var out bytes.Buffer
		if err := json.Indent(&out, document, "", "    "); err != nil {
			return fmt.Errorf("failed to format document: %w", err)
		}
		out.WriteByte('\n')
		_, err := w.Write(out.Bytes())
		return err
	case "yaml":
		var value any
		if err := json.Unmarshal(document, &value); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(value)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

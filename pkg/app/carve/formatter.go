package carve

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes carve results to stdout in the requested format
func FormatOutput(response *Response, format string) error {
	return WriteOutput(os.Stdout, response, format)
}

// WriteOutput writes carve results to w in the requested format
func WriteOutput(w io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(w, response)
	case "yaml":
		return formatYAML(w, response)
	case "table":
		return formatTable(w, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats results as a table
func formatTable(out io.Writer, response *Response) error {
	if len(response.Extents) == 0 {
		fmt.Fprintln(out, "No files carved.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

		fmt.Fprintf(w, "ID\tNAME\tTYPE\tSTART\tBLOCKS\tOFFSET\tSIZE\n")
		fmt.Fprintf(w, "--\t----\t----\t-----\t------\t------\t----\n")

		extents := make([]ExtentResult, len(response.Extents))
		copy(extents, response.Extents)
		sort.SliceStable(extents, func(i, j int) bool {
			return extents[i].StartBlock < extents[j].StartBlock
		})

		for _, extent := range extents {
			name := extent.Name
			if extent.Path != "" {
				name += " -> " + extent.Path
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%#x\t%s\n",
				extent.ID, name, extent.Extension, extent.StartBlock, extent.BlockCount,
				extent.Offset, extent.FormatSize())
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Image: %s (%s, %d bytes per sector)\n",
		response.Image, formatBytes(response.Device.Size), response.Device.BytesPerSector)
	fmt.Fprintln(out, FormatSummary(response))

	for _, skipped := range response.Skipped {
		fmt.Fprintf(out, "Skipped descriptor %d %s: %s\n", skipped.Index, skipped.Extension, skipped.Reason)
	}
	if response.OutputDir != "" {
		fmt.Fprintf(out, "Extracted to: %s\n", response.OutputDir)
	}
	if response.Manifest != "" {
		fmt.Fprintf(out, "Manifest: %s\n", response.Manifest)
	}
	return nil
}

// formatJSON formats results as JSON
func formatJSON(w io.Writer, response *Response) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats results as YAML
func formatYAML(w io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}

// FormatSummary provides a one-line summary of the run
func FormatSummary(response *Response) string {
	count := len(response.Extents)
	summary := fmt.Sprintf("Carved %d file", count)
	if count != 1 {
		summary += "s"
	}

	var total uint64
	for _, extent := range response.Extents {
		total += extent.Size
	}
	summary += fmt.Sprintf(" totaling %s from %d sectors", formatBytes(int64(total)), response.Statistics.SectorsProcessed)
	if response.Statistics.SectorsSkipped > 0 {
		summary += fmt.Sprintf(" (%d skipped)", response.Statistics.SectorsSkipped)
	}
	if response.Statistics.TransferFailures > 0 {
		summary += fmt.Sprintf(", %d transfer failures", response.Statistics.TransferFailures)
	}
	summary += fmt.Sprintf(" in %v", response.Duration)
	if response.Cancelled {
		summary += " (cancelled)"
	}
	return summary
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-carver/pkg/app/carve"
)

var carveCmd = &cobra.Command{
	Use:   "carve [image-path]",
	Short: "Recover files from a raw image by signature",
	Long: `Scan every sector of a raw image and recover files whose header and footer
signatures match a carver descriptor.

Examples:
  # Carve with the built-in descriptors and list what was found
  go-carver carve disk.img

  # Extract recovered files and write a CBOR manifest
  go-carver carve disk.img --extract --out ./recovered --manifest carved.cbor

  # Use a custom descriptor document on a 4K-sector image starting at 1 MiB
  go-carver carve disk.img --descriptors filecarver.json --sector-size 4096 --offset 1048576

  # Skip blocks already claimed by the filesystem
  go-carver carve disk.img --allocated 0-2047 --allocated 8192-16383`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCarve(cmd, args[0])
	},
}

// carveBindings maps settings keys to carve flags
var carveBindings = map[string]string{
	"descriptors_path":       "descriptors",
	"sector_size":            "sector-size",
	"starting_offset":        "offset",
	"queue_capacity":         "queue",
	"read_chunk_sectors":     "chunk",
	"extract":                "extract",
	"output_dir":             "out",
	"manifest_path":          "manifest",
	"legacy_footer_patterns": "legacy-footer",
	"allocated_ranges":       "allocated",
}

func init() {
	rootCmd.AddCommand(carveCmd)

	// Descriptors
	carveCmd.Flags().StringP("descriptors", "d", "", "carver descriptor document (default built-in)")
	carveCmd.Flags().Bool("legacy-footer", false, "OR/NOT footers search the header patterns")

	// Device layout
	carveCmd.Flags().Int("sector-size", 0, "bytes per sector (0 uses 512)")
	carveCmd.Flags().Int64("offset", 0, "byte offset to start carving from")
	carveCmd.Flags().Int("chunk", 64, "sectors read per request")
	carveCmd.Flags().Int("queue", 1024, "sector queue capacity")
	carveCmd.Flags().StringSlice("allocated", nil, "block ranges to skip (start-end)")

	// Outputs
	carveCmd.Flags().Bool("extract", false, "write recovered files to the output directory")
	carveCmd.Flags().String("out", "./carved", "output directory for extracted files")
	carveCmd.Flags().String("manifest", "", "write a CBOR manifest of carved extents")
}

func runCarve(cmd *cobra.Command, imagePath string) error {
	settings, err := loadSettings(cmd.Flags(), carveBindings)
	if err != nil {
		return err
	}

	ctx := newAppContext()
	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx.Context = signalCtx

	if ctx.Verbose {
		ctx.SetProgress(func(message string, percent int) {
			ctx.Logf("[CARVE] %3d%% %s", percent, message)
		})
	}

	response, err := carve.Handle(ctx, carve.NewRequest(imagePath, settings))
	if err != nil {
		return err
	}

	return carve.FormatOutput(response, ctx.OutputFormat)
}

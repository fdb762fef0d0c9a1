package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-carver/pkg/app/descriptors"
)

var descriptorBindings = map[string]string{
	"descriptors_path":       "descriptors",
	"legacy_footer_patterns": "legacy-footer",
}

var descriptorsCmd = &cobra.Command{
	Use:   "descriptors",
	Short: "Manage carver descriptor documents",
	Long: `Inspect and maintain the carver descriptor document.

Examples:
  # Show the built-in descriptors
  go-carver descriptors list

  # Check a custom document and report skipped entries
  go-carver descriptors validate --descriptors filecarver.json

  # Export the active document as YAML
  go-carver descriptors export -o yaml

  # Replace a document after validating the new one
  go-carver descriptors import new.json --descriptors filecarver.json`,
}

func newDescriptorsSubcommand(action descriptors.Action, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   string(action),
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			importPath := ""
			if len(args) > 0 {
				importPath = args[0]
			}
			return runDescriptors(cmd, action, importPath)
		},
	}
}

func init() {
	rootCmd.AddCommand(descriptorsCmd)

	descriptorsCmd.PersistentFlags().StringP("descriptors", "d", "", "carver descriptor document (default built-in)")
	descriptorsCmd.PersistentFlags().Bool("legacy-footer", false, "OR/NOT footers search the header patterns")

	importCmd := newDescriptorsSubcommand(descriptors.ActionImport, "Validate a document and make it the active one", cobra.ExactArgs(1))
	importCmd.Use = "import [document-path]"

	descriptorsCmd.AddCommand(
		newDescriptorsSubcommand(descriptors.ActionList, "List the loaded descriptors", cobra.NoArgs),
		newDescriptorsSubcommand(descriptors.ActionValidate, "Report entries that fail to load", cobra.NoArgs),
		newDescriptorsSubcommand(descriptors.ActionExport, "Print the active document", cobra.NoArgs),
		importCmd,
	)
}

func runDescriptors(cmd *cobra.Command, action descriptors.Action, importPath string) error {
	settings, err := loadSettings(cmd.Flags(), descriptorBindings)
	if err != nil {
		return err
	}

	ctx := newAppContext()
	request := &descriptors.Request{
		Action:               action,
		DescriptorsPath:      settings.DescriptorsPath,
		LegacyFooterPatterns: settings.LegacyFooterPatterns,
		ImportPath:           importPath,
	}

	response, err := descriptors.Handle(ctx, request)
	if response != nil {
		if formatErr := descriptors.FormatOutput(response, ctx.OutputFormat); formatErr != nil && err == nil {
			err = formatErr
		}
	}
	return err
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/pkg/app"
)

var (
	// Global flags only
	verbose      bool
	quiet        bool
	outputFormat string
	configFile   string
)

var rootCmd = &cobra.Command{
	Use:   "go-carver",
	Short: "Signature-based file carver for raw disk images",
	Long: `go-carver recovers files from raw disk images by scanning every sector
for header and footer signatures, without relying on filesystem metadata.

Works on raw images and block devices. Carver descriptors are read from a
JSON document (comments allowed); a built-in set covers common formats.

Commands:
  carve        Scan an image and recover files
  descriptors  List, validate, export or import carver descriptors`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default carver-config.yaml in ., ./config, $HOME/.go-carver, /etc/go-carver)")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}

// newAppContext creates the application context from the global flags
func newAppContext() *app.Context {
	ctx := app.NewContext()
	ctx.OutputFormat = GetOutputFormat()
	ctx.Verbose = GetVerbose()
	ctx.Quiet = GetQuiet()
	return ctx
}

// loadSettings reads the carve settings with flags taking precedence over
// the environment, the config file and the defaults
func loadSettings(flags *pflag.FlagSet, bindings map[string]string) (*config.CarveConfig, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	for key, flag := range bindings {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
			}
		}
	}

	cfg, err := config.LoadCarveConfig(v)
	if err != nil {
		return nil, app.NewError(app.ErrCodeConfigInvalid, "invalid configuration", err)
	}
	return cfg, nil
}

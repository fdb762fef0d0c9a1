package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/deploymenttheory/go-carver/internal/types"
)

// CarveConfig holds the settings for a carving run
type CarveConfig struct {
	SectorSize           int      `mapstructure:"sector_size"`
	StartingOffset       int64    `mapstructure:"starting_offset"`
	QueueCapacity        int      `mapstructure:"queue_capacity"`
	ReadChunkSectors     int      `mapstructure:"read_chunk_sectors"`
	DescriptorsPath      string   `mapstructure:"descriptors_path"`
	OutputDir            string   `mapstructure:"output_dir"`
	Extract              bool     `mapstructure:"extract"`
	ManifestPath         string   `mapstructure:"manifest_path"`
	LegacyFooterPatterns bool     `mapstructure:"legacy_footer_patterns"`
	AllocatedRanges      []string `mapstructure:"allocated_ranges"`
}

// SetDefaults registers defaults and the environment prefix on v. Search paths
// are added only when no explicit config file has been set, since naming a
// config clears the explicit file.
func SetDefaults(v *viper.Viper) {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("carver-config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.go-carver")
		v.AddConfigPath("/etc/go-carver")
	}

	v.SetDefault("sector_size", 0) // 0: take it from the device context
	v.SetDefault("starting_offset", 0)
	v.SetDefault("queue_capacity", types.DefaultQueueCapacity)
	v.SetDefault("read_chunk_sectors", 64)
	v.SetDefault("descriptors_path", "")
	v.SetDefault("output_dir", "./carved")
	v.SetDefault("extract", false)
	v.SetDefault("manifest_path", "")
	v.SetDefault("legacy_footer_patterns", false)
	v.SetDefault("allocated_ranges", []string{})

	v.SetEnvPrefix("CARVER")
	v.AutomaticEnv()
}

// LoadCarveConfig reads settings into a CarveConfig. A missing config file is not an error.
func LoadCarveConfig(v *viper.Viper) (*CarveConfig, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config CarveConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks ranges of numeric settings
func (c *CarveConfig) Validate() error {
	if c.SectorSize < 0 {
		return fmt.Errorf("sector_size must not be negative: %d", c.SectorSize)
	}
	if c.StartingOffset < 0 {
		return fmt.Errorf("starting_offset must not be negative: %d", c.StartingOffset)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative: %d", c.QueueCapacity)
	}
	if c.ReadChunkSectors < 1 {
		return fmt.Errorf("read_chunk_sectors must be at least 1: %d", c.ReadChunkSectors)
	}
	if c.Extract && c.OutputDir == "" {
		return fmt.Errorf("output_dir is required when extract is enabled")
	}
	return nil
}

// LoadOptions returns the descriptor loading options implied by the settings
func (c *CarveConfig) LoadOptions() LoadOptions {
	return LoadOptions{LegacyFooterPatterns: c.LegacyFooterPatterns}
}

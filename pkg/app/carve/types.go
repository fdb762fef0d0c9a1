package carve

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/internal/services"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Request represents a carving run over one image
type Request struct {
	ImagePath string

	// Device layout
	SectorSize       int
	StartingOffset   int64
	ReadChunkSectors int

	// Descriptors
	DescriptorsPath      string
	LegacyFooterPatterns bool
	// ImportPath names a replacement document imported into the store
	// and registered with the session before carving starts.
	ImportPath string

	// Scheduling
	QueueCapacity   int
	AllocatedRanges []string

	// Outputs
	Extract      bool
	OutputDir    string
	ManifestPath string
}

// NewRequest builds a request for imagePath from loaded settings
func NewRequest(imagePath string, cfg *config.CarveConfig) *Request {
	return &Request{
		ImagePath:            imagePath,
		SectorSize:           cfg.SectorSize,
		StartingOffset:       cfg.StartingOffset,
		ReadChunkSectors:     cfg.ReadChunkSectors,
		DescriptorsPath:      cfg.DescriptorsPath,
		LegacyFooterPatterns: cfg.LegacyFooterPatterns,
		QueueCapacity:        cfg.QueueCapacity,
		AllocatedRanges:      cfg.AllocatedRanges,
		Extract:              cfg.Extract,
		OutputDir:            cfg.OutputDir,
		ManifestPath:         cfg.ManifestPath,
	}
}

// Response represents the outcome of a carving run
type Response struct {
	Image       string                     `json:"image" yaml:"image"`
	Device      DeviceInfo                 `json:"device" yaml:"device"`
	Extents     []ExtentResult             `json:"extents" yaml:"extents"`
	Statistics  services.SessionStatistics `json:"statistics" yaml:"statistics"`
	Skipped     []SkippedDescriptor        `json:"skipped_descriptors,omitempty" yaml:"skipped_descriptors,omitempty"`
	Descriptors int                        `json:"descriptors" yaml:"descriptors"`
	OutputDir   string                     `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Manifest    string                     `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	Duration    time.Duration              `json:"duration" yaml:"duration"`
	Cancelled   bool                       `json:"cancelled" yaml:"cancelled"`
}

// DeviceInfo describes the carved image
type DeviceInfo struct {
	DiskIndex      int32 `json:"disk_index" yaml:"disk_index"`
	BytesPerSector int32 `json:"bytes_per_sector" yaml:"bytes_per_sector"`
	StartingOffset int64 `json:"starting_offset" yaml:"starting_offset"`
	Size           int64 `json:"size" yaml:"size"`
}

// ExtentResult represents one recovered file
type ExtentResult struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Extension   string    `json:"extension" yaml:"extension"`
	DeveloperID uint64    `json:"developer_id" yaml:"developer_id"`
	StartBlock  uint64    `json:"start_block" yaml:"start_block"`
	BlockCount  uint64    `json:"block_count" yaml:"block_count"`
	Offset      uint64    `json:"offset" yaml:"offset"`
	Size        uint64    `json:"size" yaml:"size"`
	Path        string    `json:"path,omitempty" yaml:"path,omitempty"`
	Carved      time.Time `json:"carved" yaml:"carved"`
}

// SkippedDescriptor reports a descriptor entry that could not be loaded
type SkippedDescriptor struct {
	Index     int    `json:"index" yaml:"index"`
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"`
	Reason    string `json:"reason" yaml:"reason"`
}

func newExtentResult(extent *types.CarvedExtent, sectorSize int) ExtentResult {
	return ExtentResult{
		ID:          fmt.Sprintf("%#x", extent.ID),
		Name:        extent.Name,
		Extension:   extent.Extension,
		DeveloperID: extent.DeveloperID,
		StartBlock:  extent.StartBlock(),
		BlockCount:  extent.BlockCount(),
		Offset:      extent.StartBlock() * uint64(sectorSize),
		Size:        extent.Size,
		Carved:      extent.CreateTime,
	}
}

// FormatSize returns a human-readable size string
func (e *ExtentResult) FormatSize() string {
	return formatBytes(int64(e.Size))
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

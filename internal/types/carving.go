// Package types holds the data structures shared by the carving pipeline.
package types

import "time"

// Session-wide defaults.
const (
	// DefaultSectorSize is used when the device context reports no usable sector size.
	DefaultSectorSize = 512

	// DefaultQueueCapacity is the soft capacity of the sector queue.
	DefaultQueueCapacity = 1024

	// MaxPatternBytes is the fixed capacity of a byte pattern.
	MaxPatternBytes = 32

	// MaxHexSourceChars is the number of hex characters decoded for one pattern.
	MaxHexSourceChars = 2 * MaxPatternBytes

	// MaxNameLength bounds a recovered name read from a header sector.
	MaxNameLength = 0x100

	// MaxExtentNameBytes bounds the name carried by an extent record.
	MaxExtentNameBytes = 256
)

// Control options carried by a SectorPackage.
const (
	// ControlNone marks an ordinary sector.
	ControlNone int32 = 0
	// ControlEndOfStream is the sentinel that ends the consumer loop.
	ControlEndOfStream int32 = -1
)

// Identifier space for extents handed to the host engine.
const (
	RootID      uint64 = 0x1000000000000000
	FileCarveID uint64 = 0x2000000000000000
	RawMask     uint64 = 0x4000000000000000
)

// Host record constants.
const (
	// ExtentAttribute is the attribute value reported for every carved file.
	ExtentAttribute uint32 = 32765
	// ExtentCategory is the category reported for every carved file.
	ExtentCategory int32 = 1
)

// FileSystemCategory identifies the filesystem a scanner works on.
type FileSystemCategory int32

const (
	// FileSystemRaw means no filesystem metadata is used.
	FileSystemRaw FileSystemCategory = iota
)

// String returns the category name.
func (c FileSystemCategory) String() string {
	switch c {
	case FileSystemRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// SectorPackage is one sector read from the device. It is consumed exactly once.
type SectorPackage struct {
	BlockNumber   uint64
	Buffer        []byte
	ControlOption int32
}

// IsEndOfStream reports whether the package is the end-of-stream sentinel.
func (p *SectorPackage) IsEndOfStream() bool {
	return p.ControlOption == ControlEndOfStream
}

// EndOfStream returns a sentinel package.
func EndOfStream() *SectorPackage {
	return &SectorPackage{ControlOption: ControlEndOfStream}
}

// DeviceContext describes the device being carved. It is read once at session start.
type DeviceContext struct {
	DiskIndex      int32 `json:"DiskIndex"`
	BytesPerSector int32 `json:"BytesPerSector"`
	StartingOffset int64 `json:"StartingOffset"`
	Size           int64 `json:"Size"`
}

// SectorSize returns the usable sector size for the session.
func (c DeviceContext) SectorSize() int {
	if c.BytesPerSector > 0 {
		return int(c.BytesPerSector)
	}
	return DefaultSectorSize
}

// LogicType combines the patterns of a signature group.
type LogicType int

const (
	LogicNone LogicType = iota
	LogicAnd
	LogicOr
	LogicNot
)

// String returns the canonical symbol for the logic type.
func (l LogicType) String() string {
	switch l {
	case LogicAnd:
		return "and"
	case LogicOr:
		return "or"
	case LogicNot:
		return "not"
	default:
		return "none"
	}
}

// PatternRole decides how a group's patterns are matched against a sector.
type PatternRole int

const (
	// RoleHeader compares each pattern at its absolute offset.
	RoleHeader PatternRole = iota
	// RoleFooter searches each pattern anywhere in the sector.
	RoleFooter
)

// CarverStatus is the progress of one descriptor toward a recovered extent.
type CarverStatus int

const (
	StatusInit CarverStatus = iota
	StatusHeader
	StatusBody
	StatusFooter
	StatusCompleted
)

// String returns the status name.
func (s CarverStatus) String() string {
	switch s {
	case StatusInit:
		return "init"
	case StatusHeader:
		return "header"
	case StatusBody:
		return "body"
	case StatusFooter:
		return "footer"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsComplete reports whether the extent is finalized. Footer counts as complete.
func (s CarverStatus) IsComplete() bool {
	return s >= StatusFooter
}

// Runlist is a contiguous run of blocks.
type Runlist struct {
	Start  uint64 `json:"start" yaml:"start" cbor:"1,keyasint"`
	Number uint64 `json:"number" yaml:"number" cbor:"2,keyasint"`
}

// CarvedExtent is one recovered file handed to the transfer sink.
type CarvedExtent struct {
	ID          uint64             `json:"id" yaml:"id" cbor:"1,keyasint"`
	ParentID    uint64             `json:"parent_id" yaml:"parent_id" cbor:"2,keyasint"`
	DeveloperID uint64             `json:"developer_id" yaml:"developer_id" cbor:"3,keyasint"`
	Extension   string             `json:"extension" yaml:"extension" cbor:"4,keyasint"`
	Name        string             `json:"name" yaml:"name" cbor:"5,keyasint"`
	Runlist     Runlist            `json:"runlist" yaml:"runlist" cbor:"6,keyasint"`
	Size        uint64             `json:"size" yaml:"size" cbor:"7,keyasint"`
	Attribute   uint32             `json:"attribute" yaml:"attribute" cbor:"8,keyasint"`
	Category    int32              `json:"category" yaml:"category" cbor:"9,keyasint"`
	FileSystem  FileSystemCategory `json:"file_system" yaml:"file_system" cbor:"10,keyasint"`
	CreateTime  time.Time          `json:"create_time" yaml:"create_time" cbor:"11,keyasint"`
	AccessTime  time.Time          `json:"access_time" yaml:"access_time" cbor:"12,keyasint"`
	ModifyTime  time.Time          `json:"modify_time" yaml:"modify_time" cbor:"13,keyasint"`
}

// StartBlock returns the first block of the extent.
func (e *CarvedExtent) StartBlock() uint64 { return e.Runlist.Start }

// BlockCount returns the number of blocks in the extent.
func (e *CarvedExtent) BlockCount() uint64 { return e.Runlist.Number }

package descriptors

import (
	"github.com/deploymenttheory/go-carver/internal/carver"
	"github.com/deploymenttheory/go-carver/internal/parsers/signatures"
)

// Action selects what to do with a descriptor document
type Action string

const (
	ActionList     Action = "list"
	ActionValidate Action = "validate"
	ActionExport   Action = "export"
	ActionImport   Action = "import"
)

// Request represents a descriptor document operation
type Request struct {
	Action Action

	// DescriptorsPath is the active document, empty for the built-in one
	DescriptorsPath      string
	LegacyFooterPatterns bool

	// ImportPath is the replacement document for ActionImport
	ImportPath string
}

// Response represents the loaded document
type Response struct {
	Action      Action           `json:"action" yaml:"action"`
	Source      string           `json:"source" yaml:"source"`
	Protocol    string           `json:"protocol" yaml:"protocol"`
	Descriptors []DescriptorInfo `json:"descriptors" yaml:"descriptors"`
	Skipped     []SkippedEntry   `json:"skipped,omitempty" yaml:"skipped,omitempty"`

	// Document holds the exported JSON for ActionExport
	Document []byte `json:"-" yaml:"-"`
}

// DescriptorInfo summarizes one accepted descriptor
type DescriptorInfo struct {
	Extension   string     `json:"extension" yaml:"extension"`
	DeveloperID uint64     `json:"developer_id" yaml:"developer_id"`
	Algorithm   string     `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Truncate    int64      `json:"truncate,omitempty" yaml:"truncate,omitempty"`
	Name        *NameInfo  `json:"name,omitempty" yaml:"name,omitempty"`
	Header      GroupInfo  `json:"header" yaml:"header"`
	Body        *GroupInfo `json:"body,omitempty" yaml:"body,omitempty"`
	Footer      GroupInfo  `json:"footer" yaml:"footer"`
}

// NameInfo describes where a file name is read from
type NameInfo struct {
	Offset  int `json:"offset" yaml:"offset"`
	Size    int `json:"size" yaml:"size"`
	Padding int `json:"padding" yaml:"padding"`
}

// GroupInfo describes a signature group
type GroupInfo struct {
	Logic    string        `json:"logic" yaml:"logic"`
	Patterns []PatternInfo `json:"patterns" yaml:"patterns"`
}

// PatternInfo describes one signature
type PatternInfo struct {
	Hex      string `json:"hex" yaml:"hex"`
	Length   int    `json:"length" yaml:"length"`
	Position int    `json:"position" yaml:"position"`
}

// SkippedEntry reports an entry that failed to load
type SkippedEntry struct {
	Index     int    `json:"index" yaml:"index"`
	Extension string `json:"extension,omitempty" yaml:"extension,omitempty"`
	Reason    string `json:"reason" yaml:"reason"`
}

func newDescriptorInfo(d *carver.Descriptor) DescriptorInfo {
	info := DescriptorInfo{
		Extension:   d.Extension,
		DeveloperID: d.DeveloperID,
		Algorithm:   d.Algorithm,
		Truncate:    d.TruncateLength,
		Header:      newGroupInfo(&d.Header),
		Footer:      newGroupInfo(d.FooterGroup()),
	}
	if d.NameRule != nil {
		info.Name = &NameInfo{
			Offset:  d.NameRule.LengthOffset,
			Size:    d.NameRule.LengthSize,
			Padding: d.NameRule.Padding,
		}
	}
	if !d.Body.IsEmpty() {
		body := newGroupInfo(&d.Body)
		info.Body = &body
	}
	return info
}

func newGroupInfo(g *signatures.Group) GroupInfo {
	info := GroupInfo{Logic: g.Logic.String(), Patterns: make([]PatternInfo, 0, len(g.Patterns))}
	for i := range g.Patterns {
		p := &g.Patterns[i]
		info.Patterns = append(info.Patterns, PatternInfo{
			Hex:      p.String(),
			Length:   p.Length,
			Position: p.Position,
		})
	}
	return info
}

package carver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-carver/internal/parsers/signatures"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Descriptor validation errors
var (
	ErrMissingExtension = errors.New("descriptor has no extension")
	ErrEmptyHeader      = errors.New("descriptor header group never matches")
	ErrNoTermination    = errors.New("descriptor has neither a footer group nor a truncate length")
)

// NameRule locates a file name embedded in a header sector
type NameRule struct {
	LengthOffset int
	LengthSize   int
	Padding      int
}

// Extract reads the length field and the name that follows it.
// Only the low two bytes of a wider length field are read, little-endian.
// The name is cut at the first path separator.
func (r *NameRule) Extract(buffer []byte) (string, bool) {
	width := r.LengthSize
	if width > 2 {
		width = 2
	}
	if width <= 0 || r.LengthOffset < 0 || r.LengthOffset+width > len(buffer) {
		return "", false
	}

	var length int
	if width == 1 {
		length = int(buffer[r.LengthOffset])
	} else {
		length = int(binary.LittleEndian.Uint16(buffer[r.LengthOffset:]))
	}
	if length >= types.MaxNameLength {
		return "", false
	}

	start := r.LengthOffset + r.LengthSize + r.Padding
	if start < 0 || start+length > len(buffer) {
		return "", false
	}

	name := string(buffer[start : start+length])
	if pos := strings.IndexAny(name, `\/`); pos >= 0 {
		name = name[:pos]
	}
	return name, true
}

// Descriptor is the configuration for one carvable file type.
// It is read-only once loaded and shared by every sector evaluated against it.
type Descriptor struct {
	Extension      string
	DeveloperID    uint64
	Algorithm      string
	TruncateLength int64
	NameRule       *NameRule

	Header signatures.Group
	// Body is parsed and kept but never evaluated.
	Body   signatures.Group
	Footer signatures.Group

	// LegacyFooterPatterns makes OR and NOT footer groups search the header
	// patterns, reading each header offset as trailing padding. An OR footer
	// only ever checks the first header pattern and a NOT footer ends one
	// byte before its pattern length plus padding.
	LegacyFooterPatterns bool
}

// Validate checks that the descriptor can ever produce an extent
func (d *Descriptor) Validate() error {
	if d.Extension == "" {
		return ErrMissingExtension
	}
	if d.Header.IsEmpty() {
		return ErrEmptyHeader
	}
	if d.FooterGroup().IsEmpty() && d.TruncateLength <= 0 {
		return ErrNoTermination
	}
	return nil
}

// FooterGroup returns the group searched for the end of a file
func (d *Descriptor) FooterGroup() *signatures.Group {
	if !d.LegacyFooterPatterns {
		return &d.Footer
	}
	switch d.Footer.Logic {
	case types.LogicOr:
		return &signatures.Group{Logic: types.LogicOr, Patterns: d.Header.Patterns[:min(1, len(d.Header.Patterns))]}
	case types.LogicNot:
		return &signatures.Group{Logic: types.LogicNot, Patterns: d.Header.Patterns}
	}
	return &d.Footer
}

// footerShift is added to the match offset when sizing a footer extent
func (d *Descriptor) footerShift() int {
	if d.LegacyFooterPatterns && d.Footer.Logic == types.LogicNot {
		return -1
	}
	return 0
}

// String returns a short description for logs
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s (developer %d, header %s/%d, footer %s/%d, truncate %d)",
		d.Extension, d.DeveloperID,
		d.Header.Logic, len(d.Header.Patterns),
		d.Footer.Logic, len(d.Footer.Patterns),
		d.TruncateLength)
}

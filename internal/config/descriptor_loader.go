// Package config loads carver descriptor documents and application settings.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/deploymenttheory/go-carver/internal/carver"
	"github.com/deploymenttheory/go-carver/internal/parsers/signatures"
	"github.com/deploymenttheory/go-carver/internal/types"
)

//go:embed filecarver.jsonc
var defaultDocument []byte

// ErrMissingField is wrapped by descriptor errors for absent required fields
var ErrMissingField = errors.New("missing required field")

// ErrUnknownLogic is wrapped by descriptor errors for unrecognized logic symbols
var ErrUnknownLogic = errors.New("unknown logic symbol")

// DefaultDocument returns the built-in descriptor document
func DefaultDocument() []byte {
	out := make([]byte, len(defaultDocument))
	copy(out, defaultDocument)
	return out
}

// LoadOptions controls how descriptors are built
type LoadOptions struct {
	// LegacyFooterPatterns makes OR/NOT footers search the header patterns.
	LegacyFooterPatterns bool
}

// DescriptorError records why one entry of a document was skipped
type DescriptorError struct {
	Index     int
	Extension string
	Err       error
}

func (e *DescriptorError) Error() string {
	if e.Extension != "" {
		return fmt.Sprintf("carver %d (%s): %v", e.Index, e.Extension, e.Err)
	}
	return fmt.Sprintf("carver %d: %v", e.Index, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// LoadResult holds the accepted descriptors and the skipped entries
type LoadResult struct {
	Protocol    string
	Descriptors []*carver.Descriptor
	Skipped     []DescriptorError
}

// Loaded returns the number of accepted descriptors
func (r *LoadResult) Loaded() int {
	return len(r.Descriptors)
}

type document struct {
	Protocol string            `json:"protocol"`
	Carvers  []json.RawMessage `json:"carvers"`
}

type descriptorEntry struct {
	Extension   *string     `json:"extension"`
	DeveloperID uint64      `json:"developerId"`
	Algorithm   string      `json:"algorithm"`
	Truncate    int64       `json:"truncate"`
	Name        *nameEntry  `json:"name"`
	Header      *groupEntry `json:"header"`
	Body        *groupEntry `json:"body"`
	Footer      *groupEntry `json:"footer"`
}

type nameEntry struct {
	Offset  *int `json:"offset"`
	Size    *int `json:"size"`
	Padding *int `json:"padding"`
}

type groupEntry struct {
	Logic      *string          `json:"logic"`
	Characters []characterEntry `json:"characters"`
}

type characterEntry struct {
	Hex     bool    `json:"hex"`
	Size    *int    `json:"size"`
	Offset  int     `json:"offset"`
	Padding int     `json:"padding"`
	Context *string `json:"context"`
}

// ParseDescriptors parses a descriptor document. Comments and trailing commas
// are accepted. Malformed entries are skipped and reported in the result; an
// error is returned only when the document itself cannot be read.
func ParseDescriptors(data []byte, opts LoadOptions) (*LoadResult, error) {
	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor document: %w", err)
	}

	result := &LoadResult{Protocol: doc.Protocol}
	for i, raw := range doc.Carvers {
		descriptor, ext, err := parseDescriptor(raw, opts)
		if err != nil {
			result.Skipped = append(result.Skipped, DescriptorError{Index: i, Extension: ext, Err: err})
			continue
		}
		result.Descriptors = append(result.Descriptors, descriptor)
	}
	return result, nil
}

// LoadDescriptorFile reads and parses a descriptor document from disk
func LoadDescriptorFile(path string, opts LoadOptions) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor document: %w", err)
	}
	return ParseDescriptors(data, opts)
}

func parseDescriptor(raw json.RawMessage, opts LoadOptions) (*carver.Descriptor, string, error) {
	var entry descriptorEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, "", fmt.Errorf("failed to decode carver: %w", err)
	}
	if entry.Extension == nil || *entry.Extension == "" {
		return nil, "", fmt.Errorf("%w: extension", ErrMissingField)
	}
	ext := *entry.Extension

	if entry.Header == nil {
		return nil, ext, fmt.Errorf("%w: header", ErrMissingField)
	}
	if entry.Footer == nil {
		return nil, ext, fmt.Errorf("%w: footer", ErrMissingField)
	}

	descriptor := &carver.Descriptor{
		Extension:            ext,
		DeveloperID:          entry.DeveloperID,
		Algorithm:            entry.Algorithm,
		TruncateLength:       entry.Truncate,
		LegacyFooterPatterns: opts.LegacyFooterPatterns,
	}

	if entry.Name != nil {
		rule, err := parseNameRule(entry.Name)
		if err != nil {
			return nil, ext, err
		}
		descriptor.NameRule = rule
	}

	var err error
	if descriptor.Header, err = parseGroup("header", entry.Header, types.RoleHeader); err != nil {
		return nil, ext, err
	}
	if entry.Body != nil {
		if descriptor.Body, err = parseGroup("body", entry.Body, types.RoleHeader); err != nil {
			return nil, ext, err
		}
	}
	if descriptor.Footer, err = parseGroup("footer", entry.Footer, types.RoleFooter); err != nil {
		return nil, ext, err
	}

	if err := descriptor.Validate(); err != nil {
		return nil, ext, err
	}
	return descriptor, ext, nil
}

func parseNameRule(entry *nameEntry) (*carver.NameRule, error) {
	if entry.Offset == nil || entry.Size == nil || entry.Padding == nil {
		return nil, fmt.Errorf("%w: name offset, size and padding", ErrMissingField)
	}
	if *entry.Offset < 0 || *entry.Size <= 0 || *entry.Padding < 0 {
		return nil, fmt.Errorf("invalid name rule: offset %d, size %d, padding %d", *entry.Offset, *entry.Size, *entry.Padding)
	}
	return &carver.NameRule{
		LengthOffset: *entry.Offset,
		LengthSize:   *entry.Size,
		Padding:      *entry.Padding,
	}, nil
}

func parseGroup(section string, entry *groupEntry, role types.PatternRole) (signatures.Group, error) {
	if entry.Logic == nil {
		return signatures.Group{}, fmt.Errorf("%w: %s logic", ErrMissingField, section)
	}
	logic := signatures.ParseLogic(*entry.Logic)
	if logic == types.LogicNone {
		return signatures.Group{}, fmt.Errorf("%w: %s logic %q", ErrUnknownLogic, section, *entry.Logic)
	}

	group := signatures.Group{Logic: logic, Patterns: make([]signatures.BytePattern, 0, len(entry.Characters))}
	for i, character := range entry.Characters {
		if character.Size == nil || character.Context == nil {
			return signatures.Group{}, fmt.Errorf("%w: %s character %d size and context", ErrMissingField, section, i)
		}

		position := character.Offset
		if role == types.RoleFooter {
			position = character.Padding
		}

		pattern, err := signatures.NewPattern(character.Hex, *character.Context, *character.Size, position)
		if err != nil {
			return signatures.Group{}, fmt.Errorf("%s character %d: %w", section, i, err)
		}
		group.Patterns = append(group.Patterns, pattern)
	}
	return group, nil
}

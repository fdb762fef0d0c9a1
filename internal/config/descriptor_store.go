package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// ErrNoDescriptorsLoaded is returned when a document yields no usable descriptor
var ErrNoDescriptorsLoaded = errors.New("no carver descriptors loaded")

// DescriptorStore holds the active descriptor document. Imports replace it and
// persist the accepted document back to its path.
type DescriptorStore struct {
	mu       sync.Mutex
	path     string
	opts     LoadOptions
	document []byte
	result   *LoadResult
}

// OpenDescriptorStore loads the document at path, or the built-in document when path is empty
func OpenDescriptorStore(path string, opts LoadOptions) (*DescriptorStore, error) {
	data := DefaultDocument()
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read descriptor document: %w", err)
		}
	}

	result, err := ParseDescriptors(data, opts)
	if err != nil {
		return nil, err
	}

	return &DescriptorStore{
		path:     path,
		opts:     opts,
		document: jsonc.ToJSON(data),
		result:   result,
	}, nil
}

// Path returns the backing file, empty for the built-in document
func (s *DescriptorStore) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// WithPath sets the file that accepted imports are persisted to
func (s *DescriptorStore) WithPath(path string) *DescriptorStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
	return s
}

// Result returns the outcome of the last successful load
func (s *DescriptorStore) Result() *LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Export returns the active document as compact JSON
func (s *DescriptorStore) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out bytes.Buffer
	if err := json.Compact(&out, s.document); err != nil {
		return nil, fmt.Errorf("failed to export descriptor document: %w", err)
	}
	return out.Bytes(), nil
}

// Import replaces the active document. A document without any usable
// descriptor is rejected and the previous document stays active.
func (s *DescriptorStore) Import(data []byte) (*LoadResult, error) {
	result, err := ParseDescriptors(data, s.opts)
	if err != nil {
		return nil, err
	}
	if result.Loaded() == 0 {
		return result, ErrNoDescriptorsLoaded
	}

	normalized := jsonc.ToJSON(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		if err := persistDocument(s.path, normalized); err != nil {
			return result, err
		}
	}
	s.document = normalized
	s.result = result
	return result, nil
}

func persistDocument(path string, document []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, document, "", "    "); err != nil {
		return fmt.Errorf("failed to format descriptor document: %w", err)
	}
	out.WriteByte('\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create descriptor directory: %w", err)
	}
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write descriptor document: %w", err)
	}
	return nil
}

package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// ExtentSource opens the bytes of a carved extent
type ExtentSource interface {
	ExtentReader(extent *types.CarvedExtent) (*io.SectionReader, error)
}

// Extractor writes each extent's bytes to a file in a directory
type Extractor struct {
	source ExtentSource
	dir    string

	mu      sync.Mutex
	written []string
	paths   map[uint64]string
}

var _ interfaces.TransferSink = (*Extractor)(nil)

// NewExtractor creates the output directory and returns an extractor writing into it
func NewExtractor(source ExtentSource, dir string) (*Extractor, error) {
	if source == nil {
		return nil, fmt.Errorf("extent source is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Extractor{source: source, dir: dir, paths: make(map[uint64]string)}, nil
}

// Transfer copies the extent out of the source
func (e *Extractor) Transfer(extent *types.CarvedExtent) error {
	reader, err := e.source.ExtentReader(extent)
	if err != nil {
		return fmt.Errorf("failed to open extent %x: %w", extent.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	file, path, err := e.create(extent)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write extent %x: %w", extent.ID, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	e.written = append(e.written, path)
	e.paths[extent.ID] = path
	return nil
}

// PathFor returns the file written for an extent identifier
func (e *Extractor) PathFor(id uint64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	path, ok := e.paths[id]
	return path, ok
}

// Written returns the paths of the files written so far
func (e *Extractor) Written() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.written))
	copy(out, e.written)
	return out
}

// create opens a new file for the extent. An existing file is never overwritten;
// a numeric suffix is added before the extension instead.
func (e *Extractor) create(extent *types.CarvedExtent) (*os.File, string, error) {
	name := safeName(extent)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = stem + "_" + strconv.Itoa(i) + ext
		}
		path := filepath.Join(e.dir, candidate)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
}

func safeName(extent *types.CarvedExtent) string {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(extent.Name, `\`, "/")))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "/" || name == "." || name == ".." {
		name = strconv.FormatUint(extent.ID, 16)
		if extent.Extension != "" {
			name += "." + extent.Extension
		}
	}
	return name
}

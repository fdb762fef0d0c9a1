package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Manifest records use Core Deterministic Encoding so the same extent
// always produces identical bytes. Times keep nanosecond precision.
var (
	manifestEncMode cbor.EncMode
	manifestDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	manifestEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("sink: CBOR encoder initialization failed: " + err.Error())
	}

	manifestDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("sink: CBOR decoder initialization failed: " + err.Error())
	}
}

// Manifest appends each extent as one CBOR data item, producing a CBOR sequence
type Manifest struct {
	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	count   int
}

var _ interfaces.TransferSink = (*Manifest)(nil)

// NewManifest writes records to w
func NewManifest(w io.Writer) *Manifest {
	m := &Manifest{encoder: manifestEncMode.NewEncoder(w)}
	if closer, ok := w.(io.Closer); ok {
		m.closer = closer
	}
	return m
}

// CreateManifest creates or truncates the manifest file at path
func CreateManifest(path string) (*Manifest, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	return NewManifest(file), nil
}

// Transfer appends the extent record
func (m *Manifest) Transfer(extent *types.CarvedExtent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.encoder == nil {
		return os.ErrClosed
	}
	if err := m.encoder.Encode(extent); err != nil {
		return fmt.Errorf("failed to encode manifest record: %w", err)
	}
	m.count++
	return nil
}

// Count returns the number of records written
func (m *Manifest) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Close closes the underlying writer when it is closable
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encoder = nil
	if m.closer != nil {
		err := m.closer.Close()
		m.closer = nil
		return err
	}
	return nil
}

// ReadManifest decodes every record of a manifest stream
func ReadManifest(r io.Reader) ([]types.CarvedExtent, error) {
	decoder := manifestDecMode.NewDecoder(r)
	var extents []types.CarvedExtent
	for {
		var extent types.CarvedExtent
		if err := decoder.Decode(&extent); err != nil {
			if errors.Is(err, io.EOF) {
				return extents, nil
			}
			return extents, fmt.Errorf("failed to decode manifest record %d: %w", len(extents), err)
		}
		extents = append(extents, extent)
	}
}

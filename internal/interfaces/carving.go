// File: internal/interfaces/carving.go
package interfaces

import (
	"context"

	"github.com/deploymenttheory/go-carver/internal/types"
)

// DeviceContextProvider supplies the device description once per session
type DeviceContextProvider interface {
	// DeviceContext returns disk index, bytes per sector, starting offset and size
	DeviceContext() (types.DeviceContext, error)
}

// AvailabilityOracle decides whether a block is already accounted for
type AvailabilityOracle interface {
	// Allocated reports whether the block is known-allocated and should be skipped
	Allocated(blockNumber uint64) bool
}

// TransferSink receives completed extents
type TransferSink interface {
	// Transfer persists or forwards the extent. Failures are not retried.
	Transfer(extent *types.CarvedExtent) error
}

// Logger accepts printf-style messages. Implementations must not block the caller.
type Logger interface {
	Logf(format string, args ...any)
}

// SectorWriter accepts sector buffers in increasing device offset order
type SectorWriter interface {
	// WriteBuffer hands over one sector read at the given device offset
	WriteBuffer(buffer []byte, offset int64)
}

// SectorSource drives a SectorWriter with the sectors of a device
type SectorSource interface {
	DeviceContextProvider

	// Stream pushes every sector of the device into the writer, in order
	Stream(ctx context.Context, writer SectorWriter, progress func(done, total int64)) error
}

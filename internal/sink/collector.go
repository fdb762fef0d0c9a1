// Package sink holds the destinations that completed extents are transferred to.
package sink

import (
	"errors"
	"sync"

	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Collector keeps every transferred extent in memory
type Collector struct {
	mu      sync.Mutex
	extents []types.CarvedExtent
}

var _ interfaces.TransferSink = (*Collector)(nil)

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Transfer stores a copy of the extent
func (c *Collector) Transfer(extent *types.CarvedExtent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extents = append(c.extents, *extent)
	return nil
}

// Extents returns the collected extents in transfer order
func (c *Collector) Extents() []types.CarvedExtent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CarvedExtent, len(c.extents))
	copy(out, c.extents)
	return out
}

// Len returns the number of collected extents
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.extents)
}

// Multi forwards each extent to every sink in order. All sinks are tried;
// their errors are joined.
type Multi []interfaces.TransferSink

var _ interfaces.TransferSink = Multi(nil)

// Transfer forwards the extent to each sink
func (m Multi) Transfer(extent *types.CarvedExtent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Transfer(extent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

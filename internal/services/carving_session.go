package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-carver/internal/carver"
	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/internal/interfaces"
	"github.com/deploymenttheory/go-carver/internal/queue"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Session errors
var (
	ErrSessionRunning  = errors.New("carving session already running")
	ErrSessionStopped  = errors.New("carving session stopped")
	ErrNoDescriptors   = errors.New("no carver descriptors registered")
	ErrNoDeviceContext = errors.New("no device context")
	ErrNoSink          = errors.New("no transfer sink")
)

// SessionOptions tunes a CarvingSession
type SessionOptions struct {
	// QueueCapacity bounds the sector queue; zero selects the default.
	QueueCapacity int
	// SectorSize overrides the device context when positive.
	SectorSize int
	Oracle     interfaces.AvailabilityOracle
	Logger     interfaces.Logger
	Now        func() time.Time
	// NewGUID supplies the random text generated names are cut from.
	NewGUID func() string
}

// SessionStatistics is a snapshot of session counters
type SessionStatistics struct {
	SectorsProcessed uint64            `json:"sectors_processed" yaml:"sectors_processed"`
	SectorsSkipped   uint64            `json:"sectors_skipped" yaml:"sectors_skipped"`
	SectorsDropped   uint64            `json:"sectors_dropped" yaml:"sectors_dropped"`
	ExtentsEmitted   uint64            `json:"extents_emitted" yaml:"extents_emitted"`
	TransferFailures uint64            `json:"transfer_failures" yaml:"transfer_failures"`
	PerExtension     map[string]uint64 `json:"per_extension" yaml:"per_extension"`
}

type sessionStatistics struct {
	mu sync.RWMutex
	SessionStatistics
}

// CarvingSession feeds queued sectors through every registered descriptor.
//
// One producer calls WriteBuffer; a single background loop started by Start
// consumes the queue. Pause and Resume take effect between sectors.
type CarvingSession struct {
	states []*carver.State
	sink   interfaces.TransferSink
	oracle interfaces.AvailabilityOracle
	logger interfaces.Logger
	queue  *queue.SectorQueue

	sectorOverride int
	now            func() time.Time
	newGUID        func() string

	mu         sync.Mutex
	resumed    *sync.Cond
	sectorSize int
	device     types.DeviceContext
	running    bool
	paused     bool
	stopped    bool
	done       chan struct{}

	fileCount uint64
	stats     sessionStatistics
}

// NewCarvingSession registers the descriptors in order and prepares the queue
func NewCarvingSession(descriptors []*carver.Descriptor, sink interfaces.TransferSink, opts SessionOptions) (*CarvingSession, error) {
	if sink == nil {
		return nil, ErrNoSink
	}

	s := &CarvingSession{
		sink:           sink,
		oracle:         opts.Oracle,
		logger:         opts.Logger,
		queue:          queue.NewSectorQueue(opts.QueueCapacity),
		sectorOverride: opts.SectorSize,
		now:            opts.Now,
		newGUID:        opts.NewGUID,
	}
	s.resumed = sync.NewCond(&s.mu)
	s.stats.PerExtension = make(map[string]uint64)

	if s.logger == nil {
		s.logger = discardLogger{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newGUID == nil {
		s.newGUID = uuid.NewString
	}

	if err := s.Register(descriptors); err != nil {
		return nil, err
	}
	return s, nil
}

// Register replaces the descriptor set. It fails while the loop is running.
func (s *CarvingSession) Register(descriptors []*carver.Descriptor) error {
	if len(descriptors) == 0 {
		return ErrNoDescriptors
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSessionRunning
	}

	states := make([]*carver.State, 0, len(descriptors))
	for _, d := range descriptors {
		states = append(states, carver.NewState(d))
	}
	s.states = states
	return nil
}

// DescriptorImporter replaces the active descriptor document
type DescriptorImporter interface {
	Import(data []byte) (*config.LoadResult, error)
}

// ImportDescriptors imports data through store and registers the resulting
// descriptors. A running session rejects the import before the store is touched.
func (s *CarvingSession) ImportDescriptors(store DescriptorImporter, data []byte) (*config.LoadResult, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return nil, ErrSessionRunning
	}

	result, err := store.Import(data)
	if err != nil {
		return nil, fmt.Errorf("failed to import descriptors: %w", err)
	}
	if err := s.Register(result.Descriptors); err != nil {
		return nil, err
	}
	s.logger.Logf("[CARVE] registered %d imported descriptors", result.Loaded())
	return result, nil
}

// Start reads the device context and launches the consumer loop
func (s *CarvingSession) Start(provider interfaces.DeviceContextProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSessionRunning
	}
	if s.stopped {
		return ErrSessionStopped
	}
	if provider == nil {
		return ErrNoDeviceContext
	}

	device, err := provider.DeviceContext()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDeviceContext, err)
	}

	s.device = device
	s.sectorSize = device.SectorSize()
	if s.sectorOverride > 0 {
		s.sectorSize = s.sectorOverride
	}

	s.running = true
	s.done = make(chan struct{})
	s.logger.Logf("[CARVE] session started: disk %d, %d bytes per sector, %d descriptors",
		device.DiskIndex, s.sectorSize, len(s.states))

	go s.run()
	return nil
}

// WriteBuffer queues one sector read at the device offset. It blocks while
// the queue is full and does nothing once the session has stopped.
func (s *CarvingSession) WriteBuffer(buffer []byte, offset int64) {
	s.mu.Lock()
	active := s.running && !s.stopped
	sectorSize := s.sectorSize
	s.mu.Unlock()
	if !active || offset < 0 {
		return
	}

	pkg := &types.SectorPackage{
		BlockNumber: uint64(offset) / uint64(sectorSize),
		Buffer:      make([]byte, sectorSize),
	}
	copy(pkg.Buffer, buffer)
	s.queue.Push(pkg)
}

// CloseInput marks the end of the producer's stream. Sectors already queued
// are still processed.
func (s *CarvingSession) CloseInput() {
	s.queue.Push(types.EndOfStream())
}

// Wait blocks until the consumer loop has exited
func (s *CarvingSession) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Pause suspends the loop after the sector being processed
func (s *CarvingSession) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume wakes a paused loop
func (s *CarvingSession) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	s.resumed.Broadcast()
}

// Paused reports whether the session is paused
func (s *CarvingSession) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Stop ends the loop and waits for it to exit. Partially matched extents are discarded.
func (s *CarvingSession) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.Wait()
		return
	}
	s.stopped = true
	s.resumed.Broadcast()
	running := s.running
	s.mu.Unlock()

	if !running {
		return
	}
	if s.queue.Len() == 0 {
		s.queue.Push(types.EndOfStream())
	}
	s.Wait()
}

// FileSystem reports the filesystem category handled by the session
func (s *CarvingSession) FileSystem() types.FileSystemCategory {
	return types.FileSystemRaw
}

// SectorSize returns the sector size fixed at Start
func (s *CarvingSession) SectorSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sectorSize
}

// Device returns the device context read at Start
func (s *CarvingSession) Device() types.DeviceContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// Stats returns a snapshot of the session counters
func (s *CarvingSession) Stats() SessionStatistics {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	snapshot := s.stats.SessionStatistics
	snapshot.PerExtension = make(map[string]uint64, len(s.stats.PerExtension))
	for ext, count := range s.stats.PerExtension {
		snapshot.PerExtension[ext] = count
	}
	return snapshot
}

func (s *CarvingSession) run() {
	defer s.finish()

	for !s.isStopped() {
		pkg, ok := s.queue.WaitPop()
		if !ok || pkg.IsEndOfStream() {
			break
		}

		s.process(pkg)
		s.waitWhilePaused()
	}
}

func (s *CarvingSession) finish() {
	s.queue.Close()
	dropped := s.queue.Drain()

	s.stats.mu.Lock()
	s.stats.SectorsDropped += uint64(dropped)
	s.stats.mu.Unlock()

	s.mu.Lock()
	s.running = false
	s.stopped = true
	done := s.done
	s.mu.Unlock()

	s.logger.Logf("[CARVE] session finished, %d queued sectors dropped", dropped)
	close(done)
}

func (s *CarvingSession) process(pkg *types.SectorPackage) {
	if s.oracle != nil && s.oracle.Allocated(pkg.BlockNumber) {
		s.stats.mu.Lock()
		s.stats.SectorsSkipped++
		s.stats.mu.Unlock()
		return
	}

	s.stats.mu.Lock()
	s.stats.SectorsProcessed++
	s.stats.mu.Unlock()

	for _, state := range s.states {
		if state.Advance(pkg, s.sectorSize) {
			s.emit(state)
			state.Reset()
			break
		}
	}
}

func (s *CarvingSession) emit(state *carver.State) {
	descriptor := state.Descriptor()
	extent := state.Extent()

	index := s.fileCount
	s.fileCount++

	name := extent.Name
	if name == "" {
		name = s.generatedName(index)
	}
	name += "." + descriptor.Extension
	if len(name) > types.MaxExtentNameBytes {
		name = name[:types.MaxExtentNameBytes]
	}

	now := s.now()
	record := &types.CarvedExtent{
		ID:          types.RawMask + s.fileCount,
		ParentID:    types.FileCarveID,
		DeveloperID: descriptor.DeveloperID,
		Extension:   descriptor.Extension,
		Name:        name,
		Runlist:     types.Runlist{Start: extent.StartBlock, Number: extent.BlockCount},
		Size:        extent.ByteSize,
		Attribute:   types.ExtentAttribute,
		Category:    types.ExtentCategory,
		FileSystem:  types.FileSystemRaw,
		CreateTime:  now,
		AccessTime:  now,
		ModifyTime:  now,
	}

	err := s.sink.Transfer(record)

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	if err != nil {
		s.stats.TransferFailures++
		s.logger.Logf("[CARVE] transfer of %s failed: %v", name, err)
		return
	}
	s.stats.ExtentsEmitted++
	s.stats.PerExtension[descriptor.Extension]++
}

// generatedName cuts a 16-character window out of a random GUID, shifted by the file index.
func (s *CarvingSession) generatedName(index uint64) string {
	hex := strings.ReplaceAll(s.newGUID(), "-", "")
	start := int(index % 16)
	if len(hex) < start+16 {
		return hex
	}
	return hex[start : start+16]
}

func (s *CarvingSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *CarvingSession) waitWhilePaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.paused && !s.stopped {
		s.resumed.Wait()
	}
}

type discardLogger struct{}

func (discardLogger) Logf(string, ...any) {}

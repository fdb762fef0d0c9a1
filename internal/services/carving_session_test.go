package services

import (
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-carver/internal/carver"
	"github.com/deploymenttheory/go-carver/internal/config"
	"github.com/deploymenttheory/go-carver/internal/parsers/signatures"
	"github.com/deploymenttheory/go-carver/internal/types"
)

const testSectorSize = 512

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	extents []*types.CarvedExtent
	err     error
}

func (s *recordingSink) Transfer(extent *types.CarvedExtent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.extents = append(s.extents, extent)
	return nil
}

func (s *recordingSink) Extents() []*types.CarvedExtent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.CarvedExtent, len(s.extents))
	copy(out, s.extents)
	return out
}

type staticDevice struct {
	ctx types.DeviceContext
	err error
}

func (d staticDevice) DeviceContext() (types.DeviceContext, error) {
	return d.ctx, d.err
}

type countingOracle struct {
	calls     atomic.Int64
	allocated map[uint64]bool
}

func (o *countingOracle) Allocated(block uint64) bool {
	o.calls.Add(1)
	return o.allocated[block]
}

func literal(t *testing.T, text string, position int) signatures.BytePattern {
	t.Helper()
	p, err := signatures.NewPattern(false, text, len(text), position)
	require.NoError(t, err)
	return p
}

func testDescriptor(t *testing.T, ext, header, footer string) *carver.Descriptor {
	t.Helper()
	d := &carver.Descriptor{
		Extension:   ext,
		DeveloperID: 42,
		Header:      signatures.Group{Logic: types.LogicAnd, Patterns: []signatures.BytePattern{literal(t, header, 0)}},
	}
	if footer != "" {
		d.Footer = signatures.Group{Logic: types.LogicAnd, Patterns: []signatures.BytePattern{literal(t, footer, 0)}}
	}
	return d
}

func newTestSession(t *testing.T, descriptors []*carver.Descriptor, sink *recordingSink, opts SessionOptions) *CarvingSession {
	t.Helper()
	opts.Now = func() time.Time { return fixedNow }
	opts.NewGUID = func() string { return "00112233-4455-6677-8899-aabbccddeeff" }
	session, err := NewCarvingSession(descriptors, sink, opts)
	require.NoError(t, err)
	return session
}

func startSession(t *testing.T, session *CarvingSession) {
	t.Helper()
	require.NoError(t, session.Start(staticDevice{ctx: types.DeviceContext{BytesPerSector: testSectorSize, Size: 1 << 20}}))
}

func writeSector(session *CarvingSession, block uint64, fill func([]byte)) {
	buf := make([]byte, testSectorSize)
	if fill != nil {
		fill(buf)
	}
	session.WriteBuffer(buf, int64(block*testSectorSize))
}

func TestCarvingSession_HeaderToFooter(t *testing.T) {
	sink := &recordingSink{}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink, SessionOptions{})
	startSession(t, session)

	for block := uint64(0); block < 6; block++ {
		writeSector(session, block, func(b []byte) {
			switch block {
			case 2:
				copy(b, "HEAD")
			case 4:
				copy(b[100:], "TAIL")
			}
		})
	}
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 1)
	extent := extents[0]
	assert.Equal(t, uint64(2), extent.StartBlock())
	assert.Equal(t, uint64(3), extent.BlockCount())
	assert.Equal(t, uint64(2*testSectorSize+104), extent.Size)
	assert.Equal(t, types.RawMask+1, extent.ID)
	assert.Equal(t, types.FileCarveID, extent.ParentID)
	assert.Equal(t, uint64(42), extent.DeveloperID)
	assert.Equal(t, "0011223344556677.tst", extent.Name)
	assert.Equal(t, fixedNow, extent.CreateTime)
	assert.Equal(t, types.FileSystemRaw, extent.FileSystem)

	stats := session.Stats()
	assert.Equal(t, uint64(6), stats.SectorsProcessed)
	assert.Equal(t, uint64(1), stats.ExtentsEmitted)
	assert.Equal(t, uint64(1), stats.PerExtension["tst"])
}

func TestCarvingSession_GeneratedNameWindowShifts(t *testing.T) {
	sink := &recordingSink{}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "bin", "HEAD", "TAIL")}, sink, SessionOptions{})
	startSession(t, session)

	for block := uint64(0); block < 2; block++ {
		writeSector(session, block, func(b []byte) {
			copy(b, "HEAD")
			copy(b[8:], "TAIL")
		})
	}
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 2)
	assert.Equal(t, "0011223344556677.bin", extents[0].Name)
	assert.Equal(t, "0112233445566778.bin", extents[1].Name)
	assert.Equal(t, types.RawMask+2, extents[1].ID)
}

func TestCarvingSession_FirstCompletionWins(t *testing.T) {
	sink := &recordingSink{}
	first := testDescriptor(t, "one", "AAAA", "ZZZZ")
	second := testDescriptor(t, "two", "AAAA", "ZZZZ")
	session := newTestSession(t, []*carver.Descriptor{first, second}, sink, SessionOptions{})
	startSession(t, session)

	for block := uint64(0); block < 3; block++ {
		writeSector(session, block, func(b []byte) {
			copy(b, "AAAA")
			copy(b[200:], "ZZZZ")
		})
	}
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 3)
	for _, extent := range extents {
		assert.Equal(t, "one", extent.Extension)
	}
}

func TestCarvingSession_RecoveredName(t *testing.T) {
	sink := &recordingSink{}
	d := testDescriptor(t, "doc", "HEAD", "TAIL")
	d.NameRule = &carver.NameRule{LengthOffset: 16, LengthSize: 2}
	session := newTestSession(t, []*carver.Descriptor{d}, sink, SessionOptions{})
	startSession(t, session)

	writeSector(session, 0, func(b []byte) {
		copy(b, "HEAD")
		b[16] = 5
		copy(b[18:], "a\\b.c")
	})
	writeSector(session, 1, func(b []byte) { copy(b, "TAIL") })
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 1)
	assert.Equal(t, "a.doc", extents[0].Name)
}

func TestCarvingSession_TruncateFallback(t *testing.T) {
	sink := &recordingSink{}
	d := testDescriptor(t, "raw", "HEAD", "")
	d.TruncateLength = 2048
	session := newTestSession(t, []*carver.Descriptor{d}, sink, SessionOptions{})
	startSession(t, session)

	for block := uint64(10); block < 16; block++ {
		writeSector(session, block, func(b []byte) {
			if block == 10 {
				copy(b, "HEAD")
			}
		})
	}
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 1)
	assert.Equal(t, uint64(10), extents[0].StartBlock())
	assert.Equal(t, uint64(4), extents[0].BlockCount())
	assert.Equal(t, uint64(2048), extents[0].Size)
}

func TestCarvingSession_OracleSkipsAllocatedBlocks(t *testing.T) {
	sink := &recordingSink{}
	oracle := &countingOracle{allocated: map[uint64]bool{0: true}}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink,
		SessionOptions{Oracle: oracle})
	startSession(t, session)

	writeSector(session, 0, func(b []byte) { copy(b, "HEAD") })
	writeSector(session, 1, func(b []byte) { copy(b, "TAIL") })
	session.CloseInput()
	session.Wait()

	assert.Empty(t, sink.Extents())
	stats := session.Stats()
	assert.Equal(t, uint64(1), stats.SectorsSkipped)
	assert.Equal(t, uint64(1), stats.SectorsProcessed)
	assert.Equal(t, int64(2), oracle.calls.Load())
}

func TestCarvingSession_PauseResume(t *testing.T) {
	sink := &recordingSink{}
	oracle := &countingOracle{}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink,
		SessionOptions{Oracle: oracle})
	startSession(t, session)

	session.Pause()
	assert.True(t, session.Paused())

	writeSector(session, 0, nil)
	require.Eventually(t, func() bool { return oracle.calls.Load() == 1 }, time.Second, 5*time.Millisecond,
		"the sector in flight when pausing is finished")

	for block := uint64(1); block < 5; block++ {
		writeSector(session, block, nil)
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), oracle.calls.Load(), "no sector is processed while paused")

	session.Resume()
	assert.False(t, session.Paused())
	require.Eventually(t, func() bool { return oracle.calls.Load() == 5 }, time.Second, 5*time.Millisecond)

	session.Stop()
}

func TestCarvingSession_StopWithBlockedConsumer(t *testing.T) {
	sink := &recordingSink{}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink, SessionOptions{})
	startSession(t, session)

	writeSector(session, 0, func(b []byte) { copy(b, "HEAD") })
	require.Eventually(t, func() bool { return session.Stats().SectorsProcessed == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		session.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop deadlocked")
	}
	assert.Empty(t, sink.Extents(), "a half-matched extent is discarded")

	writeSector(session, 1, func(b []byte) { copy(b, "TAIL") })
	assert.Equal(t, uint64(1), session.Stats().SectorsProcessed, "writes after stop are ignored")
	session.Stop()
}

func TestCarvingSession_StopReleasesBlockedProducer(t *testing.T) {
	sink := &recordingSink{}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink,
		SessionOptions{QueueCapacity: 2})
	startSession(t, session)
	session.Pause()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for block := uint64(0); block < 64; block++ {
			writeSector(session, block, nil)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	session.Stop()

	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after stop")
	}
	assert.Less(t, session.Stats().SectorsProcessed, uint64(64))
}

func TestCarvingSession_StartErrors(t *testing.T) {
	sink := &recordingSink{}
	descriptors := []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}

	session := newTestSession(t, descriptors, sink, SessionOptions{})
	assert.ErrorIs(t, session.Start(nil), ErrNoDeviceContext)
	assert.ErrorIs(t, session.Start(staticDevice{err: errors.New("no json")}), ErrNoDeviceContext)

	startSession(t, session)
	assert.ErrorIs(t, session.Start(staticDevice{}), ErrSessionRunning)
	assert.ErrorIs(t, session.Register(descriptors), ErrSessionRunning)
	session.Stop()
	assert.ErrorIs(t, session.Start(staticDevice{}), ErrSessionStopped)

	_, err := NewCarvingSession(nil, sink, SessionOptions{})
	assert.ErrorIs(t, err, ErrNoDescriptors)
	_, err = NewCarvingSession(descriptors, nil, SessionOptions{})
	assert.ErrorIs(t, err, ErrNoSink)
}

func TestCarvingSession_SectorSize(t *testing.T) {
	sink := &recordingSink{}
	descriptors := []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}

	session := newTestSession(t, descriptors, sink, SessionOptions{})
	require.NoError(t, session.Start(staticDevice{ctx: types.DeviceContext{BytesPerSector: 0}}))
	assert.Equal(t, types.DefaultSectorSize, session.SectorSize())
	assert.Equal(t, types.FileSystemRaw, session.FileSystem())
	session.Stop()

	override := newTestSession(t, descriptors, sink, SessionOptions{SectorSize: 4096})
	require.NoError(t, override.Start(staticDevice{ctx: types.DeviceContext{BytesPerSector: 512, DiskIndex: 3}}))
	assert.Equal(t, 4096, override.SectorSize())
	assert.Equal(t, int32(3), override.Device().DiskIndex)
	override.Stop()
}

func TestCarvingSession_TransferFailureIsCounted(t *testing.T) {
	sink := &recordingSink{err: errors.New("host unavailable")}
	session := newTestSession(t, []*carver.Descriptor{testDescriptor(t, "tst", "HEAD", "TAIL")}, sink, SessionOptions{})
	startSession(t, session)

	writeSector(session, 0, func(b []byte) {
		copy(b, "HEAD")
		copy(b[16:], "TAIL")
	})
	session.CloseInput()
	session.Wait()

	stats := session.Stats()
	assert.Equal(t, uint64(1), stats.TransferFailures)
	assert.Equal(t, uint64(0), stats.ExtentsEmitted)
}

func TestAllocatedRanges(t *testing.T) {
	ranges, err := ParseBlockRanges([]string{"100-200", " 150-250 ", "7", "", "300-300"})
	require.NoError(t, err)

	oracle := NewAllocatedRanges(ranges)
	assert.Equal(t, []BlockRange{{7, 7}, {100, 250}, {300, 300}}, oracle.Ranges())

	for _, block := range []uint64{7, 100, 180, 250, 300} {
		assert.True(t, oracle.Allocated(block), "block %d", block)
	}
	for _, block := range []uint64{0, 6, 8, 99, 251, 299, 301} {
		assert.False(t, oracle.Allocated(block), "block %d", block)
	}

	_, err = ParseBlockRanges([]string{"20-10"})
	assert.Error(t, err)
	_, err = ParseBlockRanges([]string{"abc"})
	assert.Error(t, err)
}

func TestAllocatedRanges_OpenEndedRange(t *testing.T) {
	oracle := NewAllocatedRanges([]BlockRange{{5, math.MaxUint64}, {10, 20}, {math.MaxUint64, math.MaxUint64}})
	assert.Equal(t, []BlockRange{{5, math.MaxUint64}}, oracle.Ranges())

	for _, block := range []uint64{5, 15, 100, math.MaxUint64} {
		assert.True(t, oracle.Allocated(block), "block %d", block)
	}
	assert.False(t, oracle.Allocated(4))
}

const importedDocument = `{
	"protocol": "1.0",
	"carvers": [{
		"extension": "alt",
		"developerId": 7,
		"header": {"logic": "and", "characters": [{"hex": false, "size": 4, "offset": 0, "context": "HEAD"}]},
		"footer": {"logic": "and", "characters": [{"hex": false, "size": 4, "padding": 0, "context": "TAIL"}]},
	}],
}`

func TestCarvingSession_ImportDescriptors(t *testing.T) {
	store, err := config.OpenDescriptorStore("", config.LoadOptions{})
	require.NoError(t, err)

	sink := &recordingSink{}
	session := newTestSession(t, store.Result().Descriptors, sink, SessionOptions{})

	_, err = session.ImportDescriptors(store, []byte(`{"protocol": "1.0", "carvers": [{"extension": "x"}]}`))
	assert.ErrorIs(t, err, config.ErrNoDescriptorsLoaded)

	result, err := session.ImportDescriptors(store, []byte(importedDocument))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Loaded())

	startSession(t, session)
	_, err = session.ImportDescriptors(store, config.DefaultDocument())
	assert.ErrorIs(t, err, ErrSessionRunning)
	assert.Equal(t, 1, store.Result().Loaded(), "rejected import leaves the store untouched")

	writeSector(session, 0, func(b []byte) {
		copy(b, "HEAD")
		copy(b[16:], "TAIL")
	})
	session.CloseInput()
	session.Wait()

	extents := sink.Extents()
	require.Len(t, extents, 1)
	assert.True(t, strings.HasSuffix(extents[0].Name, ".alt"))
	assert.Equal(t, uint64(7), extents[0].DeveloperID)
	assert.Equal(t, uint64(1), session.Stats().PerExtension["alt"])
}

package carver

import (
	"github.com/deploymenttheory/go-carver/internal/parsers/signatures"
	"github.com/deploymenttheory/go-carver/internal/types"
)

// Extent is the block range and size of a recovered file
type Extent struct {
	StartBlock uint64
	BlockCount uint64
	ByteSize   uint64
	Name       string
}

// State tracks one descriptor's progress through the sector stream.
// It is owned by a single consumer and is not safe for concurrent use.
type State struct {
	descriptor *Descriptor
	footer     *signatures.Group
	shift      int

	status types.CarverStatus
	extent Extent
}

// NewState returns a state in Init for the descriptor
func NewState(descriptor *Descriptor) *State {
	return &State{
		descriptor: descriptor,
		footer:     descriptor.FooterGroup(),
		shift:      descriptor.footerShift(),
		status:     types.StatusInit,
	}
}

// Descriptor returns the configuration this state evaluates
func (s *State) Descriptor() *Descriptor {
	return s.descriptor
}

// Status returns the current status
func (s *State) Status() types.CarverStatus {
	return s.status
}

// Extent returns the extent recorded so far
func (s *State) Extent() Extent {
	return s.extent
}

// Reset discards any partial extent and returns to Init
func (s *State) Reset() {
	s.status = types.StatusInit
	s.extent = Extent{}
}

// Advance runs one sector through the state machine and reports whether the
// extent is complete. A complete state must be Reset before it is advanced again.
func (s *State) Advance(pkg *types.SectorPackage, sectorSize int) bool {
	if s.status.IsComplete() {
		return true
	}

	if s.status == types.StatusInit {
		s.analyzeHeader(pkg)
	}
	if s.status == types.StatusHeader {
		s.analyzeBody(pkg)
	}
	if s.status >= types.StatusHeader {
		s.analyzeFooter(pkg, sectorSize)
	}
	if s.status >= types.StatusHeader && !s.status.IsComplete() {
		s.truncate(pkg, sectorSize)
	}

	return s.status.IsComplete()
}

func (s *State) analyzeHeader(pkg *types.SectorPackage) {
	if _, ok := s.descriptor.Header.Evaluate(pkg.Buffer, types.RoleHeader); !ok {
		return
	}

	s.extent = Extent{StartBlock: pkg.BlockNumber}
	if rule := s.descriptor.NameRule; rule != nil {
		if name, ok := rule.Extract(pkg.Buffer); ok {
			s.extent.Name = name
		}
	}
	s.status = types.StatusHeader
}

// analyzeBody is a no-op: body groups are parsed but have no matching behavior.
func (s *State) analyzeBody(*types.SectorPackage) {}

func (s *State) analyzeFooter(pkg *types.SectorPackage, sectorSize int) {
	if pkg.BlockNumber < s.extent.StartBlock {
		return
	}

	match, ok := s.footer.Evaluate(pkg.Buffer, types.RoleFooter)
	if !ok {
		return
	}

	end := max(match.Offset+s.shift+match.Pattern.Length+match.Pattern.Position, 0)
	s.extent.BlockCount, s.extent.ByteSize = FooterExtent(s.extent.StartBlock, pkg.BlockNumber, uint64(end), uint64(sectorSize))
	s.status = types.StatusFooter
}

func (s *State) truncate(pkg *types.SectorPackage, sectorSize int) {
	limit := s.descriptor.TruncateLength
	if limit <= 0 || pkg.BlockNumber < s.extent.StartBlock {
		return
	}

	span := pkg.BlockNumber - s.extent.StartBlock + 1
	if uint64(sectorSize)*span < uint64(limit) {
		return
	}

	s.extent.BlockCount, s.extent.ByteSize = TruncatedExtent(s.extent.StartBlock, pkg.BlockNumber, uint64(sectorSize))
	s.status = types.StatusFooter
}

// FooterExtent computes block count and byte size for a footer ending endByte
// bytes into the current block.
func FooterExtent(startBlock, currentBlock, endByte, sectorSize uint64) (blockCount, byteSize uint64) {
	blockCount = (currentBlock - startBlock) + endByte/sectorSize + 1
	byteSize = sectorSize*(blockCount-1) + endByte%sectorSize
	return blockCount, byteSize
}

// TruncatedExtent computes the extent forced by a truncate length, ending at the current block.
func TruncatedExtent(startBlock, currentBlock, sectorSize uint64) (blockCount, byteSize uint64) {
	blockCount = (currentBlock - startBlock) + 1
	byteSize = sectorSize * blockCount
	return blockCount, byteSize
}

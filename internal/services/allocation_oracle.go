package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// BlockRange is an inclusive range of block numbers
type BlockRange struct {
	Start uint64
	End   uint64
}

// AllocatedRanges reports blocks that fall inside known-allocated ranges
type AllocatedRanges struct {
	ranges []BlockRange
}

// NewAllocatedRanges sorts and merges the ranges
func NewAllocatedRanges(ranges []BlockRange) *AllocatedRanges {
	sorted := make([]BlockRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := make([]BlockRange, 0, len(sorted))
	for _, r := range sorted {
		if n := len(merged); n > 0 && (merged[n-1].End == math.MaxUint64 || r.Start <= merged[n-1].End+1) {
			if r.End > merged[n-1].End {
				merged[n-1].End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return &AllocatedRanges{ranges: merged}
}

// Allocated reports whether the block is inside one of the ranges
func (a *AllocatedRanges) Allocated(blockNumber uint64) bool {
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].End >= blockNumber })
	return i < len(a.ranges) && a.ranges[i].Start <= blockNumber
}

// Ranges returns the merged ranges
func (a *AllocatedRanges) Ranges() []BlockRange {
	return a.ranges
}

// ParseBlockRanges parses "start-end" or single-block entries
func ParseBlockRanges(entries []string) ([]BlockRange, error) {
	ranges := make([]BlockRange, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		startText, endText, isRange := strings.Cut(entry, "-")
		start, err := strconv.ParseUint(strings.TrimSpace(startText), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid block range %q: %w", entry, err)
		}
		end := start
		if isRange {
			end, err = strconv.ParseUint(strings.TrimSpace(endText), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid block range %q: %w", entry, err)
			}
		}
		if end < start {
			return nil, fmt.Errorf("invalid block range %q: end before start", entry)
		}
		ranges = append(ranges, BlockRange{Start: start, End: end})
	}
	return ranges, nil
}

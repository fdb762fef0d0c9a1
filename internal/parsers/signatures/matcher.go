package signatures

import "bytes"

// ExactMatch compares the pattern against buffer at offset.
// It returns false when the comparison would run past the end of the buffer.
func ExactMatch(buffer []byte, offset int, pattern *BytePattern) bool {
	if offset < 0 || pattern.Length <= 0 || offset+pattern.Length > len(buffer) {
		return false
	}
	return bytes.Equal(buffer[offset:offset+pattern.Length], pattern.Signature())
}

// FindSubstring returns the first offset of the pattern in buffer
func FindSubstring(buffer []byte, pattern *BytePattern) (int, bool) {
	if pattern.Length <= 0 || pattern.Length > len(buffer) {
		return 0, false
	}
	offset := bytes.Index(buffer, pattern.Signature())
	if offset < 0 {
		return 0, false
	}
	return offset, true
}

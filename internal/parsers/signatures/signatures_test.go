package signatures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-carver/internal/types"
)

func mustPattern(t *testing.T, isHex bool, context string, length, position int) BytePattern {
	t.Helper()
	p, err := NewPattern(isHex, context, length, position)
	require.NoError(t, err)
	return p
}

func sector(size int) []byte {
	return make([]byte, size)
}

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		name     string
		context  string
		expected []byte
		wantErr  bool
	}{
		{name: "jpeg header", context: "FFD8FF", expected: []byte{0xFF, 0xD8, 0xFF}},
		{name: "lower case", context: "89504e47", expected: []byte{0x89, 0x50, 0x4E, 0x47}},
		{name: "odd trailing digit", context: "ABC", expected: []byte{0xAB, 0x0C}},
		{name: "invalid digit", context: "ZZ", wantErr: true},
		{name: "invalid odd digit", context: "AAZ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := DecodeHex(tt.context)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPattern)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out[:len(tt.expected)])
			for _, b := range out[len(tt.expected):] {
				assert.Zero(t, b)
			}
		})
	}
}

func TestDecodeHex_ClampsSourceLength(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "11"
	}
	out, err := DecodeHex(long)
	require.NoError(t, err)
	for _, b := range out {
		assert.Equal(t, byte(0x11), b)
	}
}

func TestDecodeLiteral(t *testing.T) {
	out := DecodeLiteral("%PDF")
	assert.Equal(t, []byte("%PDF"), out[:4])
	assert.Zero(t, out[4])

	long := DecodeLiteral("0123456789abcdef0123456789abcdefXYZ")
	assert.Equal(t, []byte("0123456789abcdef0123456789abcdef"), long[:])
}

func TestNewPattern_Validation(t *testing.T) {
	_, err := NewPattern(true, "FF", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewPattern(true, "FF", types.MaxPatternBytes+1, 0)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	_, err = NewPattern(false, "ab", 2, -1)
	assert.ErrorIs(t, err, ErrInvalidPattern)

	p, err := NewPattern(false, "PK", 2, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("PK"), p.Signature())
	assert.Equal(t, 7, p.Position)
	assert.Equal(t, "504b", p.String())
}

func TestExactMatch(t *testing.T) {
	buf := sector(512)
	copy(buf[10:], []byte{0xCA, 0xFE})
	p := mustPattern(t, true, "CAFE", 2, 10)

	assert.True(t, ExactMatch(buf, 10, &p))
	assert.False(t, ExactMatch(buf, 11, &p))
	assert.False(t, ExactMatch(buf, 511, &p), "comparison past the end must fail")
	assert.False(t, ExactMatch(buf, -1, &p))
}

func TestFindSubstring(t *testing.T) {
	buf := sector(512)
	copy(buf[300:], []byte("IEND"))
	copy(buf[400:], []byte("IEND"))

	p := mustPattern(t, false, "IEND", 4, 0)
	offset, ok := FindSubstring(buf, &p)
	require.True(t, ok)
	assert.Equal(t, 300, offset, "first occurrence wins")

	missing := mustPattern(t, false, "EOF!", 4, 0)
	_, ok = FindSubstring(buf, &missing)
	assert.False(t, ok)

	tail := sector(512)
	copy(tail[508:], []byte("TAIL"))
	end := mustPattern(t, false, "TAIL", 4, 0)
	offset, ok = FindSubstring(tail, &end)
	require.True(t, ok)
	assert.Equal(t, 508, offset)

	wide := mustPattern(t, true, "01", types.MaxPatternBytes, 0)
	_, ok = FindSubstring(sector(16), &wide)
	assert.False(t, ok)
}

func TestParseLogic(t *testing.T) {
	tests := map[string]types.LogicType{
		"&": types.LogicAnd, "&&": types.LogicAnd, "AND": types.LogicAnd,
		"|": types.LogicOr, "||": types.LogicOr, "Or": types.LogicOr,
		"!": types.LogicNot, "not": types.LogicNot,
		"xor": types.LogicNone, "": types.LogicNone,
	}
	for symbol, expected := range tests {
		assert.Equal(t, expected, ParseLogic(symbol), "symbol %q", symbol)
	}
}

func TestGroupEvaluate_HeaderAnd(t *testing.T) {
	group := Group{
		Logic: types.LogicAnd,
		Patterns: []BytePattern{
			mustPattern(t, true, "504B0304", 4, 0),
			mustPattern(t, false, "mimetype", 8, 30),
		},
	}

	buf := sector(512)
	copy(buf[0:], []byte{0x50, 0x4B, 0x03, 0x04})
	copy(buf[30:], []byte("mimetype"))

	match, ok := group.Evaluate(buf, types.RoleHeader)
	require.True(t, ok)
	assert.Same(t, &group.Patterns[1], match.Pattern, "AND reports the last pattern evaluated")
	assert.Equal(t, 30, match.Offset)

	// Removing any one pattern from the sector flips the result.
	for i := range group.Patterns {
		broken := make([]byte, len(buf))
		copy(broken, buf)
		broken[group.Patterns[i].Position] ^= 0xFF
		_, ok := group.Evaluate(broken, types.RoleHeader)
		assert.False(t, ok, "pattern %d removed", i)
	}
}

func TestGroupEvaluate_HeaderOr(t *testing.T) {
	group := Group{
		Logic: types.LogicOr,
		Patterns: []BytePattern{
			mustPattern(t, false, "GIF87a", 6, 0),
			mustPattern(t, false, "GIF89a", 6, 0),
		},
	}

	buf := sector(512)
	copy(buf, []byte("GIF89a"))
	match, ok := group.Evaluate(buf, types.RoleHeader)
	require.True(t, ok)
	assert.Same(t, &group.Patterns[1], match.Pattern)

	_, ok = group.Evaluate(sector(512), types.RoleHeader)
	assert.False(t, ok)
}

func TestGroupEvaluate_Not(t *testing.T) {
	group := Group{
		Logic: types.LogicNot,
		Patterns: []BytePattern{
			mustPattern(t, false, "AB", 2, 0),
			mustPattern(t, false, "CD", 2, 4),
		},
	}

	match, ok := group.Evaluate(sector(512), types.RoleHeader)
	require.True(t, ok, "NOT matches when no pattern is present")
	assert.Same(t, &group.Patterns[1], match.Pattern)
	assert.Equal(t, 0, match.Offset)

	buf := sector(512)
	copy(buf[4:], []byte("CD"))
	_, ok = group.Evaluate(buf, types.RoleHeader)
	assert.False(t, ok)

	// Footer role searches anywhere in the sector.
	footerBuf := sector(512)
	copy(footerBuf[200:], []byte("AB"))
	_, ok = group.Evaluate(footerBuf, types.RoleFooter)
	assert.False(t, ok)
}

func TestGroupEvaluate_FooterAnd(t *testing.T) {
	group := Group{
		Logic: types.LogicAnd,
		Patterns: []BytePattern{
			mustPattern(t, false, "%%EO", 4, 0),
			mustPattern(t, false, "F", 1, 1),
		},
	}

	buf := sector(512)
	copy(buf[100:], []byte("%%EOF"))
	match, ok := group.Evaluate(buf, types.RoleFooter)
	require.True(t, ok)
	assert.Same(t, &group.Patterns[1], match.Pattern)
	assert.Equal(t, 104, match.Offset)
}

func TestGroupEvaluate_EmptyNeverMatches(t *testing.T) {
	for _, logic := range []types.LogicType{types.LogicAnd, types.LogicOr, types.LogicNot} {
		group := Group{Logic: logic}
		_, ok := group.Evaluate(sector(512), types.RoleHeader)
		assert.False(t, ok, "logic %s", logic)
	}

	none := Group{Logic: types.LogicNone, Patterns: []BytePattern{mustPattern(t, false, "A", 1, 0)}}
	_, ok := none.Evaluate([]byte("A"), types.RoleHeader)
	assert.False(t, ok)
}

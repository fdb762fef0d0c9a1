package signatures

import (
	"strings"

	"github.com/deploymenttheory/go-carver/internal/types"
)

// ParseLogic maps a configured logic symbol to a LogicType. Unknown symbols map to LogicNone.
func ParseLogic(symbol string) types.LogicType {
	switch strings.ToLower(strings.TrimSpace(symbol)) {
	case "&", "&&", "and":
		return types.LogicAnd
	case "|", "||", "or":
		return types.LogicOr
	case "!", "not":
		return types.LogicNot
	default:
		return types.LogicNone
	}
}

// Group is a set of patterns combined by one logic operator
type Group struct {
	Logic    types.LogicType
	Patterns []BytePattern
}

// Match is the outcome of a successful group evaluation
type Match struct {
	Pattern *BytePattern
	Offset  int
}

// IsEmpty reports whether the group can never match
func (g *Group) IsEmpty() bool {
	return len(g.Patterns) == 0 || g.Logic == types.LogicNone
}

// Evaluate matches the group against one sector.
//
// Header role compares every pattern at its configured offset; footer role
// searches the whole sector. AND returns the last pattern evaluated, OR the
// first pattern found. NOT matches only when no pattern is found and reports
// the last pattern at offset 0.
func (g *Group) Evaluate(buffer []byte, role types.PatternRole) (Match, bool) {
	if g.IsEmpty() {
		return Match{}, false
	}

	switch g.Logic {
	case types.LogicAnd:
		var last Match
		for i := range g.Patterns {
			offset, ok := locate(buffer, &g.Patterns[i], role)
			if !ok {
				return Match{}, false
			}
			last = Match{Pattern: &g.Patterns[i], Offset: offset}
		}
		return last, true

	case types.LogicOr:
		for i := range g.Patterns {
			if offset, ok := locate(buffer, &g.Patterns[i], role); ok {
				return Match{Pattern: &g.Patterns[i], Offset: offset}, true
			}
		}
		return Match{}, false

	case types.LogicNot:
		for i := range g.Patterns {
			if _, ok := locate(buffer, &g.Patterns[i], role); ok {
				return Match{}, false
			}
		}
		return Match{Pattern: &g.Patterns[len(g.Patterns)-1], Offset: 0}, true
	}

	return Match{}, false
}

func locate(buffer []byte, pattern *BytePattern, role types.PatternRole) (int, bool) {
	if role == types.RoleHeader {
		if ExactMatch(buffer, pattern.Position, pattern) {
			return pattern.Position, true
		}
		return 0, false
	}
	return FindSubstring(buffer, pattern)
}

package game

import "fmt"

// PhaseType classifies a phase as movement, retreat, or adjustment.
type PhaseType int

const (
	Movement PhaseType = iota
	RetreatPhase
	Adjustment
)

func (t PhaseType) String() string {
	switch t {
	case Movement:
		return "movement"
	case RetreatPhase:
		return "retreat"
	case Adjustment:
		return "adjustment"
	default:
		return "unknown"
	}
}

// Phase is a decoded phase token. The engine encodes phases as compact
// tokens like "S1901M" (Spring 1901 Movement), "F1902R" (Fall 1902
// Retreat), or "W1901A" (Winter 1901 Adjustment).
type Phase struct {
	Season string // "spring", "fall", "winter"
	Year   int
	Type   PhaseType
}

// ParsePhase decodes a phase token. A token that fails to parse is a
// programmer-invariant violation upstream; callers must discard the
// operation rather than persist a state carrying it.
func ParsePhase(token string) (Phase, error) {
	if len(token) != 6 {
		return Phase{}, fmt.Errorf("malformed phase token %q", token)
	}

	var p Phase
	switch token[0] {
	case 'S':
		p.Season = "spring"
	case 'F':
		p.Season = "fall"
	case 'W':
		p.Season = "winter"
	default:
		return Phase{}, fmt.Errorf("malformed phase token %q: bad season", token)
	}

	year := 0
	for i := 1; i < 5; i++ {
		c := token[i]
		if c < '0' || c > '9' {
			return Phase{}, fmt.Errorf("malformed phase token %q: bad year", token)
		}
		year = year*10 + int(c-'0')
	}
	p.Year = year

	switch token[5] {
	case 'M':
		p.Type = Movement
	case 'R':
		p.Type = RetreatPhase
	case 'A':
		p.Type = Adjustment
	default:
		return Phase{}, fmt.Errorf("malformed phase token %q: bad phase type", token)
	}

	return p, nil
}

// String renders the phase for humans: "spring 1901 movement".
func (p Phase) String() string {
	return fmt.Sprintf("%s %d %s", p.Season, p.Year, p.Type)
}

// IsRetreat reports whether a phase token names a retreat phase. Unparsable
// tokens report false.
func IsRetreat(token string) bool {
	p, err := ParsePhase(token)
	return err == nil && p.Type == RetreatPhase
}

// Package orders parses free-text Diplomacy order lines into structured
// orders and canonicalizes them to the engine's wire notation.
package orders

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnrecognized is returned when a line matches no known order form.
var ErrUnrecognized = errors.New("unrecognized order format")

// OrderType enumerates the kinds of orders a line can express.
type OrderType int

const (
	Hold        OrderType = iota // A VIE H
	Move                         // A BUD - RUM
	SupportHold                  // A TYR S A VIE
	SupportMove                  // A GAL S A BUD - RUM
	Convoy                       // F MAO C A BRE - SPA
	Retreat                      // A VIE R BOH
	Build                        // A VIE B
	Disband                      // F TRI D
	Waive                        // WAIVE
)

func (t OrderType) String() string {
	switch t {
	case Hold:
		return "hold"
	case Move:
		return "move"
	case SupportHold:
		return "support-hold"
	case SupportMove:
		return "support-move"
	case Convoy:
		return "convoy"
	case Retreat:
		return "retreat"
	case Build:
		return "build"
	case Disband:
		return "disband"
	case Waive:
		return "waive"
	default:
		return "unknown"
	}
}

// Order is the structured decomposition of one order line. Locations keep
// their coast suffix when present ("STP/NC"). Raw order strings remain the
// persisted source of truth; Order values are derived and never stored.
type Order struct {
	Type     OrderType
	UnitType string // "A" or "F"; empty for waive
	Province string

	// Target of a move or retreat.
	Target string

	// Supported or convoyed unit (support and convoy orders).
	AuxUnitType string
	AuxProvince string
	// Destination of the supported/convoyed move (empty for support-hold).
	AuxTarget string

	// AmbiguousCoast is set when a fleet move targets a split-coast
	// province and the coast could not be inferred from the origin.
	AmbiguousCoast bool
}

// Result pairs one input line with its parse outcome. Batch parsing is
// positional: callers get exactly one Result per input line.
type Result struct {
	Raw   string // canonical form of the input line
	Order Order
	Err   error
}

// Parse parses a single order line. Input is case-insensitive; the line is
// normalized before matching.
func Parse(raw string) (Order, error) {
	return parseCanonical(Normalize(raw))
}

// ParseLines normalizes, expands waive shorthands, and parses a batch of
// order lines. Parse failures are per-line and non-fatal. When retreatPhase
// is true, move-shaped lines are reinterpreted as retreats: a player typing
// "A VIE - BOH" during a retreat phase means the retreat.
func ParseLines(lines []string, retreatPhase bool) []Result {
	expanded := ExpandWaives(lines)
	results := make([]Result, 0, len(expanded))
	for _, line := range expanded {
		canon := Normalize(line)
		o, err := parseCanonical(canon)
		if err == nil && retreatPhase && o.Type == Move {
			o.Type = Retreat
			canon = o.Canonical()
		}
		results = append(results, Result{Raw: canon, Order: o, Err: err})
	}
	return results
}

// UnitKey returns the merge key for an order line: the ordered unit's type
// and province (the first two tokens of the canonical form). Waive orders
// have no unit and return "WAIVE".
func UnitKey(raw string) string {
	canon := Normalize(raw)
	fields := strings.Fields(canon)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "WAIVE" {
		return "WAIVE"
	}
	if len(fields) < 2 {
		return canon
	}
	return fields[0] + " " + fields[1]
}

// IsWaive reports whether a raw line is a waive order.
func IsWaive(raw string) bool {
	fields := strings.Fields(Normalize(raw))
	return len(fields) > 0 && fields[0] == "WAIVE"
}

// parseCanonical parses an already-normalized line. Forms are checked in
// fixed precedence; support-move is matched before support-hold because the
// support-hold shape is a prefix of the support-move shape.
func parseCanonical(s string) (Order, error) {
	if s == "" {
		return Order{}, ErrUnrecognized
	}

	tokens := strings.Fields(s)

	if tokens[0] == "WAIVE" {
		// "WAIVE N" shorthand is only valid through ExpandWaives.
		if len(tokens) != 1 {
			return Order{}, ErrUnrecognized
		}
		return Order{Type: Waive}, nil
	}

	unitType := tokens[0]
	if unitType != "A" && unitType != "F" {
		return Order{}, ErrUnrecognized
	}
	if len(tokens) < 3 {
		return Order{}, ErrUnrecognized
	}
	prov, err := parseLocation(tokens[1])
	if err != nil {
		return Order{}, ErrUnrecognized
	}

	o := Order{UnitType: unitType, Province: prov}
	action := tokens[2]
	rest := tokens[3:]

	switch action {
	case "H":
		if len(rest) != 0 {
			return Order{}, ErrUnrecognized
		}
		o.Type = Hold
		return o, nil

	case "S":
		return parseSupport(o, rest)

	case "C":
		return parseConvoy(o, rest)

	case "-":
		if len(rest) != 1 {
			return Order{}, ErrUnrecognized
		}
		target, err := parseLocation(rest[0])
		if err != nil {
			return Order{}, ErrUnrecognized
		}
		o.Type = Move
		o.Target, o.AmbiguousCoast = resolveCoast(o.UnitType, o.Province, target)
		return o, nil

	case "R":
		if len(rest) != 1 {
			return Order{}, ErrUnrecognized
		}
		target, err := parseLocation(rest[0])
		if err != nil {
			return Order{}, ErrUnrecognized
		}
		o.Type = Retreat
		o.Target, o.AmbiguousCoast = resolveCoast(o.UnitType, o.Province, target)
		return o, nil

	case "B":
		if len(rest) != 0 {
			return Order{}, ErrUnrecognized
		}
		o.Type = Build
		return o, nil

	case "D":
		if len(rest) != 0 {
			return Order{}, ErrUnrecognized
		}
		o.Type = Disband
		return o, nil
	}

	return Order{}, ErrUnrecognized
}

// parseSupport parses the remainder of a support order after "S".
// "A VIE" supports a hold; "A BUD - RUM" supports a move.
func parseSupport(o Order, tokens []string) (Order, error) {
	if len(tokens) < 2 {
		return Order{}, ErrUnrecognized
	}
	auxType := tokens[0]
	if auxType != "A" && auxType != "F" {
		return Order{}, ErrUnrecognized
	}
	auxProv, err := parseLocation(tokens[1])
	if err != nil {
		return Order{}, ErrUnrecognized
	}
	o.AuxUnitType = auxType
	o.AuxProvince = auxProv

	switch len(tokens) {
	case 2:
		o.Type = SupportHold
		return o, nil
	case 4:
		if tokens[2] != "-" {
			return Order{}, ErrUnrecognized
		}
		auxTarget, err := parseLocation(tokens[3])
		if err != nil {
			return Order{}, ErrUnrecognized
		}
		o.Type = SupportMove
		o.AuxTarget = auxTarget
		return o, nil
	}
	return Order{}, ErrUnrecognized
}

// parseConvoy parses the remainder of a convoy order after "C".
// Only armies are convoyed: "A LON - BEL".
func parseConvoy(o Order, tokens []string) (Order, error) {
	if len(tokens) != 4 || tokens[0] != "A" || tokens[2] != "-" {
		return Order{}, ErrUnrecognized
	}
	auxProv, err := parseLocation(tokens[1])
	if err != nil {
		return Order{}, ErrUnrecognized
	}
	auxTarget, err := parseLocation(tokens[3])
	if err != nil {
		return Order{}, ErrUnrecognized
	}
	o.Type = Convoy
	o.AuxUnitType = "A"
	o.AuxProvince = auxProv
	o.AuxTarget = auxTarget
	return o, nil
}

// parseLocation validates a location token: a three-letter province code
// with an optional coast suffix ("STP/NC").
func parseLocation(s string) (string, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts[0]) != 3 || !isAlpha(parts[0]) {
		return "", fmt.Errorf("invalid province %q", parts[0])
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "NC", "SC", "EC", "WC":
		default:
			return "", fmt.Errorf("invalid coast %q", parts[1])
		}
	}
	return s, nil
}

func isAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// Canonical renders the order back to its canonical uppercase wire form.
func (o Order) Canonical() string {
	switch o.Type {
	case Hold:
		return fmt.Sprintf("%s %s H", o.UnitType, o.Province)
	case Move:
		return fmt.Sprintf("%s %s - %s", o.UnitType, o.Province, o.Target)
	case SupportHold:
		return fmt.Sprintf("%s %s S %s %s", o.UnitType, o.Province, o.AuxUnitType, o.AuxProvince)
	case SupportMove:
		return fmt.Sprintf("%s %s S %s %s - %s", o.UnitType, o.Province, o.AuxUnitType, o.AuxProvince, o.AuxTarget)
	case Convoy:
		return fmt.Sprintf("%s %s C A %s - %s", o.UnitType, o.Province, o.AuxProvince, o.AuxTarget)
	case Retreat:
		return fmt.Sprintf("%s %s R %s", o.UnitType, o.Province, o.Target)
	case Build:
		return fmt.Sprintf("%s %s B", o.UnitType, o.Province)
	case Disband:
		return fmt.Sprintf("%s %s D", o.UnitType, o.Province)
	case Waive:
		return "WAIVE"
	}
	return ""
}

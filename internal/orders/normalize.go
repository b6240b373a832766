package orders

import (
	"strconv"
	"strings"
)

// maxWaiveExpansion caps "WAIVE N" shorthand expansion. No power can build
// more than a handful of units in one adjustment phase; anything larger is
// either a typo or abuse.
const maxWaiveExpansion = 7

// Normalize canonicalizes a raw order line: trims and collapses whitespace,
// uppercases, spaces out the move separator, strips a stray game-id prefix,
// rewrites the RETREAT keyword to R, and drops the redundant trailing H on
// support-hold forms.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", " - ")

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}

	// Players sometimes paste the game id along with the order.
	if strings.HasPrefix(fields[0], "#") {
		fields = fields[1:]
	}

	// Compact hyphen notation: "A-BUD-SER" means "A BUD - SER". No order
	// form puts the move separator directly after a unit-type token, so a
	// separator there is always spurious.
	kept := fields[:0]
	for i := 0; i < len(fields); i++ {
		kept = append(kept, fields[i])
		if (fields[i] == "A" || fields[i] == "F") && i+1 < len(fields) && fields[i+1] == "-" {
			i++
		}
	}
	fields = kept

	for i, f := range fields {
		if f == "RETREAT" {
			fields[i] = "R"
		}
	}

	// "F BRE S A PAR H" and "F BRE S A PAR" are the same support-hold.
	if len(fields) == 6 && fields[2] == "S" && fields[5] == "H" {
		fields = fields[:5]
	}

	return strings.Join(fields, " ")
}

// ExpandWaives rewrites "WAIVE N" shorthand lines into N individual WAIVE
// lines, leaving all other lines untouched. Expansion is capped at
// maxWaiveExpansion per shorthand.
func ExpandWaives(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(strings.ToUpper(strings.TrimSpace(line)))
		if len(fields) == 2 && fields[0] == "WAIVE" {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				if n > maxWaiveExpansion {
					n = maxWaiveExpansion
				}
				for i := 0; i < n; i++ {
					out = append(out, "WAIVE")
				}
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

package orders

import "strings"

// The standard map has three provinces with split coasts. A fleet entering
// one must name the coast, but when only one coast is reachable from the
// move's origin the choice is forced and we fill it in. Adjacency here is
// static map data: which provinces border each coastal variant by sea.
var fleetCoastAdjacency = map[string][]string{
	"BUL/EC": {"BLA", "CON", "RUM"},
	"BUL/SC": {"AEG", "CON", "GRE"},
	"SPA/NC": {"GAS", "MAO", "POR"},
	"SPA/SC": {"LYO", "MAO", "MAR", "POR", "WES"},
	"STP/NC": {"BAR", "NWY"},
	"STP/SC": {"BOT", "FIN", "LVN"},
}

var coastVariants = map[string][]string{
	"BUL": {"BUL/EC", "BUL/SC"},
	"SPA": {"SPA/NC", "SPA/SC"},
	"STP": {"STP/NC", "STP/SC"},
}

// InferCoast resolves the coast for a fleet move from origin into a
// split-coast province. It returns the qualified destination and true iff
// exactly one coastal variant is adjacent to the origin. With zero or two
// reachable variants the bare destination is returned with false and the
// player must disambiguate.
func InferCoast(origin, destination string) (string, bool) {
	variants, ok := coastVariants[destination]
	if !ok {
		return destination, false
	}
	from := strings.SplitN(origin, "/", 2)[0]

	var reachable []string
	for _, v := range variants {
		for _, adj := range fleetCoastAdjacency[v] {
			if adj == from {
				reachable = append(reachable, v)
				break
			}
		}
	}
	if len(reachable) == 1 {
		return reachable[0], true
	}
	return destination, false
}

// resolveCoast applies coast inference to a fleet move target. Armies and
// already-qualified targets pass through unchanged. The second return is the
// ambiguity flag: true when the target needs a coast the caller must supply.
func resolveCoast(unitType, origin, target string) (string, bool) {
	if unitType != "F" || strings.Contains(target, "/") {
		return target, false
	}
	if _, split := coastVariants[target]; !split {
		return target, false
	}
	resolved, ok := InferCoast(origin, target)
	return resolved, !ok
}

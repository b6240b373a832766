package command

import "strings"

// PrivateKind enumerates the private (direct message) commands.
type PrivateKind int

const (
	PrivateUnknown PrivateKind = iota
	PrivateMenu
	PrivateSubmitOrders
	PrivateShowOrders
	PrivateShowPossible
	PrivateMyGames
	PrivateHelp
)

// Private is a parsed direct message. OrderLines is set only for
// PrivateSubmitOrders and holds the raw, unparsed lines.
type Private struct {
	Kind       PrivateKind
	GameID     string
	OrderLines []string
	Text       string
}

// queryKeywords maps recognized query phrases to command kinds. Matching is
// case-insensitive after trailing punctuation and smart quotes are stripped.
var queryKeywords = map[string]PrivateKind{
	"orders":   PrivateShowOrders,
	"possible": PrivateShowPossible,
}

// ParsePrivate parses a direct message. The leading #id selects the game; a
// bare id is a menu request; a recognized query keyword maps to a query;
// anything else with orderable content is a submit-orders command.
func ParsePrivate(text string) Private {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)

	switch cleanKeyword(lower) {
	case "my games":
		return Private{Kind: PrivateMyGames, Text: text}
	case "help":
		return Private{Kind: PrivateHelp, Text: text}
	}

	if !strings.HasPrefix(s, "#") {
		return Private{Kind: PrivateUnknown, Text: text}
	}

	// Split off the game id token.
	rest := ""
	idToken := s[1:]
	if i := strings.IndexAny(idToken, " \t\n"); i >= 0 {
		rest = strings.TrimSpace(idToken[i:])
		idToken = idToken[:i]
	}
	gameID := strings.ToLower(strings.Trim(idToken, ".,!?:;"))
	if gameID == "" || !isAlnum(gameID) {
		return Private{Kind: PrivateUnknown, Text: text}
	}

	if rest == "" {
		return Private{Kind: PrivateMenu, GameID: gameID, Text: text}
	}

	if kind, ok := queryKeywords[cleanKeyword(strings.ToLower(rest))]; ok {
		return Private{Kind: kind, GameID: gameID, Text: text}
	}
	if cleanKeyword(strings.ToLower(rest)) == "help" {
		return Private{Kind: PrivateHelp, GameID: gameID, Text: text}
	}

	lines := splitOrderLines(rest)
	if len(lines) == 0 {
		return Private{Kind: PrivateUnknown, GameID: gameID, Text: text}
	}
	return Private{Kind: PrivateSubmitOrders, GameID: gameID, OrderLines: lines, Text: text}
}

// cleanKeyword strips trailing punctuation and smart quotes that chat
// clients like to append, so "orders?" and "“orders”" still match.
func cleanKeyword(s string) string {
	return strings.Trim(s, " .,!?:;\"'‘’“”")
}

// splitOrderLines splits order text on semicolons, commas, and newlines.
func splitOrderLines(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '\n'
	})
	var lines []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

// Package command parses free-text chat messages into typed commands.
// Both grammars are total: every input maps to a command value, never an
// error, so callers can switch exhaustively and let unrecognized text
// degrade to Unknown instead of crashing the poll loop.
package command

import (
	"strings"
)

// PublicKind enumerates the public (mention) commands.
type PublicKind int

const (
	PublicUnknown PublicKind = iota
	PublicNewGame
	PublicJoin
	PublicLeave
	PublicStart
	PublicStatus
	PublicVoteDraw
	PublicAbandon
	PublicClaim
	PublicShowMap
	PublicListGames
	PublicHelp
)

// Public is a parsed public command. GameID is set for commands that
// address a specific game; Faction only for claim.
type Public struct {
	Kind    PublicKind
	GameID  string
	Faction string
	Text    string // original text, kept for Unknown
}

// ParsePublic parses a public mention. The addressing prefix (the bot's
// handle) is stripped before keyword matching; matching is case-insensitive
// and the game id may appear anywhere as a #token.
func ParsePublic(text, selfHandle string) Public {
	stripped := stripHandle(text, selfHandle)
	lower := strings.ToLower(strings.TrimSpace(stripped))
	gameID := extractGameID(lower)

	fields := strings.Fields(lower)
	keyword := ""
	if len(fields) > 0 {
		keyword = strings.Trim(fields[0], ".,!?")
	}

	switch keyword {
	case "new":
		if len(fields) > 1 && strings.HasPrefix(fields[1], "game") {
			return Public{Kind: PublicNewGame, Text: text}
		}
	case "join":
		return Public{Kind: PublicJoin, GameID: gameID, Text: text}
	case "leave":
		return Public{Kind: PublicLeave, GameID: gameID, Text: text}
	case "start":
		return Public{Kind: PublicStart, GameID: gameID, Text: text}
	case "status":
		return Public{Kind: PublicStatus, GameID: gameID, Text: text}
	case "draw":
		return Public{Kind: PublicVoteDraw, GameID: gameID, Text: text}
	case "abandon":
		return Public{Kind: PublicAbandon, GameID: gameID, Text: text}
	case "claim":
		return Public{Kind: PublicClaim, GameID: gameID, Faction: trailingFaction(fields), Text: text}
	case "map":
		return Public{Kind: PublicShowMap, GameID: gameID, Text: text}
	case "games":
		return Public{Kind: PublicListGames, Text: text}
	case "help":
		return Public{Kind: PublicHelp, Text: text}
	}

	return Public{Kind: PublicUnknown, GameID: gameID, Text: text}
}

// stripHandle removes a leading @handle mention of the bot, if present.
func stripHandle(text, selfHandle string) string {
	s := strings.TrimSpace(text)
	if selfHandle == "" {
		return s
	}
	for _, prefix := range []string{"@" + selfHandle, selfHandle} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

// extractGameID finds a #token game identifier anywhere in the text.
// Identifiers are short alphanumeric tokens; matching is case-insensitive
// and ids are returned lowercased.
func extractGameID(lower string) string {
	for _, f := range strings.Fields(lower) {
		if !strings.HasPrefix(f, "#") {
			continue
		}
		id := strings.Trim(f[1:], ".,!?:;\"'")
		if id != "" && isAlnum(id) {
			return id
		}
	}
	return ""
}

// trailingFaction returns the last token of a claim command, normalized.
// "claim #k3j9 france" -> "france".
func trailingFaction(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	last := strings.Trim(fields[len(fields)-1], ".,!?")
	if strings.HasPrefix(last, "#") {
		return ""
	}
	return last
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Package game implements the pure game lifecycle state machine. Every
// mutator is a value-receiver method returning a fresh State or a sentinel
// error; nothing here performs I/O or mutates in place.
package game

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Status is a game's lifecycle stage.
type Status string

const (
	StatusLobby    Status = "lobby"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Faction is one of the seven playable powers. Values match the engine's
// power names.
type Faction string

const (
	Austria Faction = "AUSTRIA"
	England Faction = "ENGLAND"
	France  Faction = "FRANCE"
	Germany Faction = "GERMANY"
	Italy   Faction = "ITALY"
	Russia  Faction = "RUSSIA"
	Turkey  Faction = "TURKEY"
)

// AllFactions returns the fixed faction list. Iteration order here is the
// documented tie-break for simultaneous solo victories.
func AllFactions() []Faction {
	return []Faction{Austria, England, France, Germany, Italy, Russia, Turkey}
}

// ParseFaction matches a user-typed faction name case-insensitively.
func ParseFaction(s string) (Faction, bool) {
	for _, f := range AllFactions() {
		if strings.EqualFold(string(f), s) {
			return f, true
		}
	}
	return "", false
}

// EndReason records why a finished game ended.
type EndReason string

const (
	EndSoloVictory EndReason = "solo_victory"
	EndDraw        EndReason = "draw"
	EndAbandoned   EndReason = "abandoned"
)

const (
	// MaxPlayers is the seat count on the standard map.
	MaxPlayers = 7
	// MinPlayers is the smallest game worth starting; unfilled factions
	// play in civil disorder.
	MinPlayers = 2
	// VictoryThreshold is the supply-center count for a solo victory.
	VictoryThreshold = 18
)

var (
	ErrNotLobby          = errors.New("game is not in the lobby")
	ErrNotActive         = errors.New("game is not active")
	ErrFinished          = errors.New("game is already finished")
	ErrGameFull          = errors.New("game already has 7 players")
	ErrNotEnoughPlayers  = errors.New("need at least 2 players to start")
	ErrAlreadyJoined     = errors.New("already joined this game")
	ErrNotInGame         = errors.New("player is not in this game")
	ErrFactionTaken      = errors.New("faction already assigned to another player")
	ErrFactionUnassigned = errors.New("faction is not assigned to any player")
	ErrAlreadyVoted      = errors.New("faction already voted for a draw")
)

// Player is one seat in a game.
type Player struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"display_name"`
	Faction     Faction   `json:"faction,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// OrderSet holds one faction's raw order lines for the current phase. Raw
// strings are the source of truth; structured orders are derived on demand.
type OrderSet struct {
	Lines       []string  `json:"lines"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// State is the aggregate root for one game, persisted as a single row.
// It is a value: methods never mutate the receiver.
type State struct {
	ID      string   `json:"id"`
	Status  Status   `json:"status"`
	Players []Player `json:"players"`

	// ChannelID is the public channel or thread the game was created in;
	// announcements go there.
	ChannelID string `json:"channel_id,omitempty"`

	CurrentPhase  string               `json:"current_phase,omitempty"`
	CurrentOrders map[Faction]OrderSet `json:"current_orders,omitempty"`
	DrawVotes     []Faction            `json:"draw_votes,omitempty"`
	PhaseDeadline *time.Time           `json:"phase_deadline,omitempty"`

	LastUnits   map[Faction][]string `json:"last_units,omitempty"`
	LastCenters map[Faction][]string `json:"last_centers,omitempty"`

	// EngineState is the adjudication engine's serialized state, passed
	// through verbatim and never inspected.
	EngineState json.RawMessage `json:"engine_state,omitempty"`

	MovementDuration time.Duration `json:"movement_duration"`
	AdjustDuration   time.Duration `json:"adjust_duration"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	EndReason  EndReason  `json:"end_reason,omitempty"`
	Winner     Faction    `json:"winner,omitempty"`
}

// Position is a board snapshot from the adjudication engine: the new phase
// token, the opaque engine state, and per-faction unit/center listings.
type Position struct {
	Phase       string
	EngineState json.RawMessage
	Units       map[Faction][]string
	Centers     map[Faction][]string
}

// AssignedFactions returns the factions held by seated players, in the
// fixed faction order.
func (s State) AssignedFactions() []Faction {
	held := make(map[Faction]bool, len(s.Players))
	for _, p := range s.Players {
		if p.Faction != "" {
			held[p.Faction] = true
		}
	}
	var out []Faction
	for _, f := range AllFactions() {
		if held[f] {
			out = append(out, f)
		}
	}
	return out
}

// FactionOf returns the faction assigned to an identity.
func (s State) FactionOf(identity string) (Faction, bool) {
	for _, p := range s.Players {
		if p.Identity == identity && p.Faction != "" {
			return p.Faction, true
		}
	}
	return "", false
}

// PlayerFor returns the seated player holding a faction.
func (s State) PlayerFor(f Faction) (Player, bool) {
	for _, p := range s.Players {
		if p.Faction == f {
			return p, true
		}
	}
	return Player{}, false
}

// IsCivilDisorder reports whether a faction has no player: it always holds
// and never builds, and the engine receives no orders for it.
func (s State) IsCivilDisorder(f Faction) bool {
	_, seated := s.PlayerFor(f)
	return !seated
}

// DeadlinePassed reports whether the phase deadline is at or before now.
func (s State) DeadlinePassed(now time.Time) bool {
	return s.PhaseDeadline != nil && !now.Before(*s.PhaseDeadline)
}

// clone deep-copies the mutable parts of the state so mutators can build a
// successor without aliasing the receiver's maps and slices.
func (s State) clone() State {
	out := s
	out.Players = append([]Player(nil), s.Players...)
	out.DrawVotes = append([]Faction(nil), s.DrawVotes...)
	if s.CurrentOrders != nil {
		out.CurrentOrders = make(map[Faction]OrderSet, len(s.CurrentOrders))
		for f, set := range s.CurrentOrders {
			out.CurrentOrders[f] = OrderSet{
				Lines:       append([]string(nil), set.Lines...),
				SubmittedAt: set.SubmittedAt,
			}
		}
	}
	return out
}

func copySnapshot(m map[Faction][]string) map[Faction][]string {
	if m == nil {
		return nil
	}
	out := make(map[Faction][]string, len(m))
	for f, v := range m {
		out[f] = append([]string(nil), v...)
	}
	return out
}

package game

import (
	"fmt"
	"time"

	"github.com/freeeve/envoy/internal/orders"
)

// New creates a fresh lobby-status game. The creator takes the first seat.
func New(id, channelID, creatorIdentity, creatorName string, now time.Time, movementDur, adjustDur time.Duration) State {
	return State{
		ID:        id,
		ChannelID: channelID,
		Status:    StatusLobby,
		Players: []Player{{
			Identity:    creatorIdentity,
			DisplayName: creatorName,
			JoinedAt:    now,
		}},
		MovementDuration: movementDur,
		AdjustDuration:   adjustDur,
		CreatedAt:        now,
	}
}

// AddPlayer seats a new player in a lobby game.
func (s State) AddPlayer(identity, displayName string, now time.Time) (State, error) {
	if s.Status != StatusLobby {
		return s, ErrNotLobby
	}
	if len(s.Players) >= MaxPlayers {
		return s, ErrGameFull
	}
	for _, p := range s.Players {
		if p.Identity == identity {
			return s, ErrAlreadyJoined
		}
	}
	next := s.clone()
	next.Players = append(next.Players, Player{
		Identity:    identity,
		DisplayName: displayName,
		JoinedAt:    now,
	})
	return next, nil
}

// RemovePlayer unseats a player from a lobby game.
func (s State) RemovePlayer(identity string) (State, error) {
	if s.Status != StatusLobby {
		return s, ErrNotLobby
	}
	next := s.clone()
	for i, p := range next.Players {
		if p.Identity == identity {
			next.Players = append(next.Players[:i], next.Players[i+1:]...)
			return next, nil
		}
	}
	return s, ErrNotInGame
}

// ClaimFaction seats a new player mid-game with a specific civil-disorder
// faction, bypassing the start-time shuffle. Used to replace a vacant seat.
func (s State) ClaimFaction(identity, displayName string, f Faction, now time.Time) (State, error) {
	if s.Status != StatusActive {
		return s, ErrNotActive
	}
	for _, p := range s.Players {
		if p.Faction == f {
			return s, ErrFactionTaken
		}
		if p.Identity == identity {
			return s, ErrAlreadyJoined
		}
	}
	next := s.clone()
	next.Players = append(next.Players, Player{
		Identity:    identity,
		DisplayName: displayName,
		Faction:     f,
		JoinedAt:    now,
	})
	return next, nil
}

// Start activates a lobby game: factions are shuffled onto seated players
// in join order, the opening position from the engine is installed, and the
// first movement deadline is set. Factions left without a player enter
// civil disorder. The shuffle is injectable so tests can pin assignments;
// it must return a permutation of 0..n-1.
func (s State) Start(opening Position, now time.Time, shuffle func(n int) []int) (State, error) {
	if s.Status != StatusLobby {
		return s, ErrNotLobby
	}
	if len(s.Players) < MinPlayers {
		return s, ErrNotEnoughPlayers
	}
	if _, err := ParsePhase(opening.Phase); err != nil {
		return s, fmt.Errorf("opening position: %w", err)
	}

	factions := AllFactions()
	perm := shuffle(len(factions))

	next := s.clone()
	for i := range next.Players {
		next.Players[i].Faction = factions[perm[i]]
	}

	next.Status = StatusActive
	next.StartedAt = &now
	next.CurrentPhase = opening.Phase
	next.EngineState = opening.EngineState
	next.LastUnits = copySnapshot(opening.Units)
	next.LastCenters = copySnapshot(opening.Centers)
	next.CurrentOrders = nil
	next.DrawVotes = nil
	deadline := now.Add(s.MovementDuration)
	next.PhaseDeadline = &deadline
	return next, nil
}

// SubmitOrders merges a faction's new order lines into its current set.
//
// Merge semantics: a new line replaces any existing line for the same unit
// (unit key = type + province, the first two tokens) and leaves other
// units' lines untouched, so players can resubmit partially. Waive lines
// are fungible build-skip tokens not tied to a unit: if the new submission
// contains any waive, all previously submitted waives are discarded and
// replaced wholesale by the new set.
func (s State) SubmitOrders(f Faction, lines []string, now time.Time) (State, error) {
	if s.Status != StatusActive {
		return s, ErrNotActive
	}
	if s.IsCivilDisorder(f) {
		return s, ErrFactionUnassigned
	}

	next := s.clone()
	if next.CurrentOrders == nil {
		next.CurrentOrders = make(map[Faction]OrderSet)
	}

	existing := next.CurrentOrders[f].Lines
	incoming := orders.ExpandWaives(lines)

	incomingWaives := false
	newKeys := make(map[string]bool, len(incoming))
	lastIndex := make(map[string]int, len(incoming))
	for i, line := range incoming {
		key := orders.UnitKey(line)
		if key == "WAIVE" {
			incomingWaives = true
			continue
		}
		newKeys[key] = true
		lastIndex[key] = i
	}

	var merged []string
	for _, line := range existing {
		key := orders.UnitKey(line)
		if key == "WAIVE" {
			if incomingWaives {
				continue
			}
			merged = append(merged, line)
			continue
		}
		if newKeys[key] {
			continue
		}
		merged = append(merged, line)
	}
	// A unit keyed twice in one submission keeps only its last line, so
	// the stored set mirrors what the engine will apply.
	for i, line := range incoming {
		if key := orders.UnitKey(line); key != "WAIVE" && lastIndex[key] != i {
			continue
		}
		merged = append(merged, orders.Normalize(line))
	}

	next.CurrentOrders[f] = OrderSet{Lines: merged, SubmittedAt: now}
	return next, nil
}

// PendingFactions returns assigned factions that have not submitted orders
// for the current phase, in the fixed faction order.
func (s State) PendingFactions() []Faction {
	var pending []Faction
	for _, f := range s.AssignedFactions() {
		if _, ok := s.CurrentOrders[f]; !ok {
			pending = append(pending, f)
		}
	}
	return pending
}

// AllOrdersSubmitted reports whether every assigned faction has submitted.
func (s State) AllOrdersSubmitted() bool {
	return s.Status == StatusActive && len(s.PendingFactions()) == 0
}

// VoteDraw records a faction's draw vote. When the vote set reaches the
// full assigned-faction set the game finishes as a draw in the same
// transition; the second return reports whether this vote achieved it, so
// the caller can notify exactly once.
func (s State) VoteDraw(f Faction, now time.Time) (State, bool, error) {
	if s.Status != StatusActive {
		return s, false, ErrNotActive
	}
	if s.IsCivilDisorder(f) {
		return s, false, ErrFactionUnassigned
	}
	for _, v := range s.DrawVotes {
		if v == f {
			return s, false, ErrAlreadyVoted
		}
	}

	next := s.clone()
	next.DrawVotes = append(next.DrawVotes, f)

	if len(next.DrawVotes) == len(next.AssignedFactions()) {
		next.Status = StatusFinished
		next.FinishedAt = &now
		next.EndReason = EndDraw
		next.PhaseDeadline = nil
		return next, true, nil
	}
	return next, false, nil
}

// AdvancePhase installs the adjudicated successor position: new phase
// token and engine state, fresh unit/center snapshots, cleared orders and
// draw votes, and the next deadline. Retreat and adjustment phases get the
// shorter duration.
func (s State) AdvancePhase(pos Position, now time.Time) (State, error) {
	if s.Status != StatusActive {
		return s, ErrNotActive
	}
	phase, err := ParsePhase(pos.Phase)
	if err != nil {
		return s, err
	}

	next := s.clone()
	next.CurrentPhase = pos.Phase
	next.EngineState = pos.EngineState
	next.LastUnits = copySnapshot(pos.Units)
	next.LastCenters = copySnapshot(pos.Centers)
	next.CurrentOrders = nil
	next.DrawVotes = nil

	dur := s.MovementDuration
	if phase.Type != Movement {
		dur = s.AdjustDuration
	}
	deadline := now.Add(dur)
	next.PhaseDeadline = &deadline
	return next, nil
}

// ShortenDeadline moves the phase deadline earlier, never later. Used for
// the grace period once all orders are in. Returns the state unchanged when
// the proposed deadline would not shorten anything.
func (s State) ShortenDeadline(deadline time.Time) State {
	if s.Status != StatusActive || s.PhaseDeadline == nil || !deadline.Before(*s.PhaseDeadline) {
		return s
	}
	next := s.clone()
	next.PhaseDeadline = &deadline
	return next
}

// SoloVictor scans center counts for a faction at or above the victory
// threshold. Factions are scanned in the fixed AllFactions order; if two
// somehow reach the threshold in the same adjudication, the first in that
// order wins. That tie-break is documented behavior, not a rule from the
// game itself.
func SoloVictor(counts map[Faction]int) (Faction, bool) {
	for _, f := range AllFactions() {
		if counts[f] >= VictoryThreshold {
			return f, true
		}
	}
	return "", false
}

// CheckSoloVictory applies SoloVictor to the last known center snapshot.
func (s State) CheckSoloVictory() (Faction, bool) {
	counts := make(map[Faction]int, len(s.LastCenters))
	for f, centers := range s.LastCenters {
		counts[f] = len(centers)
	}
	return SoloVictor(counts)
}

// FinishDraw ends the game as a draw without a vote. Used when the engine
// reports the game over with no faction at the victory threshold.
func (s State) FinishDraw(now time.Time) (State, error) {
	if s.Status != StatusActive {
		return s, ErrNotActive
	}
	next := s.clone()
	next.Status = StatusFinished
	next.FinishedAt = &now
	next.EndReason = EndDraw
	next.PhaseDeadline = nil
	return next, nil
}

// UpdateSnapshots replaces the cached unit and center snapshots. Used when
// the final adjudication of a game reports positions but no further phase.
func (s State) UpdateSnapshots(units, centers map[Faction][]string) State {
	next := s.clone()
	next.LastUnits = copySnapshot(units)
	next.LastCenters = copySnapshot(centers)
	return next
}

// FinishSoloVictory ends the game with a solo winner.
func (s State) FinishSoloVictory(winner Faction, now time.Time) (State, error) {
	if s.Status != StatusActive {
		return s, ErrNotActive
	}
	next := s.clone()
	next.Status = StatusFinished
	next.FinishedAt = &now
	next.EndReason = EndSoloVictory
	next.Winner = winner
	next.PhaseDeadline = nil
	return next, nil
}

// Abandon ends the game without a winner. Allowed from lobby or active.
func (s State) Abandon(now time.Time) (State, error) {
	if s.Status == StatusFinished {
		return s, ErrFinished
	}
	next := s.clone()
	next.Status = StatusFinished
	next.FinishedAt = &now
	next.EndReason = EndAbandoned
	next.PhaseDeadline = nil
	return next, nil
}

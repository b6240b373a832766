package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/command"
	"github.com/freeeve/envoy/internal/game"
)

const publicHelpText = `Commands (mention me in a channel):
new game | join #id | leave #id | start #id | status #id | map #id
draw #id | abandon #id | claim #id FRANCE | games | help
DM me to submit orders.`

// HandlePublic routes one public mention. Unknown commands are ignored so
// unrelated channel chatter never produces a reply. Store failures are
// logged and produce no reply; the sender can simply retry.
func (o *Orchestrator) HandlePublic(ctx context.Context, msg chat.Message) []Notification {
	cmd := command.ParsePublic(msg.Text, o.cfg.SelfHandle)
	switch cmd.Kind {
	case command.PublicNewGame:
		return o.createGame(ctx, msg)
	case command.PublicJoin:
		return o.joinGame(ctx, msg, cmd.GameID)
	case command.PublicLeave:
		return o.leaveGame(ctx, msg, cmd.GameID)
	case command.PublicStart:
		return o.startGame(ctx, msg, cmd.GameID)
	case command.PublicStatus:
		return o.gameStatus(ctx, msg, cmd.GameID)
	case command.PublicVoteDraw:
		return o.voteDraw(ctx, msg, cmd.GameID)
	case command.PublicAbandon:
		return o.abandonGame(ctx, msg, cmd.GameID)
	case command.PublicClaim:
		return o.claimFaction(ctx, msg, cmd.GameID, cmd.Faction)
	case command.PublicShowMap:
		return o.showMap(ctx, msg, cmd.GameID)
	case command.PublicListGames:
		return o.listLobbies(ctx, msg)
	case command.PublicHelp:
		return []Notification{reply(msg.ChannelID, publicHelpText)}
	default:
		return nil
	}
}

func (o *Orchestrator) createGame(ctx context.Context, msg chat.Message) []Notification {
	var st game.State
	for attempt := 0; ; attempt++ {
		id := o.newID()
		existing, err := o.store.Load(ctx, id)
		if err != nil {
			log.Error().Err(err).Msg("Failed to check game id")
			return nil
		}
		if existing == nil {
			st = game.New(id, msg.ChannelID, msg.Author, msg.Name, o.now(),
				o.cfg.MovementDuration, o.cfg.AdjustDuration)
			break
		}
		if attempt >= 4 {
			log.Error().Msg("Could not find a free game id")
			return nil
		}
	}
	if err := o.store.Save(ctx, st); err != nil {
		log.Error().Err(err).Str("gameId", st.ID).Msg("Failed to save new game")
		return nil
	}
	log.Info().Str("gameId", st.ID).Str("creator", msg.Author).Msg("Game created")
	text := fmt.Sprintf("Game #%s created. Join with \"join #%s\"; start with \"start #%s\" once at least %d players are in.",
		st.ID, st.ID, st.ID, game.MinPlayers)
	return []Notification{reply(msg.ChannelID, text)}
}

func (o *Orchestrator) joinGame(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	next, err := st.AddPlayer(msg.Author, msg.Name, o.now())
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save join")
		return nil
	}
	text := fmt.Sprintf("%s joined game #%s (%d/%d players).",
		msg.Name, gameID, len(next.Players), game.MaxPlayers)
	return []Notification{reply(msg.ChannelID, text)}
}

func (o *Orchestrator) leaveGame(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	next, err := st.RemovePlayer(msg.Author)
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if len(next.Players) == 0 {
		if err := o.store.Delete(ctx, gameID); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Failed to delete empty lobby")
			return nil
		}
		log.Info().Str("gameId", gameID).Msg("Empty lobby deleted")
		return []Notification{reply(msg.ChannelID, fmt.Sprintf("Game #%s disbanded, no players left.", gameID))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save leave")
		return nil
	}
	text := fmt.Sprintf("%s left game #%s (%d/%d players).",
		msg.Name, gameID, len(next.Players), game.MaxPlayers)
	return []Notification{reply(msg.ChannelID, text)}
}

// startGame opens the board through the engine, assigns factions, and
// moves the game to active. The engine call happens before any state
// change; if it fails the lobby is untouched and start can be retried.
func (o *Orchestrator) startGame(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	if !playerIn(*st, msg.Author) {
		return []Notification{reply(msg.ChannelID, errText(game.ErrNotInGame))}
	}
	if st.Status != game.StatusLobby {
		return []Notification{reply(msg.ChannelID, errText(game.ErrNotLobby))}
	}
	if len(st.Players) < game.MinPlayers {
		return []Notification{reply(msg.ChannelID, errText(game.ErrNotEnoughPlayers))}
	}

	snap, err := o.engine.NewGame(ctx)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Engine unavailable for new game")
		return []Notification{reply(msg.ChannelID, "The adjudication service is unavailable right now; try starting again in a minute.")}
	}
	opening := game.Position{
		Phase:       snap.Phase,
		EngineState: snap.EngineState,
		Units:       toFactionSnapshot(snap.Units),
		Centers:     toFactionSnapshot(snap.Centers),
	}
	next, err := st.Start(opening, o.now(), o.shuffle)
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save started game")
		return nil
	}
	o.syncTimer(ctx, next)
	log.Info().Str("gameId", gameID).Int("players", len(next.Players)).
		Str("phase", next.CurrentPhase).Msg("Game started")

	out := []Notification{reply(msg.ChannelID, fmt.Sprintf(
		"Game #%s started. Phase %s, orders due %s. Factions have been assigned by DM.",
		gameID, next.CurrentPhase, next.PhaseDeadline.Format(time.RFC1123)))}
	for _, p := range next.Players {
		out = append(out, dm(p.Identity, fmt.Sprintf(
			"You are %s in game #%s. DM me your orders for %s, one per line, e.g. \"#%s A PAR - BUR\".",
			p.Faction, gameID, next.CurrentPhase, gameID)))
	}
	return out
}

func (o *Orchestrator) gameStatus(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	return []Notification{reply(msg.ChannelID, statusText(*st))}
}

func (o *Orchestrator) voteDraw(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	f, ok := st.FactionOf(msg.Author)
	if !ok {
		return []Notification{reply(msg.ChannelID, errText(game.ErrNotInGame))}
	}
	next, achieved, err := st.VoteDraw(f, o.now())
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save draw vote")
		return nil
	}
	if achieved {
		o.syncTimer(ctx, next)
		log.Info().Str("gameId", gameID).Msg("Game finished by unanimous draw")
		return []Notification{reply(msg.ChannelID, fmt.Sprintf("Game #%s is over: drawn by unanimous vote.", gameID))}
	}
	text := fmt.Sprintf("%s votes for a draw in #%s (%d/%d).",
		f, gameID, len(next.DrawVotes), len(next.AssignedFactions()))
	return []Notification{reply(msg.ChannelID, text)}
}

func (o *Orchestrator) abandonGame(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	if !playerIn(*st, msg.Author) {
		return []Notification{reply(msg.ChannelID, errText(game.ErrNotInGame))}
	}
	next, err := st.Abandon(o.now())
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save abandon")
		return nil
	}
	o.syncTimer(ctx, next)
	log.Info().Str("gameId", gameID).Str("by", msg.Author).Msg("Game abandoned")
	return []Notification{reply(msg.ChannelID, fmt.Sprintf("Game #%s abandoned by %s.", gameID, msg.Name))}
}

func (o *Orchestrator) claimFaction(ctx context.Context, msg chat.Message, gameID, faction string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	f, ok := game.ParseFaction(faction)
	if !ok {
		return []Notification{reply(msg.ChannelID, "Unknown power. Use one of: "+factionList())}
	}
	next, err := st.ClaimFaction(msg.Author, msg.Name, f, o.now())
	if err != nil {
		return []Notification{reply(msg.ChannelID, errText(err))}
	}
	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save claim")
		return nil
	}
	log.Info().Str("gameId", gameID).Str("faction", string(f)).Str("by", msg.Author).Msg("Faction claimed")
	return []Notification{reply(msg.ChannelID, fmt.Sprintf("%s now plays %s in game #%s.", msg.Name, f, gameID))}
}

// showMap renders the current position through the engine. On platforms
// without attachment support the reply degrades to the status text.
func (o *Orchestrator) showMap(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForCommand(ctx, msg.ChannelID, gameID)
	if st == nil {
		return notes
	}
	if len(st.EngineState) == 0 {
		return []Notification{reply(msg.ChannelID, fmt.Sprintf("Game #%s has not started yet.", gameID))}
	}
	rm, err := o.engine.RenderMap(ctx, st.EngineState)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Map render failed")
		return []Notification{reply(msg.ChannelID, "Could not render the map right now; try again shortly.")}
	}
	n := reply(msg.ChannelID, fmt.Sprintf("Game #%s, %s.", gameID, st.CurrentPhase))
	n.SVG = rm.SVG
	return []Notification{n}
}

func (o *Orchestrator) listLobbies(ctx context.Context, msg chat.Message) []Notification {
	lobbies, err := o.store.LoadLobby(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list lobbies")
		return nil
	}
	if len(lobbies) == 0 {
		return []Notification{reply(msg.ChannelID, "No games waiting for players. Say \"new game\" to open one.")}
	}
	var b strings.Builder
	b.WriteString("Games waiting for players:\n")
	for _, st := range lobbies {
		fmt.Fprintf(&b, "  #%s (%d/%d players)\n", st.ID, len(st.Players), game.MaxPlayers)
	}
	return []Notification{reply(msg.ChannelID, strings.TrimRight(b.String(), "\n"))}
}

// loadForCommand resolves the game a command addresses. A nil state means
// the caller should return the accompanying notifications as-is.
func (o *Orchestrator) loadForCommand(ctx context.Context, channelID, gameID string) (*game.State, []Notification) {
	if gameID == "" {
		return nil, []Notification{reply(channelID, "Which game? Include the id, e.g. \"#k3j9\".")}
	}
	st, err := o.store.Load(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to load game")
		return nil, nil
	}
	if st == nil {
		return nil, []Notification{reply(channelID, fmt.Sprintf("No game #%s found.", gameID))}
	}
	return st, nil
}

func playerIn(st game.State, identity string) bool {
	for _, p := range st.Players {
		if p.Identity == identity {
			return true
		}
	}
	return false
}

// statusText renders the public status summary for any game status.
func statusText(st game.State) string {
	var b strings.Builder
	switch st.Status {
	case game.StatusLobby:
		fmt.Fprintf(&b, "Game #%s: waiting for players (%d/%d).\n", st.ID, len(st.Players), game.MaxPlayers)
		for _, p := range st.Players {
			fmt.Fprintf(&b, "  %s\n", p.DisplayName)
		}
	case game.StatusFinished:
		fmt.Fprintf(&b, "Game #%s: finished (%s)", st.ID, st.EndReason)
		if st.Winner != "" {
			fmt.Fprintf(&b, ", won by %s", st.Winner)
		}
		b.WriteString(".\n")
		appendCenterCounts(&b, st)
	default:
		fmt.Fprintf(&b, "Game #%s: %s", st.ID, st.CurrentPhase)
		if st.PhaseDeadline != nil {
			fmt.Fprintf(&b, ", orders due %s", st.PhaseDeadline.Format(time.RFC1123))
		}
		b.WriteString(".\n")
		appendCenterCounts(&b, st)
		if pending := st.PendingFactions(); len(pending) > 0 {
			names := make([]string, len(pending))
			for i, f := range pending {
				names[i] = string(f)
			}
			fmt.Fprintf(&b, "Awaiting orders from: %s.\n", strings.Join(names, ", "))
		}
		if len(st.DrawVotes) > 0 {
			fmt.Fprintf(&b, "Draw votes: %d/%d.\n", len(st.DrawVotes), len(st.AssignedFactions()))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func appendCenterCounts(b *strings.Builder, st game.State) {
	if len(st.LastCenters) == 0 {
		return
	}
	type row struct {
		f game.Faction
		n int
	}
	rows := make([]row, 0, len(st.LastCenters))
	for f, centers := range st.LastCenters {
		rows = append(rows, row{f, len(centers)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].n != rows[j].n {
			return rows[i].n > rows[j].n
		}
		return rows[i].f < rows[j].f
	})
	for _, r := range rows {
		player := "civil disorder"
		if p, ok := st.PlayerFor(r.f); ok {
			player = p.DisplayName
		}
		fmt.Fprintf(b, "  %s (%s): %d centers\n", r.f, player, r.n)
	}
}

func factionList() string {
	fs := game.AllFactions()
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// errText maps state machine errors to short user-facing replies.
func errText(err error) string {
	switch {
	case errors.Is(err, game.ErrNotLobby):
		return "That game has already started."
	case errors.Is(err, game.ErrNotActive):
		return "That game is not in play."
	case errors.Is(err, game.ErrFinished):
		return "That game is already over."
	case errors.Is(err, game.ErrGameFull):
		return fmt.Sprintf("That game is full (%d players).", game.MaxPlayers)
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return fmt.Sprintf("Need at least %d players to start.", game.MinPlayers)
	case errors.Is(err, game.ErrAlreadyJoined):
		return "You are already in that game."
	case errors.Is(err, game.ErrNotInGame):
		return "You are not in that game."
	case errors.Is(err, game.ErrFactionTaken):
		return "That power is already taken."
	case errors.Is(err, game.ErrFactionUnassigned):
		return "You hold no power in that game."
	case errors.Is(err, game.ErrAlreadyVoted):
		return "You have already voted for a draw."
	default:
		return "That did not work; check the command and try again."
	}
}

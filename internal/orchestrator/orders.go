package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/command"
	"github.com/freeeve/envoy/internal/game"
	"github.com/freeeve/envoy/internal/orders"
)

const privateHelpText = `DM commands:
  #id A PAR - BUR; F BRE H   submit orders (";" or newlines separate)
  #id orders                 show what you have submitted
  #id possible               show legal orders for your power
  #id                        game menu
  my games                   list your games
Orders replace earlier orders for the same unit; other units keep theirs.`

// HandlePrivate routes one direct message. Unlike public chatter, every DM
// is addressed to the bot, so unknown input gets a help hint instead of
// silence.
func (o *Orchestrator) HandlePrivate(ctx context.Context, msg chat.Message) []Notification {
	cmd := command.ParsePrivate(msg.Text)
	switch cmd.Kind {
	case command.PrivateHelp:
		return []Notification{dm(msg.Author, privateHelpText)}
	case command.PrivateMyGames:
		return o.myGames(ctx, msg)
	case command.PrivateMenu:
		return o.gameMenu(ctx, msg, cmd.GameID)
	case command.PrivateShowOrders:
		return o.showOrders(ctx, msg, cmd.GameID)
	case command.PrivateShowPossible:
		return o.showPossible(ctx, msg, cmd.GameID)
	case command.PrivateSubmitOrders:
		return o.submitOrders(ctx, msg, cmd.GameID, cmd.OrderLines)
	default:
		return []Notification{dm(msg.Author, "I did not understand that. Say \"help\" for DM commands.")}
	}
}

// submitOrders validates order lines and merges the valid ones into the
// faction's current set. One bad line never blocks the rest; every line is
// answered individually.
func (o *Orchestrator) submitOrders(ctx context.Context, msg chat.Message, gameID string, rawLines []string) []Notification {
	st, notes := o.loadForDM(ctx, msg.Author, gameID)
	if st == nil {
		return notes
	}
	f, ok := st.FactionOf(msg.Author)
	if !ok {
		return []Notification{dm(msg.Author, errText(game.ErrNotInGame))}
	}
	if st.Status != game.StatusActive {
		return []Notification{dm(msg.Author, errText(game.ErrNotActive))}
	}

	retreat := game.IsRetreat(st.CurrentPhase)
	lines := orders.ExpandWaives(rawLines)
	results := orders.ParseLines(lines, retreat)

	var accepted []string
	var b strings.Builder
	for _, res := range results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(&b, "✗ %s: not a recognizable order\n", res.Raw)
		case res.Order.AmbiguousCoast:
			ref := res.Order.Target
			if ref == "" {
				ref = res.Order.Province
			}
			fmt.Fprintf(&b, "✗ %s: which coast? Repeat with one, e.g. %s/SC\n", res.Raw, ref)
		default:
			canon := res.Order.Canonical()
			accepted = append(accepted, canon)
			fmt.Fprintf(&b, "✓ %s\n", canon)
		}
	}
	if len(accepted) == 0 {
		b.WriteString("Nothing accepted; your previous orders are unchanged.")
		return []Notification{dm(msg.Author, strings.TrimRight(b.String(), "\n"))}
	}

	now := o.now()
	next, err := st.SubmitOrders(f, accepted, now)
	if err != nil {
		return []Notification{dm(msg.Author, errText(err))}
	}

	allIn := next.AllOrdersSubmitted()
	if allIn {
		next = next.ShortenDeadline(now.Add(o.cfg.GracePeriod))
	}

	if err := o.store.Save(ctx, next); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to save orders")
		return nil
	}
	log.Info().Str("gameId", gameID).Str("faction", string(f)).
		Int("accepted", len(accepted)).Msg("Orders submitted")

	if allIn {
		o.syncTimer(ctx, next)
		fmt.Fprintf(&b, "All powers are in. The phase resolves by %s; you can still revise until then.",
			next.PhaseDeadline.Format(time.RFC1123))
	} else {
		fmt.Fprintf(&b, "Orders for %s on file in #%s.", f, gameID)
	}
	return []Notification{dm(msg.Author, strings.TrimRight(b.String(), "\n"))}
}

func (o *Orchestrator) showOrders(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForDM(ctx, msg.Author, gameID)
	if st == nil {
		return notes
	}
	f, ok := st.FactionOf(msg.Author)
	if !ok {
		return []Notification{dm(msg.Author, errText(game.ErrNotInGame))}
	}
	set, ok := st.CurrentOrders[f]
	if !ok || len(set.Lines) == 0 {
		return []Notification{dm(msg.Author, fmt.Sprintf("No orders on file for %s in #%s yet.", f, gameID))}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Your orders for %s in #%s:\n", st.CurrentPhase, gameID)
	for _, line := range set.Lines {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	return []Notification{dm(msg.Author, strings.TrimRight(b.String(), "\n"))}
}

func (o *Orchestrator) showPossible(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForDM(ctx, msg.Author, gameID)
	if st == nil {
		return notes
	}
	f, ok := st.FactionOf(msg.Author)
	if !ok {
		return []Notification{dm(msg.Author, errText(game.ErrNotInGame))}
	}
	if st.Status != game.StatusActive {
		return []Notification{dm(msg.Author, errText(game.ErrNotActive))}
	}
	poss, err := o.engine.PossibleOrders(ctx, st.EngineState)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Possible orders lookup failed")
		return []Notification{dm(msg.Author, "Could not reach the adjudication service; try again shortly.")}
	}
	byProvince := poss.ByFaction[string(f)]
	if len(byProvince) == 0 {
		return []Notification{dm(msg.Author, fmt.Sprintf("No orderable units for %s in %s.", f, st.CurrentPhase))}
	}
	provinces := make([]string, 0, len(byProvince))
	for p := range byProvince {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)
	var b strings.Builder
	fmt.Fprintf(&b, "Legal orders for %s in %s:\n", f, poss.Phase)
	for _, p := range provinces {
		fmt.Fprintf(&b, "  %s: %s\n", p, strings.Join(byProvince[p], " | "))
	}
	return []Notification{dm(msg.Author, strings.TrimRight(b.String(), "\n"))}
}

func (o *Orchestrator) gameMenu(ctx context.Context, msg chat.Message, gameID string) []Notification {
	st, notes := o.loadForDM(ctx, msg.Author, gameID)
	if st == nil {
		return notes
	}
	var b strings.Builder
	b.WriteString(statusText(*st))
	if f, ok := st.FactionOf(msg.Author); ok {
		fmt.Fprintf(&b, "\nYou are %s.", f)
		if set, ok := st.CurrentOrders[f]; ok && len(set.Lines) > 0 {
			fmt.Fprintf(&b, " Orders on file: %s.", strings.Join(set.Lines, "; "))
		} else if st.Status == game.StatusActive {
			b.WriteString(" No orders on file yet.")
		}
	}
	fmt.Fprintf(&b, "\nSay \"#%s orders\", \"#%s possible\", or send order lines.", gameID, gameID)
	return []Notification{dm(msg.Author, b.String())}
}

func (o *Orchestrator) myGames(ctx context.Context, msg chat.Message) []Notification {
	active, err := o.store.LoadActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active games")
		return nil
	}
	lobbies, err := o.store.LoadLobby(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list lobbies")
		return nil
	}

	var b strings.Builder
	for _, st := range append(active, lobbies...) {
		if !playerIn(st, msg.Author) {
			continue
		}
		switch st.Status {
		case game.StatusLobby:
			fmt.Fprintf(&b, "  #%s: lobby, %d/%d players\n", st.ID, len(st.Players), game.MaxPlayers)
		default:
			f, _ := st.FactionOf(msg.Author)
			fmt.Fprintf(&b, "  #%s: %s as %s", st.ID, st.CurrentPhase, f)
			if st.PhaseDeadline != nil {
				fmt.Fprintf(&b, ", due %s", st.PhaseDeadline.Format(time.RFC1123))
			}
			b.WriteString("\n")
		}
	}
	if b.Len() == 0 {
		return []Notification{dm(msg.Author, "You are not in any games. Mention me in a channel with \"new game\" to open one.")}
	}
	return []Notification{dm(msg.Author, "Your games:\n"+strings.TrimRight(b.String(), "\n"))}
}

// loadForDM is loadForCommand with DM replies instead of channel replies.
func (o *Orchestrator) loadForDM(ctx context.Context, identity, gameID string) (*game.State, []Notification) {
	if gameID == "" {
		return nil, []Notification{dm(identity, "Which game? Start with the id, e.g. \"#k3j9 A PAR - BUR\".")}
	}
	st, err := o.store.Load(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to load game")
		return nil, nil
	}
	if st == nil {
		return nil, []Notification{dm(identity, fmt.Sprintf("No game #%s found.", gameID))}
	}
	return st, nil
}

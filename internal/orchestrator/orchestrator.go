// Package orchestrator drives game phase transitions and routes parsed
// chat commands to game state operations. It owns the per-game in-flight
// guard, the failure backoff, and the deadline scheduling; persistence,
// adjudication, and chat delivery stay behind interfaces.
package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	mrand "math/rand"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/envoy/internal/adjudicator"
	"github.com/freeeve/envoy/internal/game"
	"github.com/freeeve/envoy/internal/orders"
	"github.com/freeeve/envoy/internal/repository"
)

// ErrGameNotFound is returned when an operation names a game id with no
// stored state.
var ErrGameNotFound = errors.New("game not found")

// Config holds the orchestrator's tunable timings and limits. Zero values
// fall back to the defaults below.
type Config struct {
	// SelfHandle is the bot's chat handle, stripped from public mentions
	// before command parsing.
	SelfHandle string

	MovementDuration time.Duration
	AdjustDuration   time.Duration
	// GracePeriod is how long a phase stays open after the last faction
	// submits, so players can still revise.
	GracePeriod time.Duration
	// FailureThreshold is the consecutive adjudication failure count at
	// which a game drops to the slow retry cadence.
	FailureThreshold int
	// RetryEveryTicks is the slow cadence: a backed-off game is retried
	// only on every Nth tick.
	RetryEveryTicks uint64
	DedupCapacity   int
}

func (c Config) withDefaults() Config {
	if c.MovementDuration == 0 {
		c.MovementDuration = 24 * time.Hour
	}
	if c.AdjustDuration == 0 {
		c.AdjustDuration = 12 * time.Hour
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 20 * time.Minute
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.RetryEveryTicks == 0 {
		c.RetryEveryTicks = 10
	}
	if c.DedupCapacity == 0 {
		c.DedupCapacity = 1024
	}
	return c
}

// Orchestrator coordinates all games. One instance per process; every
// method is safe for concurrent use.
type Orchestrator struct {
	store  repository.GameStore
	timers repository.TimerStore // optional, nil disables fast-path timers
	engine adjudicator.Client
	cfg    Config

	// test seams, overridden only in tests
	now     func() time.Time
	newID   func() string
	shuffle func(n int) []int

	// inFlight prevents concurrent phase processing for the same game.
	// The timer listener, the tick poller, and a grace-period expiry can
	// all fire for one game at once; only the first caller proceeds.
	mu       sync.Mutex
	inFlight map[string]struct{}
	failures map[string]int
	ticks    uint64

	seen *dedupCache
}

// New creates an Orchestrator. timers may be nil.
func New(store repository.GameStore, timers repository.TimerStore, engine adjudicator.Client, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:    store,
		timers:   timers,
		engine:   engine,
		cfg:      cfg,
		now:      time.Now,
		newID:    newGameID,
		shuffle:  mrand.Perm,
		inFlight: make(map[string]struct{}),
		failures: make(map[string]int),
		seen:     newDedupCache(cfg.DedupCapacity),
	}
}

// MarkSeen records an inbound message id, reporting whether it was already
// handled. The driver calls this before routing.
func (o *Orchestrator) MarkSeen(messageID string) bool {
	return o.seen.markSeen(messageID)
}

// acquire claims the in-flight slot for a game. Returns false if another
// caller holds it.
func (o *Orchestrator) acquire(gameID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[gameID]; busy {
		return false
	}
	o.inFlight[gameID] = struct{}{}
	return true
}

func (o *Orchestrator) release(gameID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, gameID)
}

func (o *Orchestrator) recordFailure(gameID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[gameID]++
	return o.failures[gameID]
}

func (o *Orchestrator) clearFailures(gameID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.failures, gameID)
}

func (o *Orchestrator) backedOff(gameID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failures[gameID] >= o.cfg.FailureThreshold
}

// ProcessPhase adjudicates a game's current phase and installs the
// successor state. Safe to call from multiple triggers at once: all but
// one caller return immediately with no work done. The stored state is
// only replaced after the engine call succeeds, so a failed attempt leaves
// the phase exactly as it was.
func (o *Orchestrator) ProcessPhase(ctx context.Context, gameID string) ([]Notification, error) {
	if !o.acquire(gameID) {
		log.Debug().Str("gameId", gameID).Msg("Phase already processing, skipping")
		return nil, nil
	}
	defer o.release(gameID)

	st, err := o.store.Load(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load game: %w", err)
	}
	if st == nil {
		return nil, ErrGameNotFound
	}
	if st.Status != game.StatusActive {
		log.Debug().Str("gameId", gameID).Str("status", string(st.Status)).Msg("Game not active, nothing to process")
		return nil, nil
	}

	engineOrders := engineOrderMap(*st)
	snap, err := o.engine.Process(ctx, st.EngineState, engineOrders, true)
	if err != nil {
		n := o.recordFailure(gameID)
		log.Error().Err(err).Str("gameId", gameID).Int("consecutiveFailures", n).Msg("Adjudication failed")
		return nil, fmt.Errorf("adjudicate %s: %w", gameID, err)
	}
	units := toFactionSnapshot(snap.Units)
	centers := toFactionSnapshot(snap.Centers)
	now := o.now()

	next, notes, err := o.successorState(*st, snap, units, centers, now)
	if err != nil {
		// A response we cannot apply counts as a failed attempt.
		n := o.recordFailure(gameID)
		log.Error().Err(err).Str("gameId", gameID).Int("consecutiveFailures", n).Msg("Engine response rejected")
		return nil, err
	}
	o.clearFailures(gameID)

	if err := o.store.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save game: %w", err)
	}
	o.syncTimer(ctx, next)

	if snap.SVG != "" && len(notes) > 0 {
		notes[0].SVG = snap.SVG
	}
	return notes, nil
}

// successorState computes the post-adjudication state: finished on solo
// victory or engine-reported completion, otherwise advanced to the next
// phase.
func (o *Orchestrator) successorState(st game.State, snap *adjudicator.Snapshot, units, centers map[game.Faction][]string, now time.Time) (game.State, []Notification, error) {
	counts := make(map[game.Faction]int, len(centers))
	for f, sc := range centers {
		counts[f] = len(sc)
	}

	if winner, ok := game.SoloVictor(counts); ok {
		next := st.UpdateSnapshots(units, centers)
		next, err := next.FinishSoloVictory(winner, now)
		if err != nil {
			return st, nil, err
		}
		log.Info().Str("gameId", st.ID).Str("winner", string(winner)).Msg("Game finished by solo victory")
		text := fmt.Sprintf("Game #%s is over: %s wins with %d supply centers.", st.ID, winner, counts[winner])
		return next, []Notification{reply(st.ChannelID, text)}, nil
	}

	if snap.IsGameDone {
		next := st.UpdateSnapshots(units, centers)
		next, err := next.FinishDraw(now)
		if err != nil {
			return st, nil, err
		}
		log.Info().Str("gameId", st.ID).Msg("Game finished, engine reports completion with no solo")
		text := fmt.Sprintf("Game #%s is over: drawn among the surviving powers.", st.ID)
		return next, []Notification{reply(st.ChannelID, text)}, nil
	}

	pos := game.Position{
		Phase:       snap.Phase,
		EngineState: snap.EngineState,
		Units:       units,
		Centers:     centers,
	}
	next, err := st.AdvancePhase(pos, now)
	if err != nil {
		return st, nil, fmt.Errorf("advance phase: %w", err)
	}
	log.Info().Str("gameId", st.ID).Str("phase", next.CurrentPhase).
		Time("deadline", *next.PhaseDeadline).Msg("Phase advanced")
	text := fmt.Sprintf("Game #%s: phase %s resolved. Now %s, orders due %s.",
		st.ID, st.CurrentPhase, next.CurrentPhase, next.PhaseDeadline.Format(time.RFC1123))
	return next, []Notification{reply(st.ChannelID, text)}, nil
}

// Tick is the polling fallback: it scans active games and processes every
// phase past its deadline. A failure in one game never blocks the rest.
// Games past the failure threshold are retried only on the slow cadence.
func (o *Orchestrator) Tick(ctx context.Context) []Notification {
	o.mu.Lock()
	o.ticks++
	tick := o.ticks
	o.mu.Unlock()

	games, err := o.store.LoadActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active games")
		return nil
	}

	now := o.now()
	var out []Notification
	for _, st := range games {
		if !st.DeadlinePassed(now) {
			continue
		}
		if o.backedOff(st.ID) && tick%o.cfg.RetryEveryTicks != 0 {
			log.Debug().Str("gameId", st.ID).Msg("Game backed off, skipping this tick")
			continue
		}
		notes, err := o.ProcessPhase(ctx, st.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", st.ID).Msg("Phase processing failed from tick")
			continue
		}
		out = append(out, notes...)
	}
	return out
}

// Recover restores fast-path timers for active games after a restart.
// Expired deadlines are left for the next tick to process.
func (o *Orchestrator) Recover(ctx context.Context) error {
	games, err := o.store.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}
	log.Info().Int("count", len(games)).Msg("Recovering active games after restart")
	for _, st := range games {
		o.syncTimer(ctx, st)
	}
	return nil
}

// syncTimer mirrors the state's deadline into the timer store. Timer
// failures are logged, never fatal: the tick poller catches what the fast
// path misses.
func (o *Orchestrator) syncTimer(ctx context.Context, st game.State) {
	if o.timers == nil {
		return
	}
	if st.Status != game.StatusActive || st.PhaseDeadline == nil {
		if err := o.timers.ClearTimer(ctx, st.ID); err != nil {
			log.Warn().Err(err).Str("gameId", st.ID).Msg("Failed to clear timer")
		}
		return
	}
	if err := o.timers.SetTimer(ctx, st.ID, *st.PhaseDeadline); err != nil {
		log.Warn().Err(err).Str("gameId", st.ID).Msg("Failed to set timer")
	}
}

// engineOrderMap builds the per-power order lists for the engine. Factions
// with no submission are omitted; the engine holds their units in place.
func engineOrderMap(st game.State) map[string][]string {
	out := make(map[string][]string, len(st.CurrentOrders))
	retreat := game.IsRetreat(st.CurrentPhase)
	for f, set := range st.CurrentOrders {
		var lines []string
		for _, res := range orders.ParseLines(set.Lines, retreat) {
			if res.Err != nil {
				// validated at submission, but never forward junk
				continue
			}
			lines = append(lines, res.Order.Canonical())
		}
		if len(lines) > 0 {
			out[string(f)] = lines
		}
	}
	return out
}

// toFactionSnapshot converts the engine's string power keys, dropping any
// power name this system does not know.
func toFactionSnapshot(m map[string][]string) map[game.Faction][]string {
	out := make(map[game.Faction][]string, len(m))
	for k, v := range m {
		f, ok := game.ParseFaction(k)
		if !ok {
			continue
		}
		out[f] = append([]string(nil), v...)
	}
	return out
}

const gameIDCharset = "abcdefghjkmnpqrstuvwxyz23456789"

// newGameID generates a short random id for chat use. The charset skips
// ambiguous characters.
func newGameID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%04x", time.Now().UnixNano()&0xffff)
	}
	for i := range b {
		b[i] = gameIDCharset[int(b[i])%len(gameIDCharset)]
	}
	return string(b)
}

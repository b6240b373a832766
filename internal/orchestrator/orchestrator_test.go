package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freeeve/envoy/internal/adjudicator"
	"github.com/freeeve/envoy/internal/game"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func identityShuffle(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newTestOrchestrator(store *mockStore, timers *mockTimers, engine *mockEngine) *Orchestrator {
	o := New(store, timers, engine, Config{
		SelfHandle:       "envoy",
		MovementDuration: 24 * time.Hour,
		AdjustDuration:   12 * time.Hour,
		GracePeriod:      20 * time.Minute,
		FailureThreshold: 3,
		RetryEveryTicks:  10,
	})
	o.now = func() time.Time { return testNow }
	o.newID = func() string { return "k3j9" }
	o.shuffle = identityShuffle
	return o
}

func openingSnapshot() *adjudicator.Snapshot {
	return &adjudicator.Snapshot{
		EngineState: json.RawMessage(`{"turn":0}`),
		Phase:       "S1901M",
		Units: map[string][]string{
			"AUSTRIA": {"A BUD", "A VIE", "F TRI"},
			"ENGLAND": {"F EDI", "F LON", "A LVP"},
			"FRANCE":  {"A MAR", "A PAR", "F BRE"},
			"GERMANY": {"A BER", "A MUN", "F KIE"},
			"ITALY":   {"F NAP", "A ROM", "A VEN"},
			"RUSSIA":  {"A MOS", "F SEV", "F STP/SC", "A WAR"},
			"TURKEY":  {"F ANK", "A CON", "A SMY"},
		},
		Centers: map[string][]string{
			"AUSTRIA": {"BUD", "VIE", "TRI"},
			"ENGLAND": {"EDI", "LON", "LVP"},
			"FRANCE":  {"MAR", "PAR", "BRE"},
			"GERMANY": {"BER", "MUN", "KIE"},
			"ITALY":   {"NAP", "ROM", "VEN"},
			"RUSSIA":  {"MOS", "SEV", "STP", "WAR"},
			"TURKEY":  {"ANK", "CON", "SMY"},
		},
	}
}

func nextSnapshot(phase string) *adjudicator.Snapshot {
	snap := openingSnapshot()
	snap.Phase = phase
	snap.EngineState = json.RawMessage(`{"turn":1}`)
	return snap
}

// startedGame creates a two-player active game (alice as Austria, bob as
// England) and stores it.
func startedGame(t *testing.T, store *mockStore) game.State {
	t.Helper()
	st := game.New("k3j9", "chan-1", "alice", "Alice", testNow, 24*time.Hour, 12*time.Hour)
	st, err := st.AddPlayer("bob", "Bob", testNow)
	if err != nil {
		t.Fatalf("add player: %v", err)
	}
	opening := game.Position{
		Phase:       "S1901M",
		EngineState: json.RawMessage(`{"turn":0}`),
		Units:       toFactionSnapshot(openingSnapshot().Units),
		Centers:     toFactionSnapshot(openingSnapshot().Centers),
	}
	st, err = st.Start(opening, testNow, identityShuffle)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	store.put(st)
	return st
}

func TestProcessPhaseAdvances(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	timers := newMockTimers()
	engine := &mockEngine{next: nextSnapshot("F1901M")}
	o := newTestOrchestrator(store, timers, engine)

	st := startedGame(t, store)
	st, err := st.SubmitOrders(game.Austria, []string{"A BUD - SER", "A VIE H"}, testNow)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	store.put(st)

	notes, err := o.ProcessPhase(ctx, "k3j9")
	if err != nil {
		t.Fatalf("process phase: %v", err)
	}

	sent := engine.orders()
	if len(sent) != 1 {
		t.Fatalf("engine orders = %v, want only AUSTRIA", sent)
	}
	if got := sent["AUSTRIA"]; len(got) != 2 || got[0] != "A BUD - SER" {
		t.Errorf("AUSTRIA orders = %v", got)
	}

	after := store.get("k3j9")
	if after.CurrentPhase != "F1901M" {
		t.Errorf("phase = %s, want F1901M", after.CurrentPhase)
	}
	if len(after.CurrentOrders) != 0 {
		t.Errorf("orders not cleared: %v", after.CurrentOrders)
	}
	wantDeadline := testNow.Add(24 * time.Hour)
	if after.PhaseDeadline == nil || !after.PhaseDeadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", after.PhaseDeadline, wantDeadline)
	}
	if d, ok := timers.deadline("k3j9"); !ok || !d.Equal(wantDeadline) {
		t.Errorf("timer = %v %v, want %v", d, ok, wantDeadline)
	}
	if len(notes) != 1 || notes[0].ChannelID != "chan-1" || !strings.Contains(notes[0].Text, "F1901M") {
		t.Errorf("notes = %+v", notes)
	}
}

// Two triggers firing for the same game must produce exactly one engine
// call; the loser returns immediately with no work done.
func TestProcessPhaseReentrancy(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{next: nextSnapshot("F1901M"), processGate: make(chan struct{})}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	startedGame(t, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := o.ProcessPhase(ctx, "k3j9"); err != nil {
			t.Errorf("first process: %v", err)
		}
	}()

	// wait until the first caller is inside the engine call
	for i := 0; ; i++ {
		o.mu.Lock()
		_, busy := o.inFlight["k3j9"]
		o.mu.Unlock()
		if busy {
			break
		}
		if i > 1000 {
			t.Fatal("first caller never acquired the game")
		}
		time.Sleep(time.Millisecond)
	}

	notes, err := o.ProcessPhase(ctx, "k3j9")
	if err != nil || notes != nil {
		t.Errorf("second caller got (%v, %v), want (nil, nil)", notes, err)
	}

	close(engine.processGate)
	wg.Wait()

	if engine.calls() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls())
	}
}

func TestProcessPhaseEngineFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{processErr: errEngineDown}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	before := startedGame(t, store)

	if _, err := o.ProcessPhase(ctx, "k3j9"); err == nil {
		t.Fatal("want error from failed adjudication")
	}

	after := store.get("k3j9")
	if after.CurrentPhase != before.CurrentPhase {
		t.Errorf("phase changed to %s after failure", after.CurrentPhase)
	}
	if o.failures["k3j9"] != 1 {
		t.Errorf("failures = %d, want 1", o.failures["k3j9"])
	}
}

// A response the orchestrator cannot apply counts toward backoff the same
// way a failed engine call does.
func TestProcessPhaseBadEngineResponseCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{next: nextSnapshot("NOT-A-PHASE")}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	before := startedGame(t, store)

	if _, err := o.ProcessPhase(ctx, "k3j9"); err == nil {
		t.Fatal("want error from malformed phase token")
	}

	after := store.get("k3j9")
	if after.CurrentPhase != before.CurrentPhase {
		t.Errorf("phase changed to %s after rejected response", after.CurrentPhase)
	}
	if o.failures["k3j9"] != 1 {
		t.Errorf("failures = %d, want 1", o.failures["k3j9"])
	}
}

// After the failure threshold a game is only retried on the slow cadence.
func TestTickBackoff(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{processErr: errEngineDown}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	startedGame(t, store)

	// deadline has passed
	o.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	o.failures["k3j9"] = 3

	for i := 0; i < 10; i++ {
		o.Tick(ctx)
	}
	// only tick 10 attempts the backed-off game
	if engine.calls() != 1 {
		t.Errorf("engine calls = %d, want 1", engine.calls())
	}
	if o.failures["k3j9"] != 4 {
		t.Errorf("failures = %d, want 4", o.failures["k3j9"])
	}
}

// A failure in one game never blocks processing of the others.
func TestTickIsolation(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{next: nextSnapshot("F1901M"), failFor: `"turn":0`}
	o := newTestOrchestrator(store, newMockTimers(), engine)

	bad := startedGame(t, store)
	good := game.State{}
	{
		st := game.New("good", "chan-2", "carol", "Carol", testNow, 24*time.Hour, 12*time.Hour)
		st, _ = st.AddPlayer("dave", "Dave", testNow)
		opening := game.Position{
			Phase:       "S1901M",
			EngineState: json.RawMessage(`{"turn":9}`),
			Units:       toFactionSnapshot(openingSnapshot().Units),
			Centers:     toFactionSnapshot(openingSnapshot().Centers),
		}
		st, err := st.Start(opening, testNow, identityShuffle)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		store.put(st)
		good = st
	}

	o.now = func() time.Time { return testNow.Add(25 * time.Hour) }
	o.Tick(ctx)

	if st := store.get(good.ID); st.CurrentPhase != "F1901M" {
		t.Errorf("good game phase = %s, want F1901M", st.CurrentPhase)
	}
	if st := store.get(bad.ID); st.CurrentPhase != "S1901M" {
		t.Errorf("bad game phase = %s, want unchanged S1901M", st.CurrentPhase)
	}
}

func TestProcessPhaseSoloVictory(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	snap := nextSnapshot("F1910M")
	snap.Centers["AUSTRIA"] = []string{
		"BUD", "VIE", "TRI", "SER", "RUM", "BUL", "GRE", "CON", "ANK", "SMY",
		"SEV", "MOS", "WAR", "VEN", "ROM", "NAP", "MUN", "BER",
	}
	engine := &mockEngine{next: snap}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	startedGame(t, store)

	notes, err := o.ProcessPhase(ctx, "k3j9")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	after := store.get("k3j9")
	if after.Status != game.StatusFinished || after.Winner != game.Austria || after.EndReason != game.EndSoloVictory {
		t.Errorf("state = %s winner=%s reason=%s", after.Status, after.Winner, after.EndReason)
	}
	if after.PhaseDeadline != nil {
		t.Error("finished game still has a deadline")
	}
	if len(after.LastCenters[game.Austria]) != 18 {
		t.Errorf("final center snapshot = %d, want 18", len(after.LastCenters[game.Austria]))
	}
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "AUSTRIA wins") {
		t.Errorf("notes = %+v", notes)
	}
}

func TestProcessPhaseEngineReportsDone(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	snap := nextSnapshot("COMPLETED")
	snap.IsGameDone = true
	engine := &mockEngine{next: snap}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	startedGame(t, store)

	if _, err := o.ProcessPhase(ctx, "k3j9"); err != nil {
		t.Fatalf("process: %v", err)
	}
	after := store.get("k3j9")
	if after.Status != game.StatusFinished || after.EndReason != game.EndDraw {
		t.Errorf("state = %s reason=%s, want finished draw", after.Status, after.EndReason)
	}
}

func TestProcessPhaseSkipsInactive(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	store.put(game.New("k3j9", "chan-1", "alice", "Alice", testNow, time.Hour, time.Hour))

	notes, err := o.ProcessPhase(ctx, "k3j9")
	if err != nil || notes != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", notes, err)
	}
	if engine.calls() != 0 {
		t.Errorf("engine called for a lobby game")
	}
}

func TestDedupCacheEviction(t *testing.T) {
	c := newDedupCache(3)
	for _, id := range []string{"a", "b", "c"} {
		if c.markSeen(id) {
			t.Errorf("%s already seen in empty cache", id)
		}
	}
	if !c.markSeen("b") {
		t.Error("b should be a duplicate")
	}
	// d evicts a, the oldest
	if c.markSeen("d") {
		t.Error("d should be new")
	}
	if c.markSeen("a") {
		t.Error("a should have been evicted")
	}
	if !c.markSeen("c") {
		t.Error("c should still be present")
	}
}

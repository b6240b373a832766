package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/freeeve/envoy/internal/adjudicator"
	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/game"
)

func dmMsg(author, text string) chat.Message {
	return chat.Message{
		ID:        "dm-" + text,
		Author:    author,
		Name:      author,
		ChannelID: "dm-chan-" + author,
		Text:      text,
		IsDM:      true,
		CreatedAt: testNow,
	}
}

func TestSubmitOrdersPerLineFeedback(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 A BUD - SER; gibberish line; F TRI H"))
	if len(notes) != 1 {
		t.Fatalf("notes = %+v", notes)
	}
	text := notes[0].Text
	for _, want := range []string{"✓ A BUD - SER", "✓ F TRI H", "✗ GIBBERISH LINE"} {
		if !strings.Contains(text, want) {
			t.Errorf("feedback missing %q:\n%s", want, text)
		}
	}

	st := store.get("k3j9")
	set := st.CurrentOrders[game.Austria]
	if len(set.Lines) != 2 {
		t.Fatalf("stored lines = %v", set.Lines)
	}
}

func TestSubmitOrdersMergeByUnit(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 A BUD - SER\nA VIE - BUD\nF TRI - ALB"))
	o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 F TRI H"))

	lines := store.get("k3j9").CurrentOrders[game.Austria].Lines
	want := map[string]bool{"A BUD - SER": true, "A VIE - BUD": true, "F TRI H": true}
	if len(lines) != 3 {
		t.Fatalf("lines = %v", lines)
	}
	for _, l := range lines {
		if !want[l] {
			t.Errorf("unexpected line %q", l)
		}
	}
}

func TestSubmitOrdersAmbiguousCoast(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 F MAO - SPA"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "which coast") {
		t.Errorf("reply = %+v", notes)
	}
	if len(store.get("k3j9").CurrentOrders) != 0 {
		t.Error("ambiguous order was stored")
	}
}

// The last submission completing the full order set pulls the deadline in
// to the grace period.
func TestGracePeriodOnFullSet(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	timers := newMockTimers()
	o := newTestOrchestrator(store, timers, &mockEngine{})
	startedGame(t, store)

	o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 A BUD H; A VIE H; F TRI H"))
	if st := store.get("k3j9"); !st.PhaseDeadline.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("deadline moved before all orders in: %v", st.PhaseDeadline)
	}

	notes := o.HandlePrivate(ctx, dmMsg("bob", "#k3j9 F EDI H; F LON H; A LVP H"))
	st := store.get("k3j9")
	wantDeadline := testNow.Add(20 * time.Minute)
	if !st.PhaseDeadline.Equal(wantDeadline) {
		t.Errorf("deadline = %v, want %v", st.PhaseDeadline, wantDeadline)
	}
	if d, ok := timers.deadline("k3j9"); !ok || !d.Equal(wantDeadline) {
		t.Errorf("timer = %v %v", d, ok)
	}
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "All powers are in") {
		t.Errorf("reply = %+v", notes)
	}
}

// The grace period only ever shortens a deadline.
func TestGracePeriodNeverExtends(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	st := startedGame(t, store)

	// deadline already inside the grace window
	near := testNow.Add(5 * time.Minute)
	st = st.ShortenDeadline(near)
	store.put(st)

	o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 A BUD H; A VIE H; F TRI H"))
	o.HandlePrivate(ctx, dmMsg("bob", "#k3j9 F EDI H; F LON H; A LVP H"))

	if got := store.get("k3j9").PhaseDeadline; !got.Equal(near) {
		t.Errorf("deadline = %v, want unchanged %v", got, near)
	}
}

func TestSubmitOrdersOutsider(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("mallory", "#k3j9 A PAR H"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "not in that game") {
		t.Errorf("reply = %+v", notes)
	}
}

func TestShowOrders(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 orders"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "No orders on file") {
		t.Errorf("reply = %+v", notes)
	}

	o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 A BUD - SER"))
	notes = o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 orders"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "A BUD - SER") {
		t.Errorf("reply = %+v", notes)
	}
}

func TestShowPossible(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	engine := &mockEngine{possible: &adjudicator.PossibleOrders{
		Phase: "S1901M",
		ByFaction: map[string]map[string][]string{
			"AUSTRIA": {
				"BUD": {"A BUD H", "A BUD - SER", "A BUD - RUM"},
				"TRI": {"F TRI H", "F TRI - ALB"},
			},
		},
	}}
	o := newTestOrchestrator(store, newMockTimers(), engine)
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "#k3j9 possible"))
	if len(notes) != 1 {
		t.Fatalf("notes = %+v", notes)
	}
	text := notes[0].Text
	if !strings.Contains(text, "BUD: A BUD H | A BUD - SER | A BUD - RUM") {
		t.Errorf("possible output:\n%s", text)
	}
}

func TestGameMenu(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "#k3j9"))
	if len(notes) != 1 {
		t.Fatalf("notes = %+v", notes)
	}
	text := notes[0].Text
	for _, want := range []string{"S1901M", "You are AUSTRIA", "No orders on file"} {
		if !strings.Contains(text, want) {
			t.Errorf("menu missing %q:\n%s", want, text)
		}
	}
}

func TestMyGames(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	o := newTestOrchestrator(store, newMockTimers(), &mockEngine{})
	startedGame(t, store)

	notes := o.HandlePrivate(ctx, dmMsg("alice", "my games"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "#k3j9: S1901M as AUSTRIA") {
		t.Errorf("reply = %+v", notes)
	}

	notes = o.HandlePrivate(ctx, dmMsg("mallory", "my games"))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "not in any games") {
		t.Errorf("reply = %+v", notes)
	}
}

func TestPrivateUnknownGetsHint(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(newMockStore(), newMockTimers(), &mockEngine{})
	notes := o.HandlePrivate(ctx, dmMsg("alice", ""))
	if len(notes) != 1 || !strings.Contains(notes[0].Text, "help") {
		t.Errorf("reply = %+v", notes)
	}
}

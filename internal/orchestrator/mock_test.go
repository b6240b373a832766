package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/freeeve/envoy/internal/adjudicator"
	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/game"
)

var errEngineDown = errors.New("engine unreachable")

type mockStore struct {
	mu      sync.Mutex
	games   map[string]game.State
	saveErr error
	loadErr error
}

func newMockStore() *mockStore {
	return &mockStore{games: make(map[string]game.State)}
}

func (m *mockStore) Save(_ context.Context, st game.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.games[st.ID] = st
	return nil
}

func (m *mockStore) Load(_ context.Context, gameID string) (*game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	st, ok := m.games[gameID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *mockStore) LoadActive(_ context.Context) ([]game.State, error) {
	return m.loadByStatus(game.StatusActive)
}

func (m *mockStore) LoadLobby(_ context.Context) ([]game.State, error) {
	return m.loadByStatus(game.StatusLobby)
}

func (m *mockStore) loadByStatus(status game.Status) ([]game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []game.State
	for _, st := range m.games {
		if st.Status == status {
			out = append(out, st)
		}
	}
	return out, nil
}

func (m *mockStore) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, gameID)
	return nil
}

func (m *mockStore) get(gameID string) game.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[gameID]
}

func (m *mockStore) put(st game.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[st.ID] = st
}

// mockEngine records calls and serves canned snapshots. processGate, when
// set, blocks Process until the gate channel is closed.
type mockEngine struct {
	mu           sync.Mutex
	processCalls int
	lastOrders   map[string][]string
	processErr   error
	failFor      string // engine state substring that forces an error
	next         *adjudicator.Snapshot
	opening      *adjudicator.Snapshot
	possible     *adjudicator.PossibleOrders
	processGate  chan struct{}
}

func (m *mockEngine) NewGame(_ context.Context) (*adjudicator.Snapshot, error) {
	if m.opening == nil {
		if m.processErr != nil {
			return nil, m.processErr
		}
		return nil, errEngineDown
	}
	return m.opening, nil
}

func (m *mockEngine) Process(_ context.Context, engineState json.RawMessage, orders map[string][]string, _ bool) (*adjudicator.Snapshot, error) {
	m.mu.Lock()
	gate := m.processGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.processCalls++
	m.lastOrders = orders
	if m.processErr != nil {
		return nil, m.processErr
	}
	if m.failFor != "" && strings.Contains(string(engineState), m.failFor) {
		return nil, errEngineDown
	}
	return m.next, nil
}

func (m *mockEngine) PossibleOrders(_ context.Context, _ json.RawMessage) (*adjudicator.PossibleOrders, error) {
	if m.possible == nil {
		return nil, errEngineDown
	}
	return m.possible, nil
}

func (m *mockEngine) RenderMap(_ context.Context, _ json.RawMessage) (*adjudicator.RenderedMap, error) {
	return &adjudicator.RenderedMap{SVG: "<svg/>"}, nil
}

func (m *mockEngine) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processCalls
}

func (m *mockEngine) orders() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOrders
}

type mockTimers struct {
	mu      sync.Mutex
	set     map[string]time.Time
	cleared []string
}

func newMockTimers() *mockTimers {
	return &mockTimers{set: make(map[string]time.Time)}
}

func (m *mockTimers) SetTimer(_ context.Context, gameID string, deadline time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[gameID] = deadline
	return nil
}

func (m *mockTimers) ClearTimer(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, gameID)
	m.cleared = append(m.cleared, gameID)
	return nil
}

func (m *mockTimers) deadline(gameID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.set[gameID]
	return d, ok
}

type mockCursors struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMockCursors() *mockCursors {
	return &mockCursors{vals: make(map[string]string)}
}

func (m *mockCursors) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[key], nil
}

func (m *mockCursors) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

// recordingMessenger captures outbound messages for assertions.
type recordingMessenger struct {
	mu      sync.Mutex
	replies []chat.Message
	dms     []chat.Message
}

func (m *recordingMessenger) Reply(_ context.Context, channelID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, chat.Message{ChannelID: channelID, Text: text})
	return nil
}

func (m *recordingMessenger) DM(_ context.Context, identity, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dms = append(m.dms, chat.Message{Author: identity, Text: text})
	return nil
}

// scriptedFeed serves fixed pages of messages, then nothing.
type scriptedFeed struct {
	mu    sync.Mutex
	pages [][]chat.Message
}

func (f *scriptedFeed) Poll(_ context.Context, cursor string) ([]chat.Message, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return nil, cursor, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	if len(page) == 0 {
		return nil, cursor, nil
	}
	return page, page[len(page)-1].ID, nil
}

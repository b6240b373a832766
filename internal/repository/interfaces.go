package repository

import (
	"context"
	"time"

	"github.com/freeeve/envoy/internal/game"
)

// GameStore persists game states, one row per game. Save is a single
// upsert: it either fully succeeds or leaves the prior row intact, so a
// crash mid-operation never exposes a partial state.
type GameStore interface {
	Save(ctx context.Context, state game.State) error
	Load(ctx context.Context, gameID string) (*game.State, error)
	LoadActive(ctx context.Context) ([]game.State, error)
	LoadLobby(ctx context.Context) ([]game.State, error)
	Delete(ctx context.Context, gameID string) error
}

// CursorStore holds small orchestrator markers that must survive restarts,
// such as the last-seen inbound message cursor. Get returns "" for a
// missing key.
type CursorStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// TimerStore schedules fast-path deadline triggers. The game state's own
// deadline remains the source of truth; timers only wake the driver early.
type TimerStore interface {
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
}

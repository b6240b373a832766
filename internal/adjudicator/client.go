// Package adjudicator is the client for the external move-resolution
// engine. The engine is stateless: every call carries the full serialized
// game state and returns a fresh one, so retries are always safe. The
// engine state itself is opaque and never inspected here.
package adjudicator

import (
	"context"
	"encoding/json"
)

// Snapshot is a board position as reported by the engine. Units are wire
// strings like "A PAR"; centers are province codes. Faction keys use the
// engine's power names.
type Snapshot struct {
	EngineState json.RawMessage     `json:"game_state"`
	Phase       string              `json:"phase"`
	Units       map[string][]string `json:"units"`
	Centers     map[string][]string `json:"centers"`
	IsGameDone  bool                `json:"is_game_done"`
	SVG         string              `json:"svg,omitempty"`
}

// PossibleOrders lists every legal order per faction per orderable
// province for the current phase.
type PossibleOrders struct {
	Phase     string                         `json:"phase"`
	ByFaction map[string]map[string][]string `json:"possible_orders"`
}

// RenderedMap is an SVG render of a position.
type RenderedMap struct {
	Phase string `json:"phase"`
	SVG   string `json:"svg"`
}

// Client resolves phases through the external adjudication engine.
// Factions absent from the orders map hold all their units (civil
// disorder); the engine applies that default itself.
type Client interface {
	NewGame(ctx context.Context) (*Snapshot, error)
	Process(ctx context.Context, engineState json.RawMessage, orders map[string][]string, render bool) (*Snapshot, error)
	PossibleOrders(ctx context.Context, engineState json.RawMessage) (*PossibleOrders, error)
	RenderMap(ctx context.Context, engineState json.RawMessage) (*RenderedMap, error)
}

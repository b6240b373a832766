package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/envoy/internal/game"
)

// GameStore persists game states in the games table, the full state as one
// JSONB column. The upsert is atomic: a failed save retains the prior row.
type GameStore struct {
	db *sql.DB
}

// NewGameStore creates a GameStore.
func NewGameStore(db *sql.DB) *GameStore {
	return &GameStore{db: db}
}

// Save upserts a game row.
func (s *GameStore) Save(ctx context.Context, state game.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal game state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (id, status, state, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (id) DO UPDATE SET status = $2, state = $3, updated_at = now()`,
		state.ID, string(state.Status), data)
	if err != nil {
		return fmt.Errorf("save game %s: %w", state.ID, err)
	}
	return nil
}

// Load returns a game by id, or nil if absent.
func (s *GameStore) Load(ctx context.Context, gameID string) (*game.State, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM games WHERE id = $1`, gameID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	var state game.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal game %s: %w", gameID, err)
	}
	return &state, nil
}

// LoadActive returns all active games.
func (s *GameStore) LoadActive(ctx context.Context) ([]game.State, error) {
	return s.loadByStatus(ctx, game.StatusActive)
}

// LoadLobby returns all games still in the lobby.
func (s *GameStore) LoadLobby(ctx context.Context) ([]game.State, error) {
	return s.loadByStatus(ctx, game.StatusLobby)
}

func (s *GameStore) loadByStatus(ctx context.Context, status game.Status) ([]game.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state FROM games WHERE status = $1 ORDER BY updated_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("load %s games: %w", status, err)
	}
	defer rows.Close()

	var states []game.State
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan game row: %w", err)
		}
		var state game.State
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("unmarshal game row: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// Delete removes a game row.
func (s *GameStore) Delete(ctx context.Context, gameID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game %s: %w", gameID, err)
	}
	return nil
}

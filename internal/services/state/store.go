package state

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/auditmysite/internal/interfaces"
)

// ErrNotFound is returned by Load for an unknown run ID
var ErrNotFound = errors.New("run state not found")

// Store persists run state in a Badger database so interrupted runs can be
// resumed by a later process
type Store struct {
	db     *badgerhold.Store
	logger arbor.ILogger
}

// NewStore opens (or creates) the state database at path
func NewStore(path string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Save upserts a run state snapshot
func (s *Store) Save(state *interfaces.RunState) error {
	if state.ID == "" {
		return errors.New("run state requires an ID")
	}

	if err := s.db.Upsert(state.ID, state); err != nil {
		return fmt.Errorf("save run state %s: %w", state.ID, err)
	}

	s.logger.Debug().
		Str("run_id", state.ID).
		Int("pending", len(state.PendingURLs)).
		Int("completed", len(state.CompletedURLs)).
		Msg("Run state saved")
	return nil
}

// Load retrieves a saved run state by ID
func (s *Store) Load(id string) (*interfaces.RunState, error) {
	var state interfaces.RunState
	if err := s.db.Get(id, &state); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) || errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load run state %s: %w", id, err)
	}
	return &state, nil
}

// List returns all saved run states, newest first
func (s *Store) List() ([]*interfaces.RunState, error) {
	var states []*interfaces.RunState
	if err := s.db.Find(&states, (&badgerhold.Query{}).SortBy("CreatedAt").Reverse()); err != nil {
		return nil, fmt.Errorf("list run states: %w", err)
	}
	return states, nil
}

// Delete removes a saved run state. Deleting an unknown ID is not an error.
func (s *Store) Delete(id string) error {
	err := s.db.Delete(id, &interfaces.RunState{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete run state %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

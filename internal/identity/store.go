// Package identity persists the registered device identity across agent
// restarts.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
)

const stateFile = "identity.json"

// Identity is the persisted device identity record. It is created by the
// registration flow, mutated only by (re)registration or login, and read
// by the broker at startup.
type Identity struct {
	Registered bool   `json:"registered"`
	DeviceID   string `json:"deviceId"`
	Username   string `json:"username"`
}

// Store is a file-backed identity store. Writes are whole-record
// replacements; a load never observes a partially written identity.
type Store struct {
	path string
	mu   sync.Mutex
	log  *logging.Logger
}

// NewStore creates a store rooted at the given state directory.
func NewStore(dir string, log *logging.Logger) *Store {
	if log == nil {
		log = logging.NewNop()
	}
	return &Store{
		path: filepath.Join(dir, stateFile),
		log:  log,
	}
}

// Load reads the persisted identity. A missing state file yields the zero
// (unregistered) identity without error.
func (s *Store) Load(ctx context.Context) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, nil
		}
		return Identity{}, fmt.Errorf("failed to read identity state: %w", err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("failed to decode identity state: %w", err)
	}
	return id, nil
}

// Save persists the identity transactionally: the record is written to a
// temporary file and renamed into place, so a crash mid-write cannot leave
// registered=true with a missing device ID.
func (s *Store) Save(ctx context.Context, id Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id.Registered && id.DeviceID == "" {
		return fmt.Errorf("refusing to persist registered identity without a device ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to encode identity state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit identity state: %w", err)
	}

	s.log.Info("identity state saved")
	return nil
}

// Package state persists executor progress between live runs. The on-disk
// document is versioned; older documents are migrated in memory on load
// and rewritten at the current version on the next save.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fearproto/fearproto/internal/domain"
)

// CurrentVersion is the schema written by Save.
const CurrentVersion = 3

// ExecutorState is everything a live run needs to resume: the lot book,
// cash, and the strategy's own snapshot.
type ExecutorState struct {
	Version      int               `json:"version"`
	StrategyName string            `json:"strategy_name"`
	Strategy     json.RawMessage   `json:"strategy_state,omitempty"`
	Lots         []domain.Position `json:"lots"`
	Cash         decimal.Decimal   `json:"cash"`
	RealizedPnL  decimal.Decimal   `json:"realized_pnl"`
	FeesPaid     decimal.Decimal   `json:"fees_paid"`
	LastRun      time.Time         `json:"last_run"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Manager loads and saves executor state at a fixed path.
type Manager struct {
	path string
	log  zerolog.Logger
}

// NewManager does not touch the file until Load or Save.
func NewManager(path string, log zerolog.Logger) *Manager {
	return &Manager{path: path, log: log.With().Str("component", "state").Logger()}
}

// Load reads the state file, migrating older versions forward. A missing
// file returns (nil, nil): first run.
func (m *Manager) Load() (*ExecutorState, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", m.path, err)
	}

	var versioned struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &versioned); err != nil {
		return nil, &domain.InvalidStateError{Op: "load state", Reason: fmt.Sprintf("unparseable state file: %v", err)}
	}
	if versioned.Version > CurrentVersion {
		return nil, &domain.InvalidStateError{
			Op:     "load state",
			Reason: fmt.Sprintf("state version %d is newer than supported %d", versioned.Version, CurrentVersion),
		}
	}

	raw := data
	for v := versioned.Version; v < CurrentVersion; v++ {
		migrate, ok := migrations[v]
		if !ok {
			return nil, &domain.InvalidStateError{
				Op:     "migrate state",
				Reason: fmt.Sprintf("no migration path from version %d", v),
			}
		}
		migrated, err := migrate(raw)
		if err != nil {
			return nil, &domain.InvalidStateError{Op: "migrate state", Reason: fmt.Sprintf("v%d -> v%d: %v", v, v+1, err)}
		}
		m.log.Info().Int("from", v).Int("to", v+1).Msg("migrated state schema")
		raw = migrated
	}

	var st ExecutorState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, &domain.InvalidStateError{Op: "load state", Reason: err.Error()}
	}
	st.Version = CurrentVersion
	return &st, nil
}

// Save writes the state atomically via a temp file rename.
func (m *Manager) Save(st *ExecutorState) error {
	st.Version = CurrentVersion
	st.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

// migrations[v] rewrites a version-v document to version v+1. Each step
// operates on the raw JSON so old shapes never need live Go types.
var migrations = map[int]func([]byte) ([]byte, error){
	1: migrateV1toV2,
	2: migrateV2toV3,
}

// v1 stored lots under "positions" and had no strategy snapshot.
func migrateV1toV2(raw []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if lots, ok := doc["positions"]; ok {
		doc["lots"] = lots
		delete(doc, "positions")
	}
	doc["version"] = json.RawMessage("2")
	return json.Marshal(doc)
}

// v2 tracked realized pnl and fees only inside the lot book; v3 carries
// them as running totals so a resume does not have to replay closed lots.
func migrateV2toV3(raw []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if _, ok := doc["realized_pnl"]; !ok {
		realized := decimal.Zero
		var lots []domain.Position
		if rawLots, ok := doc["lots"]; ok {
			if err := json.Unmarshal(rawLots, &lots); err != nil {
				return nil, fmt.Errorf("lots: %w", err)
			}
		}
		for _, lot := range lots {
			if lot.Status == domain.PositionClosed && lot.ExitPrice != nil {
				realized = realized.Add(lot.ExitPrice.Mul(lot.Size).Sub(lot.QuoteCost))
			}
		}
		val, err := json.Marshal(realized)
		if err != nil {
			return nil, err
		}
		doc["realized_pnl"] = val
	}
	if _, ok := doc["fees_paid"]; !ok {
		doc["fees_paid"] = json.RawMessage(`"0"`)
	}
	doc["version"] = json.RawMessage("3")
	return json.Marshal(doc)
}

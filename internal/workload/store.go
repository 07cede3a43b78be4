package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"querybell/internal/storage"
)

const (
	optWorkloads = "workloads"
	optLastRun   = "last_run"
)

// Store persists the id->Workload map under a single option key, mirroring
// how the management surface reads it back: always the whole map.
//
// Writes are whole-map read-modify-write; concurrent edits from two admin
// sessions can race (accepted limitation).
type Store struct {
	kv *storage.Store
}

func NewStore(kv *storage.Store) *Store {
	return &Store{kv: kv}
}

// All returns every workload definition keyed by id.
func (s *Store) All(ctx context.Context) (map[string]Workload, error) {
	raw, ok, err := s.kv.GetOption(ctx, optWorkloads)
	if err != nil {
		return nil, fmt.Errorf("load workloads: %w", err)
	}
	if !ok {
		return map[string]Workload{}, nil
	}
	var m map[string]Workload
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode workloads: %w", err)
	}
	if m == nil {
		m = map[string]Workload{}
	}
	return m, nil
}

// IDs returns all workload ids in stable order.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	m, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) Get(ctx context.Context, id string) (Workload, error) {
	m, err := s.All(ctx)
	if err != nil {
		return Workload{}, err
	}
	w, ok := m[id]
	if !ok {
		return Workload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, nil
}

// Create assigns a fresh id, persists the definition, and returns it.
func (s *Store) Create(ctx context.Context, w Workload) (Workload, error) {
	if err := w.Validate(); err != nil {
		return Workload{}, err
	}
	w.ID = uuid.NewString()
	m, err := s.All(ctx)
	if err != nil {
		return Workload{}, err
	}
	m[w.ID] = w
	if err := s.kv.SetOption(ctx, optWorkloads, m); err != nil {
		return Workload{}, fmt.Errorf("save workloads: %w", err)
	}
	return w, nil
}

// Update replaces an existing definition. The id must already exist.
func (s *Store) Update(ctx context.Context, w Workload) error {
	if w.ID == "" {
		return fmt.Errorf("%w: empty id", ErrNotFound)
	}
	if err := w.Validate(); err != nil {
		return err
	}
	m, err := s.All(ctx)
	if err != nil {
		return err
	}
	if _, ok := m[w.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, w.ID)
	}
	m[w.ID] = w
	if err := s.kv.SetOption(ctx, optWorkloads, m); err != nil {
		return fmt.Errorf("save workloads: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	m, err := s.All(ctx)
	if err != nil {
		return err
	}
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m, id)
	if err := s.kv.SetOption(ctx, optWorkloads, m); err != nil {
		return fmt.Errorf("save workloads: %w", err)
	}
	return nil
}

// SetPaused flips the paused flag, leaving the rest of the definition
// (including the trigger time) untouched so resume restores the old schedule.
func (s *Store) SetPaused(ctx context.Context, id string, paused bool) (Workload, error) {
	m, err := s.All(ctx)
	if err != nil {
		return Workload{}, err
	}
	w, ok := m[id]
	if !ok {
		return Workload{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	w.Paused = paused
	m[id] = w
	if err := s.kv.SetOption(ctx, optWorkloads, m); err != nil {
		return Workload{}, fmt.Errorf("save workloads: %w", err)
	}
	return w, nil
}

// SaveLastRun overwrites the single system-wide last-run slot.
func (s *Store) SaveLastRun(ctx context.Context, r *Report) error {
	if r == nil {
		return nil
	}
	return s.kv.SetOption(ctx, optLastRun, r)
}

func (s *Store) LastRun(ctx context.Context) (*Report, bool, error) {
	raw, ok, err := s.kv.GetOption(ctx, optLastRun)
	if err != nil || !ok {
		return nil, false, err
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode last run: %w", err)
	}
	return &r, true, nil
}

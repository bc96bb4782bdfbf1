// Package ledger keeps the locally persisted list of completed videos that
// backs the gallery.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"vidgen/internal/localstore"
	"vidgen/internal/model"
)

// Key is the store key the whole list is serialized under.
const Key = "generatedVideos"

type Ledger struct {
	mu    sync.Mutex
	store localstore.Store
	now   func() time.Time
}

func New(store localstore.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Upsert replaces status and progress of an existing entry in place, or
// inserts entry at the head of the list. It returns the stored entry.
func (l *Ledger) Upsert(entry model.LedgerEntry) (model.LedgerEntry, error) {
	if strings.TrimSpace(string(entry.ID)) == "" {
		return model.LedgerEntry{}, fmt.Errorf("ledger entry id is required")
	}

	var stored model.LedgerEntry
	err := l.mutate(func(entries []model.LedgerEntry) ([]model.LedgerEntry, bool) {
		for i := range entries {
			if entries[i].ID == entry.ID {
				entries[i].Status = entry.Status
				entries[i].Progress = entry.Progress
				stored = entries[i]
				return entries, true
			}
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = l.now()
		}
		stored = entry
		return append([]model.LedgerEntry{entry}, entries...), true
	})
	if err != nil {
		return model.LedgerEntry{}, err
	}
	return stored, nil
}

// Remove deletes the entry with id. Unknown ids are a no-op.
func (l *Ledger) Remove(id model.JobID) (bool, error) {
	removed := false
	err := l.mutate(func(entries []model.LedgerEntry) ([]model.LedgerEntry, bool) {
		for i := range entries {
			if entries[i].ID == id {
				removed = true
				return append(entries[:i], entries[i+1:]...), true
			}
		}
		return entries, false
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// List returns entries most recently inserted first.
func (l *Ledger) List() ([]model.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *Ledger) Get(id model.JobID) (model.LedgerEntry, bool, error) {
	entries, err := l.List()
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return model.LedgerEntry{}, false, nil
}

// mutate runs one read-modify-write cycle as a critical section, holding
// the store lock as well when the store is shared between processes.
func (l *Ledger) mutate(fn func([]model.LedgerEntry) ([]model.LedgerEntry, bool)) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if locker, ok := l.store.(localstore.Locker); ok {
		release, lockErr := locker.Lock()
		if lockErr != nil {
			return lockErr
		}
		defer func() {
			if relErr := release(); relErr != nil && err == nil {
				err = relErr
			}
		}()
	}

	entries, err := l.load()
	if err != nil {
		return err
	}
	next, changed := fn(entries)
	if !changed {
		return nil
	}
	return l.save(next)
}

func (l *Ledger) load() ([]model.LedgerEntry, error) {
	data, ok, err := l.store.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if !ok || len(strings.TrimSpace(string(data))) == 0 {
		return []model.LedgerEntry{}, nil
	}
	var entries []model.LedgerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", Key, err)
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}

func (l *Ledger) save(entries []model.LedgerEntry) error {
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	data = append(data, '\n')
	if err := l.store.Set(Key, data); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

package ledger

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"vidgen/internal/localstore"
	"vidgen/internal/model"
)

func TestUpsertSameIDKeepsOneEntryWithLatestProgress(t *testing.T) {
	l := New(localstore.NewMemory())

	if _, err := l.Upsert(model.LedgerEntry{ID: "vid_1", URL: "u1", Status: "processing", Progress: 40}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := l.Upsert(model.LedgerEntry{ID: "vid_1", URL: "ignored", Status: "completed", Progress: 100}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	entries, err := l.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].Progress != 100 || entries[0].Status != "completed" {
		t.Fatalf("entry not updated: %+v", entries[0])
	}
	if entries[0].URL != "u1" {
		t.Fatalf("url should be preserved on update, got %q", entries[0].URL)
	}
}

func TestUpsertPrependsNewAndKeepsPositionOnUpdate(t *testing.T) {
	l := New(localstore.NewMemory())
	for _, id := range []model.JobID{"a", "b", "c"} {
		if _, err := l.Upsert(model.LedgerEntry{ID: id, Status: "completed", Progress: 100}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	if _, err := l.Upsert(model.LedgerEntry{ID: "a", Status: "completed", Progress: 99}); err != nil {
		t.Fatalf("update a: %v", err)
	}

	entries, err := l.List()
	if err != nil {
		t.Fatal(err)
	}
	got := []model.JobID{entries[0].ID, entries[1].ID, entries[2].ID}
	want := []model.JobID{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v want %v", got, want)
		}
	}
}

func TestRemoveUnknownIDIsNoop(t *testing.T) {
	store := localstore.NewMemory()
	l := New(store)
	if _, err := l.Upsert(model.LedgerEntry{ID: "vid_1", Status: "completed", Progress: 100}); err != nil {
		t.Fatal(err)
	}
	before, _, _ := store.Get(Key)

	removed, err := l.Remove("missing")
	if err != nil {
		t.Fatalf("remove missing id failed: %v", err)
	}
	if removed {
		t.Fatal("expected removed=false for unknown id")
	}
	after, _, _ := store.Get(Key)
	if string(before) != string(after) {
		t.Fatal("ledger changed on no-op remove")
	}

	removed, err = l.Remove("vid_1")
	if err != nil || !removed {
		t.Fatalf("remove existing: removed=%v err=%v", removed, err)
	}
	entries, _ := l.List()
	if len(entries) != 0 {
		t.Fatalf("expected empty ledger, got %d", len(entries))
	}
}

func TestLedgerIsDurableAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	store, err := localstore.NewFile(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := New(store).Upsert(model.LedgerEntry{ID: "vid_1", CreatedAt: created, Status: "completed", Progress: 100}); err != nil {
		t.Fatal(err)
	}

	reopened, err := localstore.NewFile(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	entry, ok, err := New(reopened).Get("vid_1")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if !entry.CreatedAt.Equal(created) {
		t.Fatalf("createdAt mismatch: got %s want %s", entry.CreatedAt, created)
	}
}

func TestConcurrentMutationsThroughTwoInstancesKeepEveryEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	var ledgers []*Ledger
	for range 2 {
		store, err := localstore.NewFile(dir)
		if err != nil {
			t.Fatal(err)
		}
		ledgers = append(ledgers, New(store))
	}
	for _, id := range []model.JobID{"old_0", "old_1"} {
		if _, err := ledgers[0].Upsert(model.LedgerEntry{ID: id, Status: "completed", Progress: 100}); err != nil {
			t.Fatal(err)
		}
	}

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n+2)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := model.JobID(fmt.Sprintf("vid_%d", i))
			if _, err := ledgers[i%2].Upsert(model.LedgerEntry{ID: id, Status: "completed", Progress: 100}); err != nil {
				errs <- fmt.Errorf("upsert %s: %w", id, err)
			}
		}()
	}
	for i, id := range []model.JobID{"old_0", "old_1"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledgers[i%2].Remove(id); err != nil {
				errs <- fmt.Errorf("remove %s: %w", id, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	entries, err := ledgers[1].List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("entries got %d want %d", len(entries), n)
	}
	seen := make(map[model.JobID]int)
	for _, e := range entries {
		seen[e.ID]++
	}
	for i := range n {
		id := model.JobID(fmt.Sprintf("vid_%d", i))
		if seen[id] != 1 {
			t.Fatalf("%s stored %d times want 1", id, seen[id])
		}
	}
}

func TestConcurrentUpsertsThroughOneInstance(t *testing.T) {
	l := New(localstore.NewMemory())
	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := model.JobID(fmt.Sprintf("vid_%d", i%10))
			if _, err := l.Upsert(model.LedgerEntry{ID: id, Status: "completed", Progress: 100}); err != nil {
				t.Errorf("upsert %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	entries, err := l.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 10 {
		t.Fatalf("entries got %d want 10 distinct ids", len(entries))
	}
}

func TestCorruptLedgerIsAnError(t *testing.T) {
	store := localstore.NewMemory()
	if err := store.Set(Key, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := New(store).List(); err == nil {
		t.Fatal("expected corrupt ledger to fail")
	}
}

func TestRecorderBuildsEntryFromSnapshot(t *testing.T) {
	l := New(localstore.NewMemory())
	rec := Recorder{Ledger: l, Locate: func(id model.JobID) string { return "http://api/" + string(id) }}

	entry, err := rec.RecordCompletion("vid_42", model.Snapshot{Status: "completed", Progress: 100})
	if err != nil {
		t.Fatalf("record completion: %v", err)
	}
	if entry.URL != "http://api/vid_42" || entry.Progress != 100 || entry.CreatedAt.IsZero() {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

package cli

import (
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"vidgen/internal/media"
	"vidgen/internal/model"
	"vidgen/internal/tracker"
)

func newTestFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

type fakeGalleryLedger struct {
	entries []model.LedgerEntry
	removed []model.JobID
}

func (f *fakeGalleryLedger) List() ([]model.LedgerEntry, error) {
	return append([]model.LedgerEntry(nil), f.entries...), nil
}

func (f *fakeGalleryLedger) Remove(id model.JobID) (bool, error) {
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			f.removed = append(f.removed, id)
			return true, nil
		}
	}
	return false, nil
}

type fakeGalleryMedia struct {
	saved  []model.JobID
	opened []model.JobID
	result media.Result
	err    error
}

func (f *fakeGalleryMedia) Save(_ context.Context, id model.JobID) (media.Result, error) {
	f.saved = append(f.saved, id)
	return f.result, f.err
}

func (f *fakeGalleryMedia) Open(_ context.Context, id model.JobID) error {
	f.opened = append(f.opened, id)
	return nil
}

func loadedGallery(t *testing.T, l *fakeGalleryLedger, m *fakeGalleryMedia) galleryModel {
	t.Helper()
	g := newGalleryModel(l, m)
	msg := g.Init()()
	next, _ := g.Update(msg)
	return next.(galleryModel)
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestGalleryLoadsAndMovesCursor(t *testing.T) {
	l := &fakeGalleryLedger{entries: []model.LedgerEntry{{ID: "vid_2"}, {ID: "vid_1"}}}
	g := loadedGallery(t, l, &fakeGalleryMedia{})
	if len(g.entries) != 2 {
		t.Fatalf("entries got %d want 2", len(g.entries))
	}

	next, _ := g.updateBrowse(tea.KeyMsg{Type: tea.KeyDown})
	g = next.(galleryModel)
	next, _ = g.updateBrowse(tea.KeyMsg{Type: tea.KeyDown})
	g = next.(galleryModel)
	if g.cursor != 1 {
		t.Fatalf("cursor got %d want 1", g.cursor)
	}
	if !strings.Contains(g.View(), "vid_1") {
		t.Fatal("view should list the selected entry")
	}
}

func TestGalleryDeleteRequiresConfirmation(t *testing.T) {
	l := &fakeGalleryLedger{entries: []model.LedgerEntry{{ID: "vid_1"}}}
	g := loadedGallery(t, l, &fakeGalleryMedia{})

	next, _ := g.updateBrowse(key('d'))
	g = next.(galleryModel)
	if g.mode != galleryModeDeleteConfirm || g.confirmDeleteID != "vid_1" {
		t.Fatalf("expected delete confirm for vid_1, got mode=%d id=%q", g.mode, g.confirmDeleteID)
	}

	next, _ = g.Update(key('n'))
	g = next.(galleryModel)
	if g.mode != galleryModeBrowse || len(l.removed) != 0 {
		t.Fatal("n should cancel without removing")
	}

	next, _ = g.updateBrowse(key('d'))
	g = next.(galleryModel)
	next, cmd := g.Update(key('y'))
	g = next.(galleryModel)
	if cmd == nil {
		t.Fatal("expected remove command")
	}
	next, reload := g.Update(cmd())
	g = next.(galleryModel)
	if len(l.removed) != 1 || l.removed[0] != "vid_1" {
		t.Fatalf("removed got %v", l.removed)
	}
	if g.statusMessage != "removed vid_1" || reload == nil {
		t.Fatalf("unexpected status %q", g.statusMessage)
	}
	next, _ = g.Update(reload())
	g = next.(galleryModel)
	if len(g.entries) != 0 {
		t.Fatalf("entries after reload got %d want 0", len(g.entries))
	}
}

func TestGalleryEnterSavesAndReportsFallback(t *testing.T) {
	l := &fakeGalleryLedger{entries: []model.LedgerEntry{{ID: "vid_1"}}}
	m := &fakeGalleryMedia{result: media.Result{
		ID:         "vid_1",
		Strategy:   media.StrategyOpen,
		PrimaryErr: &media.DownloadError{ID: "vid_1", Err: errors.New("status 500")},
	}}
	g := loadedGallery(t, l, m)

	next, cmd := g.updateBrowse(tea.KeyMsg{Type: tea.KeyEnter})
	g = next.(galleryModel)
	if !g.busy || cmd == nil {
		t.Fatal("enter should start a download")
	}
	next, _ = g.Update(cmd())
	g = next.(galleryModel)
	if len(m.saved) != 1 || m.saved[0] != "vid_1" {
		t.Fatalf("saved got %v", m.saved)
	}
	if !strings.HasPrefix(g.statusMessage, "opened vid_1") || g.busy {
		t.Fatalf("unexpected status %q busy=%v", g.statusMessage, g.busy)
	}
}

func TestGalleryActionsIgnoreEmptyGallery(t *testing.T) {
	g := loadedGallery(t, &fakeGalleryLedger{}, &fakeGalleryMedia{})
	for _, r := range []rune{'o', 'd'} {
		next, cmd := g.updateBrowse(key(r))
		g = next.(galleryModel)
		if cmd != nil || g.mode != galleryModeBrowse {
			t.Fatalf("key %q on empty gallery should do nothing", r)
		}
	}
	if _, cmd := g.updateBrowse(key('q')); cmd == nil {
		t.Fatal("q should quit")
	} else if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
}

func TestTrackModelFollowsUpdatesAndQuitsOnResult(t *testing.T) {
	m := newTrackModel("vid_42")

	next, _ := m.Update(trackUpdateMsg(tracker.Update{
		ID:       "vid_42",
		State:    model.StateProcessing,
		Snapshot: model.Snapshot{Status: "processing", Progress: 40},
	}))
	m = next.(trackModel)
	if m.state != model.StateProcessing || m.snapshot.Progress != 40 {
		t.Fatalf("unexpected model after update: state=%q progress=%d", m.state, m.snapshot.Progress)
	}

	next, _ = m.Update(trackUpdateMsg(tracker.Update{
		ID:                "vid_42",
		State:             model.StateProcessing,
		Err:               errors.New("connection refused"),
		TransientFailures: 1,
	}))
	m = next.(trackModel)
	if m.snapshot.Progress != 40 {
		t.Fatalf("transient failure should keep progress, got %d", m.snapshot.Progress)
	}
	if !strings.Contains(m.View(), "retrying (1)") {
		t.Fatal("view should show the transient failure")
	}

	next, cmd := m.Update(trackResultMsg(tracker.Result{
		ID:       "vid_42",
		State:    model.StateCompleted,
		Snapshot: model.Snapshot{Status: "completed", Progress: 100},
	}))
	m = next.(trackModel)
	if m.result == nil || m.result.State != model.StateCompleted {
		t.Fatal("result not stored")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("terminal result should quit the view")
	}
	if !strings.Contains(m.View(), "vid_42 completed") {
		t.Fatalf("final view got %q", m.View())
	}
}

func TestTrackModelQuitKey(t *testing.T) {
	m := newTrackModel("vid_1")
	next, cmd := m.Update(key('q'))
	if !next.(trackModel).aborted || cmd == nil {
		t.Fatal("q should abort the view")
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"vidgen/internal/media"
	"vidgen/internal/model"
)

type galleryMode int

const (
	galleryModeBrowse galleryMode = iota
	galleryModeDeleteConfirm
)

type galleryLedger interface {
	List() ([]model.LedgerEntry, error)
	Remove(id model.JobID) (bool, error)
}

type galleryMedia interface {
	Save(ctx context.Context, id model.JobID) (media.Result, error)
	Open(ctx context.Context, id model.JobID) error
}

type galleryModel struct {
	ledger  galleryLedger
	media   galleryMedia
	entries []model.LedgerEntry
	cursor  int
	width   int
	height  int
	mode    galleryMode
	busy    bool

	confirmDeleteID model.JobID
	statusMessage   string
	fatalErr        error
}

type galleryLoadedMsg struct {
	entries []model.LedgerEntry
	err     error
}

type galleryActionMsg struct {
	message string
	err     error
	reload  bool
}

func newGalleryModel(l galleryLedger, m galleryMedia) galleryModel {
	return galleryModel{ledger: l, media: m, mode: galleryModeBrowse}
}

func runGalleryView(l galleryLedger, m galleryMedia) error {
	if !stdinIsTTY() {
		return errors.New("gallery --interactive requires an interactive terminal (TTY)")
	}
	p := tea.NewProgram(newGalleryModel(l, m), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("gallery --interactive requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := finalModel.(galleryModel); ok {
		return fm.fatalErr
	}
	return nil
}

func (m galleryModel) Init() tea.Cmd {
	return loadGalleryCmd(m.ledger)
}

func (m galleryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case galleryLoadedMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.entries = msg.entries
		if len(m.entries) == 0 {
			m.cursor = 0
		} else if m.cursor > len(m.entries)-1 {
			m.cursor = len(m.entries) - 1
		}
		return m, nil
	case galleryActionMsg:
		m.busy = false
		m.mode = galleryModeBrowse
		m.confirmDeleteID = ""
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
		} else {
			m.statusMessage = msg.message
		}
		if msg.reload {
			return m, loadGalleryCmd(m.ledger)
		}
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.mode {
	case galleryModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	default:
		return m.updateBrowse(keyMsg)
	}
}

func (m galleryModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
		return m, nil
	case "r":
		m.statusMessage = ""
		return m, loadGalleryCmd(m.ledger)
	}

	if m.busy {
		return m, nil
	}
	entry, ok := m.selected()
	switch msg.String() {
	case "enter", "s":
		if !ok {
			m.statusMessage = "select a video to download"
			return m, nil
		}
		m.busy = true
		m.statusMessage = "downloading " + entry.ID.String() + "..."
		return m, saveVideoCmd(m.media, entry.ID)
	case "o":
		if !ok {
			m.statusMessage = "select a video to open"
			return m, nil
		}
		m.busy = true
		return m, openVideoCmd(m.media, entry.ID)
	case "d":
		if !ok {
			m.statusMessage = "select a video to delete"
			return m, nil
		}
		m.mode = galleryModeDeleteConfirm
		m.confirmDeleteID = entry.ID
		return m, nil
	}
	return m, nil
}

func (m galleryModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "n":
		m.mode = galleryModeBrowse
		m.confirmDeleteID = ""
		m.statusMessage = "delete cancelled"
		return m, nil
	case "y", "enter":
		if m.confirmDeleteID == "" {
			m.mode = galleryModeBrowse
			m.statusMessage = "delete cancelled"
			return m, nil
		}
		m.busy = true
		return m, removeVideoCmd(m.ledger, m.confirmDeleteID)
	}
	return m, nil
}

func (m galleryModel) selected() (model.LedgerEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return model.LedgerEntry{}, false
	}
	return m.entries[m.cursor], true
}

func (m galleryModel) View() string {
	if m.fatalErr != nil {
		return errorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	if m.mode == galleryModeDeleteConfirm {
		return m.viewDeleteConfirm()
	}

	header := titleStyle.Render("vidgen gallery") + "\n" +
		mutedStyle.Render("up/down: move | enter: download | o: open | d: delete | r: refresh | q: quit")
	status := m.renderStatusLine(m.width)

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left, m.renderListPanel(m.width), m.renderDetailsPanel(m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
	}
	leftW := clampInt(m.width/2, 34, 60)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderListPanel(leftW), m.renderDetailsPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m galleryModel) renderListPanel(width int) string {
	total := len(m.entries)
	maxRows := clampInt(m.height-10, 4, 20)
	start, end := listWindow(total, m.cursor, maxRows)

	lines := make([]string, 0, maxRows+2)
	if total == 0 {
		lines = append(lines, mutedStyle.Render("No videos yet."))
		lines = append(lines, mutedStyle.Render("Run: vidgen generate --url <product-url>"))
	}
	if start > 0 {
		lines = append(lines, mutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		e := m.entries[i]
		line := fmt.Sprintf("%s  %s", formatCreatedAt(e.CreatedAt), e.ID)
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.cursor {
			line = selStyle.Width(maxInt(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < total {
		lines = append(lines, mutedStyle.Render("..."))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m galleryModel) renderDetailsPanel(width int) string {
	lines := []string{}
	if e, ok := m.selected(); ok {
		lines = append(lines, "Video Details")
		lines = append(lines, "")
		lines = append(lines, kv("id", e.ID.String()))
		lines = append(lines, kv("status", defaultIfEmpty(e.Status, "-")))
		lines = append(lines, kv("progress", strconv.Itoa(e.Progress)+"%"))
		lines = append(lines, kv("created", formatCreatedAt(e.CreatedAt)))
		lines = append(lines, kv("file", media.FileName(e.ID)))
		lines = append(lines, kv("url", defaultIfEmpty(e.URL, "-")))
	} else {
		lines = append(lines, "Gallery is empty")
		lines = append(lines, "")
		lines = append(lines, "Completed videos appear here once tracking finishes.")
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], maxInt(width-6, 12))
	}
	return panelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m galleryModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		msg = fmt.Sprintf("%d video(s) in gallery", len(m.entries))
	}
	style := mutedStyle
	lower := strings.ToLower(msg)
	if strings.HasPrefix(lower, "error:") {
		style = errorStyle
	} else if strings.HasPrefix(lower, "saved") || strings.HasPrefix(lower, "removed") || strings.HasPrefix(lower, "opened") {
		style = okStyle
	}
	return style.Width(width).Render(truncateRunes(msg, maxInt(width-2, 10)))
}

func (m galleryModel) viewDeleteConfirm() string {
	text := fmt.Sprintf(
		"Delete video '%s' from the gallery?\n\nThe server copy and any downloaded file are kept.\n\nPress y or Enter to confirm, n or Esc to cancel.",
		m.confirmDeleteID,
	)
	boxW := clampInt(m.width-8, 36, 80)
	boxH := clampInt(m.height-6, 8, 12)
	panel := panelStyle.Width(boxW).Height(boxH).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func loadGalleryCmd(l galleryLedger) tea.Cmd {
	return func() tea.Msg {
		entries, err := l.List()
		return galleryLoadedMsg{entries: entries, err: err}
	}
}

func saveVideoCmd(m galleryMedia, id model.JobID) tea.Cmd {
	return func() tea.Msg {
		res, err := m.Save(context.Background(), id)
		if err != nil {
			return galleryActionMsg{err: err}
		}
		if res.Strategy == media.StrategyOpen {
			return galleryActionMsg{message: fmt.Sprintf("opened %s in the browser (download failed: %v)", id, res.PrimaryErr)}
		}
		return galleryActionMsg{message: fmt.Sprintf("saved %s (%s)", res.Path, formatBytesIEC(res.Bytes))}
	}
}

func openVideoCmd(m galleryMedia, id model.JobID) tea.Cmd {
	return func() tea.Msg {
		if err := m.Open(context.Background(), id); err != nil {
			return galleryActionMsg{err: err}
		}
		return galleryActionMsg{message: "opened " + id.String()}
	}
}

func removeVideoCmd(l galleryLedger, id model.JobID) tea.Cmd {
	return func() tea.Msg {
		removed, err := l.Remove(id)
		if err != nil {
			return galleryActionMsg{err: err, reload: true}
		}
		if !removed {
			return galleryActionMsg{message: id.String() + " was already gone", reload: true}
		}
		return galleryActionMsg{message: "removed " + id.String(), reload: true}
	}
}

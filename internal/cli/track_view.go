package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"vidgen/internal/model"
	"vidgen/internal/tracker"
)

type trackUpdateMsg tracker.Update

type trackResultMsg tracker.Result

type trackModel struct {
	id        model.JobID
	spinner   spinner.Model
	bar       progress.Model
	state     model.State
	snapshot  model.Snapshot
	transient error
	failures  int
	result    *tracker.Result
	width     int
	aborted   bool
}

func newTrackModel(id model.JobID) trackModel {
	return trackModel{
		id:      id,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state:   model.StateChecking,
	}
}

// runTrackView drives the poller behind a live terminal view. Callbacks
// reach the model through Program.Send, which is a no-op once the view
// has exited.
func runTrackView(ctx context.Context, poller *tracker.Poller, id model.JobID) (tracker.Result, error) {
	prog := tea.NewProgram(newTrackModel(id), tea.WithContext(ctx))
	err := poller.Start(id,
		func(u tracker.Update) { prog.Send(trackUpdateMsg(u)) },
		func(r tracker.Result) { prog.Send(trackResultMsg(r)) },
	)
	if err != nil {
		return tracker.Result{}, err
	}
	defer poller.Stop()

	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return tracker.Result{ID: id}, ctx.Err()
		}
		return tracker.Result{}, err
	}
	fm, ok := final.(trackModel)
	if !ok || fm.result == nil {
		return tracker.Result{ID: id}, tracker.ErrStopped
	}
	return *fm.result, fm.result.Err
}

func (m trackModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m trackModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = clampInt(msg.Width-24, 10, 60)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		}
		return m, nil
	case trackUpdateMsg:
		m.state = msg.State
		m.failures = msg.TransientFailures
		m.transient = msg.Err
		if msg.Err == nil {
			m.snapshot = msg.Snapshot
		}
		return m, nil
	case trackResultMsg:
		res := tracker.Result(msg)
		m.result = &res
		m.state = res.State
		if res.Snapshot.Status != "" {
			m.snapshot = res.Snapshot
		}
		m.transient = nil
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m trackModel) View() string {
	if m.result != nil {
		return m.viewFinal() + "\n"
	}

	lines := []string{
		fmt.Sprintf("%s %s  %s", m.spinner.View(), titleStyle.Render(string(m.id)), stateLabel(m.state)),
		"  " + m.bar.ViewAs(float64(m.snapshot.Progress)/100),
	}
	if msg := strings.TrimSpace(m.snapshot.Message); msg != "" {
		lines = append(lines, "  "+mutedStyle.Render(truncateRunes(msg, maxInt(m.width-4, 40))))
	}
	if m.transient != nil {
		lines = append(lines, "  "+errorStyle.Render(fmt.Sprintf("retrying (%d): %s", m.failures, truncateRunes(m.transient.Error(), maxInt(m.width-20, 40)))))
	}
	lines = append(lines, mutedStyle.Render("q: stop tracking (the job keeps running on the server)"))
	return strings.Join(lines, "\n") + "\n"
}

func (m trackModel) viewFinal() string {
	res := m.result
	switch res.State {
	case model.StateCompleted:
		return okStyle.Render("✓ "+string(res.ID)+" completed") + "  " + m.bar.ViewAs(1)
	case model.StateFailed, model.StateNotFound:
		return errorStyle.Render("✗ " + defaultIfEmpty(res.Message, string(res.ID)+" "+string(res.State)))
	default:
		if res.Err != nil {
			return errorStyle.Render("✗ " + res.Err.Error())
		}
		return stateLabel(res.State)
	}
}

func stateLabel(s model.State) string {
	switch s {
	case model.StateCompleted:
		return okStyle.Render(string(s))
	case model.StateFailed, model.StateNotFound:
		return errorStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

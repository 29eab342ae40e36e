// Package tui is the terminal viewer for `shapeq watch`. It shows every
// scheduler in its own pane, side by side, and submits the same kind to
// all of them on one key press.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
)

const paneWidth = 34

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF"))
	headStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#AAAAAA"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	queuedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	paneStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(paneWidth)
)

// eventMsg carries one scheduler event to the pane at idx.
type eventMsg struct {
	idx int
	ev  domain.Event
}

// closedMsg reports that the pane's scheduler stopped publishing.
type closedMsg struct{ idx int }

type pane struct {
	sched  domain.Scheduler
	events <-chan domain.Event
	unsub  func()
	snap   domain.Snapshot
	closed bool
}

type button struct {
	key   string
	entry catalog.Entry
}

// App is the bubbletea model.
type App struct {
	panes   []*pane
	buttons []button
	spinner spinner.Model
	status  string
	width   int
}

// New creates the viewer over schedulers. Each scheduler is subscribed
// immediately; Stop releases the subscriptions.
func New(cat *catalog.Catalog, schedulers ...domain.Scheduler) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	a := &App{spinner: sp, buttons: buttonsFor(cat)}
	for _, s := range schedulers {
		events, unsub := s.Subscribe(0)
		a.panes = append(a.panes, &pane{
			sched:  s,
			events: events,
			unsub:  unsub,
			snap:   s.Snapshot(),
		})
	}
	return a
}

// buttonsFor assigns each kind its first letter, or its position when the
// letter is taken. "q" is reserved for quit.
func buttonsFor(cat *catalog.Catalog) []button {
	taken := map[string]bool{"q": true}
	var out []button
	for i, e := range cat.Entries() {
		key := strings.ToLower(string(e.Kind)[:1])
		if taken[key] {
			key = strconv.Itoa(i + 1)
		}
		taken[key] = true
		out = append(out, button{key: key, entry: e})
	}
	return out
}

// Stop unsubscribes from every scheduler.
func (a *App) Stop() {
	for _, p := range a.panes {
		p.unsub()
	}
}

func waitForEvent(idx int, ch <-chan domain.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return closedMsg{idx: idx}
		}
		return eventMsg{idx: idx, ev: ev}
	}
}

// Init starts the spinner and one event listener per pane.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.spinner.Tick}
	for i, p := range a.panes {
		cmds = append(cmds, waitForEvent(i, p.events))
	}
	return tea.Batch(cmds...)
}

// Update handles key presses and scheduler events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		}
		for _, b := range a.buttons {
			if msg.String() == b.key {
				a.submit(b.entry)
				return a, nil
			}
		}
		return a, nil

	case eventMsg:
		p := a.panes[msg.idx]
		p.snap = msg.ev.State
		if msg.ev.Type == domain.EventFailed {
			a.status = fmt.Sprintf("%s: %s failed: %s", p.sched.Name(), msg.ev.Task.ID, msg.ev.Error)
		}
		return a, waitForEvent(msg.idx, p.events)

	case closedMsg:
		a.panes[msg.idx].closed = true
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// submit sends one kind to every scheduler. A scheduler that refuses does
// not stop the others; the status line reports both outcomes.
func (a *App) submit(e catalog.Entry) {
	var ids, errs []string
	for _, p := range a.panes {
		task, err := p.sched.Submit(e.Kind)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.sched.Name(), err))
			continue
		}
		ids = append(ids, task.ID)
	}

	var parts []string
	if len(ids) > 0 {
		parts = append(parts, fmt.Sprintf("submitted %s (%s)", e.Label, strings.Join(ids, ", ")))
	}
	parts = append(parts, errs...)
	a.status = strings.Join(parts, "; ")
}

// View renders the panes side by side with the key hints below.
func (a *App) View() string {
	boxes := make([]string, len(a.panes))
	for i, p := range a.panes {
		boxes[i] = paneStyle.Render(a.renderPane(p))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, boxes...)

	keys := make([]string, len(a.buttons))
	for i, b := range a.buttons {
		keys[i] = fmt.Sprintf("[%s] %s", b.key, b.entry.Label)
	}
	hint := hintStyle.Render(strings.Join(keys, "  ") + "  [q] quit")

	lines := []string{body, hint}
	if a.status != "" {
		lines = append(lines, a.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (a *App) renderPane(p *pane) string {
	var b strings.Builder
	title := strings.ToUpper(p.sched.Name()[:1]) + p.sched.Name()[1:]
	if p.closed {
		title += " (stopped)"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	b.WriteString(headStyle.Render("Rendered") + "\n")
	if len(p.snap.Completed) == 0 && len(p.snap.Failed) == 0 {
		b.WriteString(queuedStyle.Render("  nothing yet") + "\n")
	}
	for _, t := range p.snap.Completed {
		b.WriteString(doneStyle.Render(fmt.Sprintf("  ✓ %-10s %s", t.Label, t.Elapsed().Round(100*time.Millisecond))) + "\n")
	}
	for _, t := range p.snap.Failed {
		b.WriteString(failedStyle.Render(fmt.Sprintf("  ✗ %-10s failed", t.Kind)) + "\n")
	}

	b.WriteString("\n" + headStyle.Render("Queue") + "\n")
	if p.snap.Pending() == 0 {
		b.WriteString(queuedStyle.Render("  empty") + "\n")
	}
	for _, t := range p.snap.InFlight {
		b.WriteString(fmt.Sprintf("  %s %s\n", a.spinner.View(), t.Label))
	}
	for _, t := range p.snap.Queue {
		// Concurrent tasks are all running while they sit in the queue.
		marker := queuedStyle.Render("·")
		if len(p.snap.InFlight) == 0 {
			marker = a.spinner.View()
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", marker, t.Label))
	}
	return strings.TrimRight(b.String(), "\n")
}

package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/catalog"
	"github.com/tutu-network/shapeq/internal/infra/scheduler"
)

type echoBackend struct{}

func (echoBackend) Fetch(ctx context.Context, kind domain.TaskKind) (string, error) {
	return string(kind), nil
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newTestApp(t *testing.T) (*App, *clockwork.FakeClock, *scheduler.Concurrent, *scheduler.Sequential) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	cat := catalog.Default()
	conc := scheduler.NewConcurrent(cat, scheduler.WithClock(fc))
	seq := scheduler.NewSequential(cat, echoBackend{}, scheduler.WithClock(fc))
	app := New(cat, conc, seq)
	t.Cleanup(func() {
		app.Stop()
		_ = conc.Close()
		_ = seq.Close()
	})
	return app, fc, conc, seq
}

// pump runs the listener for pane idx until an event of type want is applied.
func pump(t *testing.T, app *App, idx int, want domain.EventType) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		msgCh := make(chan tea.Msg, 1)
		go func() { msgCh <- waitForEvent(idx, app.panes[idx].events)() }()
		select {
		case msg := <-msgCh:
			app.Update(msg)
			if em, ok := msg.(eventMsg); ok && em.ev.Type == want {
				return
			}
			if _, ok := msg.(closedMsg); ok {
				t.Fatalf("pane %d closed while waiting for %s", idx, want)
			}
		case <-deadline:
			t.Fatalf("pane %d: timed out waiting for %s", idx, want)
		}
	}
}

func TestButtonsFor(t *testing.T) {
	got := buttonsFor(catalog.Default())
	want := []string{"r", "c", "t", "l"}
	if len(got) != len(want) {
		t.Fatalf("buttons = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].key != w {
			t.Errorf("button %d key = %q, want %q", i, got[i].key, w)
		}
	}
}

func TestButtonsFor_Collisions(t *testing.T) {
	cat, err := catalog.New([]catalog.Entry{
		{Kind: "square", Label: "Square", ServiceDuration: time.Second},
		{Kind: "star", Label: "Star", ServiceDuration: time.Second},
		{Kind: "quad", Label: "Quad", ServiceDuration: time.Second},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := buttonsFor(cat)
	if got[0].key != "s" || got[1].key != "2" || got[2].key != "3" {
		t.Errorf("keys = %q %q %q, want s 2 3", got[0].key, got[1].key, got[2].key)
	}
}

func TestKeySubmitsToEveryScheduler(t *testing.T) {
	app, _, conc, seq := newTestApp(t)

	app.Update(key('c'))
	if got := conc.Snapshot().Pending(); got != 1 {
		t.Errorf("concurrent pending = %d, want 1", got)
	}
	if got := seq.Stats().TotalSubmitted; got != 1 {
		t.Errorf("sequential submitted = %d, want 1", got)
	}
	if !strings.Contains(app.status, "Circle") {
		t.Errorf("status = %q, want mention of Circle", app.status)
	}
}

func TestEventsUpdatePanes(t *testing.T) {
	app, fc, _, _ := newTestApp(t)

	app.Update(key('l'))
	pump(t, app, 1, domain.EventCompleted)
	fc.Advance(2 * time.Second)
	pump(t, app, 0, domain.EventCompleted)

	for i, p := range app.panes {
		if len(p.snap.Completed) != 1 {
			t.Errorf("pane %d completed = %d, want 1", i, len(p.snap.Completed))
		}
	}
	view := app.View()
	for _, want := range []string{"Concurrent", "Sequential", "Rendered", "Queue", "Line", "line"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuitKeys(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	for _, k := range []tea.KeyMsg{key('q'), {Type: tea.KeyCtrlC}} {
		_, cmd := app.Update(k)
		if cmd == nil {
			t.Fatalf("%q: no command", k.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%q: command is not quit", k.String())
		}
	}
}

func TestClosedSchedulerMarksPane(t *testing.T) {
	app, _, conc, _ := newTestApp(t)
	_ = conc.Close()
	msg := waitForEvent(0, app.panes[0].events)()
	app.Update(msg)
	if !app.panes[0].closed {
		t.Error("pane not marked closed")
	}
	if !strings.Contains(app.View(), "(stopped)") {
		t.Error("view does not show stopped pane")
	}
}

func TestUnknownKeyIgnored(t *testing.T) {
	app, _, conc, _ := newTestApp(t)
	_, cmd := app.Update(key('z'))
	if cmd != nil {
		t.Error("unknown key returned a command")
	}
	if conc.Snapshot().Pending() != 0 {
		t.Error("unknown key submitted a task")
	}
}

func TestSubmitContinuesPastClosedScheduler(t *testing.T) {
	app, _, conc, seq := newTestApp(t)
	_ = conc.Close()

	app.Update(key('t'))
	if got := seq.Stats().TotalSubmitted; got != 1 {
		t.Errorf("sequential submitted = %d, want 1", got)
	}
	for _, want := range []string{"submitted Triangle (triangle-1)", "concurrent:", domain.ErrSchedulerClosed.Error()} {
		if !strings.Contains(app.status, want) {
			t.Errorf("status = %q, missing %q", app.status, want)
		}
	}
}

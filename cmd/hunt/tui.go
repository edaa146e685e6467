package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-bridge/hunt"
	"github.com/wippyai/wasm-bridge/signal"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	wallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555"))

	scribbleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4"))

	hunterStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	walkerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	fleeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	deadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type keyMap struct {
	Pause    key.Binding
	Terrain  key.Binding
	Scribble key.Binding
	Alloc    key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pause, k.Terrain, k.Scribble, k.Alloc, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Pause:    key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause")),
	Terrain:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "shift terrain")),
	Scribble: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "guest writes grid")),
	Alloc:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "guest allocates")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

type stepDoneMsg struct{ err error }

type cmdDoneMsg struct {
	what string
	err  error
}

// huntModel renders a snapshot of the shared world. The snapshot is
// refreshed only after a roundtrip completes, so the view never reads
// actor records a guest is mid-writing.
type huntModel struct {
	host *hunt.Host
	tick time.Duration
	help help.Model

	paused   bool
	busy     bool
	quitting bool
	err      error
	exitErr  error
	status   string
	ticks    int

	w, h    int32
	cells   []int32
	hx, hy  int32
	runners []hunt.Runner
	live    int
	sigs    [hunt.GuestCount]signal.Signal
}

func newHuntModel(h *hunt.Host, tick time.Duration) *huntModel {
	m := &huntModel{
		host:   h,
		tick:   tick,
		help:   help.New(),
		status: "running",
	}
	m.snapshot()
	return m
}

func (m *huntModel) Init() tea.Cmd {
	return m.schedule()
}

func (m *huntModel) schedule() tea.Cmd {
	return tea.Tick(m.tick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// step advances the world by one host tick. It runs as a command so a
// slow or dead guest stalls the roundtrip, not the event loop.
func (m *huntModel) step() tea.Msg {
	return stepDoneMsg{err: m.host.Tick(context.Background())}
}

func (m *huntModel) sendCmd(what string, f func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return cmdDoneMsg{what: what, err: f(context.Background())}
	}
}

// canAct gates host operations: only one may be in flight, and a dead
// world takes no more commands.
func (m *huntModel) canAct() bool {
	return !m.busy && !m.quitting && m.err == nil
}

func (m *huntModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			if m.busy {
				m.quitting = true
				m.status = "waiting for the roundtrip in flight..."
				return m, nil
			}
			m.shutdown()
			return m, tea.Quit

		case key.Matches(msg, keys.Pause):
			m.paused = !m.paused
			if m.paused {
				m.status = "paused"
			} else {
				m.status = "running"
			}

		case key.Matches(msg, keys.Terrain):
			// Pure host-side memory writes; safe inline because canAct
			// guarantees no roundtrip is reading the grid right now.
			if m.canAct() {
				if err := m.host.ModifyTerrain(); err != nil {
					m.status = "terrain shift failed: " + err.Error()
				} else {
					m.status = "terrain shifted"
				}
				m.snapshot()
			}

		case key.Matches(msg, keys.Scribble):
			if m.canAct() {
				m.busy = true
				m.status = "runner guest told to write into the grid..."
				return m, m.sendCmd("guest grid write", func(ctx context.Context) error {
					return m.host.SendModifyGrid(ctx, hunt.RunnerGuest)
				})
			}

		case key.Matches(msg, keys.Alloc):
			if m.canAct() {
				m.busy = true
				m.status = "hunter guest told to allocate..."
				return m, m.sendCmd("guest alloc", func(ctx context.Context) error {
					return m.host.SendLargeAlloc(ctx, hunt.HunterGuest)
				})
			}
		}

	case tickMsg:
		if m.quitting || m.err != nil {
			return m, nil
		}
		if m.paused || m.busy {
			return m, m.schedule()
		}
		m.busy = true
		return m, tea.Batch(m.schedule(), m.step)

	case stepDoneMsg:
		m.busy = false
		if m.quitting {
			m.shutdown()
			return m, tea.Quit
		}
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.ticks++
		m.snapshot()

	case cmdDoneMsg:
		m.busy = false
		if m.quitting {
			m.shutdown()
			return m, tea.Quit
		}
		if msg.err != nil {
			m.status = msg.what + " failed: " + msg.err.Error()
		} else {
			m.status = msg.what + " done"
		}
		m.snapshot()
	}

	return m, nil
}

// shutdown broadcasts exit and leaves the regions to the deferred host
// close. A guest that died mid-demo cannot ack, so the error is kept for
// the exit message instead of a screen nobody will see.
func (m *huntModel) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.host.Shutdown(ctx); err != nil {
		m.exitErr = err
	} else if err := m.host.Err(); err != nil {
		m.exitErr = err
	}
}

// snapshot copies the shared state the view renders. Called only between
// roundtrips.
func (m *huntModel) snapshot() {
	g := m.host.Grid()
	m.w, m.h = g.W(), g.H()
	if m.cells == nil {
		m.cells = make([]int32, int(m.w)*int(m.h))
	}
	for y := int32(0); y < m.h; y++ {
		for x := int32(0); x < m.w; x++ {
			m.cells[y*m.w+x] = g.Cell(x, y)
		}
	}

	a := m.host.Actors()
	m.hx, m.hy = a.Hunter()
	if m.runners == nil {
		m.runners = make([]hunt.Runner, a.Runners())
	}
	m.live = 0
	for i := range m.runners {
		r, err := a.Runner(i)
		if err != nil {
			m.err = err
			return
		}
		m.runners[i] = r
		if r.State != hunt.Dead {
			m.live++
		}
	}
	for i := 0; i < hunt.GuestCount; i++ {
		if s, err := m.host.GuestSignal(i); err == nil {
			m.sigs[i] = s
		}
	}
}

func (m *huntModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Shared Memory Hunt"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("q quit"))
		return b.String()
	}

	b.WriteString(m.renderGrid())
	b.WriteString("\n")

	status := fmt.Sprintf("tick %d • %d/%d alive • hunter (%d, %d) • hunter:%s runners:%s",
		m.ticks, m.live, len(m.runners), m.hx, m.hy,
		m.sigs[hunt.HunterGuest], m.sigs[hunt.RunnerGuest])
	b.WriteString(statusStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(m.status)
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))

	return b.String()
}

func (m *huntModel) renderGrid() string {
	// Actors overlay the map; the hunter wins a contested cell.
	type marker struct {
		ch    string
		style lipgloss.Style
	}
	overlay := make(map[int32]marker, len(m.runners)+1)
	for _, r := range m.runners {
		if r.X < 0 || r.X >= m.w || r.Y < 0 || r.Y >= m.h {
			continue
		}
		mk := marker{ch: "r", style: walkerStyle}
		switch r.State {
		case hunt.Running:
			mk = marker{ch: "R", style: fleeStyle}
		case hunt.Dead:
			mk = marker{ch: "x", style: deadStyle}
		}
		overlay[r.Y*m.w+r.X] = mk
	}
	if m.hx >= 0 && m.hx < m.w && m.hy >= 0 && m.hy < m.h {
		overlay[m.hy*m.w+m.hx] = marker{ch: "H", style: hunterStyle}
	}

	var b strings.Builder
	for y := int32(0); y < m.h; y++ {
		for x := int32(0); x < m.w; x++ {
			idx := y*m.w + x
			if mk, ok := overlay[idx]; ok {
				b.WriteString(mk.style.Render(mk.ch))
				continue
			}
			switch m.cells[idx] {
			case hunt.CellEmpty:
				b.WriteString(" ")
			case hunt.CellWall:
				b.WriteString(wallStyle.Render("█"))
			default:
				b.WriteString(scribbleStyle.Render("▒"))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

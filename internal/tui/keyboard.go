// Package tui renders the playable keyboard. Terminals only report key
// presses, never releases, so the model synthesizes a release once a key
// has gone quiet for the hold duration; the dispatcher's idempotent
// handling absorbs the key-repeat presses in between.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"keytone/internal/dispatch"
	"keytone/internal/keymap"
)

const (
	tickInterval = 50 * time.Millisecond
	keysPerRow   = 10
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	keyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	anchorStyle = keyStyle.
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	litStyle = keyStyle.
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Bold(true)
)

// NoteMsg reports an accepted key transition back to the UI. The main
// loop feeds these from the dispatcher, so remote presses light up too.
type NoteMsg struct {
	Key  string
	Down bool
}

// Status carries the static facts shown under the keyboard.
type Status struct {
	Sample  string
	Backend string
	Listen  string // remote address, empty when disabled
}

// tickMsg drives the synthetic key-release scan.
type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type quitKeys struct {
	Quit key.Binding
}

func (k quitKeys) ShortHelp() []key.Binding  { return []key.Binding{k.Quit} }
func (k quitKeys) FullHelp() [][]key.Binding { return [][]key.Binding{{k.Quit}} }

// Model is the bubbletea model for the playable keyboard.
type Model struct {
	layout  *keymap.Layout
	events  chan<- dispatch.Event
	status  Status
	hold    time.Duration
	keys    quitKeys
	help    help.Model
	width   int
	bound   map[string]bool
	pressed map[string]time.Time
	lit     map[string]bool
}

// New builds the keyboard model. Keys held longer than hold without a
// repeat are released; hold must exceed the terminal's key-repeat delay.
func New(layout *keymap.Layout, events chan<- dispatch.Event, status Status, hold time.Duration) Model {
	bound := make(map[string]bool, len(layout.Keys()))
	for _, k := range layout.Keys() {
		bound[k] = true
	}
	return Model{
		layout: layout,
		events: events,
		status: status,
		hold:   hold,
		keys: quitKeys{
			Quit: key.NewBinding(
				key.WithKeys("esc", "ctrl+c"),
				key.WithHelp("esc", "quit"),
			),
		},
		help:    help.New(),
		bound:   bound,
		pressed: make(map[string]time.Time),
		lit:     make(map[string]bool),
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.releaseStale(time.Now())
		return m, tickCmd()

	case NoteMsg:
		if msg.Down {
			m.lit[msg.Key] = true
		} else {
			delete(m.lit, msg.Key)
		}

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		label := msg.String()
		if !m.bound[label] {
			break
		}
		m.pressed[label] = time.Now()
		m.send(dispatch.Event{Kind: dispatch.KeyDown, Key: label})
	}

	return m, nil
}

// releaseStale synthesizes KeyUp for keys whose last press is older than
// the hold window.
func (m Model) releaseStale(now time.Time) {
	for label, last := range m.pressed {
		if now.Sub(last) >= m.hold {
			delete(m.pressed, label)
			m.send(dispatch.Event{Kind: dispatch.KeyUp, Key: label})
		}
	}
}

// send never blocks; a full queue drops the event rather than freezing
// the UI loop.
func (m Model) send(ev dispatch.Event) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("keytone"))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderKeyboard())
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(m.statusLine()))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// renderKeyboard draws the layout as rows of keycaps. The anchor key is
// accented, sounding keys are filled.
func (m Model) renderKeyboard() string {
	keys := m.layout.Keys()
	anchor := m.layout.Anchor()

	var rows []string
	for start := 0; start < len(keys); start += keysPerRow {
		end := start + keysPerRow
		if end > len(keys) {
			end = len(keys)
		}
		caps := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			label := keys[i]
			style := keyStyle
			switch {
			case m.lit[label]:
				style = litStyle
			case i == anchor:
				style = anchorStyle
			}
			caps = append(caps, style.Render(label))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, caps...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) statusLine() string {
	parts := []string{
		m.status.Sample,
		m.status.Backend,
		fmt.Sprintf("%d keys", len(m.layout.Keys())),
	}
	if m.status.Listen != "" {
		parts = append(parts, "ws://"+m.status.Listen+"/events")
	}
	return strings.Join(parts, " • ")
}

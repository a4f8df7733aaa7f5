// Package tui provides the BubbleTea live viewer for a pidisplayd thing.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/pidisplay/internal/client"
	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/config"
	"github.com/jmylchreest/pidisplay/internal/lcd"
	"github.com/jmylchreest/pidisplay/internal/properties"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeView Mode = iota
	ModeEdit
	ModeHelp
)

const reconnectDelay = 2 * time.Second

// Model is the viewer model.
type Model struct {
	ctx    context.Context
	client *client.Client
	stream *client.Stream

	title    string
	geometry lcd.Geometry
	ttlUnit  time.Duration

	mode       Mode
	selected   compositor.Rank
	showLayers bool
	showHelp   bool

	// Components
	input textinput.Model
	help  help.Model
	keys  KeyMap

	// State
	values    map[string]any
	connected bool
	width     int
	height    int

	// Status message
	statusMsg string
	statusErr bool
}

// Options configures the viewer.
type Options struct {
	Client   *client.Client
	Config   *config.Config
	Geometry lcd.Geometry
}

// New creates the viewer model.
func New(ctx context.Context, opts Options) Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.Geometry.Validate() != nil {
		opts.Geometry = lcd.DefaultGeometry
	}

	ti := textinput.New()
	ti.Placeholder = "layer text"
	ti.CharLimit = opts.Geometry.Lines * opts.Geometry.Columns

	return Model{
		ctx:        ctx,
		client:     opts.Client,
		title:      "pidisplay",
		geometry:   opts.Geometry,
		ttlUnit:    client.DefaultTTLUnit,
		selected:   compositor.RankUpper,
		showLayers: cfg.Watch.ShowLayers,
		showHelp:   cfg.Watch.ShowHelp,
		input:      ti,
		help:       help.New(),
		keys:       DefaultKeyMap(),
	}
}

// Init connects to the thing.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.describe, m.connect)
}

type thingMsg struct {
	title string
	unit  time.Duration
}

type connectedMsg struct {
	stream *client.Stream
}

type disconnectedMsg struct {
	err error
}

type valuesMsg struct {
	values map[string]any
}

type setFailedMsg struct {
	err error
}

type reconnectMsg struct{}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

func (m Model) describe() tea.Msg {
	td, err := m.client.Thing(m.ctx)
	if err != nil {
		return nil
	}
	return thingMsg{title: td.Title, unit: client.TTLUnit(td)}
}

func (m Model) connect() tea.Msg {
	stream, err := m.client.Watch(m.ctx)
	if err != nil {
		return disconnectedMsg{err: err}
	}
	return connectedMsg{stream: stream}
}

func (m Model) waitForStatus(stream *client.Stream) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		values, err := stream.Next(ctx)
		if err != nil {
			var statusErr *client.StatusError
			if errors.As(err, &statusErr) {
				return setFailedMsg{err: err}
			}
			return disconnectedMsg{err: err}
		}
		return valuesMsg{values: values}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case thingMsg:
		m.title = msg.title
		m.ttlUnit = msg.unit
		return m, nil

	case connectedMsg:
		m.stream = msg.stream
		m.connected = true
		return m, m.waitForStatus(msg.stream)

	case valuesMsg:
		m.values = msg.values
		return m, m.waitForStatus(m.stream)

	case setFailedMsg:
		return m, tea.Batch(m.waitForStatus(m.stream), func() tea.Msg {
			return statusMsg{text: msg.err.Error(), isErr: true}
		})

	case disconnectedMsg:
		if m.stream != nil {
			_ = m.stream.Close()
			m.stream = nil
		}
		m.connected = false
		if m.ctx.Err() != nil {
			return m, nil
		}
		m.statusMsg = "Disconnected: " + msg.err.Error()
		m.statusErr = true
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.connect

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil
	}

	if m.mode == ModeEdit {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Typing in the editor must not trigger global keys.
	if m.mode == ModeEdit {
		return m.handleEditKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.stream != nil {
			_ = m.stream.Close()
		}
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeView
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	if m.mode == ModeHelp {
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeView
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Upper):
		m.selected = compositor.RankUpper
	case key.Matches(msg, m.keys.Middle):
		m.selected = compositor.RankMiddle
	case key.Matches(msg, m.keys.Lower):
		m.selected = compositor.RankLower
	case key.Matches(msg, m.keys.ToggleLayers):
		m.showLayers = !m.showLayers
	case key.Matches(msg, m.keys.Edit):
		m.mode = ModeEdit
		text, _ := m.values[properties.LayerTextProperty(m.selected)].(string)
		m.input.SetValue(text)
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Clear):
		return m, m.clearLayer(m.selected)
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeView
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.mode = ModeView
		m.input.Blur()
		return m, m.setText(m.selected, m.input.Value())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// setText writes a layer over the live stream, or over HTTP while
// disconnected.
func (m Model) setText(rank compositor.Rank, text string) tea.Cmd {
	ctx, stream, c := m.ctx, m.stream, m.client
	return func() tea.Msg {
		var err error
		if stream != nil {
			err = stream.SetProperty(ctx, properties.LayerTextProperty(rank), text)
		} else {
			err = c.SetLayer(ctx, rank.String(), text, nil)
		}
		if err != nil {
			return statusMsg{text: "Update failed: " + err.Error(), isErr: true}
		}
		return statusMsg{text: fmt.Sprintf("%s layer updated", rank)}
	}
}

func (m Model) clearLayer(rank compositor.Rank) tea.Cmd {
	ctx, stream, c := m.ctx, m.stream, m.client
	return func() tea.Msg {
		var err error
		if stream != nil {
			err = stream.SetProperty(ctx, properties.LayerTTLProperty(rank), compositor.NoTTL)
			if err == nil {
				err = stream.SetProperty(ctx, properties.LayerTextProperty(rank), "")
			}
		} else {
			err = c.ClearLayer(ctx, rank.String())
		}
		if err != nil {
			return statusMsg{text: "Clear failed: " + err.Error(), isErr: true}
		}
		return statusMsg{text: fmt.Sprintf("%s layer cleared", rank)}
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	lcdStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("22"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// View renders the viewer.
func (m Model) View() string {
	if m.mode == ModeHelp {
		return m.viewHelp()
	}

	var b strings.Builder

	state := offlineStyle.Render("○ offline")
	if m.connected {
		state = onlineStyle.Render("● live")
	}
	b.WriteString(titleStyle.Render(m.title) + " " + state + "\n")

	b.WriteString(lcdStyle.Render(strings.Join(lcd.Render(client.Text(m.values), m.geometry), "\n")))
	b.WriteString("\n")

	if m.showLayers {
		b.WriteString(m.viewLayers())
	}

	if m.mode == ModeEdit {
		b.WriteString(fmt.Sprintf("\nSet %s: %s\n", m.selected, m.input.View()))
	}

	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		b.WriteString("\n" + statusStyle.Render(m.statusMsg))
	} else if m.showHelp {
		b.WriteString("\n" + m.help.View(m.keys))
	}

	return b.String()
}

func (m Model) viewLayers() string {
	if m.values == nil {
		return dimStyle.Render("  waiting for the display...") + "\n"
	}

	var b strings.Builder
	for _, l := range client.Layers(m.values) {
		marker := "  "
		name := fmt.Sprintf("%-6s", l.Name)
		if l.Name == m.selected.String() {
			marker = selectedStyle.Render("> ")
			name = selectedStyle.Render(name)
		}
		text := client.FirstLine(l.Text)
		if text == "" {
			text = dimStyle.Render("(empty)")
		}
		ttl := dimStyle.Render(client.FormatTTL(l.TTL, m.ttlUnit))
		b.WriteString(fmt.Sprintf("%s%s  %s  %s\n", marker, name, text, ttl))
	}
	return b.String()
}

func (m Model) viewHelp() string {
	h := m.help
	h.ShowAll = true
	return titleStyle.Render("Keyboard Shortcuts") + "\n\n" +
		h.View(m.keys) + "\n\n" +
		dimStyle.Render("Press ? or esc to return")
}

// Run starts the viewer and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(ctx, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

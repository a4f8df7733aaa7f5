package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings for the viewer.
type KeyMap struct {
	// Layer selection
	Upper  key.Binding
	Middle key.Binding
	Lower  key.Binding

	// Actions
	Edit         key.Binding
	Clear        key.Binding
	ToggleLayers key.Binding
	Submit       key.Binding
	Back         key.Binding

	// Global
	Quit key.Binding
	Help key.Binding
}

// ShortHelp returns a short help message.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Edit, k.Clear, k.Help, k.Quit}
}

// FullHelp returns a full help message.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Upper, k.Middle, k.Lower},
		{k.Edit, k.Clear, k.ToggleLayers},
		{k.Submit, k.Back, k.Help, k.Quit},
	}
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Upper: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "select upper"),
		),
		Middle: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "select middle"),
		),
		Lower: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "select lower"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "enter"),
			key.WithHelp("e", "edit layer"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x", "d"),
			key.WithHelp("x", "clear layer"),
		),
		ToggleLayers: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle layers"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "apply"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

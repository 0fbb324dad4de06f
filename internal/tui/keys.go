package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard key bindings.
type KeyMap struct {
	Quit        key.Binding
	Up          key.Binding
	Down        key.Binding
	ScrollUp    key.Binding
	ScrollDown  key.Binding
	Enter       key.Binding
	Escape      key.Binding
	Tab         key.Binding
	Filter      key.Binding
	FocusAlerts key.Binding
	FocusEvents key.Binding
	Investigate key.Binding
	Resolve     key.Binding
	Detect      key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		ScrollUp:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Enter:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
		Escape:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Tab:         key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch view")),
		Filter:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter")),
		FocusAlerts: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "alerts")),
		FocusEvents: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "events")),
		Investigate: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "investigate")),
		Resolve:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resolve")),
		Detect:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "detect now")),
	}
}

package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings. It implements help.KeyMap.
type KeyMap struct {
	Quit   key.Binding
	Pause  key.Binding
	Sort   key.Binding
	Clear  key.Binding
	Errors key.Binding
	Help   key.Binding
}

func bind(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Quit:   bind("quit", "q", "ctrl+c"),
		Pause:  bind("freeze table", "p"),
		Sort:   bind("sort by deviation", "s"),
		Clear:  bind("clear table", "c"),
		Errors: bind("clear errors", "e"),
		Help:   bind("more keys", "?"),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Sort, k.Help}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Pause, k.Sort},
		{k.Clear, k.Errors, k.Help},
	}
}

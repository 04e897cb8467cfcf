package components

import (
	"fmt"
	"strings"
)

// ConnectionStatus is the state of one upstream feed of the dashboard.
type ConnectionStatus struct {
	Name      string
	Connected bool
	// Mode is the transport in use, e.g. "ws" or "http poll".
	Mode      string
	LastBlock uint64
}

// StatusComponent lists upstream connections in first-seen order.
type StatusComponent struct {
	connections []ConnectionStatus
}

func NewStatusComponent() *StatusComponent {
	return &StatusComponent{}
}

// Update replaces the entry with the same name or appends a new one.
func (s *StatusComponent) Update(status ConnectionStatus) {
	for i := range s.connections {
		if s.connections[i].Name == status.Name {
			s.connections[i] = status
			return
		}
	}
	s.connections = append(s.connections, status)
}

func (s *StatusComponent) View() string {
	if len(s.connections) == 0 {
		return dimText.Render("No upstreams")
	}

	var sb strings.Builder
	sb.WriteString(dimText.Render("UPSTREAMS"))
	for _, c := range s.connections {
		sb.WriteString("\n")
		if !c.Connected {
			fmt.Fprintf(&sb, "%s %s", badText.Render("○"), c.Name)
			if c.LastBlock > 0 {
				sb.WriteString(dimText.Render(fmt.Sprintf("  last #%d", c.LastBlock)))
			}
			continue
		}

		fmt.Fprintf(&sb, "%s %s", goodText.Render("●"), c.Name)
		if c.Mode != "" {
			sb.WriteString(dimText.Render(" via " + c.Mode))
		}
		if c.LastBlock > 0 {
			sb.WriteString(figure.Render(fmt.Sprintf("  #%d", c.LastBlock)))
		}
	}
	return sb.String()
}

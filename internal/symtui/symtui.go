// Package symtui renders a live tree of explored symbolic-execution
// paths for `owi sym --interactive`, the way wippyai-wasm-runtime's
// cmd/run/interactive.go drives a bubbletea program around a loaded
// module. Only cmd/owi imports this package — non-interactive `owi sym`
// runs never construct a Model, so internal/symbolic stays entirely
// independent of any terminal-rendering concern.
package symtui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wasmkit/owi/internal/symbolic"
)

// Status is the exploration state of one discovered path.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusTrapped
	StatusSat
	StatusUnsat
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusTrapped:
		return "trapped"
	case StatusSat:
		return "sat"
	case StatusUnsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Path is one node in the explored-path tree: the branch it diverged
// from (ParentID, -1 for the root), the oriented constraints collected
// along the way, and its current status.
type Path struct {
	ID          int
	ParentID    int
	Constraints []*symbolic.Expr
	Status      Status
	Detail      string // trap message, model summary, etc.
}

// PathEvent is sent by the driver (cmd/owi) as exploration progresses.
// It is a tea.Msg: pushing one onto the running program's event loop via
// (*tea.Program).Send updates the tree without blocking interpretation.
type PathEvent struct {
	Path Path
}

var (
	rootStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	unsatStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	trapStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

func styleFor(s Status) lipgloss.Style {
	switch s {
	case StatusRunning:
		return runningStyle
	case StatusCompleted, StatusSat:
		return okStyle
	case StatusUnsat:
		return unsatStyle
	case StatusTrapped:
		return trapStyle
	default:
		return lipgloss.NewStyle()
	}
}

// Model is the bubbletea model backing `owi sym --interactive`.
type Model struct {
	target string
	paths  map[int]Path
	order  []int
	cursor int
}

// New returns a Model with no paths yet, titled with the module/function
// being explored.
func New(target string) Model {
	return Model{target: target, paths: map[int]Path{}}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.order)-1 {
				m.cursor++
			}
		}

	case PathEvent:
		if _, ok := m.paths[msg.Path.ID]; !ok {
			m.order = append(m.order, msg.Path.ID)
		}
		m.paths[msg.Path.ID] = msg.Path
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(rootStyle.Render("symbolic exploration"))
	b.WriteString(" ")
	b.WriteString(m.target)
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString("no paths explored yet\n")
	}

	for i, id := range m.order {
		p := m.paths[id]
		cursor := "  "
		if i == m.cursor {
			cursor = "> "
		}
		label := fmt.Sprintf("path #%d (from #%d) [%d constraints]", p.ID, p.ParentID, len(p.Constraints))
		line := styleFor(p.Status).Render(label + " " + p.Status.String())
		b.WriteString(cursor + line + "\n")
		if i == m.cursor && len(p.Constraints) > 0 {
			for _, c := range p.Constraints {
				b.WriteString("      " + c.String() + "\n")
			}
			if p.Detail != "" {
				b.WriteString("      " + p.Detail + "\n")
			}
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • q quit"))
	return b.String()
}

// Run starts the interactive program and blocks until the user quits.
// The program is returned only after it has exited, so Run offers no way
// to push PathEvent values into a live view; cmd/owi builds its own
// program with tea.NewProgram and calls prog.Send for that.
func Run(target string) (*tea.Program, error) {
	prog := tea.NewProgram(New(target), tea.WithAltScreen())
	_, err := prog.Run()
	return prog, err
}

// Package tui is the bubbletea-based live dashboard for "hopper lode
// watch": a scrolling table of active lodes, colored by lifecycle
// state, updated as the coordinator broadcasts lode_list/lode_updated
// events. Styling follows the teacher repo's lipgloss usage for its own
// status views; falls back to a plain non-interactive dump when stdout
// is not a terminal, using golang.org/x/term to probe for one.
package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/solpbc/hopper/internal/store"
)

var (
	styleStuck  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleReady  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleHeader = lipgloss.NewStyle().Bold(true).Underline(true)
)

type lodesMsg []store.Lode
type errMsg error

type model struct {
	socketPath string
	lodes      []store.Lode
	loaded     bool
	err        error
	updates    chan lodesMsg
	spinner    spinner.Model
}

func newModel(socketPath string) *model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &model{socketPath: socketPath, updates: make(chan lodesMsg, 16), spinner: sp}
}

func (m *model) Init() tea.Cmd {
	go m.listen()
	return tea.Batch(m.waitForUpdate, m.spinner.Tick)
}

func (m *model) waitForUpdate() tea.Msg {
	lodes, ok := <-m.updates
	if !ok {
		return nil
	}
	return lodes
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		if v.String() == "q" || v.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case lodesMsg:
		m.lodes = v
		m.loaded = true
		return m, m.waitForUpdate
	case errMsg:
		m.err = v
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(v)
		return m, cmd
	}
	return m, nil
}

func (m *model) View() string {
	if m.err != nil {
		return fmt.Sprintf("watch: %v\n", m.err)
	}
	if !m.loaded {
		return fmt.Sprintf("%s connecting to coordinator...\n", m.spinner.View())
	}
	out := styleHeader.Render(fmt.Sprintf("%-9s %-8s %-8s %-9s %s", "ID", "PROJECT", "STAGE", "STATE", "TITLE")) + "\n"
	for _, l := range m.lodes {
		out += fmt.Sprintf("%-9s %-8s %-8s %-9s %s\n", l.ID, l.Project, l.Stage, styleFor(l.State).Render(l.State), l.Title)
	}
	out += "\n(q to quit)\n"
	return out
}

func styleFor(state string) lipgloss.Style {
	switch state {
	case store.StateStuck:
		return styleStuck
	case store.StateError:
		return styleError
	case store.StateReady:
		return styleReady
	default:
		return lipgloss.NewStyle()
	}
}

// listen holds one read-only connection to the coordinator, re-fetching
// the lode list on every broadcast that could have changed it.
func (m *model) listen() {
	conn, err := net.Dial("unix", m.socketPath)
	if err != nil {
		m.updates <- nil
		return
	}
	defer conn.Close()

	fetch := func() {
		data, _ := json.Marshal(map[string]any{"type": "lode_list"})
		conn.Write(append(data, '\n'))
	}
	fetch()

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var env map[string]any
			if json.Unmarshal(line, &env) == nil {
				switch env["type"] {
				case "lode_list":
					raw, _ := json.Marshal(env["lodes"])
					var lodes []store.Lode
					json.Unmarshal(raw, &lodes)
					m.updates <- lodes
				case "lode_updated", "lode_created", "lode_archived":
					fetch()
				}
			}
		}
		if err != nil {
			close(m.updates)
			return
		}
	}
}

// Run starts the interactive dashboard, falling back to a single static
// dump when stdout is not a terminal.
func Run(socketPath string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return dumpOnce(socketPath)
	}
	p := tea.NewProgram(newModel(socketPath))
	_, err := p.Run()
	return err
}

func dumpOnce(socketPath string) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	data, _ := json.Marshal(map[string]any{"type": "lode_list"})
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return err
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return err
	}
	var env map[string]any
	if err := json.Unmarshal(line, &env); err != nil {
		return err
	}
	raw, _ := json.Marshal(env["lodes"])
	var lodes []store.Lode
	json.Unmarshal(raw, &lodes)
	for _, l := range lodes {
		fmt.Printf("%-9s %-8s %-8s %-9s %s\n", l.ID, l.Project, l.Stage, l.State, l.Title)
	}
	return nil
}

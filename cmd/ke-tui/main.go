package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BlueBird-project/ke-client-go/pkg/api"
	"github.com/BlueBird-project/ke-client-go/pkg/config"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

const (
	pollRate       = time.Second
	fetchTimeout   = 500 * time.Millisecond
	maxEvents      = 20
	viewportHeight = 20
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(100)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(100)

	eventTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	eventKIStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))

	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

type dataMsg struct {
	health       *api.HealthResponse
	interactions []api.InteractionView
	events       []*store.Event
	err          error
}

type model struct {
	client       *api.Client
	spinner      spinner.Model
	viewport     viewport.Model
	health       *api.HealthResponse
	interactions []api.InteractionView
	events       []*store.Event
	err          error
	ready        bool
}

func newViewport(width int) viewport.Model {
	vp := viewport.New(width, viewportHeight)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return vp
}

func initialModel(c *api.Client) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		client:   c,
		spinner:  s,
		viewport: newViewport(100),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchData(m.client),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchData(m.client), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.health = msg.health
			m.interactions = msg.interactions
			m.events = msg.events
			m.viewport.SetContent(renderEvents(m.events))
			m.viewport.GotoBottom()
		}
		m.ready = true

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
		m.ready = true
	}

	return m, tea.Batch(cmds...)
}

// renderEvents prints the journal oldest first, one line per event.
func renderEvents(events []*store.Event) string {
	var sb strings.Builder
	for _, e := range events {
		typ := string(e.EventType)
		var typeStr string
		switch {
		case strings.Contains(typ, "failed") || typ == string(store.EventTypeKnowledgeBaseClosed):
			typeStr = failStyle.Render(typ)
		case strings.Contains(typ, "registered") || typ == string(store.EventTypeRequestHandled):
			typeStr = goodStyle.Render(typ)
		default:
			typeStr = infoStyle.Render(typ)
		}

		ki := e.Dimensions.InteractionName
		if ki == "" {
			ki = "-"
		}
		fmt.Fprintf(&sb, "%s %s %s\n",
			eventTimeStyle.Render(e.TsEvent.Local().Format("15:04:05")),
			typeStr,
			eventKIStyle.Render(ki),
		)
	}
	return sb.String()
}

func renderInteractions(kis []api.InteractionView) string {
	var sb strings.Builder
	sb.WriteString(lipgloss.NewStyle().Bold(true).Underline(true).Render("Knowledge Interactions") + "\n\n")
	if len(kis) == 0 {
		sb.WriteString(subtleStyle.Render("No interactions declared."))
		return sb.String()
	}
	for _, ki := range kis {
		mark := warnStyle.Render("○")
		if ki.Registered {
			mark = okStyle.Render("●")
		}
		fmt.Fprintf(&sb, "%s %s %s\n", mark, ki.Name, subtleStyle.Render("?"+strings.Join(ki.Vars, " ?")))
	}
	return sb.String()
}

func renderStatus(h *api.HealthResponse, err error, events int) string {
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("Offline: %v", err))
	}
	if h == nil {
		return subtleStyle.Render("Waiting for data")
	}
	role := "follower"
	if h.Leader {
		role = "leader"
	}
	broker := okStyle.Render("connected")
	if !h.Connected {
		broker = warnStyle.Render("disconnected")
	}
	loop := "idle"
	if h.Running {
		loop = "polling"
	}
	return fmt.Sprintf("%s • broker %s • %s • loop %s • %d events", h.KnowledgeBaseID, broker, role, loop, events)
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Initializing...", m.spinner.View())
	}

	topPane := paneStyle.Render(renderInteractions(m.interactions))
	header := headerStyle.Render(fmt.Sprintf("%s Exchange Journal", m.spinner.View()))
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\nPress q to quit", renderStatus(m.health, m.err, len(m.events))))

	return lipgloss.JoinVertical(lipgloss.Left, topPane, header, m.viewport.View(), footer)
}

// Commands

func fetchData(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		health, err := c.Health(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		kis, err := c.Interactions(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		events, err := c.Events(ctx, maxEvents)
		if err != nil {
			// The journal is optional.
			events = nil
		}
		return dataMsg{health: health, interactions: kis, events: events}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	addr := flag.String("addr", envOr("KE_ADMIN_ADDR", config.DefaultAdminAddr), "admin API address")
	flag.Parse()

	p := tea.NewProgram(initialModel(api.NewClient(*addr)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package ui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/theapemachine/superx/pkg/cluster"
	"github.com/theapemachine/superx/pkg/worker"
)

const pollInterval = 3 * time.Second

type healthMsg struct {
	workers []worker.Health
	cluster cluster.Info
}

type errMsg struct{ err error }

type tickMsg time.Time

type workerItem struct{ h worker.Health }

func (w workerItem) Title() string {
	style := lipgloss.NewStyle().Foreground(breakerColor(string(w.h.BreakerState)))
	return style.Render(fmt.Sprintf("%s  [%s]", w.h.AgentID, w.h.BreakerState))
}

func (w workerItem) Description() string {
	return fmt.Sprintf("in-flight %d/%d  failures %d", w.h.InFlight, w.h.MaxInFlight, w.h.FailureCount)
}

func (w workerItem) FilterValue() string { return w.h.AgentID }

type keymap struct {
	refresh key.Binding
	quit    key.Binding
}

func newKeymap() keymap {
	return keymap{
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:    key.NewBinding(key.WithKeys("ctrl+c", "q", "esc"), key.WithHelp("q", "quit")),
	}
}

// Monitor is the "superx monitor" bubbletea model: a worker-health list
// paired with a cluster-peer viewport, both polled from a running
// gateway's own HTTP endpoints.
type Monitor struct {
	baseURL  string
	client   *http.Client
	keymap   keymap
	list     list.Model
	peers    viewport.Model
	status   string
	errorMsg string
	width    int
	height   int
}

func NewMonitor(baseURL string) *Monitor {
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(1)
	delegate.ShortHelpFunc = func() []key.Binding { return nil }
	delegate.FullHelpFunc = func() [][]key.Binding { return nil }

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Workers"
	l.Styles.Title = titleStyle
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	peers := viewport.New(0, 0)

	return &Monitor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		keymap:  newKeymap(),
		list:    l,
		peers:   peers,
		status:  "connecting to " + baseURL,
	}
}

func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.poll, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m *Monitor) poll() tea.Msg {
	var health struct {
		Status  string          `json:"status"`
		Workers []worker.Health `json:"workers"`
	}
	if err := m.getJSON("/health", &health); err != nil {
		return errMsg{err}
	}

	var info cluster.Info
	if err := m.getJSON("/cluster", &info); err != nil {
		return errMsg{err}
	}

	return healthMsg{workers: health.Workers, cluster: info}
}

func (m *Monitor) getJSON(path string, out any) error {
	resp, err := m.client.Get(m.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.quit):
			return m, tea.Quit
		case key.Matches(msg, m.keymap.refresh):
			return m, m.poll
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		listWidth := m.width/2 - 2
		m.list.SetSize(listWidth, m.height-4)
		m.peers.Width = m.width - listWidth - 6
		m.peers.Height = m.height - 4

	case tickMsg:
		return m, tea.Batch(m.poll, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) }))

	case healthMsg:
		items := make([]list.Item, len(msg.workers))
		for i, h := range msg.workers {
			items[i] = workerItem{h: h}
		}
		m.list.SetItems(items)

		peerText := fmt.Sprintf("node: %s\nrole: %s\n\npeers:\n", msg.cluster.NodeID, msg.cluster.Role)
		for _, p := range msg.cluster.Peers {
			peerText += "  - " + p + "\n"
		}
		m.peers.SetContent(peerText)
		m.errorMsg = ""
		m.status = fmt.Sprintf("%d workers, %d peers", len(msg.workers), len(msg.cluster.Peers))
		return m, nil

	case errMsg:
		m.errorMsg = msg.err.Error()
		m.status = "poll failed"
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Monitor) View() string {
	listBox := activeStyle.Width(m.width/2 - 2).Height(m.height - 4).Render(m.list.View())
	peerHeader := headerStyle.Render("CLUSTER")
	peerBox := inactiveStyle.Width(m.width - m.width/2 - 4).Height(m.height - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, peerHeader, m.peers.View()))

	body := lipgloss.JoinHorizontal(0, listBox, peerBox)

	status := m.status
	if m.errorMsg != "" {
		status = errorStyle.Render(m.errorMsg)
	}

	return lipgloss.JoinVertical(lipgloss.Left, body, statusBarStyle.Render(status+"  (r: refresh, q: quit)"))
}

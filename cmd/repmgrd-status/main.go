// Command repmgrd-status is a read-only terminal dashboard over a
// running cluster: it polls the nodes table directly (never the
// daemon) for cluster membership, and optionally scrapes a repmgrd
// instance's /metrics endpoint for its current role, connection state
// and its election/failover counters (cumulative since that daemon
// started).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jackc/pgx/v5"

	"repmgrd/pkg/cluster"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type nodesMsg struct {
	nodes []cluster.NodeInfo
	err   error
}

type metricsMsg struct {
	lines map[string]string
	err   error
}

type model struct {
	conn       *pgx.Conn
	metricsURL string

	nodeTable table.Model
	metrics   map[string]string

	lastErr   error
	width     int
	startTime time.Time
}

func initialModel(conn *pgx.Conn, metricsURL string) model {
	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Name", Width: 16},
		{Title: "Role", Width: 10},
		{Title: "Upstream", Width: 10},
		{Title: "Active", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	t.SetStyles(s)

	return model{
		conn:       conn,
		metricsURL: metricsURL,
		nodeTable:  t,
		startTime:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchNodesCmd(m.conn), fetchMetricsCmd(m.metricsURL), tickCmd())
}

func fetchNodesCmd(conn *pgx.Conn) tea.Cmd {
	return func() tea.Msg {
		dir := cluster.NewNodeDirectory(conn)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		nodes, err := dir.GetAll(ctx)
		return nodesMsg{nodes: nodes, err: err}
	}
}

// fetchMetricsCmd scrapes a repmgrd /metrics endpoint and keeps only
// the gauge/counter lines this dashboard cares about, skipping the
// Prometheus help/type comments and anything this build doesn't name.
func fetchMetricsCmd(url string) tea.Cmd {
	return func() tea.Msg {
		if url == "" {
			return metricsMsg{}
		}
		resp, err := http.Get(url)
		if err != nil {
			return metricsMsg{err: err}
		}
		defer resp.Body.Close()

		wanted := []string{
			"repmgrd_node_role", "repmgrd_connection_up",
			"repmgrd_elections_total", "repmgrd_failover_outcomes_total",
		}
		lines := make(map[string]string)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "#") {
				continue
			}
			for _, w := range wanted {
				if strings.HasPrefix(line, w) {
					lines[line] = line
				}
			}
		}
		return metricsMsg{lines: lines, err: scanner.Err()}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		return m, tea.Batch(fetchNodesCmd(m.conn), fetchMetricsCmd(m.metricsURL), tickCmd())

	case nodesMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.nodeTable.SetRows(nodeRows(msg.nodes))
		}

	case metricsMsg:
		if msg.err == nil && msg.lines != nil {
			m.metrics = msg.lines
		}
	}

	var cmd tea.Cmd
	m.nodeTable, cmd = m.nodeTable.Update(msg)
	return m, cmd
}

func nodeRows(nodes []cluster.NodeInfo) []table.Row {
	rows := make([]table.Row, 0, len(nodes))
	for _, n := range nodes {
		upstream := "-"
		if n.UpstreamNodeID != nil {
			upstream = fmt.Sprintf("%d", *n.UpstreamNodeID)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", n.NodeID), n.NodeName, n.Role.String(), upstream, fmt.Sprintf("%v", n.Active),
		})
	}
	return rows
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("repmgrd-status") + "\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("uptime %s", time.Since(m.startTime).Round(time.Second))) + "\n\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("cluster query failed: %v", m.lastErr)) + "\n\n")
	}

	b.WriteString(m.nodeTable.View() + "\n")

	if len(m.metrics) > 0 {
		b.WriteString("\n" + titleStyle.Render("metrics") + "\n")
		keys := make([]string, 0, len(m.metrics))
		for k := range m.metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("  " + m.metrics[k] + "\n")
		}
	}

	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

func main() {
	conninfo := flag.String("c", "", "Postgres conninfo to read cluster membership from (required)")
	metricsURL := flag.String("metrics-url", "", "repmgrd /metrics URL to overlay live role/connection state, e.g. http://localhost:9191/metrics")
	flag.Parse()

	if *conninfo == "" {
		fmt.Fprintln(os.Stderr, "repmgrd-status: -c <conninfo> is required")
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, *conninfo)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	p := tea.NewProgram(initialModel(conn, *metricsURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("error running program: %v", err)
	}
}

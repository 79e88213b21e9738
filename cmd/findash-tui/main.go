package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"findash/internal/chat"
	"findash/internal/dashboard"
	"findash/internal/domain"
	"findash/internal/live"
	"findash/internal/util"
	"findash/pkg/findash"
)

// Styles.
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	gainStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Messages.
type panelMsg struct {
	panel   *findash.Panel
	filters findash.FilterState
	err     error
}

type chatMsg struct {
	messages []findash.ChatMessage
	err      error
}

type statusMsg string

type livePointMsg domain.RevenuePoint

type liveErrMsg struct{ err error }

// Model.
type model struct {
	client  *findash.Client
	session string
	logger  *slog.Logger

	filters  findash.FilterState
	panel    *findash.Panel
	messages []findash.ChatMessage
	revenue  *live.Window
	status   string
	busy     bool

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int
	height   int
}

func initialModel(c *findash.Client, s *findash.Session, logger *slog.Logger) model {
	ti := textinput.New()
	ti.Placeholder = "ask a question, or /help"
	ti.Prompt = "> "
	ti.CharLimit = 500
	ti.Focus()

	m := model{
		client:   c,
		session:  s.ID,
		logger:   logger,
		filters:  s.Filters,
		panel:    s.Panel,
		messages: []findash.ChatMessage{{Role: domain.RoleAssistant, Content: chat.Greeting}},
		revenue:  live.NewWindow(live.DefaultWindow),
		input:    ti,
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchPanel())
}

func (m model) fetchPanel() tea.Cmd {
	c, id := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		p, err := c.Panel(ctx, id)
		return panelMsg{panel: p, err: err}
	}
}

func (m model) applyPatch(p findash.Patch) tea.Cmd {
	c, id := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		s, err := c.UpdateFilters(ctx, id, p)
		if err != nil {
			return panelMsg{err: err}
		}
		return panelMsg{panel: s.Panel, filters: s.Filters}
	}
}

func (m model) ask(question string) tea.Cmd {
	c, id := m.client, m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		resp, err := c.Ask(ctx, id, question)
		if err != nil {
			return chatMsg{err: err}
		}
		return chatMsg{messages: resp.Messages}
	}
}

func (m model) clearChat() tea.Cmd {
	c, id := m.client, m.session
	return func() tea.Msg {
		msgs, err := c.ClearChat(context.Background(), id)
		return chatMsg{messages: msgs, err: err}
	}
}

func (m model) saveChart(title string) tea.Cmd {
	c, id := m.client, m.session
	return func() tea.Msg {
		chartID, err := c.SaveChart(context.Background(), id, title)
		if err != nil {
			return statusMsg("save failed: " + err.Error())
		}
		return statusMsg("saved chart " + chartID)
	}
}

var tabOrder = []domain.Tab{domain.TabMetrics, domain.TabPeers, domain.TabIndustry}

func nextTab(t domain.Tab) domain.Tab {
	for i, x := range tabOrder {
		if x == t {
			return tabOrder[(i+1)%len(tabOrder)]
		}
	}
	return domain.TabMetrics
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			t := nextTab(m.filters.Tab)
			m.filters.Tab = t
			m.busy = true
			m.refresh()
			return m, m.applyPatch(findash.Patch{Tab: &t})
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			cmd := m.handleLine(line)
			m.refresh()
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 3
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.input.Width = m.width - 4
		m.refresh()

	case panelMsg:
		m.busy = false
		if msg.err != nil {
			m.status = msg.err.Error()
			m.logger.Warn("panel update failed", "error", msg.err)
			var apiErr *findash.Error
			if errors.As(msg.err, &apiErr) && apiErr.Status == 409 {
				// A newer change superseded this one; its result is on the way.
				m.status = ""
			}
		} else {
			m.panel = msg.panel
			if msg.filters.Period != "" {
				m.filters = msg.filters
			}
			m.status = ""
		}
		m.refresh()

	case chatMsg:
		m.busy = false
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.messages = msg.messages
		}
		m.refresh()
		m.viewport.GotoBottom()

	case statusMsg:
		m.status = string(msg)
		m.refresh()

	case livePointMsg:
		m.revenue.Add(domain.RevenuePoint(msg))
		m.refresh()

	case liveErrMsg:
		m.status = "live feed: " + msg.err.Error()
		m.refresh()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

const helpText = "/ticker T  /metrics a,b  /period 5Y  /tab metrics|peers|industry  /peer add|remove T[:Name]  " +
	"/peermetric m  /industry name  /imetrics a,b  /select T  /clear  /save [title]"

// handleLine runs a slash command or sends the line as a chat question.
func (m *model) handleLine(line string) tea.Cmd {
	if !strings.HasPrefix(line, "/") {
		m.messages = append(m.messages, findash.ChatMessage{Role: domain.RoleUser, Content: line})
		m.busy = true
		return m.ask(line)
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	var p findash.Patch
	switch cmd {
	case "help":
		m.status = helpText
		return nil
	case "clear":
		return m.clearChat()
	case "save":
		return m.saveChart(arg)
	case "ticker":
		p.Ticker = &arg
	case "metrics":
		list := splitList(arg)
		p.Metrics = &list
	case "period":
		period, err := domain.ParsePeriod(arg)
		if err != nil {
			m.status = err.Error()
			return nil
		}
		p.Period = &period
	case "tab":
		t := domain.Tab(arg)
		p.Tab = &t
	case "peer":
		op, who, _ := strings.Cut(arg, " ")
		switch op {
		case "add":
			p.AddPeer = who
		case "remove":
			p.RemovePeer = who
		default:
			m.status = "usage: /peer add|remove TICKER[:Name]"
			return nil
		}
	case "peermetric":
		p.PeerMetric = &arg
	case "industry":
		p.Industry = &arg
	case "imetrics":
		list := splitList(arg)
		p.IndustryMetrics = &list
	case "select":
		p.SelectedTicker = &arg
	default:
		m.status = "unknown command /" + cmd + "; try /help"
		return nil
	}
	m.busy = true
	return m.applyPatch(p)
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m *model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	headerText := fmt.Sprintf(" findash  %s    tab: %s    period: %s ", m.filters.Ticker, m.filters.Tab, m.filters.Period)
	if m.busy {
		headerText += "   loading... "
	}
	headerBar := headerStyle.Render(dashboard.PadOrTrunc(headerText, m.width))

	footerText := " tab switch tab  enter send  pgup/dn scroll  esc quit"
	if m.status != "" {
		footerText = " " + m.status
	}
	footerBar := footerStyle.Render(dashboard.PadOrTrunc(footerText, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + m.input.View() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder

	p := m.panel
	switch {
	case p == nil:
		b.WriteString(dimStyle.Render("  Loading..."))
		b.WriteString("\n")
	default:
		b.WriteString(sectionStyle.Render(p.Title))
		b.WriteString("\n")
		if p.Error != "" {
			b.WriteString(errorStyle.Render("  " + p.Error))
			b.WriteString("\n")
		} else if p.Message != "" {
			b.WriteString(dimStyle.Render("  " + p.Message))
			b.WriteString("\n")
		}
		for _, w := range p.Warnings {
			b.WriteString(warnStyle.Render("  " + w))
			b.WriteString("\n")
		}
		for _, line := range dashboard.TextTable(p, 14) {
			b.WriteString("  " + line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Live revenue"))
	b.WriteString("\n")
	pts := m.revenue.Snapshot()
	if len(pts) == 0 {
		b.WriteString(dimStyle.Render("  waiting for data"))
		b.WriteString("\n")
	}
	for _, pt := range pts {
		profit := dashboard.FormatValue(&pt.Profit)
		style := gainStyle
		if pt.Profit < 0 {
			style = lossStyle
		}
		fmt.Fprintf(&b, "  %-12s %12s  %s\n", pt.Period, dashboard.FormatValue(&pt.Revenue), style.Render(fmt.Sprintf("%12s", profit)))
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Chat"))
	b.WriteString("\n")
	for _, msg := range m.messages {
		if msg.Role == domain.RoleUser {
			b.WriteString(userStyle.Render("  you: "))
		} else {
			b.WriteString(botStyle.Render("  bot: "))
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// followLive relays the session's revenue WebSocket into the program until
// ctx ends.
func followLive(ctx context.Context, url string, p *tea.Program, logger *slog.Logger) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		logger.Warn("live feed unavailable", "url", url, "error", err)
		p.Send(liveErrMsg{err})
		return
	}
	defer conn.CloseNow()

	for {
		var pt domain.RevenuePoint
		if err := wsjson.Read(ctx, conn, &pt); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Warn("live feed ended", "error", err)
				p.Send(liveErrMsg{err})
			}
			return
		}
		p.Send(livePointMsg(pt))
	}
}

func main() {
	ticker := flag.String("ticker", "", "initial company ticker")
	metricsFlag := flag.String("metrics", "", "initial comma-separated metrics")
	period := flag.String("period", string(domain.DefaultPeriod), "initial period")
	flag.Parse()

	serverURL := "http://localhost:8080"
	if u := os.Getenv("FINDASH_URL"); u != "" {
		serverURL = u
	}

	logFile, err := util.OpenDailyLog("findash-tui")
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(logFile, "info", "text")

	per, err := domain.ParsePeriod(*period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	initial := findash.Patch{Period: &per}
	if *ticker != "" {
		initial.Ticker = ticker
	}
	if *metricsFlag != "" {
		list := splitList(*metricsFlag)
		initial.Metrics = &list
	}

	client := findash.NewClient(serverURL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := client.CreateSession(ctx, &initial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating session: %v\n", err)
		os.Exit(1)
	}
	defer client.DeleteSession(context.Background(), sess.ID)
	logger.Info("session created", "session", sess.ID, "server", serverURL)

	p := tea.NewProgram(
		initialModel(client, sess, logger),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	go followLive(ctx, client.LiveURL(sess.ID), p, logger)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/aiprl/april/pkg/agent"
	"github.com/aiprl/april/pkg/client"
	"github.com/aiprl/april/pkg/relay"
	"github.com/aiprl/april/pkg/tools"
)

var (
	chatServer string
	chatTenant string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with April in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(chatServer)
		info, err := c.CreateSession(cmd.Context(), chatTenant)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		p := tea.NewProgram(initialChatModel(cmd.Context(), c, info), tea.WithAltScreen())
		_, err = p.Run()
		return err
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatServer, "server", "http://localhost:8001", "april server URL")
	chatCmd.Flags().StringVar(&chatTenant, "tenant", "", "tenant ID")
	chatCmd.MarkFlagRequired("tenant")
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	activityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(2)

	messageStyle = lipgloss.NewStyle().PaddingLeft(2)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

type chatEntry struct {
	role  string // "user" or "april"
	text  string
	calls []agent.FunctionCallEvent
	err   string
}

type activityMsg relay.ActivityState

type turnDoneMsg struct {
	message relay.Message
	err     error
}

type chatModel struct {
	ctx     context.Context
	client  *client.Client
	session client.SessionInfo

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer

	entries  []chatEntry
	activity relay.ActivityState
	turning  bool
	cancel   context.CancelFunc
	updates  chan relay.ActivityState
	results  chan turnDoneMsg

	width  int
	height int
	err    error
}

func initialChatModel(ctx context.Context, c *client.Client, info client.SessionInfo) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask April..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 280
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Connected. Ask about contacts, deals, calendar or messages.")

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(78))

	return chatModel{
		ctx:      ctx,
		client:   c,
		session:  info,
		viewport: vp,
		textarea: ta,
		renderer: renderer,
		updates:  make(chan relay.ActivityState, 16),
		results:  make(chan turnDoneMsg, 1),
	}
}

func (m chatModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m chatModel) waitActivity() tea.Cmd {
	return func() tea.Msg {
		return activityMsg(<-m.updates)
	}
}

func (m chatModel) waitResult() tea.Cmd {
	return func() tea.Msg {
		return <-m.results
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var tiCmd, vpCmd tea.Cmd
	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		m.textarea.SetWidth(msg.Width - 2)
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			// Abort the in-flight turn; the reducer lands in Idle with
			// nothing committed.
			if m.turning && m.cancel != nil {
				m.cancel()
			}
		case tea.KeyEnter:
			if !m.turning && strings.TrimSpace(m.textarea.Value()) != "" {
				return m.sendMessage()
			}
		}

	case activityMsg:
		m.activity = relay.ActivityState(msg)
		m.refreshViewport()
		return m, tea.Batch(tiCmd, vpCmd, m.waitActivity())

	case turnDoneMsg:
		m.turning = false
		m.cancel = nil
		m.activity = relay.ActivityState{}
		if msg.err != nil {
			if !errors.Is(msg.err, client.ErrAborted) {
				m.err = msg.err
			}
		} else {
			m.entries = append(m.entries, chatEntry{
				role:  "april",
				text:  msg.message.Text,
				calls: msg.message.Calls,
				err:   msg.message.Err,
			})
		}
		m.refreshViewport()
	}

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m chatModel) sendMessage() (chatModel, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	m.entries = append(m.entries, chatEntry{role: "user", text: text})
	m.err = nil
	m.turning = true

	turnCtx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel

	updates := m.updates
	results := m.results
	c := m.client
	info := m.session
	go func() {
		reducer := relay.NewReducer()
		message, err := c.Turn(turnCtx, info.TenantID, info.SessionID, text, reducer, func(state relay.ActivityState) {
			select {
			case updates <- state:
			default:
			}
		})
		results <- turnDoneMsg{message: message, err: err}
	}()

	m.refreshViewport()
	return m, tea.Batch(m.waitActivity(), m.waitResult())
}

func (m *chatModel) refreshViewport() {
	var b strings.Builder
	for _, e := range m.entries {
		if e.role == "user" {
			b.WriteString(userStyle.Render("You") + "\n")
			b.WriteString(messageStyle.Render(e.text) + "\n\n")
			continue
		}
		b.WriteString(agentStyle.Render("April") + "\n")
		for _, call := range e.calls {
			meta := tools.KindOf(call.Name).Display()
			b.WriteString(activityStyle.Render(fmt.Sprintf("%s %s · %s", meta.Icon, meta.Label, call.Name)) + "\n")
		}
		switch {
		case e.err != "":
			b.WriteString(errorStyle.Render("Error: "+e.err) + "\n\n")
		default:
			b.WriteString(m.renderMarkdown(e.text) + "\n")
		}
	}

	if m.turning {
		b.WriteString(agentStyle.Render("April") + "\n")
		for _, ev := range m.activity.LiveEvents {
			switch {
			case ev.FunctionCall != nil:
				meta := tools.KindOf(ev.FunctionCall.Name).Display()
				b.WriteString(activityStyle.Render(fmt.Sprintf("%s %s · %s...", meta.Icon, meta.Label, ev.FunctionCall.Name)) + "\n")
			case ev.FunctionResponse != nil:
				meta := tools.KindOf(ev.FunctionResponse.Name).Display()
				b.WriteString(activityStyle.Render(fmt.Sprintf("%s %s · %s done", meta.Icon, meta.Label, ev.FunctionResponse.Name)) + "\n")
			}
		}
		if m.activity.StreamingText != "" {
			b.WriteString(messageStyle.Render(m.activity.StreamingText) + "\n")
		} else if len(m.activity.LiveEvents) == 0 {
			b.WriteString(activityStyle.Render("thinking...") + "\n")
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) renderMarkdown(text string) string {
	if m.renderer == nil {
		return messageStyle.Render(text)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return messageStyle.Render(text)
	}
	return strings.TrimRight(out, "\n")
}

func (m chatModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("April · %s", m.session.TenantID))
	help := activityStyle.Render("enter: send · esc: cancel turn · ctrl+c: quit")
	errLine := ""
	if m.err != nil {
		errLine = "\n" + errorStyle.Render(m.err.Error())
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s%s", title, m.viewport.View(), m.textarea.View(), help, errLine)
}

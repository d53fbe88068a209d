package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"atelier/pkg/client"
	"atelier/pkg/models"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	metaStyle      = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type options struct {
	baseURL    string
	agent      string
	mode       string
	projectKey string
}

// chunkMsg carries one raw fragment read from the response body.
type chunkMsg []byte

type streamDoneMsg struct{ err error }

type model struct {
	opts     options
	input    textinput.Model
	view     viewport.Model
	spin     spinner.Model
	history  []models.Message
	turn     *client.Reassembler
	chunks   chan []byte
	errText  string
	waiting  bool
	ready    bool
	quitting bool
}

func newModel(opts options) model {
	ti := textinput.New()
	ti.Placeholder = "Ask " + opts.agent + " something..."
	ti.Focus()
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{opts: opts, input: ti, spin: sp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.view = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = msg.Height - 4
		}
		m.view.SetContent(m.transcript())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			m.input.Reset()
			m.errText = ""
			m.waiting = true
			m.turn = client.Begin(m.history, text)
			m.chunks = make(chan []byte, 16)
			m.refresh()
			return m, tea.Batch(m.startTurn(text), m.waitChunk(), m.spin.Tick)
		}

	case chunkMsg:
		if m.turn != nil {
			m.turn.Feed(msg)
			m.refresh()
		}
		return m, m.waitChunk()

	case streamDoneMsg:
		m.waiting = false
		if msg.err != nil {
			m.errText = msg.err.Error()
		} else if m.turn != nil {
			if e := m.turn.Err(); e != "" {
				m.errText = e
			}
			m.history = m.turn.Messages()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "loading..."
	}
	status := metaStyle.Render(fmt.Sprintf("agent=%s mode=%s", m.opts.agent, m.opts.mode))
	if m.waiting {
		status = m.spin.View() + " " + status
	}
	if m.errText != "" {
		status += "  " + errorStyle.Render(m.errText)
	}
	return titleStyle.Render("atelier") + "\n" + m.view.View() + "\n" + status + "\n" + m.input.View()
}

// refresh re-renders the transcript into the viewport and scrolls down.
func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.transcript())
	m.view.GotoBottom()
}

func (m *model) transcript() string {
	msgs := m.history
	if m.turn != nil {
		msgs = m.turn.Messages()
	}
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Render("you: ") + msg.Content + "\n\n")
		case models.RoleAssistant:
			b.WriteString(assistantStyle.Render(msg.Content))
			for _, c := range msg.Citations {
				b.WriteString("\n" + metaStyle.Render("  [source] "+c.Title))
			}
			for _, a := range msg.Attachments {
				line := fmt.Sprintf("  [%s %s] %s", a.Kind, a.Status, a.Locator)
				if a.Error != "" {
					line = fmt.Sprintf("  [%s %s] %s", a.Kind, a.Status, a.Error)
				}
				b.WriteString("\n" + metaStyle.Render(line))
			}
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// startTurn posts the message and pumps body fragments into m.chunks.
func (m model) startTurn(text string) tea.Cmd {
	opts := m.opts
	ch := m.chunks
	return func() tea.Msg {
		body, _ := json.Marshal(map[string]any{
			"agent":       opts.agent,
			"message":     text,
			"mode":        opts.mode,
			"project_key": opts.projectKey,
		})
		resp, err := http.Post(opts.baseURL+"/v1/turn", "application/json", bytes.NewReader(body))
		if err != nil {
			close(ch)
			return streamDoneMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			close(ch)
			return streamDoneMsg{err: fmt.Errorf("server: %s", strings.TrimSpace(string(msg)))}
		}
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				frag := make([]byte, n)
				copy(frag, buf[:n])
				ch <- frag
			}
			if err != nil {
				close(ch)
				if err == io.EOF {
					return streamDoneMsg{}
				}
				return streamDoneMsg{err: err}
			}
		}
	}
}

// waitChunk delivers the next fragment to Update, or nothing when the
// channel is drained.
func (m model) waitChunk() tea.Cmd {
	ch := m.chunks
	return func() tea.Msg {
		frag, ok := <-ch
		if !ok {
			return nil
		}
		return chunkMsg(frag)
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://127.0.0.1:8080", "atelier server base URL")
	flag.StringVar(&opts.agent, "agent", "studio", "agent persona to talk to")
	flag.StringVar(&opts.mode, "mode", "hybrid", "retrieval mode: generic, project or hybrid")
	flag.StringVar(&opts.projectKey, "project", "", "project key for scoped retrieval")
	flag.Parse()

	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}

// Package tui is the full-screen host adapter over the session
// controller. It owns no transcript state: it renders controller
// snapshots and forwards input.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"story_draft_agent/internal/export"
	"story_draft_agent/internal/session"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	previewStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	savedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	citationStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	bannerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func helpText(ctrl *session.Controller) string {
	var parts []string
	for _, g := range ctrl.Registry().Generators() {
		usage := strings.TrimSpace(g.Usage)
		if usage == "" {
			usage = "/" + g.Name + " <objective>"
		}
		parts = append(parts, usage)
	}
	parts = append(parts, "/approve [n]", "/reset", "/export [file]", "/exit")
	return "Commands: " + strings.Join(parts, " · ")
}

// Run starts the full-screen UI. It requires a TTY on out.
func Run(ctx context.Context, ctrl *session.Controller, in io.Reader, out io.Writer) error {
	if ctrl == nil {
		return errors.New("session controller is required")
	}
	if f, ok := out.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("stdout is not a TTY; use --ui=plain")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, ctrl)
	ctrl.Subscribe(func(s session.State) {
		m.events <- stateMsg{State: s}
	})

	prog := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	_, err := prog.Run()
	return err
}

type stateMsg struct {
	State session.State
}

type noticeMsg struct {
	Text string
}

type tickMsg struct{}

type model struct {
	ctx  context.Context
	ctrl *session.Controller

	events chan tea.Msg

	width  int
	height int

	input    textinput.Model
	viewport viewport.Model

	state        session.State
	notice       string
	spinnerFrame int
}

func newModel(ctx context.Context, ctrl *session.Controller) model {
	inp := textinput.New()
	inp.Placeholder = "Type a message or /help…"
	inp.Prompt = "› "
	inp.CharLimit = 0
	inp.Focus()

	vp := viewport.New(0, 0)
	vp.SetContent("")

	return model{
		ctx:      ctx,
		ctrl:     ctrl,
		events:   make(chan tea.Msg, 128),
		input:    inp,
		viewport: vp,
		state:    ctrl.Snapshot(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitEventCmd(m.events), tickCmd())
}

func waitEventCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.rerender()
		return m, nil
	case stateMsg:
		m.state = msg.State
		m.rerender()
		return m, waitEventCmd(m.events)
	case noticeMsg:
		m.notice = msg.Text
		return m, waitEventCmd(m.events)
	case tickMsg:
		if m.state.Phase == session.PhaseAwaiting {
			m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		}
		return m, tickCmd()
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleSubmit()
		case tea.KeyPgUp:
			m.viewport.HalfViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.viewport.HalfViewDown()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	switch {
	case text == "/exit" || text == "/quit":
		return m, tea.Quit
	case text == "/help":
		m.input.SetValue("")
		m.notice = helpText(m.ctrl)
		return m, nil
	case text == "/reset":
		m.input.SetValue("")
		m.notice = ""
		m.ctrl.Reset()
		return m, nil
	case strings.HasPrefix(text, "/export"):
		m.input.SetValue("")
		m.notice = m.runExport(strings.TrimSpace(strings.TrimPrefix(text, "/export")))
		return m, nil
	case strings.HasPrefix(text, "/approve"):
		m.input.SetValue("")
		return m.handleApprove(strings.TrimSpace(strings.TrimPrefix(text, "/approve")))
	}

	if m.state.Phase != session.PhaseIdle {
		m.notice = "still waiting on the previous request"
		return m, nil
	}

	m.input.SetValue("")
	m.notice = ""
	ctrl := m.ctrl
	ctx := m.ctx
	events := m.events
	go func() {
		if err := ctrl.Submit(ctx, text); err != nil {
			events <- noticeMsg{Text: err.Error()}
		}
	}()
	return m, nil
}

func (m model) handleApprove(arg string) (tea.Model, tea.Cmd) {
	index, err := resolveApproveTarget(m.state, arg)
	if err != nil {
		m.notice = err.Error()
		return m, nil
	}

	m.notice = ""
	ctrl := m.ctrl
	ctx := m.ctx
	events := m.events
	go func() {
		if err := ctrl.Approve(ctx, index); err != nil {
			events <- noticeMsg{Text: err.Error()}
		}
	}()
	return m, nil
}

// resolveApproveTarget maps a preview number (as rendered) to a transcript
// index. An empty argument targets the newest unapproved preview.
func resolveApproveTarget(s session.State, arg string) (int, error) {
	previews := previewIndexes(s)
	if len(previews) == 0 {
		return 0, errors.New("nothing to approve yet")
	}
	if arg == "" {
		for i := len(previews) - 1; i >= 0; i-- {
			idx := previews[i]
			if !s.Turns[idx].Generation.Saved() {
				return idx, nil
			}
		}
		return 0, errors.New("every preview is already saved")
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(previews) {
		return 0, fmt.Errorf("no preview #%s; use /approve with a number between 1 and %d", arg, len(previews))
	}
	return previews[n-1], nil
}

func previewIndexes(s session.State) []int {
	var out []int
	for i, t := range s.Turns {
		if t.Generation != nil {
			out = append(out, i)
		}
	}
	return out
}

func (m model) runExport(path string) string {
	if path == "" {
		path = "transcript.html"
	}
	if err := export.WriteHTML(path, m.ctrl.Snapshot()); err != nil {
		return "export failed: " + err.Error()
	}
	return "transcript exported to " + path
}

func (m *model) resize() {
	inputHeight := 3
	m.viewport.Width = m.width
	m.viewport.Height = m.height - inputHeight
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	m.input.Width = m.width - 4
}

func (m *model) rerender() {
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.state, m.viewport.Width))
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	status := ""
	if m.state.Phase == session.PhaseAwaiting {
		status = spinnerFrames[m.spinnerFrame] + " waiting for the backend…"
	} else if m.state.Banner != "" {
		status = bannerStyle.Render("Error: " + m.state.Banner)
	} else if m.notice != "" {
		status = noticeStyle.Render(m.notice)
	}
	b.WriteString(status)
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func renderTranscript(s session.State, width int) string {
	if width <= 0 {
		width = 80
	}
	var blocks []string
	previewNum := 0
	for _, turn := range s.Turns {
		var b strings.Builder
		if turn.Speaker == session.SpeakerUser {
			b.WriteString(userStyle.Render("You"))
		} else {
			b.WriteString(assistantStyle.Render("Assistant"))
		}
		b.WriteString("\n")

		if strings.TrimSpace(turn.Text) != "" {
			b.WriteString(wrap(turn.Text, width))
			b.WriteString("\n")
		}

		if g := turn.Generation; g != nil {
			previewNum++
			header := fmt.Sprintf("— %s preview #%d —", g.Kind, previewNum)
			b.WriteString(previewStyle.Render(header))
			b.WriteString("\n")
			b.WriteString(wrap(g.PreviewBody, width))
			b.WriteString("\n")
			switch {
			case g.Saved():
				b.WriteString(savedStyle.Render("Saved: " + g.SavedLocation))
				b.WriteString("\n")
			case g.LastError != "":
				b.WriteString(errorStyle.Render("Approval failed: " + g.LastError))
				b.WriteString("\n")
				b.WriteString(noticeStyle.Render(fmt.Sprintf("Retry with /approve %d", previewNum)))
				b.WriteString("\n")
			default:
				b.WriteString(noticeStyle.Render(fmt.Sprintf("Approve with /approve %d", previewNum)))
				b.WriteString("\n")
			}
		}

		if len(turn.Citations) > 0 {
			refs := make([]string, len(turn.Citations))
			for i, c := range turn.Citations {
				refs[i] = c.Ref
			}
			b.WriteString(citationStyle.Render("Sources: " + strings.Join(refs, ", ")))
			b.WriteString("\n")
		}

		blocks = append(blocks, strings.TrimRight(b.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n")
}

// wrap breaks text to the given display width, keeping existing newlines.
func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	if runewidth.StringWidth(line) <= width {
		return []string{line}
	}
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{line}
	}
	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if runewidth.StringWidth(candidate) > width && current != "" {
			lines = append(lines, current)
			current = word
			continue
		}
		current = candidate
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

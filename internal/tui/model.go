package tui

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"podnote/internal/app"
	"podnote/internal/theme"
	"podnote/internal/wizard"
)

// maxMessages bounds the command output kept under the step view.
const maxMessages = 6

// configEditedMsg reports the end of an interactive config edit.
type configEditedMsg struct {
	result app.CommandResult
	err    error
}

// configEditor runs the survey prompts while the program has released the
// terminal.
type configEditor struct {
	ctx    context.Context
	app    *app.App
	result app.CommandResult
}

func (e *configEditor) Run() error {
	result, err := e.app.EditConfig(e.ctx)
	e.result = result
	return err
}

func (e *configEditor) SetStdin(io.Reader)  {}
func (e *configEditor) SetStdout(io.Writer) {}
func (e *configEditor) SetStderr(io.Writer) {}

func (m model) editConfig() tea.Cmd {
	editor := &configEditor{ctx: m.ctx, app: m.app}
	return tea.Exec(editor, func(err error) tea.Msg {
		return configEditedMsg{result: editor.result, err: err}
	})
}

// eventMsg carries a completion of background wizard work into Update.
type eventMsg struct {
	event wizard.Event
}

type model struct {
	ctx      context.Context
	app      *app.App
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	theme    theme.Theme
	history  []string
	messages []string
	// preview holds a rendered note shown instead of the step body.
	preview  string
	ready    bool
	follow   bool
	width    int
	quitting bool
}

func newModel(ctx context.Context, application *app.App) model {
	ti := textinput.New()
	ti.Placeholder = "/help"
	ti.Focus()
	ti.Prompt = "podnote> "
	ti.CharLimit = 4096
	ti.Width = 80

	th := theme.ForName(application.Config().ColorTheme)
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = th.Status

	return model{
		ctx:     ctx,
		app:     application,
		input:   ti,
		spinner: sp,
		theme:   th,
		history: make([]string, 0, 32),
		follow:  true,
		messages: []string{
			th.Message.Render("Podcast note wizard ready. Type /help for commands."),
		},
	}
}

func waitForEvent(events <-chan wizard.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{event: ev}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.app.Events()))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case eventMsg:
		m.app.Dispatch(m.ctx, msg.event)
		cmds = append(cmds, waitForEvent(m.app.Events()))
	case configEditedMsg:
		if msg.err != nil {
			m.addMessage(m.theme.Error.Render(msg.err.Error()))
		} else if msg.result.Message != "" {
			m.addMessage(msg.result.Message)
		}
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			if m.preview != "" {
				m.preview = ""
				break
			}
			if m.app.Session().Streaming != wizard.StreamNone {
				m.app.Dispatch(m.ctx, wizard.StreamAborted{})
			}
		case tea.KeyEnter:
			return m.handleSubmit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.follow = m.viewport.AtBottom()
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.refresh()
	return m, tea.Batch(cmds...)
}

func (m *model) resize(width, height int) {
	m.width = width
	m.input.Width = max(width-len(m.input.Prompt)-1, 10)
	// Header, status, messages and the prompt share the remaining rows.
	bodyHeight := max(height-maxMessages-5, 3)
	if !m.ready {
		m.viewport = viewport.New(width, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = bodyHeight
	}
	m.refresh()
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.body())
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m model) body() string {
	if m.preview != "" {
		return m.preview
	}
	return renderStep(m.app.Session(), m.theme)
}

func (m model) View() string {
	s := m.app.Session()
	var b strings.Builder
	b.WriteString(renderHeader(s.Step, m.theme))
	b.WriteString("\n\n")
	if m.ready {
		b.WriteString(m.viewport.View())
	} else {
		b.WriteString(m.body())
	}
	b.WriteString("\n")
	if line := renderStatus(s, m.theme); line != "" {
		if s.Busy() || s.Polling {
			b.WriteString(m.spinner.View())
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, message := range m.messages {
		b.WriteString(message)
		b.WriteString("\n")
	}
	b.WriteString(m.input.View())
	if !m.quitting {
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	command := strings.TrimSpace(m.input.Value())
	if command != "" {
		m.history = append(m.history, command)
	}
	m.input.SetValue("")

	if command == "" {
		return m, nil
	}
	m.preview = ""
	m.follow = true

	result, err := m.app.Execute(m.ctx, command)
	if err != nil {
		m.addMessage(m.theme.Error.Render(err.Error()))
		m.refresh()
		return m, nil
	}

	if result.Message != "" {
		m.addMessage(result.Message)
	}
	if result.Preview != "" {
		m.preview = result.Preview
		m.follow = false
	}

	if result.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	if result.EditConfig {
		return m, m.editConfig()
	}

	m.refresh()
	if !m.follow {
		m.viewport.GotoTop()
	}
	return m, nil
}

func (m *model) addMessage(message string) {
	m.messages = append(m.messages, message)
	if len(m.messages) > maxMessages {
		m.messages = m.messages[len(m.messages)-maxMessages:]
	}
}

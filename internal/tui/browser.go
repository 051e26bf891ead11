// Package tui is a terminal stand-in for the system browser used by OAuth sign-in.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brizzai/diary-auth/internal/session"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// BrowserModel shows the authorization URL and reads back the redirect the user landed on
type BrowserModel struct {
	authURL   string
	returnURL string
	input     textinput.Model
	result    session.BrowserResult
	err       string
	done      bool
}

// NewBrowserModel creates a model with a focused input
func NewBrowserModel(authURL, returnURL string) BrowserModel {
	ti := textinput.New()
	ti.Placeholder = returnURL + "?code=..."
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.Focus()

	return BrowserModel{
		authURL:   authURL,
		returnURL: returnURL,
		input:     ti,
		result:    session.BrowserResult{Type: session.ResultDismiss},
	}
}

func (m BrowserModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			m.result = session.BrowserResult{Type: session.ResultDismiss}
			m.done = true
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if !strings.HasPrefix(value, m.returnURL) {
				m.err = fmt.Sprintf("the redirect must start with %s", m.returnURL)
				return m, nil
			}
			m.result = session.BrowserResult{Type: session.ResultSuccess, URL: value}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m BrowserModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sign in with Google"))
	b.WriteString("\n\nOpen this page in your browser:\n\n")
	b.WriteString(urlStyle.Render(m.authURL))
	b.WriteString("\n\nThen paste the address you were sent to:\n\n")
	b.WriteString(m.input.View())
	if m.err != "" {
		b.WriteString("\n\n" + statusMessageStyle(m.err))
	}
	b.WriteString("\n\n" + hintStyle("enter to continue, esc to cancel"))
	return docStyle.Render(b.String())
}

// Result is how the session ended, dismiss until the user submits a redirect
func (m BrowserModel) Result() session.BrowserResult {
	return m.result
}

// TerminalBrowser implements session.Browser with a bubbletea program
type TerminalBrowser struct {
	opts []tea.ProgramOption
}

func NewTerminalBrowser(opts ...tea.ProgramOption) *TerminalBrowser {
	return &TerminalBrowser{opts: opts}
}

func (b *TerminalBrowser) Open(ctx context.Context, authURL, returnURL string) (session.BrowserResult, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, b.opts...)
	p := tea.NewProgram(NewBrowserModel(authURL, returnURL), opts...)

	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return session.BrowserResult{}, ctxErr
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return session.BrowserResult{Type: session.ResultCancel}, nil
		}
		return session.BrowserResult{}, fmt.Errorf("terminal browser: %w", err)
	}

	model, ok := final.(BrowserModel)
	if !ok {
		return session.BrowserResult{}, fmt.Errorf("terminal browser: unexpected model %T", final)
	}
	return model.Result(), nil
}

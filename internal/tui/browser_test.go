package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/brizzai/diary-auth/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAuthURL   = "https://accounts.google.com/o/oauth2/auth?state=simplediaryapp"
	testReturnURL = "simplediaryapp://auth/callback"
)

func typeText(m tea.Model, text string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestBrowserModelSubmitsRedirect(t *testing.T) {
	var m tea.Model = NewBrowserModel(testAuthURL, testReturnURL)
	m = typeText(m, "  "+testReturnURL+"?code=abc&state=simplediaryapp")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	result := m.(BrowserModel).Result()
	assert.Equal(t, session.ResultSuccess, result.Type)
	assert.Equal(t, testReturnURL+"?code=abc&state=simplediaryapp", result.URL)
}

func TestBrowserModelRejectsForeignRedirect(t *testing.T) {
	var m tea.Model = NewBrowserModel(testAuthURL, testReturnURL)
	m = typeText(m, "https://evil.example/cb?code=abc")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "the redirect must start with "+testReturnURL)
	assert.Equal(t, session.ResultDismiss, m.(BrowserModel).Result().Type)
}

func TestBrowserModelDismiss(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		var m tea.Model = NewBrowserModel(testAuthURL, testReturnURL)
		m = typeText(m, testReturnURL+"?code=abc")

		m, cmd := m.Update(tea.KeyMsg{Type: key})

		require.NotNil(t, cmd)
		assert.Equal(t, session.ResultDismiss, m.(BrowserModel).Result().Type)
		assert.Empty(t, m.View())
	}
}

func TestBrowserModelView(t *testing.T) {
	view := NewBrowserModel(testAuthURL, testReturnURL).View()

	assert.Contains(t, view, "Sign in with Google")
	assert.Contains(t, view, "accounts.google.com")
	assert.Contains(t, view, "esc to cancel")
}

func TestTerminalBrowserScripted(t *testing.T) {
	input := strings.NewReader(testReturnURL + "#access_token=at\r")
	var output bytes.Buffer
	b := NewTerminalBrowser(tea.WithInput(input), tea.WithOutput(&output), tea.WithoutRenderer())

	result, err := b.Open(context.Background(), testAuthURL, testReturnURL)

	require.NoError(t, err)
	assert.Equal(t, session.ResultSuccess, result.Type)
	assert.Equal(t, testReturnURL+"#access_token=at", result.URL)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/session"
	"github.com/brizzai/diary-auth/internal/tui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	email    string
	password string
	google   bool
)

// newManager builds a session manager on the persisted session file and recovers any stored session
func newManager(ctx context.Context) (*session.Manager, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	path := cfg.Client.SessionFile
	if path == "" {
		path = backend.DefaultSessionFile()
	}
	client := backend.NewClient(cfg.Backend, backend.NewFileStorage(path))

	m, err := session.NewManager(cfg, client, tui.NewTerminalBrowser())
	if err != nil {
		return nil, err
	}
	if err := m.Init(ctx); err != nil {
		pterm.Warning.Printfln("Could not recover the previous session: %v", err)
	}
	return m, nil
}

func printState(state session.State) {
	if !state.SignedIn() {
		pterm.Info.Println("Not signed in")
		return
	}
	pterm.DefaultTable.WithData(pterm.TableData{
		{"Field", "Value"},
		{"User ID", state.User.ID},
		{"Email", state.User.Email},
		{"Name", state.User.DisplayName},
		{"Provider", string(state.User.Provider)},
		{"Token type", state.TokenType},
		{"Screen", state.Route().String()},
	}).WithHasHeader().Render()
}

func requireCredentials() error {
	if email == "" || password == "" {
		return errors.New("--email and --password are required")
	}
	return nil
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register a password user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireCredentials(); err != nil {
			return err
		}
		m, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		defer m.Close()

		resp, err := m.SignUp(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("sign up failed: %w", err)
		}
		if resp.Session == nil {
			pterm.Success.Printfln("Account created for %s, check your inbox to confirm it", email)
			return nil
		}
		pterm.Success.Printfln("Account created and signed in as %s", email)
		printState(m.Store().State())
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with a password or with Google",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !google {
			if err := requireCredentials(); err != nil {
				return fmt.Errorf("%w, or use --google", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		m, err := newManager(ctx)
		if err != nil {
			return err
		}
		defer m.Close()

		if google {
			_, err = m.SignInWithOAuth(ctx)
			switch {
			case errors.Is(err, session.ErrOAuthCancelled):
				pterm.Warning.Println("Authentication was cancelled")
				return nil
			case errors.Is(err, session.ErrOAuthTimedOut):
				return errors.New("authentication timed out")
			case err != nil:
				return fmt.Errorf("authentication failed: %w", err)
			}
		} else if _, err := m.SignIn(ctx, email, password); err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}

		pterm.Success.Println("Signed in")
		printState(m.Store().State())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		defer m.Close()

		if !m.Store().State().SignedIn() {
			pterm.Info.Println("Not signed in")
			return nil
		}
		if err := m.SignOut(cmd.Context()); err != nil {
			return err
		}
		pterm.Success.Println("Signed out")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newManager(cmd.Context())
		if err != nil {
			return err
		}
		defer m.Close()

		printState(m.Store().State())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVar(&email, "email", "", "Account email")
		c.Flags().StringVar(&password, "password", "", "Account password")
	}
	loginCmd.Flags().BoolVar(&google, "google", false, "Sign in with Google in the terminal browser")
	loginCmd.MarkFlagsMutuallyExclusive("google", "email")

	for _, c := range []*cobra.Command{signupCmd, loginCmd, logoutCmd, statusCmd} {
		c.Flags().String("exchange-url", "", "URL of the OAuth exchange handler")
		c.Flags().String("oauth-mode", "", "How the Google sign-in is run (direct, proxy)")
		c.Flags().String("session-file", "", "Where the session is stored")
		rootCmd.AddCommand(c)
	}
}

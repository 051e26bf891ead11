package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrOAuthCancelled means the user closed the browser before finishing
	ErrOAuthCancelled = errors.New("authentication was cancelled")
	// ErrOAuthTimedOut means the browser never returned control
	ErrOAuthTimedOut = errors.New("authentication timed out")
	// ErrOAuthFailed covers every other OAuth failure
	ErrOAuthFailed = errors.New("authentication failed")
)

// ResultType is how a browser session ended
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultDismiss ResultType = "dismiss"
	ResultCancel  ResultType = "cancel"
)

// BrowserResult is what the browser hands back. URL is set on success.
type BrowserResult struct {
	Type ResultType
	URL  string
}

// Browser shows authURL and waits until the user is sent to returnURL or gives up.
// Implementations should return when ctx is done.
type Browser interface {
	Open(ctx context.Context, authURL, returnURL string) (BrowserResult, error)
}

// BrowserFunc adapts a function to Browser
type BrowserFunc func(ctx context.Context, authURL, returnURL string) (BrowserResult, error)

func (f BrowserFunc) Open(ctx context.Context, authURL, returnURL string) (BrowserResult, error) {
	return f(ctx, authURL, returnURL)
}

// openBrowser runs the hand-off and maps its outcome onto the OAuth sentinels
func openBrowser(ctx context.Context, browser Browser, authURL, returnURL string) (string, error) {
	type outcome struct {
		result BrowserResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := browser.Open(ctx, authURL, returnURL)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	switch {
	case errors.Is(out.err, context.DeadlineExceeded):
		return "", ErrOAuthTimedOut
	case errors.Is(out.err, context.Canceled):
		return "", ErrOAuthCancelled
	case out.err != nil:
		return "", fmt.Errorf("%w: %w", ErrOAuthFailed, out.err)
	}

	switch out.result.Type {
	case ResultSuccess:
		if out.result.URL == "" {
			return "", fmt.Errorf("%w: browser returned no redirect", ErrOAuthFailed)
		}
		return out.result.URL, nil
	case ResultDismiss, ResultCancel:
		return "", ErrOAuthCancelled
	default:
		return "", fmt.Errorf("%w: browser result %q", ErrOAuthFailed, out.result.Type)
	}
}

// redirectParams merges the query and fragment of a redirect, the query wins
func redirectParams(raw string) (url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	if u.Fragment != "" {
		fragment, err := url.ParseQuery(u.Fragment)
		if err != nil {
			return nil, err
		}
		for key, values := range fragment {
			if _, ok := params[key]; !ok {
				params[key] = values
			}
		}
	}
	return params, nil
}

// internal/browser/login.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/scrape"
)

const loginURL = "https://www.tiktok.com/login/phone-or-email/email"

// Login form selectors vary across site revisions, so each field keeps a
// candidate list probed in order.
var (
	loginUserSelectors = []string{
		`input[name="username"]`,
		`input[type="text"][placeholder*="mail"]`,
		`input[type="text"]`,
	}
	loginPassSelectors = []string{
		`input[type="password"]`,
	}
	loginSubmitSelectors = []string{
		`button[type="submit"]`,
		`button[data-e2e="login-button"]`,
	}
)

// loginErrorPhrases are rendered by the form on rejected credentials.
var loginErrorPhrases = []string{
	"Account doesn't exist",
	"Incorrect account or password",
	"Too many attempts",
	"something went wrong",
}

// ChallengeHook is invoked when a verification challenge appears during
// login so the caller can attempt resolution before polling resumes.
type ChallengeHook func(ctx context.Context) error

// Login authenticates the session with email credentials. It fills the
// form, submits, then polls for one of three outcomes: an authenticated
// session cookie, a rendered form error, or the overall deadline. When a
// challenge hook is provided it runs on every poll cycle.
func (s *Session) Login(ctx context.Context, username, password string, onChallenge ChallengeHook) error {
	if err := s.Navigate(ctx, loginURL); err != nil {
		return err
	}

	if already, err := s.IsLoggedIn(ctx); err == nil && already {
		s.logger.Info("Session already authenticated, skipping login form.")
		return nil
	}

	userSel, err := s.firstPresent(ctx, loginUserSelectors)
	if err != nil {
		return scrape.LoginRequiredf("login form did not render: %v", err)
	}
	passSel, err := s.firstPresent(ctx, loginPassSelectors)
	if err != nil {
		return scrape.LoginRequiredf("password field did not render: %v", err)
	}

	if err := s.Run(ctx,
		chromedp.Click(userSel, chromedp.ByQuery),
		chromedp.SendKeys(userSel, username, chromedp.ByQuery),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Click(passSel, chromedp.ByQuery),
		chromedp.SendKeys(passSel, password, chromedp.ByQuery),
		chromedp.Sleep(300*time.Millisecond),
	); err != nil {
		return fmt.Errorf("failed to fill login form: %w", err)
	}

	submitSel, err := s.firstPresent(ctx, loginSubmitSelectors)
	if err != nil {
		return scrape.LoginRequiredf("submit button did not render: %v", err)
	}
	if err := s.submitLogin(ctx, submitSel); err != nil {
		return err
	}

	return s.pollLoginOutcome(ctx, onChallenge)
}

// submitLogin prefers humanoid input for the click; the login form runs
// the heaviest bot scoring on the site.
func (s *Session) submitLogin(ctx context.Context, selector string) error {
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return s.input.ClickSelector(ctx, selector)
	}))
	if err == nil {
		return nil
	}
	s.logger.Debug("Humanoid click on submit failed, falling back to direct click.", zap.Error(err))
	return s.Run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// pollLoginOutcome watches the page until login resolves one way or the
// other.
func (s *Session) pollLoginOutcome(ctx context.Context, onChallenge ChallengeHook) error {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if ok, err := s.IsLoggedIn(ctx); err == nil && ok {
			s.logger.Info("Login succeeded.")
			return nil
		}

		body, err := s.BodyText(ctx)
		if err == nil {
			for _, phrase := range loginErrorPhrases {
				if strings.Contains(body, phrase) {
					return scrape.LoginRequiredf("login rejected: %s", phrase)
				}
			}
		}

		if onChallenge != nil {
			if err := onChallenge(ctx); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return scrape.Timeoutf("login did not complete within deadline")
}

// firstPresent returns the first selector from candidates that resolves
// to at least one node within a short window.
func (s *Session) firstPresent(ctx context.Context, candidates []string) (string, error) {
	for _, sel := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
		err := s.Run(probeCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		cancel()
		if err == nil {
			return sel, nil
		}
	}
	return "", fmt.Errorf("no candidate selector matched (%s)", strings.Join(candidates, ", "))
}

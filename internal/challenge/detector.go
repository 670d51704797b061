// Package challenge classifies what a loaded page is actually showing
// (content, a verification challenge, an unavailable notice, or an empty
// feed) and drives challenge resolution. Detection is text-first: the
// anti-bot overlay changes its DOM structure far more often than its
// copy.
package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/browser"
	"github.com/networkdynamics/gotok/internal/config"
	"github.com/networkdynamics/gotok/internal/scrape"
)

// State is the detector's verdict about the visible page.
type State int

const (
	StateUnknown State = iota
	StateContent
	StateChallenge
	StateUnavailable
	StateEmpty
)

func (s State) String() string {
	switch s {
	case StateContent:
		return "content"
	case StateChallenge:
		return "challenge"
	case StateUnavailable:
		return "unavailable"
	case StateEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// captchaPhrases are the prompts rendered by each challenge variant.
var captchaPhrases = []string{
	"Drag the slider to fit the puzzle",
	"Verify to continue:",
	"Rotate the shapes",
	"Click on the shapes with the same size",
}

// Probe describes what a particular page should contain and how its
// terminal states are worded.
type Probe struct {
	// ContentSelector matches at least one node when real content has
	// rendered, e.g. `[data-e2e="user-post-item"]`.
	ContentSelector string
	// UnavailablePhrases are exact strings shown when the target does
	// not exist or is private.
	UnavailablePhrases []string
	// EmptyPhrases are exact strings shown when the target exists but
	// has nothing to list.
	EmptyPhrases []string
}

// Detector polls a session's page until it settles into a known state.
type Detector struct {
	session *browser.Session
	cfg     config.ScrapeConfig
	logger  *zap.Logger
}

// NewDetector builds a detector bound to one session.
func NewDetector(session *browser.Session, cfg config.ScrapeConfig, logger *zap.Logger) *Detector {
	return &Detector{
		session: session,
		cfg:     cfg,
		logger:  logger.Named("challenge_detector"),
	}
}

// Classify polls the page until one of the probe's states appears or the
// configured number of tries runs out, in which case it returns
// StateUnknown with a timeout error. A challenge verdict always wins
// over content: overlays render on top of real items.
func (d *Detector) Classify(ctx context.Context, probe Probe) (State, error) {
	for try := 0; try < d.cfg.ContentWaitTries; try++ {
		if ctx.Err() != nil {
			return StateUnknown, ctx.Err()
		}

		state, err := d.classifyOnce(ctx, probe)
		if err != nil {
			d.logger.Debug("Page probe failed, retrying.", zap.Error(err), zap.Int("try", try))
		} else if state != StateUnknown {
			d.logger.Debug("Page classified.", zap.Stringer("state", state), zap.Int("try", try))
			return state, nil
		}

		select {
		case <-ctx.Done():
			return StateUnknown, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return StateUnknown, scrape.Timeoutf("page did not settle after %d probes", d.cfg.ContentWaitTries)
}

// classifyText applies the text-first rules to a body snapshot. A
// challenge phrase wins over everything else because the overlay sits
// on top of whatever the page was about to show.
func classifyText(body string, probe Probe) State {
	for _, phrase := range captchaPhrases {
		if strings.Contains(body, phrase) {
			return StateChallenge
		}
	}
	for _, phrase := range probe.UnavailablePhrases {
		if strings.Contains(body, phrase) {
			return StateUnavailable
		}
	}
	for _, phrase := range probe.EmptyPhrases {
		if strings.Contains(body, phrase) {
			return StateEmpty
		}
	}
	return StateUnknown
}

// classifyOnce takes a single reading of the page.
func (d *Detector) classifyOnce(ctx context.Context, probe Probe) (State, error) {
	body, err := d.session.BodyText(ctx)
	if err != nil {
		return StateUnknown, err
	}

	if state := classifyText(body, probe); state != StateUnknown {
		return state, nil
	}

	if probe.ContentSelector != "" {
		var present bool
		expr := fmt.Sprintf(`!!document.querySelector(%q)`, probe.ContentSelector)
		if err := d.session.EvaluateScript(ctx, expr, &present); err != nil {
			return StateUnknown, err
		}
		if present {
			return StateContent, nil
		}
	}
	return StateUnknown, nil
}

// ChallengeVisible reports whether a challenge prompt is currently on
// screen.
func (d *Detector) ChallengeVisible(ctx context.Context) (bool, error) {
	body, err := d.session.BodyText(ctx)
	if err != nil {
		return false, err
	}
	for _, phrase := range captchaPhrases {
		if strings.Contains(body, phrase) {
			return true, nil
		}
	}
	return false, nil
}

// DismissRefresh clicks the interstitial "Refresh" button when present.
// The site shows it instead of content after transient load failures.
func (d *Detector) DismissRefresh(ctx context.Context) error {
	const js = `(() => {
		const els = [...document.querySelectorAll('button, div[role="button"]')];
		const btn = els.find(e => e.innerText && e.innerText.trim() === 'Refresh');
		if (btn) { btn.click(); return true; }
		return false;
	})()`
	var clicked bool
	if err := d.session.EvaluateScript(ctx, js, &clicked); err != nil {
		return err
	}
	if clicked {
		d.logger.Debug("Dismissed refresh interstitial.")
	}
	return nil
}

// DismissLoginPopup closes the sign-in modal. Closing via the dedicated
// button is preferred; Escape is the fallback for modal revisions that
// hide it. Idempotent when no modal is showing.
func (d *Detector) DismissLoginPopup(ctx context.Context) error {
	const closeSelector = `[data-e2e="modal-close-inner-button"]`

	var present bool
	expr := fmt.Sprintf(`!!document.querySelector(%q)`, closeSelector)
	if err := d.session.EvaluateScript(ctx, expr, &present); err != nil {
		return err
	}
	if !present {
		return nil
	}

	err := d.session.Run(ctx, chromedp.Click(closeSelector, chromedp.ByQuery))
	if err != nil {
		d.logger.Debug("Close button click failed, sending Escape.", zap.Error(err))
		return d.session.Run(ctx, chromedp.KeyEvent(kb.Escape))
	}
	d.logger.Debug("Dismissed login popup.")
	return nil
}

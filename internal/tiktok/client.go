// internal/tiktok/client.go
package tiktok

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/browser"
	"github.com/networkdynamics/gotok/internal/captcha"
	"github.com/networkdynamics/gotok/internal/challenge"
	"github.com/networkdynamics/gotok/internal/config"
	"github.com/networkdynamics/gotok/internal/scrape"
)

const siteOrigin = "https://www.tiktok.com"

// trackedAPIPatterns are the endpoint path fragments whose exchanges the
// interceptor buffers for the pagination engine.
var trackedAPIPatterns = []string{
	"api/post/item_list",
	"api/favorite/item_list",
	"api/comment/list",
	"api/related/item_list",
	"api/challenge/detail",
	"api/challenge/item_list",
	"api/search",
	"api/user/detail",
}

// Client is the top-level scraping facade. It owns one browser process,
// one tab, and the machinery that keeps that tab fetchable. A Client is
// not safe for concurrent scraping calls; run one operation at a time.
type Client struct {
	cfg    *config.Config
	logger *zap.Logger

	manager  *browser.Manager
	session  *browser.Session
	detector *challenge.Detector
	resolver *challenge.Resolver
	replayer *scrape.Replayer
}

// NewClient launches the browser and prepares a scraping session.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	session, err := manager.NewSession(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
		return nil, err
	}
	for _, pattern := range trackedAPIPatterns {
		session.Interceptor().Track(pattern)
	}

	detector := challenge.NewDetector(session, cfg.Scrape, logger)
	solver := captcha.New(cfg.Captcha, logger)
	recorder := captcha.NewRecorder(cfg.Captcha.LogDir, logger)
	resolver := challenge.NewResolver(session, detector, solver, recorder, cfg.Captcha, logger)

	replayer, err := scrape.NewReplayer(cfg.Scrape.RequestDelay, nil, logger)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		logger:   logger.Named("tiktok"),
		manager:  manager,
		session:  session,
		detector: detector,
		resolver: resolver,
		replayer: replayer,
	}, nil
}

// Close releases the session and the browser process.
func (c *Client) Close(ctx context.Context) error {
	if err := c.session.Close(); err != nil {
		c.logger.Warn("Session close failed.", zap.Error(err))
	}
	return c.manager.Shutdown(ctx)
}

// Login authenticates the session. Challenges appearing mid-login are
// resolved with the same machinery as scraping challenges.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.session.Login(ctx, username, password, func(ctx context.Context) error {
		visible, err := c.detector.ChallengeVisible(ctx)
		if err != nil || !visible {
			return err
		}
		return c.resolver.Resolve(ctx)
	})
}

// User returns a handle on a profile by username. No network traffic
// happens until the handle is used.
func (c *Client) User(username string) *User {
	return &User{client: c, Username: username}
}

// Video returns a handle on a video by author username and video id.
func (c *Client) Video(username, id string) *Video {
	return &Video{client: c, Username: username, ID: id}
}

// VideoByURL returns a handle parsed from a canonical watch URL.
func (c *Client) VideoByURL(rawURL string) (*Video, error) {
	username, id, err := parseVideoURL(rawURL)
	if err != nil {
		return nil, err
	}
	return c.Video(username, id), nil
}

// Hashtag returns a handle on a tag page by name (without the '#').
func (c *Client) Hashtag(name string) *Hashtag {
	return &Hashtag{client: c, Name: name}
}

// Search returns a handle on a search term.
func (c *Client) Search(term string) *Search {
	return &Search{client: c, Term: term}
}

// navigate loads a page and settles it into a usable state: challenges
// are resolved, interstitials dismissed, and terminal states mapped to
// the error taxonomy. StateEmpty is returned to the caller, who reports
// it through noContent with an entity-specific message.
func (c *Client) navigate(ctx context.Context, url string, probe challenge.Probe) (challenge.State, error) {
	if err := c.session.Navigate(ctx, url); err != nil {
		return challenge.StateUnknown, err
	}
	return c.settle(ctx, probe)
}

// settle classifies the current page, clearing one challenge round if
// needed.
func (c *Client) settle(ctx context.Context, probe challenge.Probe) (challenge.State, error) {
	if err := c.detector.DismissRefresh(ctx); err != nil {
		c.logger.Debug("Refresh dismissal failed.", zap.Error(err))
	}
	if err := c.detector.DismissLoginPopup(ctx); err != nil {
		c.logger.Debug("Login popup dismissal failed.", zap.Error(err))
	}

	state, err := c.detector.Classify(ctx, probe)
	if err != nil {
		return state, err
	}

	if state == challenge.StateChallenge {
		if err := c.resolver.Resolve(ctx); err != nil {
			return state, err
		}
		state, err = c.detector.Classify(ctx, probe)
		if err != nil {
			return state, err
		}
		if state == challenge.StateChallenge {
			return state, scrape.Captchaf("challenge persisted after resolution")
		}
	}

	if state == challenge.StateUnavailable {
		return state, scrape.NotAvailablef("content is not available at %s", probe.ContentSelector)
	}
	return state, nil
}

// noContent maps an empty-but-live page to the caller-visible error
// kind. A page that loads fine yet shows nothing is a terminal answer
// for this entity, not a feed worth walking.
func noContent(state challenge.State, format string, args ...any) error {
	if state != challenge.StateEmpty {
		return nil
	}
	return scrape.NoContentf(format, args...)
}

// syncReplayCookies copies the browser's cookie store into the direct
// fetch client so replayed requests present the same identity.
func (c *Client) syncReplayCookies(ctx context.Context) error {
	browserCookies, err := c.session.Cookies(ctx)
	if err != nil {
		return err
	}
	httpCookies := make([]*http.Cookie, 0, len(browserCookies))
	for _, bc := range browserCookies {
		httpCookies = append(httpCookies, &http.Cookie{
			Name:   bc.Name,
			Value:  bc.Value,
			Domain: bc.Domain,
			Path:   bc.Path,
		})
	}
	return c.replayer.SetCookies(siteOrigin, httpCookies)
}

// interceptSource adapts the session interceptor to the pagination
// engine's capture feed.
type interceptSource struct {
	session *browser.Session
	pattern string
}

func (s interceptSource) Drain() []scrape.Capture {
	events := s.session.Interceptor().Drain(s.pattern)
	captures := make([]scrape.Capture, 0, len(events))
	for _, ev := range events {
		captures = append(captures, scrape.Capture{
			URL:     ev.URL,
			Headers: ev.Headers,
			Body:    ev.Body,
		})
	}
	return captures
}

// sessionScroller adapts humanoid scrolling to the pagination engine.
type sessionScroller struct {
	session *browser.Session
}

func (s sessionScroller) ScrollCycle(ctx context.Context) error {
	return s.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return s.session.Input().ScrollCycle(ctx)
	}))
}

// pageGuard keeps the page fetchable between scroll sweeps.
type pageGuard struct {
	client *Client
}

func (g pageGuard) Check(ctx context.Context) error {
	if err := g.client.detector.DismissRefresh(ctx); err != nil {
		return err
	}
	if err := g.client.detector.DismissLoginPopup(ctx); err != nil {
		return err
	}
	visible, err := g.client.detector.ChallengeVisible(ctx)
	if err != nil {
		return err
	}
	if visible {
		return g.client.resolver.Resolve(ctx)
	}
	return nil
}

// newFeed wires a pagination run over one tracked endpoint.
func newFeed[T any](c *Client, pattern, cursorParam string, parse scrape.ParseFunc[T], key scrape.KeyFunc[T], initial *scrape.Page[T]) *scrape.Paginator[T] {
	return scrape.NewPaginator(scrape.PaginatorConfig[T]{
		Source:         interceptSource{session: c.session, pattern: pattern},
		Scroller:       sessionScroller{session: c.session},
		Guard:          pageGuard{client: c},
		Replayer:       c.replayer,
		Parse:          parse,
		Key:            key,
		CursorParam:    cursorParam,
		Initial:        initial,
		MaxScrollTries: c.cfg.Scrape.MaxScrollTries,
		Logger:         c.logger,
	})
}

// parseVideoURL splits a canonical watch URL into username and id.
func parseVideoURL(rawURL string) (username, id string, err error) {
	const marker = "/video/"
	atIdx := strings.Index(rawURL, "@")
	vIdx := strings.Index(rawURL, marker)
	if atIdx == -1 || vIdx == -1 || vIdx <= atIdx {
		return "", "", fmt.Errorf("unrecognized video URL %q", rawURL)
	}
	username = rawURL[atIdx+1 : vIdx]
	id = rawURL[vIdx+len(marker):]
	if cut := strings.IndexAny(id, "?/"); cut != -1 {
		id = id[:cut]
	}
	if username == "" || id == "" {
		return "", "", fmt.Errorf("unrecognized video URL %q", rawURL)
	}
	return username, id, nil
}

// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/config"
	"github.com/networkdynamics/gotok/internal/humanoid"
)

// verifyCookieName carries the device fingerprint token issued on first
// page load. Signed request replay is rejected without it.
const verifyCookieName = "s_v_web_id"

// stealthInitJS papers over the most common headless giveaways before any
// page script runs.
const stealthInitJS = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = window.chrome || { runtime: {} };
`

// Session represents a single browser tab with interception and humanoid
// input attached. A Session supports one page operation at a time;
// interleaved CDP input streams confuse the page's event handlers, so
// callers (the scraping client runs one operation per session) must not
// overlap calls. The internal mutex only guards lifecycle state.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	interceptor *Interceptor
	input       *humanoid.Humanoid

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// newSession opens a tab on the allocator, wires the interceptor, and
// applies stealth init scripts. parent only gates setup; the tab's
// lifetime is bound to the allocator context.
func newSession(
	parent context.Context,
	allocatorCtx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(),
) (*Session, error) {
	sessionID := uuid.New().String()

	tabCtx, cancel := chromedp.NewContext(allocatorCtx)

	s := &Session{
		id:      sessionID,
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  logger.Named("session").With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		onClose: onClose,
	}

	setupCtx, cancelSetup := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelSetup()
	stop := context.AfterFunc(parent, cancelSetup)
	defer stop()

	// Materialize the target and connect CDP.
	if err := chromedp.Run(setupCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthInitJS).Do(ctx)
			return err
		}),
		emulation.SetDeviceMetricsOverride(1280, 900, 1.0, false),
	); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize session target: %w", err)
	}

	s.interceptor = NewInterceptor(tabCtx, s.logger, cfg.Browser.EventBufferSize, cfg.Browser.EventTTL)
	if err := s.interceptor.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start interceptor: %w", err)
	}

	s.input = humanoid.New(s.logger)

	s.logger.Info("Browser session initialized.")
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Interceptor exposes the network event buffer for this tab.
func (s *Session) Interceptor() *Interceptor { return s.interceptor }

// Input exposes humanoid input synthesis for this tab.
func (s *Session) Input() *humanoid.Humanoid { return s.input }

// Run executes chromedp actions on the tab. The caller context bounds
// the work; the tab context carries the CDP connection. Run does not
// serialize callers; see the Session doc for the one-operation rule.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.isClosed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("session %s is closed", s.id)
	}

	opCtx, cancelOp := context.WithCancel(s.ctx)
	defer cancelOp()
	stop := context.AfterFunc(ctx, cancelOp)
	defer stop()

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads a URL and waits for the document to become ready,
// bounded by the configured navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Browser.NavigationTimeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Cookies returns a snapshot of all cookies in the browser's store.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return cookies, nil
}

// CookieValue returns the value of the first cookie with the given name,
// or "" when absent.
func (s *Session) CookieValue(ctx context.Context, name string) (string, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, nil
		}
	}
	return "", nil
}

// VerifyToken returns the device verification fingerprint cookie value.
func (s *Session) VerifyToken(ctx context.Context) (string, error) {
	return s.CookieValue(ctx, verifyCookieName)
}

// MsTokens returns every msToken cookie value currently held. The site
// rotates these continuously; replayed API calls want the freshest one.
func (s *Session) MsTokens(ctx context.Context) ([]string, error) {
	cookies, err := s.Cookies(ctx)
	if err != nil {
		return nil, err
	}
	var tokens []string
	for _, c := range cookies {
		if strings.Contains(c.Name, "msToken") {
			tokens = append(tokens, c.Value)
		}
	}
	return tokens, nil
}

// IsLoggedIn reports whether an authenticated web session cookie exists.
func (s *Session) IsLoggedIn(ctx context.Context) (bool, error) {
	v, err := s.CookieValue(ctx, "sessionid")
	if err != nil {
		return false, err
	}
	return v != "", nil
}

// UserAgent returns the user agent this session presents.
func (s *Session) UserAgent() string {
	if ua := s.cfg.Browser.UserAgent; ua != "" {
		return ua
	}
	return defaultUserAgent
}

// PageHTML returns the full serialized document.
func (s *Session) PageHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture page HTML: %w", err)
	}
	return html, nil
}

// BodyText returns the rendered text content of the document body.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text string
	err := s.Run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text))
	if err != nil {
		return "", fmt.Errorf("failed to read body text: %w", err)
	}
	return text, nil
}

// EvaluateScript runs a JavaScript expression in the page and decodes the
// result into res. Pass nil to discard the result.
func (s *Session) EvaluateScript(ctx context.Context, expr string, res any) error {
	return s.Run(ctx, chromedp.Evaluate(expr, res))
}

// Close stops interception and releases the tab. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.interceptor != nil {
		s.interceptor.Stop(shutdownCtx)
	}
	s.cancel()

	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Info("Browser session closed.")
	return nil
}

// internal/scrape/replay.go
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// verifyMarker is the soft-block body the API returns instead of data
// when it wants the client back in a real browser.
const verifyMarker = `"type":"verify"`

// ReplayOutcome says what a direct fetch produced.
type ReplayOutcome int

const (
	// ReplayOK means the body carries parseable data.
	ReplayOK ReplayOutcome = iota
	// ReplayFallback means the API refused the replayed request and the
	// caller should demote to browser-driven fetching.
	ReplayFallback
)

// ReplayResult pairs an outcome with the fetched body. Body is only
// meaningful for ReplayOK.
type ReplayResult struct {
	Outcome ReplayOutcome
	Body    []byte
	// Reason explains a fallback for logs.
	Reason string
}

// Replayer re-issues signed API requests over plain HTTP, outside the
// browser. It shares the browser's cookies (loaded by the caller),
// paces requests with a limiter, and treats every API-side refusal as a
// demotion signal rather than an error: fallback is a normal mode
// switch, not a failure.
type Replayer struct {
	client  *http.Client
	limiter *rate.Limiter
	signer  Signer
	logger  *zap.Logger
}

// NewReplayer builds a replayer that waits at least delay between
// requests. signer may be nil.
func NewReplayer(delay time.Duration, signer Signer, logger *zap.Logger) (*Replayer, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	return &Replayer{
		client: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		signer:  signer,
		logger:  logger.Named("replayer"),
	}, nil
}

// SetCookies loads browser cookies into the jar for siteURL.
func (r *Replayer) SetCookies(siteURL string, cookies []*http.Cookie) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("parsing site URL: %w", err)
	}
	r.client.Jar.SetCookies(u, cookies)
	return nil
}

// Fetch replays the seed with cursor substituted into the query string.
// Extra parameters override or extend the captured query the same way.
func (r *Replayer) Fetch(ctx context.Context, seed ReplaySeed, params map[string]string) (ReplayResult, error) {
	if !seed.Valid() {
		return ReplayResult{Outcome: ReplayFallback, Reason: "no replay seed captured"}, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return ReplayResult{}, err
	}

	reqURL, err := substituteParams(seed.URL, params)
	if err != nil {
		return ReplayResult{}, err
	}
	if r.signer != nil {
		reqURL, err = r.signer.Sign(reqURL)
		if err != nil {
			return ReplayResult{}, fmt.Errorf("re-signing request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ReplayResult{}, err
	}
	for k, v := range seed.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		// Network trouble on the shortcut path is a demotion, not a hard
		// stop; the browser path may still work.
		r.logger.Debug("Replay transport error.", zap.Error(err))
		return ReplayResult{Outcome: ReplayFallback, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ReplayResult{Outcome: ReplayFallback, Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}, nil
	}

	body, err := decodeBody(resp)
	if err != nil {
		return ReplayResult{Outcome: ReplayFallback, Reason: err.Error()}, nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ReplayResult{Outcome: ReplayFallback, Reason: "empty body"}, nil
	}
	if bytes.Contains(body, []byte(verifyMarker)) {
		return ReplayResult{Outcome: ReplayFallback, Reason: "verification demanded"}, nil
	}

	return ReplayResult{Outcome: ReplayOK, Body: body}, nil
}

// substituteParams rewrites the query string of rawURL with params.
func substituteParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing seed URL: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodeBody reads the response, handling brotli bodies the transport
// does not decompress itself.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		reader = brotli.NewReader(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(reader, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading replayed body: %w", err)
	}
	return body, nil
}

package challenge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/networkdynamics/gotok/internal/browser"
	"github.com/networkdynamics/gotok/internal/captcha"
	"github.com/networkdynamics/gotok/internal/config"
	"github.com/networkdynamics/gotok/internal/scrape"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// captchaMetaPattern matches the challenge metadata endpoint; sessions
// track it so the resolver can read the puzzle parameters.
const captchaMetaPattern = "/captcha/get"

const (
	dragHandleSelector = "div.secsdk-captcha-drag-icon"
	dragBarSelector    = "div.captcha_verify_slide--slidebar"
)

// challengeEnvelope is the wire shape of the metadata response. Older
// revisions inline the challenge under data; newer ones nest a list.
type challengeEnvelope struct {
	Data struct {
		Mode       string          `json:"mode"`
		ID         string          `json:"id"`
		Question   puzzleQuestion  `json:"question"`
		Challenges []challengeBody `json:"challenges"`
	} `json:"data"`
}

type challengeBody struct {
	Mode     string         `json:"mode"`
	ID       string         `json:"id"`
	Question puzzleQuestion `json:"question"`
}

type puzzleQuestion struct {
	URL1 string  `json:"url1"`
	URL2 string  `json:"url2"`
	TipY float64 `json:"tip_y"`
}

// Resolver attempts to clear a visible verification challenge using
// intercepted puzzle metadata, downloaded puzzle images, a solver, and a
// humanoid slider drag.
type Resolver struct {
	session  *browser.Session
	detector *Detector
	solver   captcha.Solver
	recorder *captcha.Recorder
	cfg      config.CaptchaConfig
	client   *http.Client
	logger   *zap.Logger
}

// NewResolver wires a resolver for one session. recorder may be nil.
func NewResolver(
	session *browser.Session,
	detector *Detector,
	solver captcha.Solver,
	recorder *captcha.Recorder,
	cfg config.CaptchaConfig,
	logger *zap.Logger,
) *Resolver {
	session.Interceptor().Track(captchaMetaPattern)
	return &Resolver{
		session:  session,
		detector: detector,
		solver:   solver,
		recorder: recorder,
		cfg:      cfg,
		client:   &http.Client{Timeout: 20 * time.Second},
		logger:   logger.Named("challenge_resolver"),
	}
}

// Resolve clears the challenge currently on screen. It retries a few
// times before giving up, since an imperfect drag just re-arms the
// puzzle with fresh images.
func (r *Resolver) Resolve(ctx context.Context) error {
	if r.cfg.Manual {
		return r.resolveManually(ctx)
	}

	const maxTries = 3
	var lastErr error
	for try := 1; try <= maxTries; try++ {
		if err := r.resolveOnce(ctx); err != nil {
			lastErr = err
			r.logger.Warn("Challenge attempt failed.", zap.Int("try", try), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		// Give the verification POST a moment to land before re-checking.
		if err := sleepCtx(ctx, time.Second); err != nil {
			return err
		}
		visible, err := r.detector.ChallengeVisible(ctx)
		if err != nil {
			return err
		}
		if !visible {
			r.logger.Info("Challenge cleared.", zap.Int("tries", try))
			return nil
		}
		lastErr = fmt.Errorf("challenge still visible after drag")
	}
	return scrape.Captchaf("could not clear challenge after %d attempts: %v", maxTries, lastErr)
}

// resolveManually waits for an operator to clear the challenge in a
// headful browser window.
func (r *Resolver) resolveManually(ctx context.Context) error {
	r.logger.Warn("Challenge detected. Waiting for manual resolution in the browser window.")

	deadline := time.Now().Add(3 * time.Minute)
	for time.Now().Before(deadline) {
		visible, err := r.detector.ChallengeVisible(ctx)
		if err != nil {
			return err
		}
		if !visible {
			r.logger.Info("Challenge cleared manually.")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return scrape.Captchaf("manual resolution window expired")
}

func (r *Resolver) resolveOnce(ctx context.Context) error {
	meta, err := r.latestChallenge()
	if err != nil {
		return err
	}

	imgA, imgB, err := r.fetchImages(ctx, meta.Question.URL1, meta.Question.URL2)
	if err != nil {
		return err
	}

	var (
		fraction float64
		kind     captcha.Kind
	)
	switch meta.Mode {
	case "slide":
		kind = captcha.KindSlide
		fraction, err = r.solver.SolveSlide(ctx, imgA, imgB)
	case "whirl":
		kind = captcha.KindWhirl
		fraction, err = r.solver.SolveWhirl(ctx, imgA, imgB)
	default:
		return scrape.Captchaf("unsupported challenge mode %q", meta.Mode)
	}
	if err != nil {
		return fmt.Errorf("solving %s puzzle: %w", meta.Mode, err)
	}

	if err := r.dragSlider(ctx, fraction); err != nil {
		r.recorder.Record(kind, imgA, imgB, fraction, false)
		return err
	}

	if err := sleepCtx(ctx, time.Second); err != nil {
		return err
	}
	visible, err := r.detector.ChallengeVisible(ctx)
	if err != nil {
		return err
	}
	r.recorder.Record(kind, imgA, imgB, fraction, !visible)
	if visible {
		return fmt.Errorf("%s drag did not satisfy verification", meta.Mode)
	}
	return nil
}

// latestChallenge decodes the newest intercepted metadata response.
func (r *Resolver) latestChallenge() (*challengeBody, error) {
	events := r.session.Interceptor().Drain(captchaMetaPattern)
	if len(events) == 0 {
		return nil, scrape.Captchaf("no challenge metadata intercepted")
	}
	return decodeChallenge(events[len(events)-1].Body)
}

// decodeChallenge accepts both metadata generations.
func decodeChallenge(body []byte) (*challengeBody, error) {
	var env challengeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, scrape.Captchaf("malformed challenge metadata: %v", err)
	}

	switch {
	case env.Data.Mode != "":
		return &challengeBody{Mode: env.Data.Mode, ID: env.Data.ID, Question: env.Data.Question}, nil
	case len(env.Data.Challenges) > 0:
		return &env.Data.Challenges[0], nil
	default:
		return nil, scrape.Captchaf("challenge metadata carried no puzzle")
	}
}

// fetchImages downloads both puzzle images in parallel.
func (r *Resolver) fetchImages(ctx context.Context, url1, url2 string) ([]byte, []byte, error) {
	if url1 == "" || url2 == "" {
		return nil, nil, scrape.Captchaf("challenge metadata missing image URLs")
	}

	var imgA, imgB []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		imgA, err = r.fetchImage(gctx, url1)
		return err
	})
	g.Go(func() error {
		var err error
		imgB, err = r.fetchImage(gctx, url2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return imgA, imgB, nil
}

func (r *Resolver) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", r.session.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching puzzle image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("puzzle image fetch returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("puzzle image response was empty")
	}
	return data, nil
}

// dragSlider scales the solver's fraction against the live slider
// geometry and performs the drag.
func (r *Resolver) dragSlider(ctx context.Context, fraction float64) error {
	var distance float64
	err := r.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		input := r.session.Input()
		_, handleW, _, err := input.ElementBox(ctx, dragHandleSelector)
		if err != nil {
			return err
		}
		_, barW, _, err := input.ElementBox(ctx, dragBarSelector)
		if err != nil {
			return err
		}
		// The handle itself occupies part of the bar.
		distance = (barW - handleW) * fraction
		return input.DragBy(ctx, dragHandleSelector, distance)
	}))
	if err != nil {
		return fmt.Errorf("slider drag failed: %w", err)
	}
	r.logger.Debug("Slider dragged.", zap.Float64("fraction", fraction), zap.Float64("distance", distance))
	return nil
}

// sleepCtx is a context-aware sleep.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

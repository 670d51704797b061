package humanoid

import (
	"context"
	"math"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration
// profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// calculateFittsLaw determines a realistic movement duration based on
// Fitts's Law, which models the time required to move to a target area.
func (h *Humanoid) calculateFittsLaw(distance float64) time.Duration {
	const W = 30.0 // assumed target width in pixels

	id := math.Log2(1.0 + distance/W)
	mt := fittsA + fittsB*id

	h.mu.Lock()
	// +/- 15% randomization so repeated movements never share a duration.
	mt += mt * (h.rng.Float64()*0.3 - 0.15)
	h.mu.Unlock()

	return time.Duration(mt) * time.Millisecond
}

// generatePath creates a cubic Bezier trajectory from start to end. The
// control points are displaced perpendicular to the main axis so the
// path bows the way a wrist-pivoted movement does.
func (h *Humanoid) generatePath(start, end Vector2D, numSteps int) []Vector2D {
	mainVec := end.Sub(start)
	dist := mainVec.Mag()
	if dist < 1.0 || numSteps <= 1 {
		return []Vector2D{end}
	}

	mainDir := mainVec.Normalize()
	perp := Vector2D{X: -mainDir.Y, Y: mainDir.X}

	h.mu.Lock()
	bow1 := (h.rng.Float64()*2 - 1) * dist * 0.08
	bow2 := (h.rng.Float64()*2 - 1) * dist * 0.06
	h.mu.Unlock()

	p0 := start
	p1 := start.Add(mainDir.Mul(dist / 3.0)).Add(perp.Mul(bow1))
	p2 := start.Add(mainDir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(bow2))
	p3 := end

	path := make([]Vector2D, numSteps)
	for i := 0; i < numSteps; i++ {
		t := float64(i) / float64(numSteps-1)
		omt := 1.0 - t
		omt2 := omt * omt
		omt3 := omt2 * omt
		t2 := t * t
		t3 := t2 * t
		path[i] = p0.Mul(omt3).Add(p1.Mul(3 * omt2 * t)).Add(p2.Mul(3 * omt * t2)).Add(p3.Mul(t3))
	}
	return path
}

// applyGaussianNoise perturbs a point with sub-pixel tremor.
func (h *Humanoid) applyGaussianNoise(p Vector2D) Vector2D {
	h.mu.Lock()
	nx := h.rng.NormFloat64() * 0.4
	ny := h.rng.NormFloat64() * 0.4
	h.mu.Unlock()
	return Vector2D{X: p.X + nx, Y: p.Y + ny}
}

// MoveTo moves the synthetic cursor from its current position to target,
// dispatching intermediate mousemove events along an eased, noisy path.
func (h *Humanoid) MoveTo(ctx context.Context, target Vector2D) error {
	return h.moveTo(ctx, target, 0)
}

// moveTo is the shared movement core. buttons carries the CDP bitfield of
// held buttons (1 == left) so drags report pressed state on every move.
func (h *Humanoid) moveTo(ctx context.Context, target Vector2D, buttons int64) error {
	start := h.Position()
	dist := start.Dist(target)
	duration := h.calculateFittsLaw(dist)

	numSteps := int(duration.Seconds() * 100)
	if numSteps < 2 {
		numSteps = 2
	}
	path := h.generatePath(start, target, numSteps)

	startTime := time.Now()
	for i := range path {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := float64(i) / float64(len(path)-1)
		easedT := computeEaseInOutCubic(t)

		pathIndex := int(easedT * float64(len(path)-1))
		if pathIndex >= len(path) {
			pathIndex = len(path) - 1
		}
		pos := path[pathIndex]

		// Keep wall-clock pace aligned with the eased timeline.
		stepDeadline := startTime.Add(time.Duration(easedT * float64(duration)))
		if wait := time.Until(stepDeadline); wait > 0 {
			if err := chromedp.Sleep(wait).Do(ctx); err != nil {
				return err
			}
		}

		elapsed := time.Since(startTime).Seconds()
		drift := Vector2D{
			X: h.noiseX.Noise1D(elapsed*0.8) * perlinAmplitude,
			Y: h.noiseY.Noise1D(elapsed*0.8) * perlinAmplitude,
		}
		final := h.applyGaussianNoise(pos.Add(drift))

		ev := input.DispatchMouseEvent(input.MouseMoved, final.X, final.Y).
			WithButton(input.None)
		if buttons > 0 {
			ev = ev.WithButtons(buttons).WithButton(input.Left)
		}
		if err := ev.Do(ctx); err != nil {
			if ctx.Err() == nil {
				h.logger.Warn("Humanoid: failed to dispatch mouse move", zap.Error(err))
			}
			return err
		}
		h.setPosition(final)

		h.mu.Lock()
		jitter := h.rng.Intn(4)
		h.mu.Unlock()
		if err := chromedp.Sleep(time.Duration(2+jitter) * time.Millisecond).Do(ctx); err != nil {
			return err
		}
	}

	// Land exactly on the target so subsequent press/release events hit it.
	if err := input.DispatchMouseEvent(input.MouseMoved, target.X, target.Y).
		WithButton(input.None).Do(ctx); err != nil {
		return err
	}
	h.setPosition(target)
	return nil
}

// Click moves to target and performs a full press/release cycle with a
// human press duration.
func (h *Humanoid) Click(ctx context.Context, target Vector2D) error {
	if err := h.MoveTo(ctx, target); err != nil {
		return err
	}
	if err := chromedp.Sleep(h.pause(90, 40)).Do(ctx); err != nil {
		return err
	}

	pos := h.Position()
	if err := input.DispatchMouseEvent(input.MousePressed, pos.X, pos.Y).
		WithButton(input.Left).
		WithClickCount(1).Do(ctx); err != nil {
		return err
	}
	if err := chromedp.Sleep(h.pause(70, 30)).Do(ctx); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, pos.X, pos.Y).
		WithButton(input.Left).
		WithClickCount(1).Do(ctx)
}

// ClickSelector resolves the element's on-screen center and clicks it.
func (h *Humanoid) ClickSelector(ctx context.Context, selector string) error {
	center, err := h.ElementCenter(ctx, selector)
	if err != nil {
		return err
	}
	return h.Click(ctx, center)
}

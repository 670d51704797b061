package humanoid

import (
	"context"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DragBy grabs the element matching handleSelector and drags it
// horizontally by dx pixels. The drag includes a small overshoot and a
// corrective settle, since a person rarely stops a slider dead on the
// target. Vertical wobble comes from the shared trajectory noise.
func (h *Humanoid) DragBy(ctx context.Context, handleSelector string, dx float64) error {
	handle, err := h.ElementCenter(ctx, handleSelector)
	if err != nil {
		return err
	}

	if err := h.MoveTo(ctx, handle); err != nil {
		return err
	}
	if err := chromedp.Sleep(h.pause(150, 60)).Do(ctx); err != nil {
		return err
	}

	pos := h.Position()
	if err := input.DispatchMouseEvent(input.MousePressed, pos.X, pos.Y).
		WithButton(input.Left).
		WithClickCount(1).Do(ctx); err != nil {
		return err
	}

	// Brief grip pause before the pull starts.
	if err := chromedp.Sleep(h.pause(120, 50)).Do(ctx); err != nil {
		h.releaseAt(ctx, pos)
		return err
	}

	h.mu.Lock()
	overshoot := 2.0 + h.rng.Float64()*6.0
	wobble := (h.rng.Float64()*2 - 1) * 3.0
	h.mu.Unlock()
	if dx < 0 {
		overshoot = -overshoot
	}

	target := Vector2D{X: handle.X + dx, Y: handle.Y + wobble}
	past := Vector2D{X: target.X + overshoot, Y: target.Y}

	if err := h.moveTo(ctx, past, 1); err != nil {
		h.releaseAt(ctx, h.Position())
		return err
	}
	if err := chromedp.Sleep(h.pause(90, 40)).Do(ctx); err != nil {
		h.releaseAt(ctx, h.Position())
		return err
	}
	if err := h.moveTo(ctx, target, 1); err != nil {
		h.releaseAt(ctx, h.Position())
		return err
	}

	// Hold at the end position so the release is not suspiciously instant.
	if err := chromedp.Sleep(h.pause(140, 60)).Do(ctx); err != nil {
		h.releaseAt(ctx, h.Position())
		return err
	}

	end := h.Position()
	if err := input.DispatchMouseEvent(input.MouseReleased, end.X, end.Y).
		WithButton(input.Left).
		WithClickCount(1).Do(ctx); err != nil {
		return err
	}

	h.logger.Debug("Humanoid: drag complete",
		zap.String("handle", handleSelector),
		zap.Float64("dx", dx))
	return nil
}

// releaseAt force-releases the left button during error unwinding so the
// tab is not left with a phantom held button.
func (h *Humanoid) releaseAt(ctx context.Context, pos Vector2D) {
	err := input.DispatchMouseEvent(input.MouseReleased, pos.X, pos.Y).
		WithButton(input.Left).
		WithClickCount(1).Do(ctx)
	if err != nil && ctx.Err() == nil {
		h.logger.Warn("Humanoid: failed to release button during unwind", zap.Error(err))
	}
}

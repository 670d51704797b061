package humanoid

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// wheelTick is the delta of a single notch on a conventional mouse wheel.
const wheelTick = 120.0

// scrollBy dispatches a burst of wheel events totalling roughly deltaY
// pixels, chunked into uneven ticks with short gaps so the burst reads
// like flicks of a physical wheel rather than one synthetic jump.
func (h *Humanoid) scrollBy(ctx context.Context, deltaY float64) error {
	pos := h.Position()
	remaining := deltaY

	for remaining != 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		h.mu.Lock()
		chunk := wheelTick * (0.7 + h.rng.Float64()*0.9)
		gap := time.Duration(30+h.rng.Intn(70)) * time.Millisecond
		h.mu.Unlock()

		if remaining < 0 {
			chunk = -chunk
			if chunk < remaining {
				chunk = remaining
			}
		} else if chunk > remaining {
			chunk = remaining
		}
		remaining -= chunk

		if err := input.DispatchMouseEvent(input.MouseWheel, pos.X, pos.Y).
			WithDeltaX(0).
			WithDeltaY(chunk).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Sleep(gap).Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ScrollDown scrolls the page down by roughly one viewport, with
// randomized magnitude.
func (h *Humanoid) ScrollDown(ctx context.Context) error {
	h.mu.Lock()
	amount := 500.0 + h.rng.Float64()*400.0
	h.mu.Unlock()
	return h.scrollBy(ctx, amount)
}

// SlightScrollUp nudges the page up a little. Feed pages re-arm their
// infinite-scroll observers on upward movement, so a small reverse
// scroll between downward sweeps keeps new content loading.
func (h *Humanoid) SlightScrollUp(ctx context.Context) error {
	h.mu.Lock()
	amount := 80.0 + h.rng.Float64()*120.0
	h.mu.Unlock()
	return h.scrollBy(ctx, -amount)
}

// ScrollCycle performs one down-pause-up-nudge sweep, the unit of
// progress for triggering lazy-loaded feed content.
func (h *Humanoid) ScrollCycle(ctx context.Context) error {
	if err := h.ScrollDown(ctx); err != nil {
		return err
	}
	if err := chromedp.Sleep(h.pause(400, 200)).Do(ctx); err != nil {
		return err
	}
	return h.SlightScrollUp(ctx)
}

// ScrollToTop returns the page to the top with a few large upward bursts.
func (h *Humanoid) ScrollToTop(ctx context.Context) error {
	for i := 0; i < 6; i++ {
		var atTop bool
		if err := chromedp.Evaluate(`window.scrollY < 4`, &atTop).Do(ctx); err != nil {
			return err
		}
		if atTop {
			return nil
		}
		if err := h.scrollBy(ctx, -1800); err != nil {
			return err
		}
		if err := chromedp.Sleep(h.pause(200, 80)).Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

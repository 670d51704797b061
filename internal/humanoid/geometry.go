package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// ElementCenter resolves the viewport-space center of the first element
// matching selector. Layout can lag DOM attachment, so the box model
// lookup retries briefly before giving up.
func (h *Humanoid) ElementCenter(ctx context.Context, selector string) (Vector2D, error) {
	var nodes []*cdp.Node
	if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(1)).Do(ctx); err != nil {
		return Vector2D{}, fmt.Errorf("humanoid: resolving %q: %w", selector, err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err == nil && box != nil && len(box.Content) >= 8 {
			return boxCenter(box), nil
		}
		lastErr = err
		if err := chromedp.Sleep(100 * time.Millisecond).Do(ctx); err != nil {
			return Vector2D{}, err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty box model")
	}
	return Vector2D{}, fmt.Errorf("humanoid: box model for %q: %w", selector, lastErr)
}

// ElementBox returns the viewport-space content quad bounds of selector
// as (topLeft, width, height).
func (h *Humanoid) ElementBox(ctx context.Context, selector string) (Vector2D, float64, float64, error) {
	var nodes []*cdp.Node
	if err := chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(1)).Do(ctx); err != nil {
		return Vector2D{}, 0, 0, fmt.Errorf("humanoid: resolving %q: %w", selector, err)
	}
	box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
	if err != nil {
		return Vector2D{}, 0, 0, fmt.Errorf("humanoid: box model for %q: %w", selector, err)
	}
	if box == nil || len(box.Content) < 8 {
		return Vector2D{}, 0, 0, fmt.Errorf("humanoid: empty box model for %q", selector)
	}
	topLeft := Vector2D{X: box.Content[0], Y: box.Content[1]}
	return topLeft, float64(box.Width), float64(box.Height), nil
}

// boxCenter averages the four corners of the content quad. The quad is
// eight floats: x1,y1,x2,y2,x3,y3,x4,y4 in clockwise order.
func boxCenter(box *dom.BoxModel) Vector2D {
	var cx, cy float64
	for i := 0; i < 8; i += 2 {
		cx += box.Content[i]
		cy += box.Content[i+1]
	}
	return Vector2D{X: cx / 4, Y: cy / 4}
}

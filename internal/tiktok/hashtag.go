// internal/tiktok/hashtag.go
package tiktok

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/challenge"
	"github.com/networkdynamics/gotok/internal/scrape"
)

// Hashtag is a handle on a tag page.
type Hashtag struct {
	client *Client
	Name   string

	info *HashtagInfo
}

func (h *Hashtag) tagURL() string {
	return fmt.Sprintf("%s/tag/%s", siteOrigin, h.Name)
}

func (h *Hashtag) probe() challenge.Probe {
	return challenge.Probe{
		ContentSelector:    `[data-e2e="challenge-item"]`,
		UnavailablePhrases: []string{"Not available"},
	}
}

// hydrate navigates to the tag page and extracts the tag object from
// the detail exchange the page fires on load.
func (h *Hashtag) hydrate(ctx context.Context) error {
	if h.info != nil {
		return nil
	}

	if _, err := h.client.navigate(ctx, h.tagURL(), h.probe()); err != nil {
		return err
	}
	if err := h.client.syncReplayCookies(ctx); err != nil {
		h.client.logger.Debug("Cookie sync failed.", zap.Error(err))
	}

	events := h.client.session.Interceptor().Drain("api/challenge/detail")
	wanted := "challengeName=" + url.QueryEscape(h.Name)
	for i := len(events) - 1; i >= 0; i-- {
		if !strings.Contains(events[i].URL, wanted) {
			continue
		}
		info, err := parseChallengeBody(events[i].Body)
		if err != nil {
			return err
		}
		h.info = info
		return nil
	}
	return scrape.APIFailedf("tag detail exchange was not captured for %q", h.Name)
}

// Info returns the hydrated tag.
func (h *Hashtag) Info(ctx context.Context) (*HashtagInfo, error) {
	if err := h.hydrate(ctx); err != nil {
		return nil, err
	}
	return h.info, nil
}

// Videos walks the tag's feed, one call per unique video.
func (h *Hashtag) Videos(ctx context.Context, yield func(VideoInfo) bool) error {
	if err := h.hydrate(ctx); err != nil {
		return err
	}

	feed := newFeed(h.client, "api/challenge/item_list", "cursor", parseItemListBody,
		func(v VideoInfo) string { return v.ID }, nil)
	return feed.Each(ctx, yield)
}

// internal/tiktok/user.go
package tiktok

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/challenge"
	"github.com/networkdynamics/gotok/internal/scrape"
)

// User is a handle on a profile. It starts as a bare reference and
// hydrates on first use; hydration navigates the browser to the profile
// and survives for the life of the handle.
type User struct {
	client   *Client
	Username string

	info  *UserInfo
	state challenge.State
}

func (u *User) profileURL() string {
	return fmt.Sprintf("%s/@%s?lang=en", siteOrigin, u.Username)
}

func (u *User) probe() challenge.Probe {
	return challenge.Probe{
		ContentSelector:    `[data-e2e="user-post-item"]`,
		UnavailablePhrases: []string{"Couldn't find this account"},
		EmptyPhrases:       []string{"No content", "This account is private"},
	}
}

// hydrate navigates to the profile and extracts the user object, from
// the detail API exchange when one was captured, else from the page
// blob.
func (u *User) hydrate(ctx context.Context) error {
	if u.info != nil {
		return nil
	}

	state, err := u.client.navigate(ctx, u.profileURL(), u.probe())
	if err != nil {
		return err
	}
	u.state = state

	if err := u.client.syncReplayCookies(ctx); err != nil {
		u.client.logger.Debug("Cookie sync failed.", zap.Error(err))
	}

	if events := u.client.session.Interceptor().Drain("api/user/detail"); len(events) > 0 {
		info, err := parseUserDetailBody(events[len(events)-1].Body)
		if err == nil {
			u.info = info
			return nil
		}
		u.client.logger.Debug("User detail capture unusable, falling back to page blob.", zap.Error(err))
	}

	html, err := u.client.session.PageHTML(ctx)
	if err != nil {
		return err
	}
	blob, err := extractPageBlob(html)
	if err != nil {
		return err
	}
	info, err := parseUserBlob(blob, u.Username)
	if err != nil {
		return err
	}
	u.info = info
	return nil
}

// Info returns the hydrated profile.
func (u *User) Info(ctx context.Context) (*UserInfo, error) {
	if err := u.hydrate(ctx); err != nil {
		return nil, err
	}
	return u.info, nil
}

// Videos walks the profile's uploads newest first, calling yield once
// per unique video. Return false from yield to stop early. A profile
// that exists but shows no content fails with a no-content error.
func (u *User) Videos(ctx context.Context, yield func(VideoInfo) bool) error {
	if err := u.hydrate(ctx); err != nil {
		return err
	}
	if err := noContent(u.state, "profile %q shows no content", u.Username); err != nil {
		return err
	}

	feed := newFeed(u.client, "api/post/item_list", "cursor", parseItemListBody,
		func(v VideoInfo) string { return v.ID }, nil)
	return feed.Each(ctx, yield)
}

// Liked walks the videos the profile has liked. Likes are private by
// default; a profile with hidden likes fails with a no-content error.
func (u *User) Liked(ctx context.Context, yield func(VideoInfo) bool) error {
	if err := u.hydrate(ctx); err != nil {
		return err
	}

	clickCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := u.client.session.Run(clickCtx,
		chromedp.Click(`[data-e2e="liked-tab"]`, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return scrape.NotAvailablef("liked tab not reachable for %q: %v", u.Username, err)
	}

	body, err := u.client.session.BodyText(ctx)
	if err == nil && strings.Contains(body, "liked videos are private") {
		return scrape.NoContentf("likes of %q are private", u.Username)
	}

	feed := newFeed(u.client, "api/favorite/item_list", "cursor", parseItemListBody,
		func(v VideoInfo) string { return v.ID }, nil)
	return feed.Each(ctx, yield)
}

// Collect gathers up to n items from a yield-style walker. n <= 0 means
// no limit.
func Collect[T any](ctx context.Context, n int, walk func(context.Context, func(T) bool) error) ([]T, error) {
	var out []T
	err := walk(ctx, func(item T) bool {
		out = append(out, item)
		return n <= 0 || len(out) < n
	})
	return out, err
}

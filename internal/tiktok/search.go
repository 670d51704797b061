// internal/tiktok/search.go
package tiktok

import (
	"context"
	"fmt"
	"net/url"

	"github.com/networkdynamics/gotok/internal/challenge"
)

// Search is a handle on a query.
type Search struct {
	client *Client
	Term   string
}

func (s *Search) searchURL(kind string) string {
	return fmt.Sprintf("%s/search/%s?q=%s", siteOrigin, kind, url.QueryEscape(s.Term))
}

// Users walks accounts matching the term. The search API paginates with
// an offset rather than a cursor.
func (s *Search) Users(ctx context.Context, yield func(SearchUser) bool) error {
	state, err := s.client.navigate(ctx, s.searchURL("user"), challenge.Probe{
		ContentSelector: `[data-e2e="search-user-container"]`,
		EmptyPhrases:    []string{"No results found"},
	})
	if err != nil {
		return err
	}
	if err := noContent(state, "no accounts match %q", s.Term); err != nil {
		return err
	}

	feed := newFeed(s.client, "api/search/user", "offset", parseUserListBody,
		func(u SearchUser) string { return u.Info.UID }, nil)
	return feed.Each(ctx, yield)
}

// Videos walks videos matching the term.
func (s *Search) Videos(ctx context.Context, yield func(VideoInfo) bool) error {
	state, err := s.client.navigate(ctx, s.searchURL("video"), challenge.Probe{
		ContentSelector: `[data-e2e="search_video-item"]`,
		EmptyPhrases:    []string{"No results found"},
	})
	if err != nil {
		return err
	}
	if err := noContent(state, "no videos match %q", s.Term); err != nil {
		return err
	}

	feed := newFeed(s.client, "api/search/item", "offset", parseItemListBody,
		func(v VideoInfo) string { return v.ID }, nil)
	return feed.Each(ctx, yield)
}

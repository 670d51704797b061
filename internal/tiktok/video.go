// internal/tiktok/video.go
package tiktok

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/networkdynamics/gotok/internal/challenge"
	"github.com/networkdynamics/gotok/internal/scrape"
)

const (
	commentListPattern = "api/comment/list"
	commentReplyPath   = "api/comment/list/reply"
	relatedListPattern = "api/related/item_list"
)

// Video is a handle on a single video.
type Video struct {
	client   *Client
	Username string
	ID       string

	info         *VideoInfo
	commentState challenge.State
	commentSeed  scrape.ReplaySeed
}

func (v *Video) watchURL() string {
	return fmt.Sprintf("%s/@%s/video/%s", siteOrigin, v.Username, v.ID)
}

func (v *Video) probe() challenge.Probe {
	return challenge.Probe{
		ContentSelector:    `[id="main-content-video_detail"]`,
		UnavailablePhrases: []string{"Video currently unavailable"},
	}
}

// hydrate navigates to the watch page and extracts the video object
// from the page blob.
func (v *Video) hydrate(ctx context.Context) error {
	if v.info != nil {
		return nil
	}

	if _, err := v.client.navigate(ctx, v.watchURL(), v.probe()); err != nil {
		return err
	}
	if err := v.client.syncReplayCookies(ctx); err != nil {
		v.client.logger.Debug("Cookie sync failed.", zap.Error(err))
	}

	html, err := v.client.session.PageHTML(ctx)
	if err != nil {
		return err
	}
	blob, err := extractPageBlob(html)
	if err != nil {
		return err
	}
	info, err := parseVideoBlob(blob, v.ID)
	if err != nil {
		return err
	}
	v.info = info
	return nil
}

// Info returns the hydrated video.
func (v *Video) Info(ctx context.Context) (*VideoInfo, error) {
	if err := v.hydrate(ctx); err != nil {
		return nil, err
	}
	return v.info, nil
}

// Comments walks the video's comment feed in site order, one call per
// unique comment. A video with comments disabled or none yet fails with
// a no-content error. The last captured comment exchange is kept as the
// seed for reply fetching.
func (v *Video) Comments(ctx context.Context, yield func(Comment) bool) error {
	if err := v.hydrate(ctx); err != nil {
		return err
	}

	state, err := v.client.settle(ctx, challenge.Probe{
		ContentSelector: `[data-e2e="comment-level-1"]`,
		EmptyPhrases:    []string{"Be the first to comment!", "Comments are turned off"},
	})
	if err != nil {
		return err
	}
	v.commentState = state
	if err := noContent(state, "video %s has no comments", v.ID); err != nil {
		return err
	}

	feed := newFeed(v.client, commentListPattern, "cursor", parseCommentListBody,
		func(c Comment) string { return c.CID }, nil)
	feed.OnCapture(func(c scrape.Capture) {
		if !strings.Contains(c.URL, commentReplyPath) {
			v.commentSeed = scrape.SeedFromCapture(c)
		}
	})
	return feed.Each(ctx, yield)
}

// Replies fills comment.Replies until the thread is complete, fetching
// directly in batches. It needs a comment exchange observed by a prior
// Comments walk on this handle to derive the reply endpoint from.
func (v *Video) Replies(ctx context.Context, comment *Comment) error {
	if !v.commentSeed.Valid() {
		return scrape.APIFailedf("no comment exchange captured to derive reply requests from")
	}
	batch := v.client.cfg.Scrape.ReplyBatchSize
	if batch <= 0 {
		batch = 100
	}

	unproductive := 0
	for int64(len(comment.Replies)) < comment.ReplyTotal {
		seed, err := v.replySeed(comment, len(comment.Replies), batch)
		if err != nil {
			return err
		}

		res, err := v.client.replayer.Fetch(ctx, seed, nil)
		if err != nil {
			return err
		}
		if res.Outcome == scrape.ReplayFallback {
			return scrape.APIFailedf("reply fetch refused: %s", res.Reason)
		}

		page, err := parseCommentListBody(res.Body)
		if err != nil {
			return err
		}
		comment.Replies = append(comment.Replies, page.Items...)
		if !page.HasMore {
			break
		}

		// An item-free page leaves the cursor where it was, so the next
		// request would be identical. Tolerate a few before giving up.
		if len(page.Items) == 0 {
			unproductive++
			if unproductive >= 3 {
				return scrape.Timeoutf("reply thread %s reports more data but stopped producing items", comment.CID)
			}
		} else {
			unproductive = 0
		}
	}
	return nil
}

// replySeed rewrites the captured comment-list request into a reply-list
// request for one thread.
func (v *Video) replySeed(comment *Comment, cursor, count int) (scrape.ReplaySeed, error) {
	u, err := url.Parse(v.commentSeed.URL)
	if err != nil {
		return scrape.ReplaySeed{}, fmt.Errorf("parsing comment seed URL: %w", err)
	}
	u.Path = strings.Replace(u.Path, commentListPattern, commentReplyPath, 1)

	q := u.Query()
	q.Del("aweme_id")
	q.Set("cursor", strconv.Itoa(cursor))
	q.Set("count", strconv.Itoa(count))
	q.Set("item_id", comment.AwemeID)
	q.Set("comment_id", comment.CID)
	q.Set("focus_state", "true")
	u.RawQuery = q.Encode()

	return scrape.ReplaySeed{URL: u.String(), Headers: v.commentSeed.Headers}, nil
}

// Related walks the videos the site recommends next to this one. The
// related feed loops server side, so the dedup set is what terminates a
// full walk; bound it with yield.
func (v *Video) Related(ctx context.Context, yield func(VideoInfo) bool) error {
	if err := v.hydrate(ctx); err != nil {
		return err
	}

	feed := newFeed(v.client, relatedListPattern, "cursor", parseItemListBody,
		func(item VideoInfo) string { return item.ID }, nil)
	return feed.Each(ctx, yield)
}

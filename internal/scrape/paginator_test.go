package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Test Helpers and Fixtures

// feedBody is the wire shape the fake feed serves.
type feedBody struct {
	Items   []string `json:"items"`
	Cursor  string   `json:"cursor"`
	HasMore bool     `json:"hasMore"`
}

func parseFeed(body []byte) (Page[string], error) {
	var fb feedBody
	if err := json.Unmarshal(body, &fb); err != nil {
		return Page[string]{}, err
	}
	if fb.Items == nil && fb.Cursor == "" {
		return Page[string]{}, fmt.Errorf("body carries no feed payload")
	}
	return Page[string]{Items: fb.Items, Cursor: fb.Cursor, HasMore: fb.HasMore}, nil
}

func identity(s string) string { return s }

// makeItems produces item IDs [start, start+n).
func makeItems(start, n int) []string {
	items := make([]string, 0, n)
	for i := start; i < start+n; i++ {
		items = append(items, strconv.Itoa(i))
	}
	return items
}

// fakeFeedServer serves a paged feed over HTTP keyed by the cursor
// query parameter. Pages of pageSize items until total is exhausted.
type fakeFeedServer struct {
	total    int
	pageSize int
	hits     int

	// refuseAtCursor, when matched, answers with the verification
	// interstitial instead of data.
	refuseAtCursor string
}

func (f *fakeFeedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.hits++
		cursor := r.URL.Query().Get("cursor")
		if cursor == "" {
			cursor = "0"
		}
		if cursor == f.refuseAtCursor {
			fmt.Fprint(w, `{"type":"verify","subtype":"slide"}`)
			return
		}

		start, _ := strconv.Atoi(cursor)
		n := f.pageSize
		if start+n > f.total {
			n = f.total - start
		}
		body := feedBody{
			Items:   makeItems(start, n),
			Cursor:  strconv.Itoa(start + n),
			HasMore: start+n < f.total,
		}
		enc, _ := json.Marshal(body)
		w.Write(enc)
	}
}

// queueSource replays pre-staged capture batches, one batch per drain.
type queueSource struct {
	batches [][]Capture
}

func (q *queueSource) Drain() []Capture {
	if len(q.batches) == 0 {
		return nil
	}
	batch := q.batches[0]
	q.batches = q.batches[1:]
	return batch
}

// funcScroller lets a test observe and drive scroll sweeps.
type funcScroller struct {
	calls int
	fn    func() error
}

func (s *funcScroller) ScrollCycle(context.Context) error {
	s.calls++
	if s.fn != nil {
		return s.fn()
	}
	return nil
}

type funcGuard struct {
	calls int
	err   error
}

func (g *funcGuard) Check(context.Context) error {
	g.calls++
	return g.err
}

func newTestReplayer(t *testing.T) *Replayer {
	t.Helper()
	r, err := NewReplayer(0, nil, zap.NewNop())
	require.NoError(t, err)
	return r
}

func captureFor(urlStr string, body feedBody) Capture {
	enc, _ := json.Marshal(body)
	return Capture{URL: urlStr, Headers: map[string]string{"referer": "https://www.tiktok.com/"}, Body: enc}
}

func collect(t *testing.T, p *Paginator[string]) ([]string, error) {
	t.Helper()
	var got []string
	err := p.Each(context.Background(), func(item string) bool {
		got = append(got, item)
		return true
	})
	return got, err
}

// Test Cases: direct replay tier

// A profile with 110 posts pages through in order, entirely over direct
// replay once the first capture seeds it.
func TestPaginator_DirectReplayWalksFeedToExhaustion(t *testing.T) {
	feed := &fakeFeedServer{total: 110, pageSize: 35}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	p := NewPaginator(PaginatorConfig[string]{
		Source:      &queueSource{},
		Scroller:    &funcScroller{},
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/api/post/item_list/?cursor=0&signature=abc"},
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, makeItems(0, 110), got, "items must come back in feed order with no gaps")
	assert.Equal(t, 4, feed.hits, "110 items at 35 per page is exactly four fetches")
}

// A feed that reports no more data on its very first page ends the walk
// without touching the scroll tier.
func TestPaginator_SinglePageFeed(t *testing.T) {
	feed := &fakeFeedServer{total: 20, pageSize: 35}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	scroller := &funcScroller{}
	p := NewPaginator(PaginatorConfig[string]{
		Source:      &queueSource{},
		Scroller:    scroller,
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Zero(t, scroller.calls)
}

// Items folded in from the first page render come first and suppress
// their duplicates in later API pages.
func TestPaginator_InitialPageFoldsInBeforeFetching(t *testing.T) {
	feed := &fakeFeedServer{total: 70, pageSize: 35}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	initial := &Page[string]{Items: makeItems(0, 35), Cursor: "0", HasMore: true}
	p := NewPaginator(PaginatorConfig[string]{
		Source:      &queueSource{},
		Scroller:    &funcScroller{},
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Initial:     initial,
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, makeItems(0, 70), got, "rendered items re-served by the API must not repeat")
}

// yield returning false ends the walk cleanly and fetches no further
// pages.
func TestPaginator_YieldStopsEarly(t *testing.T) {
	feed := &fakeFeedServer{total: 110, pageSize: 35}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	p := NewPaginator(PaginatorConfig[string]{
		Source:      &queueSource{},
		Scroller:    &funcScroller{},
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	var got []string
	err := p.Each(context.Background(), func(item string) bool {
		got = append(got, item)
		return len(got) < 10
	})
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, 1, feed.hits, "stopping inside the first page must not fetch a second")
}

// Test Cases: demotion and the scroll tier

// The verification interstitial on the direct path demotes the run to
// the browser tier, which finishes the feed. Items already emitted stay
// emitted exactly once.
func TestPaginator_VerifyMarkerDemotesToScrollTier(t *testing.T) {
	feed := &fakeFeedServer{total: 70, pageSize: 35, refuseAtCursor: "35"}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	source := &queueSource{}
	scroller := &funcScroller{}
	scroller.fn = func() error {
		// The scroll sweep makes the live page issue the request the
		// API refused to serve directly.
		source.batches = append(source.batches, []Capture{
			captureFor(srv.URL+"/feed?cursor=35", feedBody{Items: makeItems(35, 35), Cursor: "70", HasMore: false}),
		})
		return nil
	}

	p := NewPaginator(PaginatorConfig[string]{
		Source:      source,
		Scroller:    scroller,
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, makeItems(0, 70), got)
	assert.Equal(t, 2, feed.hits, "after the refusal the direct path must not be retried")
	assert.Equal(t, 1, scroller.calls)
}

// An unparseable body on the direct path is treated like a refusal, not
// an error: the run demotes and continues in the browser.
func TestPaginator_GarbageBodyDemotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>access denied</html>`)
	}))
	defer srv.Close()

	source := &queueSource{}
	scroller := &funcScroller{fn: func() error {
		source.batches = append(source.batches, []Capture{
			captureFor(srv.URL+"/feed?cursor=0", feedBody{Items: makeItems(0, 5), Cursor: "5", HasMore: false}),
		})
		return nil
	}}

	p := NewPaginator(PaginatorConfig[string]{
		Source:      source,
		Scroller:    scroller,
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, makeItems(0, 5), got)
}

// Without a seed the run starts in the scroll tier, and the first
// harvested capture becomes the seed for direct fetching.
func TestPaginator_HarvestedCaptureSeedsDirectReplay(t *testing.T) {
	feed := &fakeFeedServer{total: 70, pageSize: 35}
	srv := httptest.NewServer(feed.handler())
	defer srv.Close()

	source := &queueSource{}
	scroller := &funcScroller{fn: func() error {
		source.batches = append(source.batches, []Capture{
			captureFor(srv.URL+"/feed?cursor=0", feedBody{Items: makeItems(0, 35), Cursor: "35", HasMore: true}),
		})
		return nil
	}}

	p := NewPaginator(PaginatorConfig[string]{
		Source:      source,
		Scroller:    scroller,
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Logger:      zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, makeItems(0, 70), got)
	assert.Equal(t, 1, feed.hits, "the second page should ride the seed harvested from the first")
	assert.Equal(t, 1, scroller.calls)
}

// OnCapture observers see every drained capture.
func TestPaginator_OnCaptureObserver(t *testing.T) {
	source := &queueSource{batches: [][]Capture{{
		captureFor("https://example.test/feed?cursor=0", feedBody{Items: makeItems(0, 3), Cursor: "3", HasMore: false}),
	}}}

	p := NewPaginator(PaginatorConfig[string]{
		Source:   source,
		Scroller: &funcScroller{},
		Parse:    parseFeed,
		Key:      identity,
		Logger:   zap.NewNop(),
	})

	var seen []string
	p.OnCapture(func(c Capture) { seen = append(seen, c.URL) })

	_, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.test/feed?cursor=0"}, seen)
}

// Test Cases: stall handling

// Sweeps that never surface feed traffic end the run with a timeout.
func TestPaginator_StalledScrollingTimesOut(t *testing.T) {
	scroller := &funcScroller{}
	guard := &funcGuard{}
	p := NewPaginator(PaginatorConfig[string]{
		Source:         &queueSource{},
		Scroller:       scroller,
		Guard:          guard,
		Parse:          parseFeed,
		Key:            identity,
		MaxScrollTries: 4,
		Logger:         zap.NewNop(),
	})

	_, err := collect(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, scroller.calls)
	assert.Equal(t, 4, guard.calls, "the guard runs before every sweep")
}

// A feed that keeps promising more data while serving empty pages is
// declared stalled after a few attempts.
func TestPaginator_EmptyPagesReportingMoreTimeOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc, _ := json.Marshal(feedBody{Items: nil, Cursor: "0", HasMore: true})
		w.Write(enc)
	}))
	defer srv.Close()

	p := NewPaginator(PaginatorConfig[string]{
		Source:      &queueSource{},
		Scroller:    &funcScroller{},
		Replayer:    newTestReplayer(t),
		Parse:       parseFeed,
		Key:         identity,
		CursorParam: "cursor",
		Seed:        ReplaySeed{URL: srv.URL + "/feed?cursor=0"},
		Logger:      zap.NewNop(),
	})

	_, err := collect(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

// Guard failures stop the run; a challenge that cannot be cleared must
// surface, not spin.
func TestPaginator_GuardErrorPropagates(t *testing.T) {
	guard := &funcGuard{err: Captchaf("verification loop did not clear")}
	p := NewPaginator(PaginatorConfig[string]{
		Source:   &queueSource{},
		Scroller: &funcScroller{},
		Guard:    guard,
		Parse:    parseFeed,
		Key:      identity,
		Logger:   zap.NewNop(),
	})

	_, err := collect(t, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptcha)
}

// Context cancellation surfaces promptly between pages.
func TestPaginator_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPaginator(PaginatorConfig[string]{
		Source:   &queueSource{},
		Scroller: &funcScroller{},
		Parse:    parseFeed,
		Key:      identity,
		Logger:   zap.NewNop(),
	})

	err := p.Each(ctx, func(string) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}

// Duplicate items across harvested captures collapse to one emission.
func TestPaginator_DeduplicatesAcrossPages(t *testing.T) {
	source := &queueSource{batches: [][]Capture{{
		captureFor("https://example.test/feed?cursor=0", feedBody{Items: []string{"a", "b", "c"}, Cursor: "3", HasMore: true}),
		captureFor("https://example.test/feed?cursor=3", feedBody{Items: []string{"b", "c", "d"}, Cursor: "6", HasMore: false}),
	}}}

	p := NewPaginator(PaginatorConfig[string]{
		Source:   source,
		Scroller: &funcScroller{},
		Parse:    parseFeed,
		Key:      identity,
		Logger:   zap.NewNop(),
	})

	got, err := collect(t, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

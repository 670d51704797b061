// internal/scrape/paginator.go
package scrape

import (
	"context"

	"go.uber.org/zap"
)

// EventSource hands over API exchanges captured since the last drain.
type EventSource interface {
	Drain() []Capture
}

// Scroller performs one scroll sweep that can coax the page into
// issuing another feed request.
type Scroller interface {
	ScrollCycle(ctx context.Context) error
}

// Guard runs between scroll sweeps to keep the page fetchable: closing
// sign-in modals, pressing refresh interstitials, clearing challenges.
type Guard interface {
	Check(ctx context.Context) error
}

// ParseFunc turns one raw API body into a typed page.
type ParseFunc[T any] func(body []byte) (Page[T], error)

// KeyFunc yields the identity used for deduplication.
type KeyFunc[T any] func(T) string

// PaginatorConfig wires one pagination run.
type PaginatorConfig[T any] struct {
	Source   EventSource
	Scroller Scroller
	Guard    Guard
	Replayer *Replayer

	Parse ParseFunc[T]
	Key   KeyFunc[T]

	// CursorParam is the query parameter carrying the position, usually
	// "cursor".
	CursorParam string

	// Initial optionally folds in items extracted from the first page
	// render before any API pagination happens.
	Initial *Page[T]

	// Seed optionally primes direct fetching from a capture observed
	// during navigation.
	Seed ReplaySeed

	// MaxScrollTries bounds consecutive sweeps that surface no new API
	// traffic before the run is declared stalled.
	MaxScrollTries int

	Logger *zap.Logger
}

// Paginator walks one feed to exhaustion. Fetching is two-tier: direct
// replay of the captured signed request while the API tolerates it,
// then browser scrolling once it demands verification. Demotion is
// one-way for the life of the run; an API that asked for verification
// once will keep asking.
type Paginator[T any] struct {
	cfg    PaginatorConfig[T]
	logger *zap.Logger

	seed      ReplaySeed
	cursor    string
	hasMore   bool
	demoted   bool
	seen      map[string]struct{}
	onCapture func(Capture)
}

// OnCapture registers an observer called for every capture the run
// drains, before parsing. Callers use it to keep their own seed copies.
func (p *Paginator[T]) OnCapture(fn func(Capture)) {
	p.onCapture = fn
}

// NewPaginator builds a run in its starting state.
func NewPaginator[T any](cfg PaginatorConfig[T]) *Paginator[T] {
	if cfg.MaxScrollTries <= 0 {
		cfg.MaxScrollTries = 10
	}
	return &Paginator[T]{
		cfg:     cfg,
		logger:  cfg.Logger.Named("paginator"),
		seed:    cfg.Seed,
		hasMore: true,
		seen:    make(map[string]struct{}),
	}
}

// Each walks the feed, calling yield once per unique item in feed
// order. Iteration stops when yield returns false, the feed reports no
// more data, or an error surfaces. Items emitted before an error are
// not re-emitted on retry within the same run.
func (p *Paginator[T]) Each(ctx context.Context, yield func(T) bool) error {
	if p.cfg.Initial != nil {
		p.cursor = p.cfg.Initial.Cursor
		p.hasMore = p.cfg.Initial.HasMore
		if !p.emit(p.cfg.Initial.Items, yield) {
			return nil
		}
	}

	// Navigation itself may have triggered feed requests; fold them in
	// and seed replay before the first explicit fetch.
	if pages, ok := p.harvest(); ok {
		for _, page := range pages {
			if !p.emit(page.Items, yield) {
				return nil
			}
		}
	}

	unproductive := 0
	for p.hasMore {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pages, err := p.fetchNext(ctx)
		if err != nil {
			return err
		}

		produced := false
		for _, page := range pages {
			if len(page.Items) > 0 {
				produced = true
			}
			if !p.emit(page.Items, yield) {
				return nil
			}
		}

		if produced {
			unproductive = 0
		} else {
			unproductive++
			if unproductive >= 3 {
				return Timeoutf("feed reports more data but stopped producing items at cursor %q", p.cursor)
			}
		}
	}
	return nil
}

// fetchNext produces the next batch of pages via the current tier.
func (p *Paginator[T]) fetchNext(ctx context.Context) ([]Page[T], error) {
	if !p.demoted && p.seed.Valid() {
		page, ok, err := p.tryDirectReplay(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return []Page[T]{page}, nil
		}
		// Fall through to the browser tier for this and all later pages.
	}
	return p.scrollForPages(ctx)
}

// tryDirectReplay attempts a direct fetch at the current cursor. A
// false ok means the run was demoted.
func (p *Paginator[T]) tryDirectReplay(ctx context.Context) (Page[T], bool, error) {
	params := map[string]string{}
	if p.cfg.CursorParam != "" {
		params[p.cfg.CursorParam] = p.cursor
	}

	res, err := p.cfg.Replayer.Fetch(ctx, p.seed, params)
	if err != nil {
		return Page[T]{}, false, err
	}
	if res.Outcome == ReplayFallback {
		p.demote(res.Reason)
		return Page[T]{}, false, nil
	}

	page, err := p.cfg.Parse(res.Body)
	if err != nil {
		// Garbage on the shortcut path means the API is serving us
		// something other than data; let the browser tier take over.
		p.demote("unparseable body: " + err.Error())
		return Page[T]{}, false, nil
	}

	p.advance(page.Cursor, page.HasMore)
	return page, true, nil
}

// scrollForPages drives the live page until new feed traffic appears.
func (p *Paginator[T]) scrollForPages(ctx context.Context) ([]Page[T], error) {
	for try := 0; try < p.cfg.MaxScrollTries; try++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if p.cfg.Guard != nil {
			if err := p.cfg.Guard.Check(ctx); err != nil {
				return nil, err
			}
		}
		if err := p.cfg.Scroller.ScrollCycle(ctx); err != nil {
			return nil, err
		}

		if pages, ok := p.harvest(); ok {
			return pages, nil
		}
	}
	return nil, Timeoutf("no feed traffic after %d scroll sweeps at cursor %q", p.cfg.MaxScrollTries, p.cursor)
}

// harvest drains captured exchanges into parsed pages. Each capture
// refreshes the replay seed, so a later tier-1 attempt replays the
// newest signed URL the page produced. Unparseable captures are
// dropped; the page fires unrelated calls on the same path family.
func (p *Paginator[T]) harvest() ([]Page[T], bool) {
	captures := p.cfg.Source.Drain()
	if len(captures) == 0 {
		return nil, false
	}

	var pages []Page[T]
	for _, c := range captures {
		if p.onCapture != nil {
			p.onCapture(c)
		}
		page, err := p.cfg.Parse(c.Body)
		if err != nil {
			p.logger.Debug("Dropping unparseable capture.", zap.String("url", c.URL), zap.Error(err))
			continue
		}
		p.seed = SeedFromCapture(c)
		p.advance(page.Cursor, page.HasMore)
		pages = append(pages, page)
	}
	return pages, len(pages) > 0
}

// advance moves the cursor. An empty next cursor with more data keeps
// the previous position so a replayed request does not restart the
// feed.
func (p *Paginator[T]) advance(cursor string, hasMore bool) {
	if cursor != "" {
		p.cursor = cursor
	}
	p.hasMore = hasMore
}

// demote switches the run to browser-driven fetching permanently.
func (p *Paginator[T]) demote(reason string) {
	if !p.demoted {
		p.logger.Info("Direct fetch demoted to browser tier.", zap.String("reason", reason))
	}
	p.demoted = true
}

// emit forwards unseen items in order. A false return means the
// consumer is done.
func (p *Paginator[T]) emit(items []T, yield func(T) bool) bool {
	for _, item := range items {
		key := p.cfg.Key(item)
		if _, dup := p.seen[key]; dup {
			continue
		}
		p.seen[key] = struct{}{}
		if !yield(item) {
			return false
		}
	}
	return true
}

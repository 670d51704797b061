// internal/browser/interceptor.go
package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Event is a captured, not-yet-consumed network response.
type Event struct {
	RequestID  network.RequestID
	URL        string
	Method     string
	Status     int64
	MimeType   string
	Headers    map[string]string
	Body       []byte
	ReceivedAt time.Time
}

// requestState tracks the lifecycle of a single network request.
type requestState struct {
	request  *network.Request
	response *network.Response
	// responseReady signals when response headers have been received,
	// unblocking the body fetcher.
	responseReady chan struct{}
	body          []byte
	complete      bool
	receivedAt    time.Time
}

// Interceptor listens to CDP network events for one browser tab and buffers
// decoded response bodies for URLs the caller has registered interest in.
// Buffered events are consumed with Drain; unclaimed events are evicted once
// they age past the TTL or the buffer exceeds its cap.
type Interceptor struct {
	logger *zap.Logger

	// sessionCtx is the chromedp tab context events are read from.
	sessionCtx     context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	mu       sync.RWMutex
	requests map[network.RequestID]*requestState
	inflight map[network.RequestID]bool
	patterns []string
	buffered []Event

	maxBuffered int
	ttl         time.Duration

	bodyFetchWG sync.WaitGroup
	started     bool
}

// NewInterceptor creates an interceptor bound to the given tab context.
func NewInterceptor(sessionCtx context.Context, logger *zap.Logger, maxBuffered int, ttl time.Duration) *Interceptor {
	return &Interceptor{
		sessionCtx:  sessionCtx,
		logger:      logger.Named("interceptor"),
		requests:    make(map[network.RequestID]*requestState),
		inflight:    make(map[network.RequestID]bool),
		maxBuffered: maxBuffered,
		ttl:         ttl,
	}
}

// Start enables the network domain and begins listening. Tracking interest
// must be registered before the navigation that triggers the traffic, or
// early events are lost; callers recover missing data through direct replay.
func (ic *Interceptor) Start() error {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if ic.started {
		return nil
	}

	ic.listenerCtx, ic.cancelListener = context.WithCancel(ic.sessionCtx)
	go ic.listen()

	if err := chromedp.Run(ic.sessionCtx, network.Enable()); err != nil {
		ic.cancelListener()
		return err
	}

	ic.started = true
	ic.logger.Debug("Interceptor started and listening for events.")
	return nil
}

// Stop halts event collection and waits for in-flight body fetches.
func (ic *Interceptor) Stop(ctx context.Context) {
	ic.mu.Lock()
	if !ic.started {
		ic.mu.Unlock()
		return
	}
	if ic.cancelListener != nil {
		ic.cancelListener()
		ic.cancelListener = nil
	}
	ic.started = false
	ic.mu.Unlock()

	done := make(chan struct{})
	go func() {
		ic.bodyFetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		ic.logger.Warn("Timed out waiting for pending body fetches.", zap.Error(ctx.Err()))
	}
}

// Track registers interest in URLs containing the given substring. Bodies
// are only fetched for tracked URLs, keeping the buffer small.
func (ic *Interceptor) Track(substr string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	for _, p := range ic.patterns {
		if p == substr {
			return
		}
	}
	ic.patterns = append(ic.patterns, substr)
}

// Drain atomically removes and returns all buffered events whose URL contains
// the substring, leaving non-matching events in place. Events are returned in
// arrival order.
func (ic *Interceptor) Drain(substr string) []Event {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	var matched []Event
	kept := ic.buffered[:0]
	for _, ev := range ic.buffered {
		if strings.Contains(ev.URL, substr) {
			matched = append(matched, ev)
		} else {
			kept = append(kept, ev)
		}
	}
	ic.buffered = kept
	return matched
}

// WaitNetworkIdle polls until no request has been in flight for quietPeriod.
func (ic *Interceptor) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			ic.mu.RLock()
			inflight := len(ic.inflight)
			ic.mu.RUnlock()

			if inflight > 0 {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

func (ic *Interceptor) listen() {
	chromedp.ListenTarget(ic.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			ic.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			ic.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			ic.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			ic.handleLoadingFailed(e)
		}
	})
}

func (ic *Interceptor) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	ic.inflight[e.RequestID] = true

	// A redirect completes the previous request under the same ID.
	if e.RedirectResponse != nil {
		if prev, ok := ic.requests[e.RequestID]; ok && !prev.complete {
			prev.response = e.RedirectResponse
			prev.complete = true
			closeIfOpen(prev.responseReady)
		}
	}

	ic.requests[e.RequestID] = &requestState{
		request:       e.Request,
		responseReady: make(chan struct{}),
		receivedAt:    time.Now(),
	}
}

func (ic *Interceptor) handleResponseReceived(e *network.EventResponseReceived) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	if state, ok := ic.requests[e.RequestID]; ok {
		state.response = e.Response
		close(state.responseReady)
	}
}

func (ic *Interceptor) handleLoadingFinished(e *network.EventLoadingFinished) {
	ic.mu.Lock()

	delete(ic.inflight, e.RequestID)

	state, ok := ic.requests[e.RequestID]
	if !ok {
		ic.mu.Unlock()
		return
	}
	state.complete = true

	if state.request != nil && ic.isTrackedLocked(state.request.URL) {
		ic.bodyFetchWG.Add(1)
		// Unlock before spawning to avoid holding the lock across the fetch.
		ic.mu.Unlock()
		go ic.fetchBody(e.RequestID)
		return
	}
	delete(ic.requests, e.RequestID)
	ic.mu.Unlock()
}

func (ic *Interceptor) handleLoadingFailed(e *network.EventLoadingFailed) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	delete(ic.inflight, e.RequestID)

	if state, ok := ic.requests[e.RequestID]; ok {
		state.complete = true
		closeIfOpen(state.responseReady)
		delete(ic.requests, e.RequestID)
	}
}

func (ic *Interceptor) isTrackedLocked(url string) bool {
	for _, p := range ic.patterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// fetchBody retrieves the response body for a completed request and moves it
// into the buffered-event list. Runs in its own goroutine. Failures (redirect,
// cached response, race with page teardown) drop the event silently; losing
// one candidate response is recoverable by the pagination retry logic.
func (ic *Interceptor) fetchBody(requestID network.RequestID) {
	defer ic.bodyFetchWG.Done()

	if ic.sessionCtx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ic.sessionCtx, 15*time.Second)
	defer cancel()

	ic.mu.RLock()
	state, ok := ic.requests[requestID]
	ic.mu.RUnlock()
	if !ok {
		return
	}

	// Wait for response headers before asking for the body.
	select {
	case <-state.responseReady:
	case <-ctx.Done():
		return
	}

	body, err := network.GetResponseBody(requestID).Do(ctx)
	if err != nil {
		if ctx.Err() == nil {
			ic.logger.Debug("Failed to fetch response body.",
				zap.String("request_id", string(requestID)), zap.Error(err))
		}
		ic.mu.Lock()
		delete(ic.requests, requestID)
		ic.mu.Unlock()
		return
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()

	delete(ic.requests, requestID)
	if state.request == nil || state.response == nil {
		return
	}

	ev := Event{
		RequestID:  requestID,
		URL:        state.request.URL,
		Method:     state.request.Method,
		Status:     state.response.Status,
		MimeType:   state.response.MimeType,
		Headers:    flattenHeaders(state.request.Headers),
		Body:       body,
		ReceivedAt: state.receivedAt,
	}
	ic.buffered = append(ic.buffered, ev)
	ic.evictLocked()
}

// evictLocked drops events that aged past the TTL, then trims the oldest
// entries if the buffer still exceeds its cap. Callers hold ic.mu.
func (ic *Interceptor) evictLocked() {
	cutoff := time.Now().Add(-ic.ttl)
	kept := ic.buffered[:0]
	for _, ev := range ic.buffered {
		if ev.ReceivedAt.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	ic.buffered = kept

	if over := len(ic.buffered) - ic.maxBuffered; over > 0 {
		ic.buffered = append(ic.buffered[:0], ic.buffered[over:]...)
	}
}

// ingest places an already-built event in the buffer. Test seam; production
// events arrive through the CDP listener.
func (ic *Interceptor) ingest(ev Event) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.buffered = append(ic.buffered, ev)
	ic.evictLocked()
}

func closeIfOpen(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func flattenHeaders(h network.Headers) map[string]string {
	out := make(map[string]string, len(h))
	for name, value := range h {
		if s, ok := value.(string); ok {
			// CDP joins multi-value headers with newlines; keep the first.
			out[name] = strings.Split(s, "\n")[0]
		}
	}
	return out
}

package multiplex

import (
	"context"
	"sync"
	"time"
)

// captureTTL is how long a cached capture stays fresh. Captures are
// the most expensive tmux calls the monitor makes; within one poll
// cycle (and across quickly repeated preview renders) the same pane
// content is reused instead of forking tmux again.
const captureTTL = 300 * time.Millisecond

type captureEntry struct {
	content   string
	fetchedAt time.Time
}

// BatchCapturer wraps a Client with a short-TTL, single-flight
// capture cache. All non-capture operations pass through unchanged.
type BatchCapturer struct {
	*Client

	mu      sync.Mutex
	entries map[string]*captureState
}

type captureState struct {
	captureEntry
	inflight chan struct{} // non-nil while a fetch is running
	err      error
}

// NewBatchCapturer wraps c.
func NewBatchCapturer(c *Client) *BatchCapturer {
	return &BatchCapturer{Client: c, entries: make(map[string]*captureState)}
}

// CapturePane returns the ANSI capture for target, served from the
// cache when fresh.
func (b *BatchCapturer) CapturePane(ctx context.Context, target string) (string, error) {
	return b.capture(ctx, "ansi:"+target, func() (string, error) {
		return b.Client.CapturePane(ctx, target)
	})
}

// CapturePanePlain returns the plain capture for target, served from
// the cache when fresh.
func (b *BatchCapturer) CapturePanePlain(ctx context.Context, target string) (string, error) {
	return b.capture(ctx, "plain:"+target, func() (string, error) {
		return b.Client.CapturePanePlain(ctx, target)
	})
}

// capture implements the cache lookup with single-flight: a second
// caller for the same key while a fetch is running waits for that
// fetch instead of forking its own tmux.
func (b *BatchCapturer) capture(ctx context.Context, key string, fetch func() (string, error)) (string, error) {
	b.mu.Lock()
	st, ok := b.entries[key]
	if ok && st.inflight == nil && time.Since(st.fetchedAt) < captureTTL {
		content, err := st.content, st.err
		b.mu.Unlock()
		return content, err
	}
	if ok && st.inflight != nil {
		ch := st.inflight
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		b.mu.Lock()
		st = b.entries[key]
		content, err := st.content, st.err
		b.mu.Unlock()
		return content, err
	}

	st = &captureState{inflight: make(chan struct{})}
	b.entries[key] = st
	b.mu.Unlock()

	content, err := fetch()

	b.mu.Lock()
	st.content = content
	st.err = err
	st.fetchedAt = time.Now()
	close(st.inflight)
	st.inflight = nil
	b.mu.Unlock()

	return content, err
}

// Invalidate drops the cached captures for target, used after keys
// are sent so the next capture reflects the agent's response.
func (b *BatchCapturer) Invalidate(target string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, "ansi:"+target)
	delete(b.entries, "plain:"+target)
}

// Cleanup drops every stale entry.
func (b *BatchCapturer) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, st := range b.entries {
		if st.inflight == nil && time.Since(st.fetchedAt) > 10*captureTTL {
			delete(b.entries, key)
		}
	}
}

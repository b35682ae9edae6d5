package www

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"storedesk/dashboard"
	"storedesk/realtime"
)

// eventHub tracks open SSE streams so they can be counted and closed on shutdown.
type eventHub struct {
	mu      sync.Mutex
	next    int
	clients map[int]chan struct{}
	closed  bool
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[int]chan struct{})}
}

// register returns an id and a channel closed when the hub shuts down.
func (e *eventHub) register() (int, <-chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	done := make(chan struct{})
	if e.closed {
		close(done)
	}
	e.clients[e.next] = done
	return e.next, done
}

func (e *eventHub) unregister(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.clients, id)
}

func (e *eventHub) ClientCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clients)
}

func (e *eventHub) CloseAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, done := range e.clients {
		close(done)
	}
}

// streamContext ties a stream's lifetime to both the request and the hub.
func (h *Handlers) streamContext(r *http.Request) (context.Context, func()) {
	ctx, cancel := context.WithCancel(r.Context())
	id, done := h.eventHub.register()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		cancel()
		h.eventHub.unregister(id)
	}
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return f, true
}

// sseWriter serializes event and keepalive writes on one stream.
type sseWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	f  http.Flusher
}

func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

func (s *sseWriter) comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// keepAlive starts a goroutine that writes a comment line every interval so
// proxies keep an idle stream open. A failed write calls cancel. The returned
// func waits for the goroutine and must run after ctx is done.
func (s *sseWriter) keepAlive(ctx context.Context, interval time.Duration, cancel func()) func() {
	var wg sync.WaitGroup
	if interval <= 0 {
		return wg.Wait
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := s.comment("keepalive"); err != nil {
					cancel()
					return
				}
			}
		}
	}()
	return wg.Wait
}

// handleDashboardStream pushes dashboard states for as long as the page is open.
func (h *Handlers) handleDashboardStream(w http.ResponseWriter, r *http.Request) {
	f, ok := startSSE(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx, done := h.streamContext(r)
	defer done()

	ctx, cancel := context.WithCancel(ctx)
	sw := &sseWriter{w: w, f: f}
	wait := sw.keepAlive(ctx, h.keepAlive, cancel)
	defer wait()
	defer cancel()

	h.engine.Dashboard().Watch(ctx, func(s dashboard.State) {
		if err := sw.event("state", s); err != nil {
			cancel()
		}
	})
}

// apiRealtime streams raw row changes for the requested channels.
func (h *Handlers) apiRealtime(w http.ResponseWriter, r *http.Request) {
	channels, err := parseChannels(r.URL.Query()["channel"])
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, ok := startSSE(w)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx, done := h.streamContext(r)
	defer done()

	sub := h.engine.Hub().Subscribe(channels...)
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	sw := &sseWriter{w: w, f: f}
	wait := sw.keepAlive(ctx, h.keepAlive, cancel)
	defer wait()
	defer cancel()

	if err := sw.event("subscribed", map[string]any{"channels": channels}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub.C():
			if !ok {
				return
			}
			if err := sw.event("change", c); err != nil {
				return
			}
		}
	}
}

func parseChannels(values []string) ([]string, error) {
	known := map[string]bool{
		realtime.ChannelOrders:   true,
		realtime.ChannelProfiles: true,
		realtime.ChannelProducts: true,
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			if !known[name] {
				return nil, fmt.Errorf("unknown channel %q", name)
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	return out, nil
}

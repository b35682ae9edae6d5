package realtime

import (
	"sync"
)

// Channel names for the tables that publish row-level changes.
const (
	ChannelOrders   = "orders"
	ChannelProfiles = "profiles"
	ChannelProducts = "products"
)

// OpResync is delivered in place of events a slow subscriber missed.
const OpResync = "RESYNC"

// Change is a single row-level change notification.
type Change struct {
	Channel string `json:"channel"`
	Op      string `json:"op"` // INSERT, UPDATE, DELETE or RESYNC
	RowID   string `json:"id,omitempty"`
}

// Hub fans out changes to subscribers by channel name.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: 16}
}

// Subscription receives changes for the channels it was opened with.
type Subscription struct {
	hub      *Hub
	channels []string
	ch       chan Change
	mu       sync.Mutex
	dropped  map[string]bool
	closed   bool
}

// Subscribe opens a subscription on one or more channels.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	s := &Subscription{
		hub:      h,
		channels: channels,
		ch:       make(chan Change, h.buffer),
		dropped:  make(map[string]bool),
	}
	h.mu.Lock()
	for _, name := range channels {
		set, ok := h.subs[name]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[name] = set
		}
		set[s] = struct{}{}
	}
	h.mu.Unlock()
	return s
}

// Publish delivers c to every subscriber of c.Channel without blocking.
// When a subscriber's buffer is full the change is dropped; the next publish on
// that channel is preceded by a RESYNC so the subscriber knows it missed rows.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[c.Channel] {
		s.deliver(c)
	}
}

// SubscriberCount returns the number of open subscriptions across all channels.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[*Subscription]struct{})
	for _, set := range h.subs {
		for s := range set {
			seen[s] = struct{}{}
		}
	}
	return len(seen)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range s.channels {
		set := h.subs[name]
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, name)
		}
	}
}

// C returns the receive side of the subscription. It is closed by Close.
func (s *Subscription) C() <-chan Change { return s.ch }

// Close removes the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.dropped[c.Channel] {
		select {
		case s.ch <- Change{Channel: c.Channel, Op: OpResync}:
			delete(s.dropped, c.Channel)
		default:
			return
		}
	}
	select {
	case s.ch <- c:
	default:
		s.dropped[c.Channel] = true
	}
}

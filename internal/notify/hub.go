package notify

import (
	"sync"

	"mx-orderdesk/internal/types"
)

const (
	EventOrderUpdate      = "order_update"
	EventUserMarginUpdate = "user_margin_update"
)

type AccountRef struct {
	Kind types.AccountKind `json:"kind"`
	ID   string            `json:"id"`
}

type Event struct {
	Type    string     `json:"type"`
	Account AccountRef `json:"account"`
	Payload any        `json:"payload"`
}

// Hub fans events out to per-account subscriber channels. Publishing is
// best-effort: a slow subscriber drops events rather than blocking the
// request path.
type Hub struct {
	mu   sync.RWMutex
	subs map[AccountRef]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[AccountRef]map[chan Event]struct{})}
}

func (h *Hub) Subscribe(account AccountRef) chan Event {
	ch := make(chan Event, 100)
	h.mu.Lock()
	if h.subs[account] == nil {
		h.subs[account] = make(map[chan Event]struct{})
	}
	h.subs[account][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(account AccountRef, ch chan Event) {
	h.mu.Lock()
	if set, ok := h.subs[account]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, account)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	for ch := range h.subs[evt.Account] {
		select {
		case ch <- evt:
		default:
		}
	}
	h.mu.RUnlock()
}

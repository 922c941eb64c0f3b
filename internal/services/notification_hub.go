package services

import (
	"sync"
	"time"
)

// Event types pushed to stream subscribers.
const (
	EventAccountVerified = "account.verified"
	EventSessionRevoked  = "session.revoked"
)

// Event is a real-time notification for one account or for the admin group.
type Event struct {
	Type      string      `json:"type"`
	AccountID uint        `json:"account_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	At        time.Time   `json:"at"`
}

type subscriber struct {
	accountID uint
	admin     bool
	ch        chan Event
}

// NotificationHub maps connection ids to stream subscribers. An account may
// hold several connections, and admin connections also join the admin group.
type NotificationHub struct {
	mu        sync.RWMutex
	clients   map[string]*subscriber
	byAccount map[uint]map[string]struct{}
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients:   make(map[string]*subscriber),
		byAccount: make(map[uint]map[string]struct{}),
	}
}

// Subscribe registers connID and returns its event channel. Re-using a
// connection id replaces the previous subscription.
func (h *NotificationHub) Subscribe(connID string, accountID uint, admin bool) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(connID)

	// buffered so a slow reader never blocks publishers
	sub := &subscriber{accountID: accountID, admin: admin, ch: make(chan Event, 32)}
	h.clients[connID] = sub
	if h.byAccount[accountID] == nil {
		h.byAccount[accountID] = make(map[string]struct{})
	}
	h.byAccount[accountID][connID] = struct{}{}
	streamClients.Inc()
	return sub.ch
}

func (h *NotificationHub) Unsubscribe(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID)
}

func (h *NotificationHub) removeLocked(connID string) {
	sub, ok := h.clients[connID]
	if !ok {
		return
	}
	close(sub.ch)
	delete(h.clients, connID)
	if conns := h.byAccount[sub.accountID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.byAccount, sub.accountID)
		}
	}
	streamClients.Dec()
}

// PublishToAccount delivers to every connection of accountID. Events for a
// full buffer are dropped.
func (h *NotificationHub) PublishToAccount(accountID uint, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for connID := range h.byAccount[accountID] {
		if send(h.clients[connID].ch, event) {
			delivered++
		}
	}
	return delivered
}

func (h *NotificationHub) PublishToAdmins(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.clients {
		if sub.admin && send(sub.ch, event) {
			delivered++
		}
	}
	return delivered
}

func send(ch chan Event, event Event) bool {
	select {
	case ch <- event:
		return true
	default:
		return false
	}
}

func (h *NotificationHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsOnline reports whether accountID has at least one open connection.
func (h *NotificationHub) IsOnline(accountID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byAccount[accountID]) > 0
}

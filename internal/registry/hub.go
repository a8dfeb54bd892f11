// Package registry tracks live connections by identity and pairs them into
// per-listing conversation slots.
package registry

import (
	"sync"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// Transport is the write side of a live socket.
type Transport interface {
	SendEvent(event protocol.EventFrame) error
	Close() error
}

// Conn is one accepted connection. Everything but Transport is fixed at
// handshake.
type Conn struct {
	ID        string
	Identity  string
	Role      chat.Role
	Key       chat.ConversationKey
	Transport Transport
}

// Slot pairs the two sides of a conversation. Either side may be nil.
type Slot struct {
	Agency   *Conn
	Customer *Conn
}

func (s *Slot) empty() bool { return s.Agency == nil && s.Customer == nil }

// Hub owns the connection and conversation registries behind one mutex.
type Hub struct {
	mu            sync.RWMutex
	connections   map[string]*Conn
	conversations map[chat.ConversationKey]*Slot
}

func NewHub() *Hub {
	return &Hub{
		connections:   make(map[string]*Conn),
		conversations: make(map[chat.ConversationKey]*Slot),
	}
}

// Register makes c the live connection for its identity and attaches it to
// its conversation slot, replacing any same-role occupant. The superseded
// connection for the identity, if any, is returned; it is detached from its
// slot here, whichever conversation that was.
func (h *Hub) Register(c *Conn) (superseded *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.connections[c.Identity]; ok && prev != c {
		superseded = prev
		h.detachLocked(prev)
	}
	h.connections[c.Identity] = c

	slot, ok := h.conversations[c.Key]
	if !ok {
		slot = &Slot{}
		h.conversations[c.Key] = slot
	}
	switch c.Role {
	case chat.RoleAgency:
		slot.Agency = c
	default:
		slot.Customer = c
	}
	return superseded
}

// Unregister removes c. The identity entry and slot side are only cleared
// when they still point at c, so a late close of a superseded connection
// leaves its replacement alone.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.connections[c.Identity]; ok && cur == c {
		delete(h.connections, c.Identity)
	}
	h.detachLocked(c)
}

// detachLocked clears c from its slot and drops the slot once empty.
func (h *Hub) detachLocked(c *Conn) {
	slot, ok := h.conversations[c.Key]
	if !ok {
		return
	}
	if slot.Agency == c {
		slot.Agency = nil
	}
	if slot.Customer == c {
		slot.Customer = nil
	}
	if slot.empty() {
		delete(h.conversations, c.Key)
	}
}

// Lookup returns the live connection for identity.
func (h *Hub) Lookup(identity string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[identity]
	return c, ok
}

// Slot returns a copy of the conversation slot for key.
func (h *Hub) Slot(key chat.ConversationKey) (Slot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.conversations[key]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// CustomerOf returns the customer-side connection of key's slot.
func (h *Hub) CustomerOf(key chat.ConversationKey) (*Conn, bool) {
	s, ok := h.Slot(key)
	if !ok || s.Customer == nil {
		return nil, false
	}
	return s.Customer, true
}

// Connections snapshots every registered connection.
func (h *Hub) Connections() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Conn, 0, len(h.connections))
	for _, c := range h.connections {
		out = append(out, c)
	}
	return out
}

// HasSlot reports whether a slot exists for key.
func (h *Hub) HasSlot(key chat.ConversationKey) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conversations[key]
	return ok
}

func (h *Hub) SlotCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations)
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// fakeTransport records every frame written to it.
type fakeTransport struct {
	mu      sync.Mutex
	frames  []protocol.EventFrame
	closed  bool
	sendErr error
}

func (f *fakeTransport) SendEvent(ev protocol.EventFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, ev)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) events(name string) []protocol.EventFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.EventFrame
	for _, ev := range f.frames {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeTransport) messages() []protocol.Message {
	var out []protocol.Message
	for _, ev := range f.events(protocol.EventMessage) {
		out = append(out, ev.Payload.(protocol.MessagePayload).Message)
	}
	return out
}

func (f *fakeTransport) lastHistory(t *testing.T) []protocol.Message {
	t.Helper()
	evs := f.events(protocol.EventHistory)
	if len(evs) == 0 {
		t.Fatal("no history event received")
	}
	return evs[len(evs)-1].Payload.(protocol.HistoryPayload).Messages
}

func (f *fakeTransport) errorCodes() []string {
	var out []string
	for _, ev := range f.events(protocol.EventError) {
		out = append(out, ev.Payload.(protocol.ErrorPayload).Code)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

// memStore is an in-memory store.MessageStore with a deterministic clock.
type memStore struct {
	mu          sync.Mutex
	msgs        []chat.Message
	clock       time.Time
	saveErr     error
	listErr     error
	panicOnSave bool
	listCalls   int

	// listGate, when set, holds ListMessages until it is closed.
	listGate chan struct{}
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (m *memStore) SaveMessage(_ context.Context, msg *chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnSave {
		panic("store exploded")
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	if msg.SenderID == msg.ReceiverID {
		return errors.New("sender equals receiver")
	}
	m.clock = m.clock.Add(time.Second)
	msg.ID = store.GenNewID().String()
	msg.CreatedAt = m.clock
	msg.IsRead = false
	m.msgs = append(m.msgs, *msg)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, key chat.ConversationKey) ([]chat.Message, error) {
	if m.listGate != nil {
		<-m.listGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []chat.Message{}
	// Newest first, so callers must sort.
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].Key == key {
			out = append(out, m.msgs[i])
		}
	}
	return out, nil
}

func (m *memStore) ListMessagesBetween(ctx context.Context, key chat.ConversationKey, a, b string) ([]chat.Message, error) {
	msgs, err := m.ListMessages(ctx, key)
	if err != nil {
		return nil, err
	}
	return store.FilterBetween(msgs, a, b), nil
}

func (m *memStore) all() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.msgs...)
}

// seed stores a message directly, bypassing resolution.
func (m *memStore) seed(t *testing.T, key chat.ConversationKey, from, to, content string) {
	t.Helper()
	if err := m.SaveMessage(context.Background(), &chat.Message{Key: key, SenderID: from, ReceiverID: to, Content: content}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type staticOwners map[chat.ConversationKey]string

func (o staticOwners) Owner(_ context.Context, key chat.ConversationKey) (string, error) {
	owner, ok := o[key]
	if !ok {
		return "", chat.Wrap(chat.CodeListingLookup, "listing "+key.String()+" not found", store.ErrListingNotFound)
	}
	return owner, nil
}

var (
	r42 = chat.ConversationKey{ListingType: chat.ListingRoom, ListingID: "r42"}
	t7  = chat.ConversationKey{ListingType: chat.ListingTrip, ListingID: "t7"}
)

type harness struct {
	t      *testing.T
	engine *Engine
	hub    *registry.Hub
	store  *memStore
	events *bus.MessageBus
	seen   []bus.Event
	seq    int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{t: t, hub: registry.NewHub(), store: newMemStore(), events: bus.New()}
	h.events.Subscribe("test", func(e bus.Event) { h.seen = append(h.seen, e) })
	owners := staticOwners{r42: "ag-9", t7: "ag-3"}
	h.engine = NewEngine(h.hub, h.store, owners, h.events, nil, cfg)
	return h
}

// connect opens a session for identity on key and waits for its replay.
func (h *harness) connect(identity string, key chat.ConversationKey, extra ...func(*Handshake)) (*Session, *fakeTransport) {
	h.t.Helper()
	h.seq++
	hs := Handshake{Identity: identity, ListingType: string(key.ListingType), ListingID: key.ListingID}
	for _, fn := range extra {
		fn(&hs)
	}
	tr := &fakeTransport{}
	s, err := h.engine.Open(context.Background(), fmt.Sprintf("conn-%d", h.seq), hs, tr)
	if err != nil {
		h.t.Fatalf("Open(%s): %v", identity, err)
	}
	s.WaitReplay()
	return s, tr
}

func withCounterpart(c string) func(*Handshake) {
	return func(hs *Handshake) { hs.Counterpart = c }
}

func withRole(r string) func(*Handshake) {
	return func(hs *Handshake) { hs.Role = r }
}

func sendFrame(content, correlationID, counterpart string) []byte {
	return []byte(fmt.Sprintf(`{"event":"send-message","payload":{"content":%q,"correlationId":%q,"counterpart":%q}}`,
		content, correlationID, counterpart))
}

func historyFrame(counterpart string) []byte {
	return []byte(fmt.Sprintf(`{"event":"request-history","payload":{"counterpart":%q}}`, counterpart))
}

func (h *harness) eventsNamed(name string) []bus.Event {
	var out []bus.Event
	for _, e := range h.seen {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

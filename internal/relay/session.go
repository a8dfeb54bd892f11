package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/tracing"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// State is a session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handshake holds the raw connect parameters.
type Handshake struct {
	Identity    string
	ListingType string
	ListingID   string
	Role        string
	Counterpart string
}

// HandshakeFromQuery reads connect parameters from a query string. Values
// are taken as sent; identities and listing ids are compared exactly.
func HandshakeFromQuery(q url.Values) Handshake {
	return Handshake{
		Identity:    q.Get(protocol.ParamIdentity),
		ListingType: q.Get(protocol.ParamListingType),
		ListingID:   q.Get(protocol.ParamListingID),
		Role:        q.Get(protocol.ParamRole),
		Counterpart: q.Get(protocol.ParamCounterpart),
	}
}

// Session is one connection's view of a conversation. HandleFrame must be
// called from a single goroutine; Drain and Close may be called from any.
type Session struct {
	engine      *Engine
	conn        *registry.Conn
	counterpart string

	state   atomic.Int32
	frameMu sync.Mutex
	replay  sync.WaitGroup

	// closeMu orders the replay's final write against Close.
	closeMu sync.Mutex
}

// Open validates hs, infers the role, registers the connection and
// acknowledges it. Failures are reported on t and nothing is registered;
// the caller closes the socket. History replay starts asynchronously after
// the session is Active.
func (e *Engine) Open(ctx context.Context, connID string, hs Handshake, t registry.Transport) (s *Session, err error) {
	ctx, span := tracing.Start(ctx, "relay.handshake",
		attribute.String("listing.type", hs.ListingType),
		attribute.String("listing.id", hs.ListingID))
	defer func() { tracing.End(span, err) }()

	conn, err := e.handshake(ctx, connID, hs, t)
	if err != nil {
		slog.Info("relay.handshake_rejected", "conn", connID, "identity", hs.Identity, "code", chat.CodeOf(err), "error", err)
		sendError(t, err)
		return nil, err
	}

	counterpart := hs.Counterpart
	if counterpart == conn.Identity {
		counterpart = ""
	}
	s = &Session{engine: e, conn: conn, counterpart: counterpart}

	if prev := e.hub.Register(conn); prev != nil {
		slog.Info("relay.connection_superseded", "identity", conn.Identity, "old", prev.ID, "new", conn.ID)
		if e.cfg.ReplacePolicy == ReplaceClose {
			if err := prev.Transport.SendEvent(*protocol.NewWarning("connection replaced by a newer session")); err != nil {
				slog.Debug("relay.replace_warning_failed", "conn", prev.ID, "error", err)
			}
			if err := prev.Transport.Close(); err != nil {
				slog.Debug("relay.replace_close_failed", "conn", prev.ID, "error", err)
			}
		}
	}

	ack := protocol.ConnectionAckPayload{
		ConnectionID: conn.ID,
		Identity:     conn.Identity,
		Role:         string(conn.Role),
		ListingType:  string(conn.Key.ListingType),
		ListingID:    conn.Key.ListingID,
		Counterpart:  counterpart,
		Protocol:     protocol.ProtocolVersion,
	}
	if err := t.SendEvent(*protocol.NewEvent(protocol.EventConnectionAck, ack)); err != nil {
		e.hub.Unregister(conn)
		return nil, chat.Wrap(chat.CodeSocket, "acknowledge connection", err)
	}
	s.state.Store(int32(StateActive))
	span.SetAttributes(attribute.String("role", string(conn.Role)))
	slog.Info("relay.session_active", "conn", conn.ID, "identity", conn.Identity, "role", conn.Role, "key", conn.Key.String())
	e.publish(bus.EventConversationOpened, bus.ConversationOpened{Key: conn.Key, Identity: conn.Identity, Role: conn.Role})

	s.replay.Add(1)
	go s.replayHistory(context.WithoutCancel(ctx), counterpart)
	return s, nil
}

func (e *Engine) handshake(ctx context.Context, connID string, hs Handshake, t registry.Transport) (*registry.Conn, error) {
	if strings.TrimSpace(hs.Identity) == "" {
		return nil, chat.Errorf(chat.CodeInvalidHandshake, "identity is required")
	}
	if hs.Identity != strings.TrimSpace(hs.Identity) {
		return nil, chat.Errorf(chat.CodeInvalidHandshake, "identity must not have surrounding whitespace")
	}
	key, err := chat.NewConversationKey(hs.ListingType, hs.ListingID)
	if err != nil {
		return nil, chat.Wrap(chat.CodeInvalidHandshake, err.Error(), err)
	}
	declared, err := chat.ParseRole(hs.Role)
	if err != nil {
		return nil, chat.Wrap(chat.CodeInvalidHandshake, err.Error(), err)
	}
	role, err := e.InferRole(ctx, hs.Identity, key, declared)
	if err != nil {
		return nil, err
	}
	return &registry.Conn{ID: connID, Identity: hs.Identity, Role: role, Key: key, Transport: t}, nil
}

// Conn returns the registered connection.
func (s *Session) Conn() *registry.Conn { return s.conn }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) active() bool { return s.State() == StateActive }

func (s *Session) replayHistory(ctx context.Context, counterpart string) {
	defer s.replay.Done()
	msgs, err := s.engine.History(ctx, s.conn.Key, s.conn.Identity, counterpart)

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.active() {
		slog.Debug("relay.replay_discarded", "conn", s.conn.ID)
		return
	}
	if err != nil {
		slog.Warn("relay.replay_failed", "conn", s.conn.ID, "key", s.conn.Key.String(), "error", err)
		if err := s.conn.Transport.SendEvent(*protocol.NewWarning("history is temporarily unavailable")); err != nil {
			slog.Debug("relay.warning_send_failed", "conn", s.conn.ID, "error", err)
		}
		return
	}
	s.sendHistory(msgs)
}

func (s *Session) sendHistory(msgs []chat.Message) {
	frame := protocol.NewEvent(protocol.EventHistory, protocol.HistoryPayload{Messages: chat.WireAll(msgs)})
	if err := s.conn.Transport.SendEvent(*frame); err != nil {
		slog.Debug("relay.history_send_failed", "conn", s.conn.ID, "error", err)
	}
}

// HandleFrame processes one inbound text frame to completion. Classified
// failures go back to this connection only as an error event; a panic is
// logged and reported as an internal error, and the session stays Active.
func (s *Session) HandleFrame(ctx context.Context, data []byte) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if !s.active() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("relay.frame_panic", "conn", s.conn.ID, "panic", r, "stack", string(debug.Stack()))
			sendError(s.conn.Transport, chat.Errorf(chat.CodeInternal, "internal error"))
		}
	}()

	frame, err := protocol.ParseClientFrame(data)
	if err != nil {
		sendError(s.conn.Transport, chat.Wrap(chat.CodeUnknownEvent, "malformed frame", err))
		return
	}

	switch frame.Event {
	case protocol.EventSendMessage:
		err = s.handleSend(ctx, frame)
	case protocol.EventRequestHistory:
		err = s.handleHistory(ctx, frame)
	case protocol.EventCloseConversation:
		err = s.handleCloseConversation(ctx, frame)
	default:
		err = chat.Errorf(chat.CodeUnknownEvent, "unknown event %q", frame.Event)
	}
	if err != nil {
		slog.Debug("relay.frame_failed", "conn", s.conn.ID, "event", frame.Event, "code", chat.CodeOf(err), "error", err)
		sendError(s.conn.Transport, err)
	}
}

func (s *Session) handleSend(ctx context.Context, frame *protocol.ClientFrame) error {
	var p protocol.SendMessageParams
	if err := frame.DecodePayload(&p); err != nil {
		return chat.Wrap(chat.CodeUnknownEvent, "invalid send-message payload", err)
	}
	counterpart := p.Counterpart
	if counterpart == "" {
		counterpart = s.counterpart
	}

	// A send that has started completes even if the socket goes away.
	msg, err := s.engine.Send(context.WithoutCancel(ctx), s.conn, SendRequest{
		Content:       p.Content,
		CorrelationID: p.CorrelationID,
		Counterpart:   counterpart,
	})
	if err != nil {
		if chat.CodeOf(err) == chat.CodePersistence {
			slog.Error("relay.send_failed", "conn", s.conn.ID, "key", s.conn.Key.String(), "error", err)
		}
		return err
	}

	ack := protocol.NewEvent(protocol.EventMessage, protocol.MessagePayload{Message: msg.Wire()})
	if err := s.conn.Transport.SendEvent(*ack); err != nil {
		slog.Debug("relay.ack_failed", "conn", s.conn.ID, "message", msg.ID, "error", err)
	}
	return nil
}

func (s *Session) handleHistory(ctx context.Context, frame *protocol.ClientFrame) error {
	var p protocol.RequestHistoryParams
	if err := frame.DecodePayload(&p); err != nil {
		return chat.Wrap(chat.CodeUnknownEvent, "invalid request-history payload", err)
	}
	msgs, err := s.engine.History(ctx, s.conn.Key, s.conn.Identity, p.Counterpart)
	if err != nil {
		return err
	}
	s.sendHistory(msgs)
	return nil
}

func (s *Session) handleCloseConversation(ctx context.Context, frame *protocol.ClientFrame) error {
	if s.conn.Role != chat.RoleAgency {
		if err := s.conn.Transport.SendEvent(*protocol.NewWarning("only the agency can close a conversation")); err != nil {
			slog.Debug("relay.warning_send_failed", "conn", s.conn.ID, "error", err)
		}
		return nil
	}
	var p protocol.CloseConversationParams
	if err := frame.DecodePayload(&p); err != nil {
		return chat.Wrap(chat.CodeUnknownEvent, "invalid close-conversation payload", err)
	}
	counterpart := p.Counterpart
	if counterpart == "" {
		counterpart = s.counterpart
	}
	customer, err := s.engine.resolver.Resolve(ctx, s.conn.Identity, s.conn.Role, s.conn.Key, counterpart)
	if err != nil {
		customer = ""
	}
	slog.Info("relay.conversation_closed", "key", s.conn.Key.String(), "agency", s.conn.Identity, "customer", customer)
	s.engine.publish(bus.EventConversationClosed, bus.ConversationClosed{
		Key:        s.conn.Key,
		AgencyID:   s.conn.Identity,
		CustomerID: customer,
		ClosedAt:   time.Now().UTC(),
	})
	return nil
}

// Drain waits for the in-flight frame, if any, then closes the session.
// Frames arriving afterwards are ignored.
func (s *Session) Drain() {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	s.Close()
}

// Close moves the session to Closed and removes it from the registries.
// A replay still running is discarded when it completes. Idempotent.
func (s *Session) Close() {
	s.closeMu.Lock()
	prev := State(s.state.Swap(int32(StateClosed)))
	s.closeMu.Unlock()
	if prev == StateClosed {
		return
	}
	s.engine.hub.Unregister(s.conn)
	slog.Info("relay.session_closed", "conn", s.conn.ID, "identity", s.conn.Identity, "key", s.conn.Key.String())
}

// WaitReplay blocks until the initial history replay has finished.
func (s *Session) WaitReplay() { s.replay.Wait() }

func sendError(t registry.Transport, err error) {
	frame := protocol.NewError(string(chat.CodeOf(err)), chat.ReasonOf(err))
	if sendErr := t.SendEvent(*frame); sendErr != nil {
		slog.Debug("relay.error_send_failed", "error", sendErr)
	}
}

package relay

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/tracing"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

// SendRequest is one send-message frame after decoding.
type SendRequest struct {
	Content       string
	CorrelationID string
	Counterpart   string
}

// Send validates, resolves, persists and live-delivers a message from sender.
// It does not acknowledge the sender; the session does that with the
// returned message. On error nothing was persisted.
func (e *Engine) Send(ctx context.Context, sender *registry.Conn, req SendRequest) (msg *chat.Message, err error) {
	ctx, span := tracing.Start(ctx, "relay.send",
		attribute.String("conversation", sender.Key.String()),
		attribute.String("sender.role", string(sender.Role)))
	defer func() { tracing.End(span, err) }()

	if strings.TrimSpace(req.Content) == "" {
		return nil, chat.Errorf(chat.CodeEmptyContent, "message content is empty")
	}
	if limit := e.cfg.MaxMessageChars; limit > 0 && utf8.RuneCountInString(req.Content) > limit {
		return nil, chat.Errorf(chat.CodeContentTooLong, "message exceeds %d characters", limit)
	}
	if e.limiter != nil && !e.limiter.Allow(sender.Identity) {
		slog.Warn("security.rate_limited", "identity", sender.Identity)
		return nil, chat.Errorf(chat.CodeRateLimited, "too many messages, slow down")
	}

	recipient, err := e.resolver.Resolve(ctx, sender.Identity, sender.Role, sender.Key, req.Counterpart)
	if err != nil {
		return nil, err
	}

	msg = &chat.Message{
		Key:           sender.Key,
		SenderID:      sender.Identity,
		ReceiverID:    recipient,
		Content:       req.Content,
		CorrelationID: req.CorrelationID,
	}
	if err := e.messages.SaveMessage(ctx, msg); err != nil {
		return nil, chat.Wrap(chat.CodePersistence, "message could not be saved", err)
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))

	delivered := e.deliver(recipient, msg)
	e.publish(bus.EventMessageSaved, bus.MessageSaved{Message: *msg, Delivered: delivered})
	return msg, nil
}

// deliver pushes msg to recipient's live connection, if any. Failures are
// logged only: the message is durable and replays on the next connect.
func (e *Engine) deliver(recipient string, msg *chat.Message) bool {
	c, ok := e.hub.Lookup(recipient)
	if !ok {
		slog.Debug("relay.recipient_offline", "recipient", recipient, "message", msg.ID)
		return false
	}
	frame := protocol.NewEvent(protocol.EventMessage, protocol.MessagePayload{Message: msg.Wire()})
	if err := c.Transport.SendEvent(*frame); err != nil {
		slog.Warn("relay.deliver_failed", "recipient", recipient, "conn", c.ID, "error", err)
		return false
	}
	return true
}

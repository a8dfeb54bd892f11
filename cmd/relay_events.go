package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

const closureWriteTimeout = 5 * time.Second

// subscribeDomainEvents wires the relay's side effects that live outside the
// core: closure bookkeeping and message logs.
func subscribeDomainEvents(b bus.EventPublisher, convs store.ConversationStore) {
	b.Subscribe("conversation-closures", func(ev bus.Event) {
		if ev.Name != bus.EventConversationClosed || convs == nil {
			return
		}
		closed, ok := ev.Payload.(bus.ConversationClosed)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), closureWriteTimeout)
		defer cancel()
		err := convs.CloseConversation(ctx, store.ConversationClosure{
			Key:        closed.Key,
			AgencyID:   closed.AgencyID,
			CustomerID: closed.CustomerID,
			ClosedAt:   closed.ClosedAt,
		})
		if err != nil {
			slog.Warn("relay.closure_not_recorded", "key", closed.Key.String(), "agency", closed.AgencyID, "error", err)
			return
		}
		slog.Info("conversation closed", "key", closed.Key.String(), "agency", closed.AgencyID, "customer", closed.CustomerID)
	})

	b.Subscribe("message-log", func(ev bus.Event) {
		switch p := ev.Payload.(type) {
		case bus.MessageSaved:
			slog.Debug("relay.message_saved",
				"id", p.Message.ID,
				"key", p.Message.Key.String(),
				"sender", p.Message.SenderID,
				"receiver", p.Message.ReceiverID,
				"delivered", p.Delivered,
			)
		case bus.ConversationOpened:
			slog.Debug("relay.conversation_opened", "key", p.Key.String(), "identity", p.Identity, "role", string(p.Role))
		}
	})
}

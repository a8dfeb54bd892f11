package relay

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/internal/tracing"
)

// History reads key's messages from the store, oldest first. A non-empty
// counterpart restricts the result to messages exchanged between requester
// and counterpart. Nothing is cached.
func (e *Engine) History(ctx context.Context, key chat.ConversationKey, requester, counterpart string) (msgs []chat.Message, err error) {
	ctx, span := tracing.Start(ctx, "relay.history",
		attribute.String("conversation", key.String()),
		attribute.Bool("filtered", counterpart != ""))
	defer func() {
		span.SetAttributes(attribute.Int("messages", len(msgs)))
		tracing.End(span, err)
	}()

	if counterpart != "" {
		msgs, err = e.messages.ListMessagesBetween(ctx, key, requester, counterpart)
	} else {
		msgs, err = e.messages.ListMessages(ctx, key)
	}
	if err != nil {
		return nil, chat.Wrap(chat.CodePersistence, "history unavailable", err)
	}
	if counterpart != "" {
		msgs = store.FilterBetween(msgs, requester, counterpart)
	}
	store.SortChronological(msgs)
	return msgs, nil
}

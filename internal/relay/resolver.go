package relay

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/internal/tracing"
)

// Resolver decides who receives a message. Every send path goes through it.
type Resolver struct {
	hub      *registry.Hub
	messages store.MessageStore
	owners   OwnerLookup
}

func NewResolver(hub *registry.Hub, messages store.MessageStore, owners OwnerLookup) *Resolver {
	return &Resolver{hub: hub, messages: messages, owners: owners}
}

// Resolve returns the recipient for a message from sender (occupying role)
// in key's conversation. The result is never sender.
//
// Order: an explicit counterpart; for customers the listing owner; for
// agencies the live customer of the conversation, then history (first
// message's sender, any non-agency sender, anyone who wrote to the agency).
func (r *Resolver) Resolve(ctx context.Context, sender string, role chat.Role, key chat.ConversationKey, counterpart string) (recipient string, err error) {
	ctx, span := tracing.Start(ctx, "relay.resolve",
		attribute.String("conversation", key.String()),
		attribute.String("sender.role", string(role)))
	defer func() {
		span.SetAttributes(attribute.Bool("resolved", err == nil))
		tracing.End(span, err)
	}()

	if counterpart != "" && counterpart != sender {
		return counterpart, nil
	}

	switch role {
	case chat.RoleCustomer:
		recipient, err = r.owners.Owner(ctx, key)
		if err != nil {
			return "", chat.Wrap(chat.CodeRecipientUnresolved, "listing owner unavailable", err)
		}
	case chat.RoleAgency:
		recipient, err = r.resolveForAgency(ctx, sender, key)
		if err != nil {
			return "", err
		}
	default:
		return "", chat.Errorf(chat.CodeRecipientUnresolved, "sender has no role")
	}

	if recipient == "" || recipient == sender {
		return "", chat.Errorf(chat.CodeRecipientUnresolved, "no recipient for this conversation")
	}
	return recipient, nil
}

func (r *Resolver) resolveForAgency(ctx context.Context, agency string, key chat.ConversationKey) (string, error) {
	if c, ok := r.hub.CustomerOf(key); ok && c.Identity != agency {
		return c.Identity, nil
	}

	history, err := r.messages.ListMessages(ctx, key)
	if err != nil {
		return "", chat.Wrap(chat.CodeRecipientUnresolved, "conversation history unavailable", err)
	}
	if len(history) == 0 {
		return "", chat.Errorf(chat.CodeRecipientUnresolved, "no customer has written about this listing yet")
	}
	store.SortChronological(history)

	if first := history[0].SenderID; first != agency {
		return first, nil
	}

	// The owner is an agency identity too; a failed lookup only narrows
	// the exclusion to the sender.
	owner, err := r.owners.Owner(ctx, key)
	if err != nil {
		slog.Debug("relay.resolve_owner_unavailable", "key", key.String(), "error", err)
		owner = ""
	}
	for _, m := range history {
		if m.SenderID != agency && (owner == "" || m.SenderID != owner) {
			return m.SenderID, nil
		}
	}

	for _, m := range history {
		if m.ReceiverID == agency && m.SenderID != agency {
			return m.SenderID, nil
		}
	}
	return "", chat.Errorf(chat.CodeRecipientUnresolved, "no customer found in conversation history")
}

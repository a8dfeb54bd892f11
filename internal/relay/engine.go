// Package relay is the conversation engine: handshake validation, role
// inference, recipient resolution, history replay and message sending.
// It is transport agnostic; internal/gateway drives it over WebSockets.
package relay

import (
	"context"
	"log/slog"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/registry"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
)

// Replace policies for a second connection under the same identity.
const (
	ReplaceKeep  = "keep"  // superseded socket stays open, unregistered
	ReplaceClose = "close" // superseded socket is warned and closed
)

// OwnerLookup resolves the agency owning a listing.
type OwnerLookup interface {
	Owner(ctx context.Context, key chat.ConversationKey) (string, error)
}

// Limiter gates sends per identity.
type Limiter interface {
	Allow(key string) bool
}

// Config carries the engine's tunables.
type Config struct {
	MaxMessageChars int    // 0 = unlimited
	ReplacePolicy   string // ReplaceKeep (default) or ReplaceClose
}

// Engine is shared by every session. It holds no per-connection state.
type Engine struct {
	hub      *registry.Hub
	messages store.MessageStore
	owners   OwnerLookup
	events   bus.EventPublisher
	limiter  Limiter
	resolver *Resolver
	cfg      Config
}

// NewEngine wires the engine. Only hub and messages are required.
func NewEngine(hub *registry.Hub, messages store.MessageStore, owners OwnerLookup, events bus.EventPublisher, limiter Limiter, cfg Config) *Engine {
	if events == nil {
		events = bus.Nop{}
	}
	if owners == nil {
		owners = noOwners{}
	}
	if cfg.ReplacePolicy == "" {
		cfg.ReplacePolicy = ReplaceKeep
	}
	return &Engine{
		hub:      hub,
		messages: messages,
		owners:   owners,
		events:   events,
		limiter:  limiter,
		resolver: NewResolver(hub, messages, owners),
		cfg:      cfg,
	}
}

// Hub exposes the registries, for drain and introspection.
func (e *Engine) Hub() *registry.Hub { return e.hub }

// Resolver returns the engine's recipient resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

type noOwners struct{}

func (noOwners) Owner(context.Context, chat.ConversationKey) (string, error) {
	return "", chat.Errorf(chat.CodeListingLookup, "no listing source configured")
}

func (e *Engine) publish(name string, payload interface{}) {
	e.events.Broadcast(bus.Event{Name: name, Payload: payload})
}

// InferRole decides which side identity occupies in key's conversation. A
// declared role wins; otherwise the listing owner is the agency and anyone
// else a customer. Without a declared role an unknown listing fails.
func (e *Engine) InferRole(ctx context.Context, identity string, key chat.ConversationKey, declared chat.Role) (chat.Role, error) {
	if declared != "" {
		return declared, nil
	}
	owner, err := e.owners.Owner(ctx, key)
	if err != nil {
		slog.Debug("relay.role_lookup_failed", "identity", identity, "key", key.String(), "error", err)
		return "", err
	}
	if owner == identity {
		return chat.RoleAgency, nil
	}
	return chat.RoleCustomer, nil
}

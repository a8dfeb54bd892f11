package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Youssefbenarbiya/booki-relay/internal/bus"
	"github.com/Youssefbenarbiya/booki-relay/internal/chat"
	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/internal/store"
	"github.com/Youssefbenarbiya/booki-relay/internal/store/sqlite"
)

func TestClosureSubscriberRecordsClosure(t *testing.T) {
	db, err := sqlite.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	convs := sqlite.NewConversationStore(db)

	b := bus.New()
	subscribeDomainEvents(b, convs)

	key := chat.ConversationKey{ListingType: chat.ListingCar, ListingID: "c1"}
	b.Broadcast(bus.Event{Name: bus.EventConversationClosed, Payload: bus.ConversationClosed{
		Key: key, AgencyID: "ag-3", CustomerID: "cust-1", ClosedAt: time.Now(),
	}})
	// Unrelated events are ignored by the closure subscriber.
	b.Broadcast(bus.Event{Name: bus.EventMessageSaved, Payload: bus.MessageSaved{Message: chat.Message{Key: key}}})

	n, err := convs.CountClosures(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("closures = %d, want 1", n)
	}
}

type failingConversations struct{ calls int }

func (f *failingConversations) CloseConversation(context.Context, store.ConversationClosure) error {
	f.calls++
	return errors.New("db down")
}

func TestClosureSubscriberSurvivesStoreFailure(t *testing.T) {
	convs := &failingConversations{}
	b := bus.New()
	subscribeDomainEvents(b, convs)

	b.Broadcast(bus.Event{Name: bus.EventConversationClosed, Payload: bus.ConversationClosed{AgencyID: "ag-3"}})
	if convs.calls != 1 {
		t.Errorf("calls = %d", convs.calls)
	}
}

func TestOwnerSource(t *testing.T) {
	cfg := config.Default()
	cfg.Listings.Source = config.ListingSourceHTTP
	cfg.Listings.APIBase = "http://listings.local"
	src, err := ownerSource(cfg, store.NewStores(nil, nil, nil, nil))
	if err != nil || src == nil {
		t.Fatalf("http source: %v", err)
	}

	cfg.Listings.Source = config.ListingSourceDB
	if _, err := ownerSource(cfg, store.NewStores(nil, nil, nil, nil)); err == nil {
		t.Error("db source without listing table accepted")
	}
}

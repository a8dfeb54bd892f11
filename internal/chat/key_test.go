package chat

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewConversationKey(t *testing.T) {
	tests := []struct {
		name     string
		typ, id  string
		wantErr  bool
		wantType ListingType
	}{
		{"room", "room", "r42", false, ListingRoom},
		{"trip", "trip", "t1", false, ListingTrip},
		{"car", "car", "c1", false, ListingCar},
		{"hotel", "hotel", "h1", false, ListingHotel},
		{"unknown type", "boat", "b1", true, ""},
		{"case sensitive", "Room", "r42", true, ""},
		{"missing id", "room", "", true, ""},
		{"blank id", "room", "   ", true, ""},
		{"padded id", "room", " r42", true, ""},
		{"inner space kept", "room", "r 42", false, ListingRoom},
		{"missing type", "", "r42", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewConversationKey(tt.typ, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && k.ListingType != tt.wantType {
				t.Errorf("type = %q, want %q", k.ListingType, tt.wantType)
			}
		})
	}
}

func TestConversationKey_MapKeyEquality(t *testing.T) {
	a, _ := NewConversationKey("room", "r42")
	b, _ := NewConversationKey("room", "r42")
	c, _ := NewConversationKey("hotel", "r42")

	m := map[ConversationKey]int{a: 1}
	if m[b] != 1 {
		t.Error("equal keys should address the same map entry")
	}
	if _, ok := m[c]; ok {
		t.Error("keys with different listing types must differ")
	}
	if a.String() != "room:r42" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"", "customer", "agency"} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Error("ParseRole(admin) should fail")
	}
}

func TestMessage_Involves(t *testing.T) {
	m := Message{SenderID: "ag-9", ReceiverID: "cust-1"}
	if !m.Involves("cust-1", "ag-9") || !m.Involves("ag-9", "cust-1") {
		t.Error("Involves should match both orderings")
	}
	if m.Involves("ag-9", "cust-2") {
		t.Error("Involves matched an unrelated pair")
	}
}

func TestWireAll_EmptyIsNotNil(t *testing.T) {
	if got := WireAll(nil); got == nil || len(got) != 0 {
		t.Errorf("WireAll(nil) = %#v, want empty non-nil slice", got)
	}
}

func TestError_IsAndCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("send: %w", Wrap(CodePersistence, "message could not be saved", cause))

	if !errors.Is(err, ErrPersistence) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, ErrRecipientUnresolved) {
		t.Error("errors.Is matched a different code")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should stay reachable through Unwrap")
	}
	if CodeOf(err) != CodePersistence {
		t.Errorf("CodeOf = %q", CodeOf(err))
	}
	if ReasonOf(err) != "message could not be saved" {
		t.Errorf("ReasonOf = %q", ReasonOf(err))
	}
	if CodeOf(cause) != CodeInternal || ReasonOf(cause) != "internal error" {
		t.Error("unclassified errors must map to internal without leaking text")
	}
}

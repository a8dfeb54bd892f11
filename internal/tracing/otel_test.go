package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetup_UnknownProtocol(t *testing.T) {
	if _, err := Setup(context.Background(), Options{Enabled: true, Protocol: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}

func TestStartEnd_NoopProvider(t *testing.T) {
	ctx, span := Start(context.Background(), "relay.test")
	if ctx == nil {
		t.Fatal("nil context")
	}
	End(span, errors.New("boom"))
}

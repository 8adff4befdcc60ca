package observability

import (
	"context"
	"testing"
	"time"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "zlot-test", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}

func TestInit_LazyConnection(t *testing.T) {
	// gRPC dials lazily, so an unreachable collector does not fail Init.
	ctx := context.Background()

	shutdown, err := Init(ctx, "zlot-test", "localhost:4317")
	if err != nil {
		t.Logf("Init returned error (may be expected in test environment): %v", err)
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(shutdownCtx)
}

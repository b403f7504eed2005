package context

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "fixed")
	ctx, id := EnsureCorrelationID(ctx)
	if id != "fixed" || CorrelationIDFromContext(ctx) != "fixed" {
		t.Fatalf("expected existing correlation id, got %q", id)
	}
}

func TestEnsureCorrelationIDGeneratesULID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("expected ULID, got %q: %v", id, err)
	}
	if CorrelationIDFromContext(ctx) != id {
		t.Fatal("expected correlation id on context")
	}
}

func TestValuesOnNilContext(t *testing.T) {
	//nolint:staticcheck
	if RequestIDFromContext(nil) != "" || ActorFromContext(nil) != "" {
		t.Fatal("expected empty values")
	}
}

package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"worklane.org/internal/auth"
	"worklane.org/internal/model"
)

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogEventWithActorAndRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithActor(ctx, model.PublicUser{
		ID:       uuid.New(),
		Username: "frank",
	})
	if err := LogEvent(ctx, "workspace.members.add", map[string]any{"count": 2}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("unexpected request id: %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

type recordingBus struct {
	published []sse.SSEMessage
	err       error
}

func (b *recordingBus) Publish(_ context.Context, msg sse.SSEMessage) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, msg)
	return nil
}

func (b *recordingBus) StartForwarder(context.Context, func(m sse.SSEMessage)) error { return nil }

func (b *recordingBus) Close() error { return nil }

func TestRunNotifierPrefersBus(t *testing.T) {
	hub := sse.NewSSEHub(testLogger(t))
	client := hub.NewSSEClient(uuid.New())
	userID := uuid.New()
	hub.AddChannel(client, userID.String())

	bus := &recordingBus{}
	var notify sse.RunNotifier = NewRunNotifier(hub, bus)

	run := &types.CourseGenerationRun{ID: uuid.New(), CourseID: uuid.New(), OwnerUserID: userID}
	notify.RunProgress(userID, run, "repo_intake", 10, "cloning")

	if len(bus.published) != 1 {
		t.Fatalf("bus published = %d messages, want 1", len(bus.published))
	}
	if bus.published[0].Event != sse.SSEEventRunProgress {
		t.Fatalf("event = %q, want %q", bus.published[0].Event, sse.SSEEventRunProgress)
	}
	select {
	case msg := <-client.Outbound:
		t.Fatalf("hub delivered %q locally while bus accepted the message", msg.Event)
	default:
	}
}

func TestRunNotifierFallsBackToHub(t *testing.T) {
	hub := sse.NewSSEHub(testLogger(t))
	client := hub.NewSSEClient(uuid.New())
	userID := uuid.New()
	hub.AddChannel(client, userID.String())

	bus := &recordingBus{err: fmt.Errorf("bus down")}
	notify := NewRunNotifier(hub, bus)

	run := &types.CourseGenerationRun{ID: uuid.New(), CourseID: uuid.New(), OwnerUserID: userID}
	notify.RunFailed(userID, run, "document_analysis", "model timeout")

	select {
	case msg := <-client.Outbound:
		if msg.Event != sse.SSEEventRunFailed {
			t.Fatalf("event = %q, want %q", msg.Event, sse.SSEEventRunFailed)
		}
	default:
		t.Fatalf("hub did not deliver after bus publish failed")
	}
}

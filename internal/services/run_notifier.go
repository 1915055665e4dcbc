package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// runNotifier implements sse.RunNotifier. When a bus is configured events
// also cross process boundaries, so a worker replica reaches clients
// connected elsewhere.
type runNotifier struct {
	hub *sse.SSEHub
	bus SSEBus
}

func NewRunNotifier(hub *sse.SSEHub, bus SSEBus) sse.RunNotifier {
	return &runNotifier{hub: hub, bus: bus}
}

func (n *runNotifier) send(msg sse.SSEMessage) {
	if n.bus != nil {
		if err := n.bus.Publish(context.Background(), msg); err == nil {
			return
		}
	}
	if n.hub != nil {
		n.hub.Broadcast(msg)
	}
}

func (n *runNotifier) RunCreated(userID uuid.UUID, run *types.CourseGenerationRun) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventRunCreated,
		Data:    map[string]any{"run": run},
	})
}

func (n *runNotifier) RunProgress(userID uuid.UUID, run *types.CourseGenerationRun, stage string, progress int, message string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventRunProgress,
		Data: map[string]any{
			"run_id":    run.ID,
			"course_id": run.CourseID,
			"stage":     stage,
			"progress":  progress,
			"message":   message,
			"run":       run,
		},
	})
}

func (n *runNotifier) RunFailed(userID uuid.UUID, run *types.CourseGenerationRun, stage string, errorMessage string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventRunFailed,
		Data: map[string]any{
			"run_id":    run.ID,
			"course_id": run.CourseID,
			"stage":     stage,
			"error":     errorMessage,
			"run":       run,
		},
	})
}

func (n *runNotifier) RunDone(userID uuid.UUID, run *types.CourseGenerationRun) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventRunDone,
		Data: map[string]any{
			"run_id":    run.ID,
			"course_id": run.CourseID,
			"run":       run,
		},
	})
}

func (n *runNotifier) ExportReady(userID uuid.UUID, courseID uuid.UUID, url string) {
	n.send(sse.SSEMessage{
		Channel: userID.String(),
		Event:   sse.SSEEventExportReady,
		Data: map[string]any{
			"course_id": courseID,
			"url":       url,
		},
	})
}

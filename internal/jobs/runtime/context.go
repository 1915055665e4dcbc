// Package runtime is the execution contract between the worker pool and the
// pipeline handlers. A Context wraps one claimed course generation run and
// the only sanctioned ways to report progress or terminate execution;
// handlers never write the run row directly.
package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/moarshy/courseforge-backend/internal/repos"
	"github.com/moarshy/courseforge-backend/internal/sse"
	"github.com/moarshy/courseforge-backend/internal/types"
)

// terminalStatuses guard every runtime write. A cancelled run is a failed
// run with the cancelled error message, so late progress from a worker that
// has not yet observed the cancel must not overwrite it.
var terminalStatuses = []string{"failed", "succeeded"}

type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Run     *types.CourseGenerationRun
	Repo    repos.CourseGenerationRunRepo
	Notify  sse.RunNotifier
	payload map[string]any

	// mu guards writes to Run. Handlers report progress from concurrent
	// goroutines while the heartbeat and cancel watcher read the same row.
	mu sync.Mutex
}

// NewContext constructs a runtime.Context for a claimed run. The payload
// JSON is decoded eagerly; a malformed payload yields an empty map and the
// handler validates required fields itself.
func NewContext(ctx context.Context, db *gorm.DB, run *types.CourseGenerationRun, repo repos.CourseGenerationRunRepo, notify sse.RunNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Run:    run,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Run == nil {
		return nil
	}
	if len(c.Run.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Run.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload returns the decoded run payload. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString reads a payload field as a string, "" when missing.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// PayloadUUID reads a payload field and parses it as a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Progress publishes a non-terminal update: progress and heartbeat into the
// run row, guarded so terminal runs are not overwritten, then a notifier
// event. The stage pointer itself is owned by the orchestrator and is not
// written here.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Run != nil && c.Run.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Run.ID, terminalStatuses, map[string]interface{}{
			"progress":     pct,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Run == nil {
		return
	}
	c.mu.Lock()
	c.Run.Progress = pct
	c.Run.HeartbeatAt = &now
	c.Run.UpdatedAt = now
	snap := *c.Run
	c.mu.Unlock()

	if c.Notify != nil {
		c.Notify.RunProgress(snap.OwnerUserID, &snap, stage, pct, msg)
	}
}

// Fail marks the run terminally failed. A run that is already terminal
// (including one cancelled by request) is left alone and no notification
// is emitted.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Run != nil && c.Run.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Run.ID, terminalStatuses, map[string]interface{}{
			"status":        "failed",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Run == nil {
		return
	}
	c.mu.Lock()
	c.Run.Status = "failed"
	c.Run.Error = msg
	c.Run.LastErrorAt = &now
	c.Run.LockedAt = nil
	c.Run.UpdatedAt = now
	snap := *c.Run
	c.mu.Unlock()

	if c.Notify != nil {
		c.Notify.RunFailed(snap.OwnerUserID, &snap, stage, msg)
	}
}

// Succeed marks the run terminally succeeded and persists a result payload.
func (c *Context) Succeed(result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Run != nil && c.Run.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Run.ID, terminalStatuses, map[string]interface{}{
			"status":       "succeeded",
			"progress":     100,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Run == nil {
		return
	}
	c.mu.Lock()
	c.Run.Status = "succeeded"
	c.Run.Progress = 100
	c.Run.Error = ""
	c.Run.Result = res
	c.Run.LockedAt = nil
	c.Run.HeartbeatAt = &now
	c.Run.UpdatedAt = now
	snap := *c.Run
	c.mu.Unlock()

	if c.Notify != nil {
		c.Notify.RunDone(snap.OwnerUserID, &snap)
	}
}

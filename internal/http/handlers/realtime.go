package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/moarshy/courseforge-backend/internal/pkg/ctxutil"
	"github.com/moarshy/courseforge-backend/internal/platform/logger"
	"github.com/moarshy/courseforge-backend/internal/sse"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *sse.SSEHub

	mu      sync.RWMutex
	clients map[uuid.UUID]*sse.SSEClient // keyed by session ID, falling back to user ID
}

func NewRealtimeHandler(log *logger.Logger, hub *sse.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log,
		Hub:     hub,
		clients: make(map[uuid.UUID]*sse.SSEClient),
	}
}

func sessionKey(rd *ctxutil.RequestData) uuid.UUID {
	if rd.SessionID != uuid.Nil {
		return rd.SessionID
	}
	return rd.UserID
}

func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	userID := rd.UserID
	key := sessionKey(rd)
	h.Log.Info("SSEStream open", "user_id", userID.String(), "session_key", key.String())

	h.mu.Lock()
	// If this session already has a client, close it and replace.
	if existing, ok := h.clients[key]; ok {
		h.Hub.CloseClient(existing)
		delete(h.clients, key)
	}
	client := h.Hub.NewSSEClient(userID)
	h.clients[key] = client
	h.mu.Unlock()

	// Every connection is subscribed to the user's own channel; run
	// lifecycle events are published there.
	h.Hub.AddChannel(client, userID.String())

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	// Cleanup after disconnect
	h.mu.Lock()
	delete(h.clients, key)
	h.mu.Unlock()
	h.Hub.CloseClient(client)
}

func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	client, ok := h.activeClient(c)
	if !ok {
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	h.Hub.AddChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "subscribed", "channel": req.Channel})
}

func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	client, ok := h.activeClient(c)
	if !ok {
		return
	}

	var req struct {
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	h.Hub.RemoveChannel(client, req.Channel)
	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed", "channel": req.Channel})
}

func (h *RealtimeHandler) activeClient(c *gin.Context) (*sse.SSEClient, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return nil, false
	}

	h.mu.RLock()
	client, exists := h.clients[sessionKey(rd)]
	h.mu.RUnlock()
	if !exists {
		c.JSON(http.StatusConflict, gin.H{"error": "no active SSE connection for this session"})
		return nil, false
	}
	return client, true
}

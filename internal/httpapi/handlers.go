package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/latency"
	"voice-agent-platform/internal/rbac"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LatencyComputer recomputes latency stats from the event log.
type LatencyComputer interface {
	ComputeStats(ctx context.Context, callID string) (*latency.ByCategory, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls   calls.Store
	Events  *events.Recorder
	Latency LatencyComputer
}

// --- Calls ---

// GetCall returns the call record. Calls of other organizations are reported
// as not found.
func (h Handlers) GetCall(c *gin.Context) {
	call, sess, ok := h.scopedCall(c)
	if !ok {
		return
	}
	if !rbac.Allowed(sess.Role, rbac.PermReadTranscripts) {
		call.Transcript = nil
	}
	c.JSON(http.StatusOK, call)
}

// ListCallEvents returns the call timeline ordered by occurred_at.
func (h Handlers) ListCallEvents(c *gin.Context) {
	if h.Events == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "events not configured"})
		return
	}
	call, sess, ok := h.scopedCall(c)
	if !ok {
		return
	}
	evs, err := h.Events.List(c.Request.Context(), call.ID)
	if err != nil {
		logger.FromGin(c).Error("list call events failed", "call_id", call.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}
	if !rbac.Allowed(sess.Role, rbac.PermReadTranscripts) {
		for i := range evs {
			if evs[i].Type == events.TypeTranscript {
				evs[i].Data = redacted
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// GetCallLatency recomputes stats from the event log on every read; the cached
// copy on the call record is not consulted.
func (h Handlers) GetCallLatency(c *gin.Context) {
	if h.Latency == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "latency not configured"})
		return
	}
	call, _, ok := h.scopedCall(c)
	if !ok {
		return
	}
	stats, err := h.Latency.ComputeStats(c.Request.Context(), call.ID)
	if err != nil {
		logger.FromGin(c).Error("compute latency failed", "call_id", call.ID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if stats == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no_latency_data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

var redacted = json.RawMessage(`{"redacted":true}`)

// scopedCall loads the path call for the session's organization. Calls owned
// by other organizations are reported as not found.
func (h Handlers) scopedCall(c *gin.Context) (calls.Call, auth.Session, bool) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return calls.Call{}, auth.Session{}, false
	}
	sess, ok := auth.SessionFrom(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return calls.Call{}, auth.Session{}, false
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return calls.Call{}, auth.Session{}, false
	}
	call, err := h.Calls.GetForOrganization(c.Request.Context(), sess.OrganizationID, callID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call_not_found"})
			return calls.Call{}, auth.Session{}, false
		}
		logger.FromGin(c).Error("load call failed", "call_id", callID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return calls.Call{}, auth.Session{}, false
	}
	return call, sess, true
}

// Register mounts the call read endpoints behind the session and permission checks.
func (h Handlers) Register(r gin.IRouter, sessions auth.SessionProvider) {
	g := r.Group("/calls", auth.RequireSession(sessions), rbac.Require(rbac.PermReadCalls))
	g.GET("/:call_id", h.GetCall)
	g.GET("/:call_id/events", h.ListCallEvents)
	g.GET("/:call_id/latency", h.GetCallLatency)
}

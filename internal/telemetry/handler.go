package telemetry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/pkg/logger"
)

const Path = "/api/agent/events"

// maxBodyBytes bounds one telemetry envelope. Transcripts are the largest.
const maxBodyBytes = 4 << 20

// Handler accepts agent-runtime telemetry, resolves the owning call and hands
// the event to the reconciler.
//
// Status mapping:
// - 400 malformed JSON, unknown type, no identifiers
// - 404 unattributable event whose type mutates the call record
// - 202 unattributable telemetry-only event (logged and skipped)
// - 500 event log or lookup storage failure
type Handler struct {
	Reconciler *lifecycle.Reconciler
}

func (h Handler) Register(r gin.IRoutes) {
	r.POST(Path, h.HandleEvent)
}

func (h Handler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if h.Reconciler == nil {
		log.Error("telemetry handler not configured")
		fail(c, http.StatusInternalServerError, "internal_error")
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var env Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		fail(c, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := env.Validate(); err != nil {
		code := "invalid_request"
		if errors.Is(err, events.ErrUnknownType) {
			code = "unknown_event_type"
		}
		log.Warn("telemetry rejected", "err", err, "event_type", string(env.Type))
		fail(c, http.StatusBadRequest, code)
		return
	}
	log = log.With("event_type", string(env.Type))

	crit := env.Criteria()
	call, tier, err := h.Reconciler.Resolve(ctx, crit)
	if err != nil {
		if !errors.Is(err, calls.ErrNotFound) {
			log.Error("call resolve failed", "err", err)
			fail(c, http.StatusInternalServerError, "internal_error")
			return
		}
		log.Warn("telemetry for unknown call",
			"room_name", crit.RoomName,
			"twilio_call_sid", crit.ProviderCallID,
			"agent_id", crit.AgentID,
		)
		if env.Type.Mutating() {
			fail(c, http.StatusNotFound, "call_not_found")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"success": true, "skipped": true, "eventType": env.Type})
		return
	}
	log = logger.WithCall(log, call.ID, call.OrganizationID)
	logger.Bind(c, log)
	ctx = c.Request.Context()

	res, err := h.Reconciler.Handle(ctx, call, env.Type, env.EventData(), env.Timestamp.Time)
	if err != nil {
		switch {
		case errors.Is(err, events.ErrUnknownType), errors.Is(err, events.ErrInvalidEvent):
			fail(c, http.StatusBadRequest, "invalid_request")
		default:
			fail(c, http.StatusInternalServerError, "event_record_failed")
		}
		return
	}
	log.Debug("telemetry recorded", "tier", string(tier), "applied", res.Applied)

	c.JSON(http.StatusOK, gin.H{"success": true, "callId": call.ID, "eventType": env.Type})
}

func fail(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": code})
}

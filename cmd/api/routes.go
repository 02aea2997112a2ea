package main

import (
	"database/sql"
	"net/http"
	"time"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/db"
	"voice-agent-platform/internal/httpapi"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/telemetry"
	"voice-agent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// routeDeps carries the constructed handlers into registerRoutes.
type routeDeps struct {
	DB      *sql.DB
	Metrics *metrics.Metrics

	// Sessions verifies dashboard-issued bearer tokens for the /v1 reads.
	Sessions       auth.SessionProvider
	TelemetryToken string

	// TwilioAuthToken enables signature validation when non-empty.
	TwilioAuthToken string
	PublicBaseURL   string

	Twilio    telephony.TwilioWebhookHandler
	Telemetry telemetry.Handler
	API       httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := db.Ping(c.Request.Context(), d.DB, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// Provider webhooks. Every response is TwiML, including panics.
	hooks := r.Group("")
	hooks.Use(telephony.RecoverTwiML(d.Metrics))
	if d.TwilioAuthToken != "" {
		hooks.Use(telephony.SignatureMiddleware(d.TwilioAuthToken, d.PublicBaseURL))
	}
	{
		hooks.POST(telephony.PathVoice, d.Twilio.HandleInboundCall)
		hooks.POST(telephony.PathDialStatus, d.Twilio.HandleDialStatus)
		hooks.POST(telephony.PathSIPTransfer, d.Twilio.HandleSIPTransfer)
	}

	// Agent runtime telemetry.
	d.Telemetry.Register(r.Group("", auth.RequireStaticBearer(d.TelemetryToken)))

	// Dashboard reads. Sessions are issued by the dashboard; this service only
	// verifies them.
	v1 := r.Group("/v1")
	v1.GET("/me", auth.RequireSession(d.Sessions), func(c *gin.Context) {
		s, _ := auth.SessionFrom(c.Request.Context())
		c.JSON(http.StatusOK, s)
	})
	d.API.Register(v1, d.Sessions)
}

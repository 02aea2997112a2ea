package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/numbers"
	"voice-agent-platform/internal/routing"
	"voice-agent-platform/pkg/logger"
)

const (
	PathVoice       = "/webhooks/twilio/voice"
	PathDialStatus  = "/webhooks/twilio/dial-status"
	PathSIPTransfer = "/webhooks/twilio/sip-transfer"
)

// DialConfig is the provider and agent-runtime addressing used in TwiML.
type DialConfig struct {
	// PublicBaseURL prefixes action and refer callbacks, e.g. https://api.example.com.
	PublicBaseURL string
	SIPHost       string
	SIPUser       string
	// DialTimeout applies to transfers, TeamDialTimeout to the first team ring.
	DialTimeout     time.Duration
	TeamDialTimeout time.Duration
}

// TwilioWebhookHandler converts Twilio webhooks to internal calls, delegates
// decisions to the routing engine and state changes to the reconciler, and
// writes TwiML.
//
// Every path answers 200 with a valid TwiML document. Failures degrade to
// apology+hangup so the caller is never left in dead air.
//
// Tenant scoping:
// - organization_id is resolved from the dialed number via the numbers directory
//   and stamped on the call at creation.
type TwilioWebhookHandler struct {
	Numbers    numbers.Directory
	Calls      calls.Store
	Reconciler *lifecycle.Reconciler
	Router     *routing.Engine
	Metrics    *metrics.Metrics
	Dial       DialConfig

	Now func() time.Time
}

func (h TwilioWebhookHandler) HandleInboundCall(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if h.Numbers == nil || h.Calls == nil || h.Reconciler == nil || h.Router == nil {
		log.Error("twilio webhook handler not configured")
		h.apology(c, "voice")
		return
	}

	form, err := ParseTwilioInboundCall(c.Request)
	if err != nil || form.CallSid == "" || form.To == "" {
		log.Warn("twilio inbound parse failed", "err", err)
		h.apology(c, "voice")
		return
	}

	num, err := h.Numbers.Lookup(ctx, form.To)
	if err != nil {
		log.Warn("dialed number not provisioned", "to", form.To, "err", err)
		h.apology(c, "voice")
		return
	}

	call := calls.NewInbound(num.OrganizationID, num.AgentID, form.CallSid, form.From, form.To, h.now())
	if err := h.Calls.Create(ctx, call); err != nil {
		log.Error("call create failed", "err", err)
		h.apology(c, "voice")
		return
	}
	log = logger.WithCall(log, call.ID, call.OrganizationID)
	logger.Bind(c, log)
	ctx = c.Request.Context()

	call = h.record(ctx, log, call, events.TypeCallReceived, map[string]any{
		"from":       form.From,
		"to":         form.To,
		"callSid":    form.CallSid,
		"callerName": form.CallerName,
	})

	d, err := h.Router.RouteInbound(routing.InboundInput{
		OrganizationID: call.OrganizationID,
		CallID:         call.ID,
		TeamNumber:     num.TeamNumber,
	})
	if err != nil {
		log.Error("inbound routing failed", "err", err)
		h.apology(c, "voice")
		return
	}
	for _, t := range d.Events {
		call = h.record(ctx, log, call, t, map[string]any{"reason": d.Reason, "target": d.ConnectTo})
	}

	var r Response
	switch d.Action {
	case routing.ActionDialTeam:
		r.Dial(Dial{
			Action:   h.callbackURL(PathDialStatus, call.ID),
			Method:   http.MethodPost,
			Timeout:  seconds(h.Dial.TeamDialTimeout),
			CallerID: call.CallerPhoneNumber,
			Number:   &Number{Value: d.ConnectTo},
		})
	case routing.ActionConnectAgent:
		r.Dial(h.agentDial(call, num))
	default:
		log.Error("unexpected inbound action", "action", d.Action)
		h.apology(c, "voice")
		return
	}
	h.writeTwiML(c, "voice", &r)
}

func (h TwilioWebhookHandler) HandleDialStatus(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if h.Calls == nil || h.Reconciler == nil || h.Router == nil {
		log.Error("twilio webhook handler not configured")
		h.apology(c, "dial_status")
		return
	}

	form, err := ParseTwilioDialStatus(c.Request)
	if err != nil {
		log.Warn("twilio dial-status parse failed", "err", err)
		h.apology(c, "dial_status")
		return
	}

	call, err := h.loadCall(ctx, c.Query("callId"), form.CallSid)
	if err != nil {
		log.Warn("dial-status call not found", "call_sid", form.CallSid, "err", err)
		h.apology(c, "dial_status")
		return
	}
	log = logger.WithCall(log, call.ID, call.OrganizationID).With("dial_status", form.DialCallStatus)
	logger.Bind(c, log)
	ctx = c.Request.Context()

	d, err := h.Router.RouteDialOutcome(routing.DialOutcomeInput{
		OrganizationID: call.OrganizationID,
		CallID:         call.ID,
		RoomName:       call.RoomName,
		DialStatus:     form.DialCallStatus,
	})
	if err != nil {
		log.Error("dial outcome routing failed", "err", err)
		h.apology(c, "dial_status")
		return
	}

	for _, t := range d.Events {
		data := map[string]any{"dialStatus": form.DialCallStatus}
		switch t {
		case events.TypeTransferFailed, events.TypeTransferSuccess:
			data["target"] = call.TransferTarget
		case events.TypeTransferReconnected:
			data["roomName"] = call.RoomName
		case events.TypeDialCompleted:
			data["durationSeconds"] = form.DialCallDuration
		case events.TypeRoutedToAgent:
			data["reason"] = d.Reason
		}
		call = h.record(ctx, log, call, t, data)
	}

	var r Response
	switch d.Action {
	case routing.ActionReconnectRoom:
		r.Dial(Dial{
			Sip: &Sip{URI: SIPURI(h.sipUser(), h.Dial.SIPHost,
				SIPHeader{HeaderRoomName, d.ConnectTo},
				SIPHeader{HeaderCallID, call.ID},
				SIPHeader{HeaderAgentID, call.AgentID},
				SIPHeader{HeaderCallerID, call.CallerPhoneNumber},
			)},
			ReferURL:    h.callbackURL(PathSIPTransfer, call.ID),
			ReferMethod: http.MethodPost,
		})
	case routing.ActionConnectAgent:
		num := numbers.PhoneNumber{Number: call.CalledNumber, AgentID: call.AgentID}
		if h.Numbers != nil {
			if n, err := h.Numbers.Lookup(ctx, call.CalledNumber); err == nil {
				num = n
			}
		}
		r.Dial(h.agentDial(call, num))
	case routing.ActionHangup:
		r.Hangup()
	default:
		log.Error("unexpected dial outcome action", "action", d.Action)
		h.apology(c, "dial_status")
		return
	}
	log.Info("dial outcome handled", "action", d.Action, "reason", d.Reason)
	h.writeTwiML(c, "dial_status", &r)
}

func (h TwilioWebhookHandler) HandleSIPTransfer(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	if h.Calls == nil || h.Reconciler == nil || h.Router == nil {
		log.Error("twilio webhook handler not configured")
		h.apology(c, "sip_transfer")
		return
	}

	form, err := ParseTwilioRefer(c.Request)
	if err != nil {
		log.Warn("twilio refer parse failed", "err", err)
		h.apology(c, "sip_transfer")
		return
	}

	call, err := h.loadCall(ctx, c.Query("callId"), form.CallSid)
	if err != nil {
		log.Warn("sip-transfer call not found", "call_sid", form.CallSid, "err", err)
		h.apology(c, "sip_transfer")
		return
	}
	log = logger.WithCall(log, call.ID, call.OrganizationID)
	logger.Bind(c, log)
	ctx = c.Request.Context()

	target := ParseTransferTarget(form.ReferTransferTarget)
	d, err := h.Router.RouteTransfer(routing.TransferInput{
		OrganizationID: call.OrganizationID,
		CallID:         call.ID,
		Target:         target,
	})
	if err != nil || d.Action != routing.ActionDialTransfer {
		log.Warn("sip transfer rejected", "refer_target", form.ReferTransferTarget, "err", err)
		h.apology(c, "sip_transfer")
		return
	}
	for _, t := range d.Events {
		call = h.record(ctx, log, call, t, map[string]any{"target": d.ConnectTo, "reason": "sip_refer"})
	}

	var r Response
	r.Dial(Dial{
		Action:   h.callbackURL(PathDialStatus, call.ID),
		Method:   http.MethodPost,
		Timeout:  seconds(h.Dial.DialTimeout),
		CallerID: call.CallerPhoneNumber,
		Number:   &Number{Value: d.ConnectTo},
	})
	log.Info("transfer dialing", "target", d.ConnectTo)
	h.writeTwiML(c, "sip_transfer", &r)
}

// loadCall prefers the internal id carried on our own callback URLs and falls
// back to the resolver by provider call id.
func (h TwilioWebhookHandler) loadCall(ctx context.Context, callID, callSid string) (calls.Call, error) {
	if callID = strings.TrimSpace(callID); callID != "" {
		call, err := h.Calls.Get(ctx, callID)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, calls.ErrNotFound) {
			return calls.Call{}, err
		}
	}
	if callSid == "" {
		return calls.Call{}, calls.ErrNotFound
	}
	call, _, err := h.Reconciler.Resolve(ctx, calls.Criteria{ProviderCallID: callSid})
	return call, err
}

// record appends an event and returns the call as updated by the transition.
// Failures are logged; the live call keeps going.
func (h TwilioWebhookHandler) record(ctx context.Context, log *slog.Logger, call calls.Call, t events.Type, data map[string]any) calls.Call {
	res, err := h.Reconciler.Handle(ctx, call, t, events.MustData(data), time.Time{})
	if err != nil {
		log.Error("telephony event not recorded", "event_type", string(t), "err", err)
		return call
	}
	if res.Applied {
		return res.Transition.After
	}
	return call
}

func (h TwilioWebhookHandler) agentDial(call calls.Call, num numbers.PhoneNumber) Dial {
	return Dial{
		Sip: &Sip{URI: SIPURI(h.sipUser(), h.Dial.SIPHost,
			SIPHeader{HeaderAgentID, call.AgentID},
			SIPHeader{HeaderAgentName, num.AgentName},
			SIPHeader{HeaderPhoneNumber, call.CalledNumber},
			SIPHeader{HeaderCallerID, call.CallerPhoneNumber},
			SIPHeader{HeaderCallID, call.ID},
		)},
		ReferURL:    h.callbackURL(PathSIPTransfer, call.ID),
		ReferMethod: http.MethodPost,
	}
}

func (h TwilioWebhookHandler) callbackURL(path, callID string) string {
	q := url.Values{}
	q.Set("callId", callID)
	return strings.TrimRight(h.Dial.PublicBaseURL, "/") + path + "?" + q.Encode()
}

func (h TwilioWebhookHandler) sipUser() string {
	if h.Dial.SIPUser == "" {
		return "agent"
	}
	return h.Dial.SIPUser
}

func (h TwilioWebhookHandler) writeTwiML(c *gin.Context, endpoint string, r *Response) {
	s, err := r.Render()
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		h.apology(c, endpoint)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(s))
}

func (h TwilioWebhookHandler) apology(c *gin.Context, endpoint string) {
	if h.Metrics != nil {
		h.Metrics.TelephonyFallbacks.WithLabelValues(endpoint).Inc()
	}
	c.Data(http.StatusOK, "application/xml", []byte(ApologyTwiML()))
}

// RecoverTwiML turns a panic in a webhook handler into the apology document.
func RecoverTwiML(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromGin(c).Error("telephony handler panic", "panic", rec)
				if m != nil {
					m.TelephonyFallbacks.WithLabelValues("panic").Inc()
				}
				c.Data(http.StatusOK, "application/xml", []byte(ApologyTwiML()))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func (h TwilioWebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

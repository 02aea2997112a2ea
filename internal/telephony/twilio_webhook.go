package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
//
// Keep these minimal and provider-adapter-only.
// Business logic (routing decisions) is not made here.

// TwilioInboundForm captures the subset of voice webhook fields we care about.
type TwilioInboundForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	Direction  string
	CallStatus string
	CallerName string
}

func ParseTwilioInboundCall(r *http.Request) (TwilioInboundForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioInboundForm{}, err
	}
	return TwilioInboundForm{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: r.PostFormValue("AccountSid"),
		From:       normalizePhone(r.PostFormValue("From")),
		To:         normalizePhone(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallStatus: r.PostFormValue("CallStatus"),
		CallerName: r.PostFormValue("CallerName"),
	}, nil
}

// TwilioDialStatusForm is posted to a Dial action URL when the dialed leg ends.
type TwilioDialStatusForm struct {
	CallSid        string
	DialCallSid    string
	DialCallStatus string
	// DialCallDuration is in seconds; zero when the leg never connected.
	DialCallDuration int
	From             string
	To               string
}

func ParseTwilioDialStatus(r *http.Request) (TwilioDialStatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioDialStatusForm{}, err
	}
	f := TwilioDialStatusForm{
		CallSid:        strings.TrimSpace(r.PostFormValue("CallSid")),
		DialCallSid:    strings.TrimSpace(r.PostFormValue("DialCallSid")),
		DialCallStatus: strings.ToLower(strings.TrimSpace(r.PostFormValue("DialCallStatus"))),
		From:           normalizePhone(r.PostFormValue("From")),
		To:             normalizePhone(r.PostFormValue("To")),
	}
	// Malformed durations are treated as unknown.
	if d, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("DialCallDuration"))); err == nil && d > 0 {
		f.DialCallDuration = d
	}
	return f, nil
}

// TwilioReferForm is posted to the Dial referUrl when the agent issues a SIP REFER.
type TwilioReferForm struct {
	CallSid             string
	ReferTransferTarget string
	From                string
	To                  string
}

func ParseTwilioRefer(r *http.Request) (TwilioReferForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioReferForm{}, err
	}
	return TwilioReferForm{
		CallSid:             strings.TrimSpace(r.PostFormValue("CallSid")),
		ReferTransferTarget: r.PostFormValue("ReferTransferTarget"),
		From:                normalizePhone(r.PostFormValue("From")),
		To:                  normalizePhone(r.PostFormValue("To")),
	}, nil
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return s
}

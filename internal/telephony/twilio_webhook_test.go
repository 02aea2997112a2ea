package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func formRequest(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseTwilioInboundCall(t *testing.T) {
	r := formRequest(PathVoice, "CallSid=CA123&From=%2B15551234567&To=%2B15557654321")

	form, err := ParseTwilioInboundCall(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" {
		t.Fatalf("expected CallSid")
	}
	if form.From != "+15551234567" || form.To != "+15557654321" {
		t.Fatalf("unexpected from/to: %q %q", form.From, form.To)
	}
}

func TestParseTwilioDialStatus(t *testing.T) {
	form, err := ParseTwilioDialStatus(formRequest(PathDialStatus, "CallSid=CA1&DialCallStatus=No-Answer&DialCallDuration=abc"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.DialCallStatus != "no-answer" {
		t.Fatalf("expected lowercased status, got %q", form.DialCallStatus)
	}
	if form.DialCallDuration != 0 {
		t.Fatalf("expected malformed duration to be dropped")
	}

	form, _ = ParseTwilioDialStatus(formRequest(PathDialStatus, "CallSid=CA1&DialCallStatus=completed&DialCallDuration=73"))
	if form.DialCallDuration != 73 {
		t.Fatalf("expected duration 73, got %d", form.DialCallDuration)
	}
}

func TestParseTwilioRefer(t *testing.T) {
	form, err := ParseTwilioRefer(formRequest(PathSIPTransfer, "CallSid=CA1&ReferTransferTarget=%3Csip%3A%2B15550001111%40pstn%3E"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.ReferTransferTarget != "<sip:+15550001111@pstn>" {
		t.Fatalf("unexpected refer target %q", form.ReferTransferTarget)
	}
}

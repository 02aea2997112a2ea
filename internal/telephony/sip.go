package telephony

import (
	"net/url"
	"strings"
)

// Custom SIP headers read by the agent runtime when a session starts.
const (
	HeaderAgentID     = "X-agent-id"
	HeaderAgentName   = "X-agent-name"
	HeaderPhoneNumber = "X-phone-number"
	HeaderCallerID    = "X-caller-id"
	HeaderCallID      = "X-call-id"
	// HeaderRoomName asks the runtime to rejoin an existing room instead of
	// minting a new one.
	HeaderRoomName = "X-room-name"
)

// SIPHeader is one custom header appended to a SIP URI.
type SIPHeader struct {
	Name  string
	Value string
}

// SIPURI builds sip:user@host?X-a=1&X-b=2. Headers keep their order and empty
// values are skipped.
func SIPURI(user, host string, headers ...SIPHeader) string {
	var b strings.Builder
	b.WriteString("sip:")
	if user != "" {
		b.WriteString(user)
		b.WriteString("@")
	}
	b.WriteString(host)

	sep := "?"
	for _, h := range headers {
		if h.Name == "" || h.Value == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(h.Name)
		b.WriteString("=")
		b.WriteString(url.QueryEscape(h.Value))
		sep = "&"
	}
	return b.String()
}

// ParseTransferTarget reduces a SIP REFER target to a bare dialable number.
//
//	<tel:+15550001111>                 -> +15550001111
//	sip:+15550001111@pstn.example.com  -> +15550001111
//	tel:+15550001111;phone-context=x   -> +15550001111
func ParseTransferTarget(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "<")
	if i := strings.Index(s, ">"); i >= 0 {
		s = s[:i]
	}
	lower := strings.ToLower(s)
	for _, scheme := range []string{"tel:", "sips:", "sip:"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			break
		}
	}
	if i := strings.Index(s, "@"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexAny(s, ";?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

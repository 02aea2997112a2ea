package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

// ApologyMessage is spoken before hanging up on any failure path.
const ApologyMessage = "We're sorry, we are unable to take your call right now. Please try again later."

// apologyTwiML is rendered once at init so failure paths never hit the encoder.
var apologyTwiML = mustRender((&Response{}).Say(ApologyMessage).Hangup())

type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Dial bridges the caller to exactly one Number or Sip noun.
type Dial struct {
	XMLName  xml.Name `xml:"Dial"`
	Action   string   `xml:"action,attr,omitempty"`
	Method   string   `xml:"method,attr,omitempty"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	// ReferURL receives SIP REFER requests sent by the agent for transfers.
	ReferURL    string `xml:"referUrl,attr,omitempty"`
	ReferMethod string `xml:"referMethod,attr,omitempty"`

	Number *Number `xml:"Number,omitempty"`
	Sip    *Sip    `xml:"Sip,omitempty"`
}

type Number struct {
	Value string `xml:",chardata"`
}

type Sip struct {
	URI string `xml:",chardata"`
}

func (r *Response) Say(text string) *Response {
	r.Verbs = append(r.Verbs, Say{Text: text})
	return r
}

func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

func (r *Response) Dial(d Dial) *Response {
	r.Verbs = append(r.Verbs, d)
	return r
}

// Render encodes the response as an XML document.
func (r *Response) Render() (string, error) {
	for _, v := range r.Verbs {
		if d, ok := v.(Dial); ok {
			if err := d.validate(); err != nil {
				return "", err
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (d Dial) validate() error {
	hasNumber := d.Number != nil && strings.TrimSpace(d.Number.Value) != ""
	hasSip := d.Sip != nil && strings.TrimSpace(d.Sip.URI) != ""
	switch {
	case hasNumber && hasSip:
		return errors.New("telephony: dial must target a number or a sip uri, not both")
	case !hasNumber && !hasSip:
		return errors.New("telephony: dial target required")
	}
	return nil
}

// ApologyTwiML returns the apology+hangup document.
func ApologyTwiML() string { return apologyTwiML }

func mustRender(r *Response) string {
	s, err := r.Render()
	if err != nil {
		panic(err)
	}
	return s
}

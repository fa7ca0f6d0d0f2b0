package telephony

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

// Greeting builds the opening line for a lead: "Hi <name>. <script>".
func Greeting(leadName, script string) string {
	name := strings.TrimSpace(leadName)
	script = strings.TrimSpace(script)

	var b strings.Builder
	b.WriteString("Hi")
	if name != "" {
		b.WriteString(" ")
		b.WriteString(name)
	}
	b.WriteString(".")
	if script != "" {
		b.WriteString(" ")
		b.WriteString(script)
	}
	return b.String()
}

// RenderGreetingTwiML speaks the greeting and pauses for one second. The output has
// no XML declaration so it can be sent inline as the Twiml call parameter.
func RenderGreetingTwiML(greeting string) (string, error) {
	r := twimlResponse{Verbs: []any{
		twimlSay{Text: greeting},
		twimlPause{Length: 1},
	}}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

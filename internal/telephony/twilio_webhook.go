package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// TwilioStatusForm captures the subset of status callback fields we care about.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type TwilioStatusForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	CallDuration string
	SipResponse  string
	Timestamp    string
}

// ParseTwilioStatusCallback parses the form and returns the raw values too, which
// signature validation needs in full.
func ParseTwilioStatusCallback(r *http.Request) (TwilioStatusForm, url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioStatusForm{}, nil, err
	}
	f := TwilioStatusForm{
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         normalizePhone(r.PostFormValue("From")),
		To:           normalizePhone(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration: r.PostFormValue("CallDuration"),
		SipResponse:  r.PostFormValue("SipResponseCode"),
		Timestamp:    r.PostFormValue("Timestamp"),
	}
	return f, r.PostForm, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

// LogLine is the call log message recorded for this callback.
func (f TwilioStatusForm) LogLine() string {
	var b strings.Builder
	b.WriteString("provider status: ")
	b.WriteString(f.CallStatus)
	if f.CallDuration != "" {
		b.WriteString(" (")
		b.WriteString(f.CallDuration)
		b.WriteString("s)")
	}
	return b.String()
}

// TwilioSignature computes X-Twilio-Signature for a POST to fullURL: the URL followed
// by every parameter name and value sorted by name, HMAC-SHA1 with the auth token,
// base64 encoded.
func TwilioSignature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidTwilioSignature compares in constant time.
func ValidTwilioSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := TwilioSignature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}

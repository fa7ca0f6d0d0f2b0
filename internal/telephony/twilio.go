package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioOptions carries credentials and endpoints for TwilioPlacer.
type TwilioOptions struct {
	AccountSID string
	AuthToken  string

	// CallerID is the verified From number.
	CallerID string

	// BaseURL defaults to DefaultTwilioBaseURL; tests point it at httptest.
	BaseURL string

	// StatusCallback returns the status webhook URL for a call, or "" to skip it.
	StatusCallback func(callID string) string
}

// TwilioPlacer places calls through the Twilio REST API with inline TwiML.
type TwilioPlacer struct {
	opts   TwilioOptions
	client *http.Client
}

func NewTwilioPlacer(opts TwilioOptions, client *http.Client) *TwilioPlacer {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultTwilioBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioPlacer{opts: opts, client: client}
}

// Twilio error codes that describe an unusable destination.
var twilioInvalidNumberCodes = map[int]struct{}{
	21211: {}, // invalid To
	21214: {}, // To cannot be reached
	21217: {}, // To not a valid phone number
	21401: {}, // invalid phone number
}

type twilioCallResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

type twilioErrorResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	MoreInfo string `json:"more_info"`
}

func (p *TwilioPlacer) Place(ctx context.Context, req PlaceRequest) (CallRef, error) {
	to := strings.TrimSpace(req.To)
	if to == "" {
		return CallRef{}, &PlacementError{Kind: PlacementInvalidNumber, Message: "lead has no phone number"}
	}

	twiml, err := RenderGreetingTwiML(req.Greeting)
	if err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementRejected, Message: "render twiml", Err: err}
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", p.opts.CallerID)
	form.Set("Twiml", twiml)
	if p.opts.StatusCallback != nil {
		if cb := p.opts.StatusCallback(req.CallID); cb != "" {
			form.Set("StatusCallback", cb)
			form.Set("StatusCallbackMethod", http.MethodPost)
			for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
				form.Add("StatusCallbackEvent", ev)
			}
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", p.opts.BaseURL, url.PathEscape(p.opts.AccountSID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "build request", Err: err}
	}
	httpReq.SetBasicAuth(p.opts.AccountSID, p.opts.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "twilio request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "read twilio response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return CallRef{}, twilioError(resp.StatusCode, body)
	}

	var out twilioCallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "decode twilio response", Err: err}
	}
	if out.Sid == "" {
		return CallRef{}, &PlacementError{Kind: PlacementTransport, Message: "twilio response missing sid"}
	}
	return CallRef{ID: out.Sid}, nil
}

func twilioError(status int, body []byte) *PlacementError {
	var e twilioErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Message == "" {
		e.Message = fmt.Sprintf("twilio returned HTTP %d", status)
	}

	kind := PlacementRejected
	if status >= 500 {
		kind = PlacementTransport
	}
	if _, ok := twilioInvalidNumberCodes[e.Code]; ok {
		kind = PlacementInvalidNumber
	}
	return &PlacementError{
		Kind:    kind,
		Code:    e.Code,
		Message: e.Message,
		Err:     errors.New(http.StatusText(status)),
	}
}

package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/twilio/twilio-go/twiml"

	"voicemail-gateway/internal/config"
)

const twilioAPIBase = "https://api.twilio.com"

// Twilio implements VoiceProvider against the Twilio voice API.
// Requests authenticate with HTTP Basic using the configured API
// key/secret, computed per call; no token caching.
type Twilio struct {
	cfg     config.VoicemailConfig
	http    *resty.Client
	apiBase string
}

func NewTwilio(cfg config.VoicemailConfig) *Twilio {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetBasicAuth(cfg.APIKey, cfg.APISecret)

	return &Twilio{cfg: cfg, http: client, apiBase: twilioAPIBase}
}

func (t *Twilio) Name() string { return string(config.ProviderTwilio) }

func (t *Twilio) callbackURL(path string) string {
	return t.cfg.Endpoint + path
}

// IncomingCallResponse redirects allow-listed callers to the menu flow
// and everyone else straight to the record flow. Both flows currently
// serve the same recording document; the branch is kept as-is.
func (t *Twilio) IncomingCallResponse(fromNumber string) (string, error) {
	target := t.callbackURL("/record")
	if t.cfg.IsAllowed(fromNumber) {
		target = t.callbackURL("/menu")
	}

	redirect := &twiml.VoiceRedirect{
		Url:    target,
		Method: "GET",
	}
	return twiml.Voice([]twiml.Element{redirect})
}

func (t *Twilio) HangupResponse() (string, error) {
	return twiml.Voice([]twiml.Element{&twiml.VoiceHangup{}})
}

// RecordingResponse plays (url prompt) or speaks (text prompt) the
// greeting, then records with a start beep. The provider calls back to
// /store when the recording completes and redirects to /hangup after.
func (t *Twilio) RecordingResponse() (string, error) {
	var verbs []twiml.Element

	switch t.cfg.Recording.Type {
	case config.RecordingTypeURL:
		verbs = append(verbs, &twiml.VoicePlay{Url: t.cfg.Recording.URL})
	case config.RecordingTypeText:
		verbs = append(verbs, &twiml.VoiceSay{Message: t.cfg.Recording.Text})
	}

	verbs = append(verbs, &twiml.VoiceRecord{
		Action:                        t.callbackURL("/hangup"),
		Method:                        "GET",
		MaxLength:                     strconv.Itoa(t.cfg.Recording.MaxLength),
		PlayBeep:                      "true",
		RecordingStatusCallback:       t.callbackURL("/store"),
		RecordingStatusCallbackEvent:  "completed",
		RecordingStatusCallbackMethod: "POST",
	})

	return twiml.Voice(verbs)
}

func (t *Twilio) FetchRecordingMetadata(ctx context.Context, recordingURL string) (RecordingInfo, error) {
	var info RecordingInfo
	url := recordingURL + ".json"

	resp, err := t.http.R().SetContext(ctx).SetResult(&info).Get(url)
	if err != nil {
		return RecordingInfo{}, fmt.Errorf("fetch recording metadata: %w", err)
	}
	if resp.IsError() {
		return RecordingInfo{}, &UpstreamError{Op: "fetch recording metadata", URL: url, Status: resp.StatusCode()}
	}
	return info, nil
}

func (t *Twilio) FetchCallDetails(ctx context.Context, accountSid, callSid string) (CallInfo, error) {
	var info CallInfo
	url := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", t.apiBase, accountSid, callSid)

	resp, err := t.http.R().SetContext(ctx).SetResult(&info).Get(url)
	if err != nil {
		return CallInfo{}, fmt.Errorf("fetch call details: %w", err)
	}
	if resp.IsError() {
		return CallInfo{}, &UpstreamError{Op: "fetch call details", URL: url, Status: resp.StatusCode()}
	}
	return info, nil
}

func (t *Twilio) FetchRecordingFile(ctx context.Context, recordingURL string) ([]byte, error) {
	url := recordingURL + ".mp3"

	resp, err := t.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch recording file: %w", err)
	}
	if resp.IsError() {
		return nil, &UpstreamError{Op: "fetch recording file", URL: url, Status: resp.StatusCode()}
	}
	return resp.Body(), nil
}

func (t *Twilio) DeleteRecording(ctx context.Context, recordingURL string) error {
	url := recordingURL + ".json"

	resp, err := t.http.R().SetContext(ctx).Delete(url)
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if resp.IsError() {
		return &UpstreamError{Op: "delete recording from Twilio", URL: url, Status: resp.StatusCode()}
	}
	return nil
}

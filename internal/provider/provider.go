package provider

import (
	"context"
	"errors"
	"fmt"

	"voicemail-gateway/internal/config"
)

// VoiceProvider is the capability contract every voice provider variant
// implements: call-control document generation for the webhook endpoints,
// plus authenticated retrieval and cleanup of finished recordings.
//
// Rules:
// - No provider API calls outside this package.
// - Markup methods are pure over the config; fetch methods take a context.
type VoiceProvider interface {
	Name() string

	// IncomingCallResponse returns the call-control document for a new
	// inbound call from the given caller number.
	IncomingCallResponse(fromNumber string) (string, error)

	// HangupResponse returns a document instructing immediate termination.
	HangupResponse() (string, error)

	// RecordingResponse returns a document that plays or speaks the
	// configured greeting, then records the call.
	RecordingResponse() (string, error)

	FetchRecordingMetadata(ctx context.Context, recordingURL string) (RecordingInfo, error)
	FetchCallDetails(ctx context.Context, accountSid, callSid string) (CallInfo, error)
	FetchRecordingFile(ctx context.Context, recordingURL string) ([]byte, error)
	DeleteRecording(ctx context.Context, recordingURL string) error
}

// RecordingInfo is the provider-side recording record, reduced to the
// fields the ingestion workflow consumes.
type RecordingInfo struct {
	Sid       string `json:"sid"`
	CallSid   string `json:"call_sid"`
	StartTime string `json:"start_time"`
	Duration  string `json:"duration"`
}

// CallInfo is the provider-side call record; only the caller identifier
// is consumed.
type CallInfo struct {
	From string `json:"from"`
}

// ErrUnsupportedProvider is returned by New for an unrecognized tag.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// New resolves the configured provider tag to a concrete variant.
// Adding a provider means adding one case here, not touching call sites.
func New(cfg config.VoicemailConfig) (VoiceProvider, error) {
	switch cfg.Provider {
	case config.ProviderTwilio:
		return NewTwilio(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// UpstreamError is a non-success response from the provider's API.
type UpstreamError struct {
	Op     string
	URL    string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("failed to %s: %s returned status %d", e.Op, e.URL, e.Status)
}

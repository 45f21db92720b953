package voicemail

import (
	"context"
	"fmt"
	"time"

	"voicemail-gateway/internal/provider"
	"voicemail-gateway/internal/storage"
	"voicemail-gateway/pkg/logger"
)

// MediaKey is the storage key a recording's audio is written under.
func MediaKey(recordingSid string) string {
	return fmt.Sprintf("recordings/%s.mp3", recordingSid)
}

// Pipeline turns a validated "recording completed" callback into a
// stored audio blob plus an index entry, then deletes the provider-side
// copy. Stages run strictly in order; the first failure aborts the run.
// There are no retries and no rollback: a failure after the audio or
// index write leaves those writes in place.
type Pipeline struct {
	Provider provider.VoiceProvider
	Store    storage.ObjectStore
	Index    *storage.Index

	// Now stamps the ingestion timestamp; defaults to time.Now.
	Now func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Ingest runs the workflow for one callback. The payload must already be
// validated; no upstream call happens before validation.
func (p *Pipeline) Ingest(ctx context.Context, cb CallbackPayload) (storage.RecordingMetadata, error) {
	log := logger.From(ctx)

	meta, err := p.Provider.FetchRecordingMetadata(ctx, cb.RecordingURL)
	if err != nil {
		return storage.RecordingMetadata{}, err
	}

	// The caller number comes from the call record, not from the
	// callback payload.
	call, err := p.Provider.FetchCallDetails(ctx, cb.AccountSid, cb.CallSid)
	if err != nil {
		return storage.RecordingMetadata{}, err
	}

	audio, err := p.Provider.FetchRecordingFile(ctx, cb.RecordingURL)
	if err != nil {
		return storage.RecordingMetadata{}, err
	}

	key := MediaKey(cb.RecordingSid)
	if err := p.Store.Put(ctx, key, audio, "audio/mpeg"); err != nil {
		return storage.RecordingMetadata{}, err
	}

	entry := storage.RecordingMetadata{
		RecordingSid: meta.Sid,
		CallSid:      meta.CallSid,
		StartTime:    meta.StartTime,
		Duration:     meta.Duration,
		From:         call.From,
		Timestamp:    p.now().UTC().Format(time.RFC3339),
		MediaFile:    key,
	}
	if err := p.Index.Append(ctx, entry); err != nil {
		return storage.RecordingMetadata{}, err
	}

	// Failure here still fails the whole run even though the audio and
	// index writes above already stand.
	if err := p.Provider.DeleteRecording(ctx, cb.RecordingURL); err != nil {
		return storage.RecordingMetadata{}, err
	}

	log.Info("recording ingested",
		"recording_sid", entry.RecordingSid,
		"call_sid", entry.CallSid,
		"from", entry.From,
		"media_file", entry.MediaFile,
	)
	return entry, nil
}

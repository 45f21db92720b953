package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// IndexKey is the object key of the recording index document.
const IndexKey = "index.json"

// RecordingMetadata is one entry of the recording index. Field names
// match the persisted document format.
type RecordingMetadata struct {
	RecordingSid string `json:"recordingSid"`
	CallSid      string `json:"callSid"`
	StartTime    string `json:"start_time"`
	Duration     string `json:"duration"`
	From         string `json:"from"`
	Timestamp    string `json:"timestamp"`
	MediaFile    string `json:"mediaFile"`
}

// Index is the ordered ledger of ingested recordings, stored as a single
// JSON document. Entries are appended in ingestion order.
type Index struct {
	store ObjectStore
}

func NewIndex(store ObjectStore) *Index {
	return &Index{store: store}
}

// Append adds one entry and rewrites the document in full. A missing or
// unparseable document is reset to an empty sequence first
// ("parse-or-reset"); a corrupt index never blocks ingestion.
func (ix *Index) Append(ctx context.Context, entry RecordingMetadata) error {
	err := ix.store.Update(ctx, IndexKey, "application/json", func(current []byte, _ bool) ([]byte, error) {
		entries := decodeOrReset(current)
		entries = append(entries, entry)
		return json.MarshalIndent(entries, "", "  ")
	})
	if err != nil {
		return fmt.Errorf("index append: %w", err)
	}
	return nil
}

// Entries reads the current index. A missing document is an empty index.
func (ix *Index) Entries(ctx context.Context) ([]RecordingMetadata, error) {
	raw, err := ix.store.Get(ctx, IndexKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeOrReset(raw), nil
}

func decodeOrReset(raw []byte) []RecordingMetadata {
	if len(raw) == 0 {
		return nil
	}
	var entries []RecordingMetadata
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	return entries
}

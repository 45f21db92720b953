package voicemail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"voicemail-gateway/internal/config"
	"voicemail-gateway/internal/provider"
	"voicemail-gateway/internal/storage"
)

func handlerConfig() config.VoicemailConfig {
	return config.VoicemailConfig{
		Provider: config.ProviderTwilio,
		Numbers:  []string{"+15550001111"},
		Recording: config.RecordingConfig{
			Type:      config.RecordingTypeText,
			Text:      "Please leave a message",
			MaxLength: 30,
		},
		Endpoint:  "https://voicemail.example.com/twilio",
		APIKey:    "SKkey",
		APISecret: "shhh",
	}
}

func newTestRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/incoming", h.Incoming)
	r.GET("/menu", h.Record)
	r.GET("/record", h.Record)
	r.GET("/hangup", h.Hangup)
	r.POST("/store", h.Store)
	return r
}

func newTestHandlers(p provider.VoiceProvider, store *storage.MemoryStore) Handlers {
	return Handlers{
		Cfg:         handlerConfig(),
		ObjectStore: store,
		Index:       storage.NewIndex(store),
		Validator:   NewPayloadValidator(),
		NewProvider: func(config.VoicemailConfig) (provider.VoiceProvider, error) {
			return p, nil
		},
		Now: func() time.Time { return time.Date(2023, 1, 1, 12, 1, 0, 0, time.UTC) },
	}
}

func storeForm() url.Values {
	p := validPayload()
	return url.Values{
		"AccountSid":        {p.AccountSid},
		"CallSid":           {p.CallSid},
		"RecordingSid":      {p.RecordingSid},
		"RecordingUrl":      {p.RecordingURL},
		"RecordingStatus":   {p.RecordingStatus},
		"RecordingDuration": {p.RecordingDuration},
		"RecordingChannels": {p.RecordingChannels},
		"RecordingSource":   {p.RecordingSource},
	}
}

func postStore(t *testing.T, r *gin.Engine, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/store", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeStoreResponse(t *testing.T, w *httptest.ResponseRecorder) StoreResponse {
	t.Helper()
	var resp StoreResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("expected json body, got %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(newTestHandlers(newFakeProvider(), storage.NewMemoryStore()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected json, got %q", w.Body.String())
	}
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestIncomingEndpoint_UsesRealProvider(t *testing.T) {
	h := newTestHandlers(nil, storage.NewMemoryStore())
	h.NewProvider = nil // exercise the real factory + twilio markup
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/incoming?From=%2B15550001111", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Fatalf("expected xml content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "/menu") {
		t.Fatalf("allow-listed caller must be sent to the menu flow: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/incoming?From=%2B15559998888", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/record") {
		t.Fatalf("unknown caller must be sent to the record flow: %s", w.Body.String())
	}
}

func TestRecordAndMenuEndpointsServeSameFlow(t *testing.T) {
	h := newTestHandlers(nil, storage.NewMemoryStore())
	h.NewProvider = nil
	r := newTestRouter(h)

	for _, path := range []string{"/record", "/menu"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<Record") {
			t.Fatalf("%s: expected record verb, got %s", path, w.Body.String())
		}
	}
}

func TestHangupEndpoint(t *testing.T) {
	h := newTestHandlers(nil, storage.NewMemoryStore())
	h.NewProvider = nil
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hangup", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("expected hangup verb, got %s", w.Body.String())
	}
}

func TestStoreEndpoint_Success(t *testing.T) {
	store := storage.NewMemoryStore()
	h := newTestHandlers(newFakeProvider(), store)
	r := newTestRouter(h)

	form := storeForm()
	w := postStore(t, r, form)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeStoreResponse(t, w)
	if !resp.Status || resp.Message != "Recording stored successfully" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	entries, err := h.Index.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one index entry, got %d", len(entries))
	}
}

func TestStoreEndpoint_InvalidAccountSid(t *testing.T) {
	r := newTestRouter(newTestHandlers(newFakeProvider(), storage.NewMemoryStore()))

	form := storeForm()
	form.Set("AccountSid", "AC-not-hex")
	w := postStore(t, r, form)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeStoreResponse(t, w)
	if resp.Status {
		t.Fatalf("expected status false, got %+v", resp)
	}
	if !strings.Contains(resp.Message, "Invalid request data") {
		t.Fatalf("expected validation message, got %q", resp.Message)
	}
}

func TestStoreEndpoint_ValidationHappensBeforeAnyFetch(t *testing.T) {
	fake := newFakeProvider()
	fake.metadataErr = &provider.UpstreamError{Op: "fetch recording metadata", URL: "x", Status: 500}
	r := newTestRouter(newTestHandlers(fake, storage.NewMemoryStore()))

	form := storeForm()
	form.Set("RecordingStatus", "in-progress")
	w := postStore(t, r, form)

	// Invalid payloads are rejected with 400 even when upstream would
	// also fail; no fetch happens first.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStoreEndpoint_UpstreamFailure(t *testing.T) {
	fake := newFakeProvider()
	fake.callErr = &provider.UpstreamError{Op: "fetch call details", URL: "x", Status: 502}
	r := newTestRouter(newTestHandlers(fake, storage.NewMemoryStore()))

	w := postStore(t, r, storeForm())
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	resp := decodeStoreResponse(t, w)
	if resp.Status || !strings.Contains(resp.Message, "Internal Server Error") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStoreEndpoint_DeleteFailureStillReports500(t *testing.T) {
	fake := newFakeProvider()
	fake.deleteErr = &provider.UpstreamError{Op: "delete recording from Twilio", URL: "x", Status: 500}
	store := storage.NewMemoryStore()
	h := newTestHandlers(fake, store)
	r := newTestRouter(h)

	form := storeForm()
	w := postStore(t, r, form)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeStoreResponse(t, w)
	if resp.Status {
		t.Fatalf("expected status false, got %+v", resp)
	}

	// Audio and index writes stand even though the request failed.
	ctx := context.Background()
	if _, err := store.Get(ctx, MediaKey(form.Get("RecordingSid"))); err != nil {
		t.Fatalf("expected audio kept, got %v", err)
	}
	entries, _ := h.Index.Entries(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected index entry kept, got %d", len(entries))
	}
}

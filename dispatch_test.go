package multillm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xostack/multillm/config"
	"github.com/xostack/multillm/prompt"
	"github.com/xostack/multillm/provider"
)

// chatServer replies to chat completion requests with content and records the
// model of the last request.
type chatServer struct {
	*httptest.Server
	calls     atomic.Int32
	lastModel atomic.Value
}

func newChatServer(t *testing.T, status int, content string) *chatServer {
	t.Helper()
	cs := &chatServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.calls.Add(1)
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		cs.lastModel.Store(body.Model)

		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error": {"message": "upstream exploded", "type": "server_error"}}`))
			return
		}
		encoded, _ := json.Marshal(content)
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":` + string(encoded) + `}}]}`))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestDispatcher(t *testing.T, providers map[string]config.LLMConfig) *Dispatcher {
	t.Helper()
	cfg := config.NewConfig("gpt", 5, providers)
	cfg.RawLogPath = ""
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("Expected no error creating dispatcher, got: %v", err)
	}
	return d
}

var samplePayload = prompt.Payload{"/index.html": 120, "/login": 14}

func TestGenerateResponse_NormalizesFencedJSON(t *testing.T) {
	server := newChatServer(t, http.StatusOK, "```json\n{\"/index.html\": \"hot\", \"/login\": \"warm\"}\n```")
	d := newTestDispatcher(t, map[string]config.LLMConfig{"claude": {BaseURL: server.URL}})

	resp, err := d.GenerateResponse(context.Background(), Request{Provider: "claude", Payload: samplePayload, Credential: "key"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := map[string]any{"/index.html": "hot", "/login": "warm"}
	if !reflect.DeepEqual(resp.Data, want) {
		t.Errorf("Expected data %v, got %v", want, resp.Data)
	}
	if resp.Text != "{\n  \"/index.html\": \"hot\",\n  \"/login\": \"warm\"\n}" {
		t.Errorf("Unexpected normalized text %q", resp.Text)
	}
	if resp.Provider != "claude" || resp.Model != "anthropic/claude-3.5-sonnet" {
		t.Errorf("Unexpected provider/model %s/%s", resp.Provider, resp.Model)
	}
	if resp.RequestID == "" {
		t.Error("Expected a request id")
	}
	if !strings.HasPrefix(resp.Raw, "```json") {
		t.Errorf("Expected raw completion to be kept, got %q", resp.Raw)
	}
}

func TestGenerateResponse_ReturnRaw(t *testing.T) {
	raw := "not json at all"
	server := newChatServer(t, http.StatusOK, raw)
	d := newTestDispatcher(t, map[string]config.LLMConfig{"deepseek": {BaseURL: server.URL}})

	resp, err := d.GenerateResponse(context.Background(), Request{Provider: "deepseek", Payload: samplePayload, Credential: "key", ReturnRaw: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Text != raw || resp.Raw != raw {
		t.Errorf("Expected raw text to be returned unmodified, got %q", resp.Text)
	}
	if resp.Data != nil {
		t.Errorf("Expected no parsed data in raw mode, got %v", resp.Data)
	}
}

func TestGenerateResponse_BraceSlicingForGPTFamily(t *testing.T) {
	chatty := "Here is the JSON you requested:\n{\"top\": \"/index.html\"}\nHope this helps!"

	gptServer := newChatServer(t, http.StatusOK, chatty)
	claudeServer := newChatServer(t, http.StatusOK, chatty)
	d := newTestDispatcher(t, map[string]config.LLMConfig{
		"gpt":    {BaseURL: gptServer.URL},
		"claude": {BaseURL: claudeServer.URL},
	})

	resp, err := d.GenerateResponse(context.Background(), Request{Provider: "gpt", Payload: samplePayload, Credential: "key"})
	if err != nil {
		t.Fatalf("Expected GPT family to tolerate surrounding prose, got: %v", err)
	}
	if resp.Text != "{\n  \"top\": \"/index.html\"\n}" {
		t.Errorf("Unexpected text %q", resp.Text)
	}

	_, err = d.GenerateResponse(context.Background(), Request{Provider: "claude", Payload: samplePayload, Credential: "key"})
	if !errors.Is(err, ErrProcessingFailed) || !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("Expected ProcessingFailed wrapping MalformedOutput, got: %v", err)
	}
}

func TestGenerateResponse_CaseInsensitiveProvider(t *testing.T) {
	server := newChatServer(t, http.StatusOK, `{"ok": true}`)
	d := newTestDispatcher(t, map[string]config.LLMConfig{"gpt": {BaseURL: server.URL}})

	for _, id := range []string{"gpt", "GPT", " Gpt "} {
		resp, err := d.GenerateResponse(context.Background(), Request{Provider: id, Payload: samplePayload, Credential: "key"})
		if err != nil {
			t.Fatalf("Provider %q: expected no error, got: %v", id, err)
		}
		if resp.Provider != "gpt" || resp.Model != "gpt-3.5-turbo" {
			t.Errorf("Provider %q routed to %s/%s", id, resp.Provider, resp.Model)
		}
		if got := server.lastModel.Load(); got != "gpt-3.5-turbo" {
			t.Errorf("Provider %q sent model %v", id, got)
		}
	}
	if server.calls.Load() != 3 {
		t.Errorf("Expected 3 calls to the same endpoint, got %d", server.calls.Load())
	}
}

func TestGenerateResponse_UnsupportedProvider(t *testing.T) {
	d := newTestDispatcher(t, nil)

	resp, err := d.GenerateResponse(context.Background(), Request{Provider: "foo", Payload: samplePayload})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("Expected ErrUnsupportedProvider, got: %v", err)
	}
	if errors.Is(err, ErrProcessingFailed) {
		t.Error("Expected unsupported provider not to be wrapped in ErrProcessingFailed")
	}
	if resp != nil {
		t.Error("Expected nil response on error")
	}
}

func TestGenerateResponse_EmptyPayload(t *testing.T) {
	server := newChatServer(t, http.StatusOK, `{}`)
	d := newTestDispatcher(t, map[string]config.LLMConfig{"llama": {BaseURL: server.URL}})

	_, err := d.GenerateResponse(context.Background(), Request{Provider: "llama", Payload: prompt.Payload{}, Credential: "key"})
	if !errors.Is(err, ErrProcessingFailed) || !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ProcessingFailed wrapping ErrNoData, got: %v", err)
	}
	if server.calls.Load() != 0 {
		t.Errorf("Expected no provider calls, got %d", server.calls.Load())
	}
}

func TestGenerateResponse_MissingCredential(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	server := newChatServer(t, http.StatusOK, `{}`)
	d := newTestDispatcher(t, map[string]config.LLMConfig{"claude": {BaseURL: server.URL}})

	_, err := d.GenerateResponse(context.Background(), Request{Provider: "claude", Payload: samplePayload})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got: %v", err)
	}
	if server.calls.Load() != 0 {
		t.Errorf("Expected no provider calls, got %d", server.calls.Load())
	}
}

func TestGenerateResponse_CredentialFromEnvironment(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	var auth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, map[string]config.LLMConfig{"deepseek": {BaseURL: server.URL}})
	if _, err := d.GenerateResponse(context.Background(), Request{Provider: "deepseek", Payload: samplePayload}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if auth.Load() != "Bearer env-key" {
		t.Errorf("Expected environment credential, got %v", auth.Load())
	}
}

func TestGenerateResponse_ProviderFailure(t *testing.T) {
	server := newChatServer(t, http.StatusInternalServerError, "")
	d := newTestDispatcher(t, map[string]config.LLMConfig{"groq": {BaseURL: server.URL}})

	_, err := d.GenerateResponse(context.Background(), Request{Provider: "groq", Payload: samplePayload, Credential: "key"})
	if !errors.Is(err, ErrProcessingFailed) {
		t.Fatalf("Expected ErrProcessingFailed, got: %v", err)
	}

	var perr *provider.Error
	if !errors.As(err, &perr) || perr.Provider != "groq" {
		t.Errorf("Expected provider error for groq, got: %v", err)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("Expected provider message in error, got: %v", err)
	}
}

func TestGenerateResponse_ProviderFailureUsesCanonicalID(t *testing.T) {
	server := newChatServer(t, http.StatusInternalServerError, "")
	d := newTestDispatcher(t, map[string]config.LLMConfig{"gpt": {BaseURL: server.URL}})

	for _, id := range []string{"gpt", "openai"} {
		_, err := d.GenerateResponse(context.Background(), Request{Provider: id, Payload: samplePayload, Credential: "key"})

		var perr *provider.Error
		if !errors.As(err, &perr) || perr.Provider != "gpt" {
			t.Errorf("Expected provider error attributed to gpt for %s, got: %v", id, err)
		}
		if !strings.Contains(err.Error(), "gpt: ") {
			t.Errorf("Expected gpt prefix in error for %s, got: %v", id, err)
		}
	}
}

func TestGenerateResponse_DefaultProvider(t *testing.T) {
	server := newChatServer(t, http.StatusOK, `{"a": 1}`)
	cfg := config.NewConfig("Claude", 5, map[string]config.LLMConfig{"claude": {BaseURL: server.URL, APIKey: "configured"}})
	cfg.RawLogPath = ""
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	resp, err := d.GenerateResponse(context.Background(), Request{Payload: samplePayload})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Provider != "claude" {
		t.Errorf("Expected default provider claude, got %s", resp.Provider)
	}
}

func TestGenerateResponse_WritesRawLog(t *testing.T) {
	server := newChatServer(t, http.StatusOK, "```json\n{\"a\": 1}\n```")
	logPath := filepath.Join(t.TempDir(), "logs", "llm_raw_output.log")

	cfg := config.NewConfig("gpt", 5, map[string]config.LLMConfig{"gpt": {BaseURL: server.URL}})
	cfg.RawLogPath = logPath
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := d.GenerateResponse(context.Background(), Request{Provider: "openai", Payload: samplePayload, Credential: "key"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected raw log to be written: %v", err)
	}
	if string(data) != "```json\n{\"a\": 1}\n```" {
		t.Errorf("Unexpected raw log contents %q", string(data))
	}
}

func TestGenerateResponse_KeyValueFallback(t *testing.T) {
	server := newChatServer(t, http.StatusOK, "/index.html => hot\n/login => 14")
	d := newTestDispatcher(t, map[string]config.LLMConfig{"claude": {BaseURL: server.URL}})

	req := Request{Provider: "claude", Payload: samplePayload, Credential: "key"}
	if _, err := d.GenerateResponse(context.Background(), req); !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("Expected ErrMalformedOutput without fallback, got: %v", err)
	}

	req.KeyValueFallback = true
	resp, err := d.GenerateResponse(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := map[string]any{"/index.html": "hot", "/login": json.Number("14")}
	if !reflect.DeepEqual(resp.Data, want) {
		t.Errorf("Expected %v, got %v", want, resp.Data)
	}
}

func TestGenerateResponse_TaskOverride(t *testing.T) {
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) > 0 {
			seen.Store(body.Messages[0].Content)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, map[string]config.LLMConfig{"claude": {BaseURL: server.URL}})
	_, err := d.GenerateResponse(context.Background(), Request{Provider: "claude", Payload: samplePayload, Credential: "key", Task: "List suspicious paths."})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, _ := seen.Load().(string)
	if !strings.HasPrefix(got, "List suspicious paths.\n\n") {
		t.Errorf("Expected task override in prompt, got %q", got)
	}
	if strings.Index(got, "/index.html: 120") > strings.Index(got, "/login: 14") {
		t.Error("Expected higher counts first in the prompt")
	}
}

func TestGenerateResponse_AdapterCreationFailure(t *testing.T) {
	originalNewAdapter := NewAdapter
	defer func() { NewAdapter = originalNewAdapter }()

	NewAdapter = func(providerID string, cfg config.Config, opts AdapterOptions) (Adapter, error) {
		return nil, errors.New("mock error creating adapter")
	}

	d := newTestDispatcher(t, nil)
	_, err := d.GenerateResponse(context.Background(), Request{Provider: "gemini", Payload: samplePayload})
	if !errors.Is(err, ErrProcessingFailed) {
		t.Fatalf("Expected ErrProcessingFailed, got: %v", err)
	}
	if !strings.Contains(err.Error(), "mock error creating adapter") {
		t.Errorf("Expected cause in error, got: %v", err)
	}
}

// mockAdapter implements Adapter for testing.
type mockAdapter struct {
	result provider.Result
	closed int
}

func (m *mockAdapter) Generate(ctx context.Context, payload prompt.Payload, credential string) provider.Result {
	return m.result
}
func (m *mockAdapter) ProviderName() string { return "mock" }
func (m *mockAdapter) Model() string        { return "mock-model" }
func (m *mockAdapter) Close() error {
	m.closed++
	return nil
}

func TestGenerateResponse_ClosesAdapter(t *testing.T) {
	originalNewAdapter := NewAdapter
	defer func() { NewAdapter = originalNewAdapter }()

	mock := &mockAdapter{result: provider.Result{Text: "```\n[1, 2, 3]\n```"}}
	NewAdapter = func(providerID string, cfg config.Config, opts AdapterOptions) (Adapter, error) {
		return mock, nil
	}

	d := newTestDispatcher(t, nil)
	resp, err := d.GenerateResponse(context.Background(), Request{Provider: "gemini", Payload: samplePayload})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if resp.Text != "[\n  1,\n  2,\n  3\n]" {
		t.Errorf("Unexpected text %q", resp.Text)
	}
	if resp.Provider != "gemini" || resp.Model != "mock-model" {
		t.Errorf("Unexpected provider/model %s/%s", resp.Provider, resp.Model)
	}
	if mock.closed != 1 {
		t.Errorf("Expected adapter to be closed once, got %d", mock.closed)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(config.NewConfig("foo", 5, nil)); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("Expected ErrUnsupportedProvider for unknown default, got: %v", err)
	}
	if _, err := New(config.NewConfig("gpt", -1, nil)); err == nil {
		t.Error("Expected negative timeout to be rejected")
	}
	if _, err := New(config.NewConfig("", 5, nil)); err != nil {
		t.Errorf("Expected empty default provider to be accepted, got: %v", err)
	}
}

func TestPackageGenerateResponse_Unsupported(t *testing.T) {
	_, err := GenerateResponse(context.Background(), Request{Provider: "foo", Payload: samplePayload})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("Expected ErrUnsupportedProvider, got: %v", err)
	}
}

package groq

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xostack/multillm/provider"
)

func TestNewClient_Success(t *testing.T) {
	client, err := NewClient(provider.ClientOptions{RequestTimeoutSeconds: 30})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if client.ProviderName() != "groq" {
		t.Errorf("Expected provider name 'groq', got '%s'", client.ProviderName())
	}
	if client.Model() != defaultGroqModel {
		t.Errorf("Expected default model '%s', got '%s'", defaultGroqModel, client.Model())
	}
	if client.Endpoint() != groqAPIEndpoint {
		t.Errorf("Expected endpoint '%s', got '%s'", groqAPIEndpoint, client.Endpoint())
	}
}

func TestNewClient_WithCustomModel(t *testing.T) {
	customModel := "mixtral-8x7b-32768"
	client, err := NewClient(provider.ClientOptions{Model: customModel})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if client.Model() != customModel {
		t.Errorf("Expected model '%s', got '%s'", customModel, client.Model())
	}
}

func TestGroqClient_Complete_MockServer_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-api-key" {
			t.Errorf("Expected Bearer token, got %s", r.Header.Get("Authorization"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"id": "chatcmpl-test",
			"object": "chat.completion",
			"created": 1234567890,
			"model": "gemma2-9b-it",
			"choices": [
				{
					"index": 0,
					"message": {
						"role": "assistant",
						"content": "Hello! This is a test response."
					},
					"finish_reason": "stop"
				}
			],
			"usage": {
				"prompt_tokens": 10,
				"completion_tokens": 8,
				"total_tokens": 18
			}
		}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(provider.ClientOptions{BaseURL: mockServer.URL})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := client.Complete(context.Background(), "test-api-key", "Hello, world!")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got != "Hello! This is a test response." {
		t.Errorf("Unexpected response %q", got)
	}
}

func TestGroqClient_Complete_APIError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Invalid API Key", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer mockServer.Close()

	client, err := NewClient(provider.ClientOptions{BaseURL: mockServer.URL})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err = client.Complete(context.Background(), "bad-key", "prompt")
	if err == nil {
		t.Fatal("Expected error for API error response")
	}
	if !strings.Contains(err.Error(), "Invalid API Key") || !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("Expected API error details, got: %v", err)
	}
}

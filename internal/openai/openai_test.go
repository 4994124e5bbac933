package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/artscan/internal/providers"
)

func TestExtractTextSendsImageAndSchema(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"artworkId\":\"starry-night\"}"}}]}`))
	}))
	defer server.Close()

	o := New(server.URL, "test-key")
	text, err := o.ExtractText(context.Background(), providers.Config{
		Model:     "gpt-4o",
		Prompt:    "which artwork?",
		Image:     []byte("jpegbytes"),
		MIMEType:  "image/jpeg",
		Structure: &providers.ResponseField{Name: "artworkId"},
	})
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if text != `{"artworkId":"starry-night"}` {
		t.Errorf("unexpected content %q", text)
	}

	format, ok := captured["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Errorf("Expected json_schema response format, got %v", captured["response_format"])
	}

	messages := captured["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	imagePart := content[1].(map[string]any)["image_url"].(map[string]any)
	if url, _ := imagePart["url"].(string); !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("Expected data URL, got %q", url)
	}
}

func TestExtractTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "non-200", status: http.StatusTooManyRequests, body: "slow down", wantErr: "429"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: "no choices"},
		{name: "bad json", status: http.StatusOK, body: `not json`, wantErr: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, "k").ExtractText(context.Background(), providers.Config{Prompt: "p"})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExtractTextRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("http://unused", "").ExtractText(context.Background(), providers.Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}

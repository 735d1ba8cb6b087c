package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/MarcusD9722/Nova/core"
)

func TestStopSequences(t *testing.T) {
	got := stopSequences([]string{"\n\n", "\n#", "```", " ", "Tool results:"})
	want := []string{"\n#", "```", "Tool results:"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("stopSequences = %q, want %q", got, want)
	}
	if stopSequences(nil) != nil {
		t.Error("nil input should give nil")
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
}

func TestGenerate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "test-model",
			"content": [{"type": "text", "text": "Hello"}, {"type": "text", "text": " there"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 3, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	g, err := New(Config{APIKey: "test", Model: "test-model", BaseURL: srv.URL + "/", MaxRetries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	text, err := g.Generate(context.Background(), "hi", core.GenerateOptions{MaxTokens: 64, Stop: []string{"\n\n", "```"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q", text)
	}
	if body["max_tokens"] != float64(64) || body["model"] != "test-model" {
		t.Errorf("request = %v", body)
	}
	if stops, _ := body["stop_sequences"].([]any); len(stops) != 1 || stops[0] != "```" {
		t.Errorf("stop_sequences = %v", body["stop_sequences"])
	}
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name          string
		raw           string
		wantDiagnosis int
		wantMedicines int
		wantNotes     bool
		wantErr       bool
	}{
		{
			name:          "bare object",
			raw:           `{"diagnosis":["Flu"],"medicines":[{"name":"Oseltamivir","dosage":"75mg","frequency":"2x daily","duration":"5 days"}],"notes":"Rest"}`,
			wantDiagnosis: 1,
			wantMedicines: 1,
			wantNotes:     true,
		},
		{
			name:          "wrapped in suggestions",
			raw:           `{"suggestions":{"diagnosis":["Migraine","Tension headache"],"medicines":[]}}`,
			wantDiagnosis: 2,
		},
		{
			name:          "code fence",
			raw:           "```json\n{\"diagnosis\":[],\"medicines\":[],\"notes\":\"  \"}\n```",
			wantDiagnosis: 0,
		},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "not json", raw: "I think it is a cold", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := parseSuggestions(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(set.Diagnosis) != tt.wantDiagnosis {
				t.Errorf("Expected %d diagnoses, got %d", tt.wantDiagnosis, len(set.Diagnosis))
			}
			if len(set.Medicines) != tt.wantMedicines {
				t.Errorf("Expected %d medicines, got %d", tt.wantMedicines, len(set.Medicines))
			}
			if (set.Notes != nil) != tt.wantNotes {
				t.Errorf("Expected notes present=%v, got %v", tt.wantNotes, set.Notes)
			}
		})
	}
}

func TestRemoteSuggester_Suggest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["transcript"] != "Fever and cough" {
			t.Errorf("Unexpected request body %v (%v)", body, err)
		}
		w.Write([]byte(`{"suggestions":{"diagnosis":["Bronchitis"],"medicines":[{"name":"Amoxicillin","dosage":"500mg","frequency":"3x daily","duration":"7 days"}]}}`))
	}))
	defer server.Close()

	suggester, err := NewRemoteSuggester(server.URL, 0, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create suggester: %v", err)
	}

	set, err := suggester.Suggest(context.Background(), "Fever and cough", "token-1")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(set.Diagnosis) != 1 || set.Medicines[0].Name != "Amoxicillin" {
		t.Errorf("Unexpected suggestions: %+v", set)
	}
}

func TestRemoteSuggester_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	suggester, _ := NewRemoteSuggester(server.URL, 0, zaptest.NewLogger(t))
	if _, err := suggester.Suggest(context.Background(), "text", "token"); err == nil {
		t.Error("Expected error for 503 response")
	}
	if _, err := NewRemoteSuggester("", 0, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when URL is not set")
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"missing key", GeminiConfig{}, true},
		{"bad temperature", GeminiConfig{APIKey: "k", Temperature: 1.5}, true},
		{"negative tokens", GeminiConfig{APIKey: "k", MaxOutputTokens: -1}, true},
		{"defaults", GeminiConfig{APIKey: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateGeminiConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewOpenAISuggester_RequiresKey(t *testing.T) {
	if _, err := NewOpenAISuggester("", "", zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when API key is not set")
	}
}

func TestMockSuggester(t *testing.T) {
	m := NewMockSuggester(zaptest.NewLogger(t))

	set, err := m.Suggest(context.Background(), "Patient has fever and a headache", "")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(set.Diagnosis) != 2 || len(set.Medicines) != 2 {
		t.Errorf("Unexpected suggestions: %+v", set)
	}
	if err := set.Validate(); err != nil {
		t.Errorf("Mock suggestions should be valid: %v", err)
	}

	empty, _ := m.Suggest(context.Background(), "Routine check", "")
	if empty.Notes == nil || len(empty.Diagnosis) != 0 {
		t.Errorf("Expected notes-only suggestions, got %+v", empty)
	}
}

// assertNoClinicalText fails when any log entry carries one of the given texts
func assertNoClinicalText(t *testing.T, logs *observer.ObservedLogs, texts ...string) {
	t.Helper()
	for _, entry := range logs.All() {
		line := entry.Message + " " + fmt.Sprint(entry.ContextMap())
		for _, text := range texts {
			if strings.Contains(line, text) {
				t.Errorf("Log entry %q leaks %q", entry.Message, text)
			}
		}
	}
}

func TestOpenAISuggester_DoesNotLogClinicalText(t *testing.T) {
	const transcript = "Patient Jane reports chest pain radiating to the left arm"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]string{
					"role":    "assistant",
					"content": `{"diagnosis":["Suspected angina"],"medicines":[],"notes":"Refer to cardiology"}`,
				},
			}},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	suggester := newOpenAISuggester(config, "", zap.New(core))

	set, err := suggester.Suggest(context.Background(), transcript, "")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(set.Diagnosis) != 1 || set.Diagnosis[0] != "Suspected angina" {
		t.Errorf("Unexpected suggestions: %+v", set)
	}
	if logs.Len() == 0 {
		t.Fatal("Expected the completion to be logged")
	}
	assertNoClinicalText(t, logs, "chest pain", "angina", "cardiology")
}

func TestMockSuggester_DoesNotLogClinicalText(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewMockSuggester(zap.New(core))

	if _, err := m.Suggest(context.Background(), "Patient has fever and a headache", ""); err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	assertNoClinicalText(t, logs, "fever", "headache")
}

package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

func TestNewGateway_RequiresURL(t *testing.T) {
	if _, err := NewGateway(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when URL is not set")
	}
}

func TestGateway_SubmitBill(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"rec-42"}`))
	}))
	defer server.Close()

	gateway, err := NewGateway(Config{URL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create gateway: %v", err)
	}

	transcript := "Headache since morning"
	id, err := gateway.SubmitBill(context.Background(), repositories.BillingSubmission{
		AppointmentID:   "appt-1",
		PatientID:       "patient-1",
		ConsultationFee: 500,
		ExtraFees:       []entities.BillingLineItem{{Description: "Lab test", Amount: 250}},
		TotalFee:        750,
		Transcript:      &transcript,
	}, "session-token")
	if err != nil {
		t.Fatalf("SubmitBill failed: %v", err)
	}
	if id != "rec-42" {
		t.Errorf("Expected record id rec-42, got %s", id)
	}

	if received["appointmentId"] != "appt-1" || received["totalFee"] != 750.0 {
		t.Errorf("Unexpected payload: %v", received)
	}
	if received["transcript"] != transcript {
		t.Errorf("Expected transcript in payload, got %v", received["transcript"])
	}
	if v, ok := received["aiSuggestions"]; !ok || v != nil {
		t.Errorf("Expected aiSuggestions to be null, got %v", v)
	}
	fees, ok := received["extraFees"].([]interface{})
	if !ok || len(fees) != 1 {
		t.Errorf("Unexpected extraFees: %v", received["extraFees"])
	}
}

func TestGateway_SubmitBillFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, `{"message":"database down"}`, "database down"},
		{"unauthorized", http.StatusUnauthorized, ``, "status 401"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway, _ := NewGateway(Config{URL: server.URL}, zaptest.NewLogger(t))
			_, err := gateway.SubmitBill(context.Background(), repositories.BillingSubmission{}, "token")
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGateway_SubmitBillAcceptedWithoutIdentifier(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"message only", `{"message":"Billing record created"}`},
		{"empty body", ``},
		{"plain text", `created`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway, _ := NewGateway(Config{URL: server.URL}, zaptest.NewLogger(t))
			id, err := gateway.SubmitBill(context.Background(), repositories.BillingSubmission{}, "token")
			if err != nil {
				t.Fatalf("Expected accepted bill, got %v", err)
			}
			if id != "" {
				t.Errorf("Expected empty record id, got %q", id)
			}
			if calls != 1 {
				t.Errorf("Expected one request, got %d", calls)
			}
		})
	}
}

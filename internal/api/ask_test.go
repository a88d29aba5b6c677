package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/nl2sql"
)

func TestAskEndpointReturnsAnswer(t *testing.T) {
	answerer := &fakeAnswerer{answer: assistant.Answer{
		Output:       []string{"[[3]]"},
		Query:        "SELECT COUNT(*) FROM products",
		FunctionCall: &nl2sql.FunctionCall{Name: "ask_database"},
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"how many products are there"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body askResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Question != "how many products are there" || body.Function != "ask_database" || body.Query != "SELECT COUNT(*) FROM products" {
		t.Fatalf("body = %#v", body)
	}
	if len(body.Output) != 1 || body.Output[0] != "[[3]]" {
		t.Fatalf("output = %#v", body.Output)
	}
}

func TestAskEndpointDirectReplyHasEmptyOutput(t *testing.T) {
	answerer := &fakeAnswerer{answer: assistant.Answer{Reply: "Hello!"}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"hi"}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"output":[]`) || !strings.Contains(rr.Body.String(), `"reply":"Hello!"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestAskEndpointValidatesRequest(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: &fakeAnswerer{}})
	tests := map[string]string{
		`{"question":`:               "INVALID_JSON",
		`{"question":"q","extra":1}`: "INVALID_JSON",
		`{"question":"   "}`:         "QUESTION_REQUIRED",
	}
	for payload, code := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(payload)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", payload, rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error_code"] != code {
			t.Fatalf("%s: error_code = %v, want %s", payload, body["error_code"], code)
		}
	}
}

func TestAskEndpointMapsCallError(t *testing.T) {
	answerer := &fakeAnswerer{err: &nl2sql.CallError{Attempts: 3, StatusCode: 500, Err: errors.New("overloaded")}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`)))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		ErrorCode string         `json:"error_code"`
		Retryable bool           `json:"retryable"`
		Context   map[string]any `json:"context"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ErrorCode != "MODEL_UNAVAILABLE" || !body.Retryable || body.Context["attempts"] != float64(3) {
		t.Fatalf("body = %#v", body)
	}
}

func TestAskEndpointWithoutAssistant(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/nl2sql"
)

func TestIndexRendersForm(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s / status = %d", method, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `name="input_value"`) {
			t.Fatalf("%s / missing form", method)
		}
		if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html") {
			t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
		}
	}
}

func TestFormRendersAnswer(t *testing.T) {
	answerer := &fakeAnswerer{answer: assistant.Answer{
		Output: []string{"[[3]]"},
		Query:  "SELECT COUNT(*) FROM products",
	}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"how many products are there"}}))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if answerer.question != "how many products are there" {
		t.Fatalf("question = %q", answerer.question)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`<p class="question">how many products are there</p>`,
		`<pre class="output">[[3]]</pre>`,
		`<pre class="query">SELECT COUNT(*) FROM products</pre>`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestFormWithoutInputValueSendsEmptyQuestion(t *testing.T) {
	answerer := &fakeAnswerer{}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !answerer.called || answerer.question != "" {
		t.Fatalf("called=%v question=%q", answerer.called, answerer.question)
	}
}

func TestFormMapsCallErrorToBadGateway(t *testing.T) {
	answerer := &fakeAnswerer{err: &nl2sql.CallError{Attempts: 3, StatusCode: 503, Err: errors.New("unavailable")}}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"q"}}))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `class="error"`) {
		t.Fatal("expected error banner")
	}
}

func TestFormMapsOtherErrorsToInternalServerError(t *testing.T) {
	answerer := &fakeAnswerer{err: nl2sql.ErrNoChoices}
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: answerer})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"q"}}))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}

	// the server keeps serving after a failed request
	answerer.err = nil
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"q"}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("status after failure = %d", rr.Code)
	}
}

func TestFormWithoutAssistant(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"q"}}))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestFormRecoversFromPanics(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{Assistant: panickingAnswerer{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, postForm(url.Values{"input_value": {"q"}}))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

type fakeAnswerer struct {
	answer   assistant.Answer
	err      error
	called   bool
	question string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) (assistant.Answer, error) {
	f.called = true
	f.question = question
	answer := f.answer
	answer.Question = question
	if answer.Output == nil {
		answer.Output = []string{}
	}
	return answer, f.err
}

type panickingAnswerer struct{}

func (panickingAnswerer) Answer(context.Context, string) (assistant.Answer, error) {
	panic("unexpected reply shape")
}

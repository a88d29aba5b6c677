package uistatic

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderEmptyForm(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, Page{}); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, `name="input_value"`) || !strings.Contains(html, `action="/form"`) {
		t.Fatalf("form missing from page: %s", html)
	}
	if strings.Contains(html, `class="answer"`) {
		t.Fatal("answer section rendered for empty page")
	}
}

func TestRenderEscapesQuestionAndOutput(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Page{
		Question:  `<script>alert("x")</script>`,
		Submitted: true,
		Output:    []string{`[["<b>lamp</b>"]]`},
		Query:     "SELECT name FROM products",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<script>alert") || strings.Contains(html, "<b>lamp</b>") {
		t.Fatalf("unescaped content: %s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Fatalf("question not rendered: %s", html)
	}
	if !strings.Contains(html, `<pre class="query">SELECT name FROM products</pre>`) {
		t.Fatalf("query not rendered: %s", html)
	}
}

func TestAssetsServesStylesheet(t *testing.T) {
	rr := httptest.NewRecorder()
	Assets().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Type"), "text/css") {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
}

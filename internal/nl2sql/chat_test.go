package nl2sql

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestFunctionCallDirectiveMarshal(t *testing.T) {
	tests := []struct {
		directive *FunctionCallDirective
		want      string
	}{
		{FunctionCallAuto(), `"auto"`},
		{FunctionCallNone(), `"none"`},
		{ForceFunction(AskDatabaseFunctionName), `{"name":"ask_database"}`},
	}
	for _, tc := range tests {
		got, err := json.Marshal(tc.directive)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		if string(got) != tc.want {
			t.Fatalf("Marshal() = %s, want %s", got, tc.want)
		}
	}
	if _, err := json.Marshal(&FunctionCallDirective{}); err == nil {
		t.Fatal("expected error for empty directive")
	}
}

func TestAskDatabaseFunctionIsDeterministic(t *testing.T) {
	schema := "Table: products\nColumns: id, name, price\nTable: orders\nColumns: id, product_id"
	first, err := json.Marshal(AskDatabaseFunction(schema))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	second, err := json.Marshal(AskDatabaseFunction(schema))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("definitions differ:\n%s\n%s", first, second)
	}
}

func TestAskDatabaseFunctionEmbedsSchema(t *testing.T) {
	schema := "Table: products\nColumns: id, name"
	def := AskDatabaseFunction(schema)
	if def.Name != "ask_database" {
		t.Fatalf("Name = %q", def.Name)
	}
	if !strings.Contains(def.Description, "READ_ONLY") {
		t.Fatalf("Description = %q", def.Description)
	}
	query, ok := def.Parameters.Properties["query"]
	if !ok || query.Type != "string" {
		t.Fatalf("query property = %#v", def.Parameters.Properties)
	}
	if !strings.Contains(query.Description, "\n"+schema+"\n") {
		t.Fatalf("schema not embedded verbatim: %q", query.Description)
	}
	if def.Parameters.Type != "object" || len(def.Parameters.Required) != 1 || def.Parameters.Required[0] != "query" {
		t.Fatalf("Parameters = %#v", def.Parameters)
	}
}

func TestFirstMessageWithoutChoices(t *testing.T) {
	if _, err := (ChatResponse{}).FirstMessage(); !errors.Is(err, ErrNoChoices) {
		t.Fatalf("FirstMessage() error = %v", err)
	}
}

func TestMessageOmitsEmptyFunctionFields(t *testing.T) {
	body, err := json.Marshal(Message{Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(body) != `{"role":"user","content":"hi"}` {
		t.Fatalf("Marshal() = %s", body)
	}
}

func TestCallErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&CallError{Attempts: 3, Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("expected CallError to unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "3 attempt(s)") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

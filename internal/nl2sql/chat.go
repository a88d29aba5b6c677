package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

var ErrNoChoices = errors.New("chat completion returned no choices")

// FunctionCall is the model's request to invoke a function. Arguments is a
// JSON-encoded object, kept as the raw string the model produced.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type FunctionParameters struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type FunctionDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  FunctionParameters `json:"parameters"`
}

// FunctionCallDirective is encoded as "auto"/"none" or as {"name": ...} when a
// specific function is forced.
type FunctionCallDirective struct {
	Mode string
	Name string
}

func FunctionCallAuto() *FunctionCallDirective { return &FunctionCallDirective{Mode: "auto"} }

func FunctionCallNone() *FunctionCallDirective { return &FunctionCallDirective{Mode: "none"} }

func ForceFunction(name string) *FunctionCallDirective {
	return &FunctionCallDirective{Name: name}
}

func (d FunctionCallDirective) MarshalJSON() ([]byte, error) {
	if d.Name != "" {
		return json.Marshal(struct {
			Name string `json:"name"`
		}{Name: d.Name})
	}
	if d.Mode == "" {
		return nil, fmt.Errorf("function call directive needs a mode or a name")
	}
	return json.Marshal(d.Mode)
}

type ChatRequest struct {
	Messages     []Message
	Functions    []FunctionDefinition
	FunctionCall *FunctionCallDirective
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type ChatResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

// FirstMessage returns the message of the first choice.
func (r ChatResponse) FirstMessage() (Message, error) {
	if len(r.Choices) == 0 {
		return Message{}, ErrNoChoices
	}
	return r.Choices[0].Message, nil
}

type Client interface {
	Send(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// CallError reports a chat request that never produced a successful response.
// StatusCode is zero when the last attempt failed before a response arrived.
type CallError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat completion failed after %d attempt(s) with status %d: %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat completion failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/schema"
)

// Catalog is built once at startup and shared read-only by every request.
type Catalog struct {
	Entries     []schema.Entry
	Description string
	Function    nl2sql.FunctionDefinition
}

func NewCatalog(entries []schema.Entry) Catalog {
	description := schema.Describe(entries)
	return Catalog{
		Entries:     entries,
		Description: description,
		Function:    nl2sql.AskDatabaseFunction(description),
	}
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string) query.Result
}

type Config struct {
	Chat     nl2sql.Client
	Executor QueryExecutor
	Catalog  Catalog
	// Engine names the database in the system prompt, e.g. "SQLite".
	Engine string
	Logger *slog.Logger
}

type Assistant struct {
	chat     nl2sql.Client
	executor QueryExecutor
	catalog  Catalog
	engine   string
	logger   *slog.Logger
}

// Answer is the outcome of one question. Output holds the content of every
// function-role message; it is empty when the model replied directly.
type Answer struct {
	Question     string
	Messages     []nl2sql.Message
	Output       []string
	FunctionCall *nl2sql.FunctionCall
	Query        string
	Reply        string
}

func New(cfg Config) (*Assistant, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat client is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("query executor is required")
	}
	engine := strings.TrimSpace(cfg.Engine)
	if engine == "" {
		engine = "SQLite"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Assistant{
		chat:     cfg.Chat,
		executor: cfg.Executor,
		catalog:  cfg.Catalog,
		engine:   engine,
		logger:   logger,
	}, nil
}

func (a *Assistant) Catalog() Catalog {
	return a.catalog
}

func (a *Assistant) SystemPrompt() string {
	return fmt.Sprintf("Answer user questions by generating SQL queries against the %s database.", a.engine)
}

// Answer sends one chat request for question and runs at most one function
// call from the reply. The function result is not sent back to the model.
func (a *Assistant) Answer(ctx context.Context, question string) (Answer, error) {
	answer := Answer{
		Question: question,
		Messages: []nl2sql.Message{
			{Role: nl2sql.RoleSystem, Content: a.SystemPrompt()},
			{Role: nl2sql.RoleUser, Content: question},
		},
		Output: []string{},
	}

	resp, err := a.chat.Send(ctx, nl2sql.ChatRequest{
		Messages:  answer.Messages,
		Functions: []nl2sql.FunctionDefinition{a.catalog.Function},
	})
	if err != nil {
		observability.ObserveAnswer("failed")
		return answer, fmt.Errorf("ask model: %w", err)
	}
	reply, err := resp.FirstMessage()
	if err != nil {
		observability.ObserveAnswer("failed")
		return answer, err
	}
	if reply.Role == "" {
		reply.Role = nl2sql.RoleAssistant
	}
	answer.Messages = append(answer.Messages, reply)

	if reply.FunctionCall == nil {
		answer.Reply = reply.Content
		observability.ObserveAnswer("direct_reply")
		return answer, nil
	}

	call := *reply.FunctionCall
	answer.FunctionCall = &call
	sqlText, content, err := a.ExecuteFunctionCall(ctx, call)
	if err != nil {
		observability.ObserveAnswer("failed")
		return answer, err
	}
	answer.Query = sqlText
	answer.Messages = append(answer.Messages, nl2sql.Message{
		Role:    nl2sql.RoleFunction,
		Name:    call.Name,
		Content: content,
	})
	answer.Output = functionOutputs(answer.Messages)
	observability.ObserveAnswer("function_call")
	return answer, nil
}

// ExecuteFunctionCall runs a model-requested function and returns the SQL it
// ran (if any) and the content of the function-role message. Unknown functions
// produce an error text without touching the database.
func (a *Assistant) ExecuteFunctionCall(ctx context.Context, call nl2sql.FunctionCall) (string, string, error) {
	if call.Name != nl2sql.AskDatabaseFunctionName {
		observability.ObserveFunctionCall("unknown_function")
		a.logger.WarnContext(ctx, "model requested unknown function",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("function", call.Name),
		)
		return "", fmt.Sprintf("Error: function %s does not exist", call.Name), nil
	}

	sqlText, err := queryArgument(call.Arguments)
	if err != nil {
		observability.ObserveFunctionCall("bad_arguments")
		return "", "", err
	}
	observability.ObserveFunctionCall("executed")
	result := a.executor.Execute(ctx, sqlText)
	return sqlText, result.Text(), nil
}

var ErrMissingQuery = errors.New("function arguments have no query")

func queryArgument(arguments string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("decode function arguments: %w", err)
	}
	raw, ok := args["query"]
	if !ok {
		return "", ErrMissingQuery
	}
	sqlText, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("function argument query is %T, want string", raw)
	}
	return sqlText, nil
}

func functionOutputs(messages []nl2sql.Message) []string {
	outputs := make([]string, 0, 1)
	for _, message := range messages {
		if message.Role == nl2sql.RoleFunction {
			outputs = append(outputs, message.Content)
		}
	}
	return outputs
}

package query

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/askdb/askdb/internal/observability"
)

// ErrorPrefix starts the text of every failed execution.
const ErrorPrefix = "query failed with error: "

// Result holds either the rows of a statement or the text of its failure.
type Result struct {
	Columns  []string
	Rows     [][]any
	Err      string
	Duration time.Duration
}

func (r Result) Failed() bool {
	return r.Err != ""
}

// Text renders rows as a JSON array of row arrays, or the failure text.
func (r Result) Text() string {
	if r.Failed() {
		return r.Err
	}
	rows := r.Rows
	if rows == nil {
		rows = [][]any{}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Sprint(rows)
	}
	return string(body)
}

// Executor runs model-produced SQL as given. Read-only intent is only asked
// of the model, not enforced here.
type Executor struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutor(db *sql.DB, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Executor{db: db, logger: logger}
}

// Execute never returns an error value: every failure is reported in Result.Err.
func (e *Executor) Execute(ctx context.Context, sqlText string) (result Result) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{Err: fmt.Sprintf("%s%v", ErrorPrefix, recovered)}
		}
		result.Duration = time.Since(start)
		observability.ObserveQueryExecution(result.Failed(), result.Duration)
		e.logger.DebugContext(ctx, "query executed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("sql", sqlText),
			slog.Int("rows", len(result.Rows)),
			slog.Bool("failed", result.Failed()),
			slog.String("duration", result.Duration.String()),
		)
	}()

	if e.db == nil {
		return failed(fmt.Errorf("database is not configured"))
	}
	columns, rows, err := e.run(ctx, sqlText)
	if err != nil {
		return failed(err)
	}
	return Result{Columns: columns, Rows: rows}
}

func (e *Executor) run(ctx context.Context, sqlText string) ([]string, [][]any, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	typeNames := columnTypeNames(rows, len(columns))

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, err
		}
		resultRows = append(resultRows, normalizeValues(values, typeNames))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, resultRows, nil
}

func failed(err error) Result {
	return Result{Err: ErrorPrefix + err.Error()}
}

// columnTypeNames reports the engine type of each column, or "" when the
// driver does not say.
func columnTypeNames(rows *sql.Rows, n int) []string {
	names := make([]string, n)
	types, err := rows.ColumnTypes()
	if err != nil {
		return names
	}
	for i, columnType := range types {
		if i < n {
			names[i] = strings.ToUpper(columnType.DatabaseTypeName())
		}
	}
	return names
}

func normalizeValues(values []any, typeNames []string) []any {
	for i, value := range values {
		typeName := ""
		if i < len(typeNames) {
			typeName = typeNames[i]
		}
		values[i] = normalizeValue(value, typeName)
	}
	return values
}

// normalizeValue makes driver values readable as JSON. Values with their own
// JSON form are kept and other Stringers (DuckDB decimals) are rendered as text.
// Bytes that are not UTF-8 are hex-encoded with a 0x prefix.
func normalizeValue(value any, typeName string) any {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		if typeName == "UUID" && len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		if utf8.Valid(v) {
			return string(v)
		}
		return "0x" + hex.EncodeToString(v)
	case string:
		return v
	case time.Time:
		if typeName == "DATE" {
			return v.Format(time.DateOnly)
		}
		return v
	case json.Marshaler:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return value
	}
}

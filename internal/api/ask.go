package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string   `json:"question"`
	Output   []string `json:"output"`
	Query    string   `json:"query,omitempty"`
	Function string   `json:"function,omitempty"`
	Reply    string   `json:"reply,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tables":      deps.Catalog.Entries,
		"description": deps.Catalog.Description,
	})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	var req askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	answer, err := deps.Assistant.Answer(r.Context(), req.Question)
	if err != nil {
		deps.Logger.ErrorContext(r.Context(), "answer failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("principal", auth.PrincipalFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		var callErr *nl2sql.CallError
		if errors.As(err, &callErr) {
			writeError(r.Context(), w, http.StatusBadGateway, "MODEL_UNAVAILABLE", "language model request failed", true, map[string]any{
				"attempts":    callErr.Attempts,
				"status_code": callErr.StatusCode,
				"details":     err.Error(),
			})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ANSWER_FAILED", "failed to answer question", false, map[string]any{"details": err.Error()})
		return
	}

	response := askResponse{
		Question: answer.Question,
		Output:   answer.Output,
		Query:    answer.Query,
		Reply:    answer.Reply,
	}
	if response.Output == nil {
		response.Output = []string{}
	}
	if answer.FunctionCall != nil {
		response.Function = answer.FunctionCall.Name
	}
	writeJSON(w, http.StatusOK, response)
}

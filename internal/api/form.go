package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
)

const maxFormBytes = 64 << 10

func handleIndex(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	writePage(deps, w, r, http.StatusOK, uistatic.Page{})
}

// handleForm answers the question in input_value. A missing field is an
// empty question and goes to the model as is.
func handleForm(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writePage(deps, w, r, http.StatusNotImplemented, uistatic.Page{Error: "Question answering is not configured."})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writePage(deps, w, r, http.StatusBadRequest, uistatic.Page{Error: "The form could not be read."})
		return
	}
	question := r.PostForm.Get("input_value")

	answer, err := deps.Assistant.Answer(r.Context(), question)
	page := uistatic.Page{
		Question:  question,
		Submitted: true,
		Output:    answer.Output,
		Query:     answer.Query,
		Reply:     answer.Reply,
	}
	if err != nil {
		status, message := answerFailure(err)
		deps.Logger.ErrorContext(r.Context(), "answer failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		page.Error = message
		writePage(deps, w, r, status, page)
		return
	}
	writePage(deps, w, r, http.StatusOK, page)
}

func answerFailure(err error) (int, string) {
	var callErr *nl2sql.CallError
	if errors.As(err, &callErr) {
		return http.StatusBadGateway, "The language model could not be reached. Please try again."
	}
	return http.StatusInternalServerError, "The language model reply could not be processed."
}

func writePage(deps Dependencies, w http.ResponseWriter, r *http.Request, status int, page uistatic.Page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := uistatic.Render(w, page); err != nil {
		deps.Logger.ErrorContext(r.Context(), "render page failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}

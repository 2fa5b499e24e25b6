package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/grantwatch/internal/runlog"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TriggerRequest is the optional body of a manual trigger.
type TriggerRequest struct {
	Limit *int `json:"limit" validate:"omitempty,min=1,max=500"`
}

// TriggerResponse is the data of a successful trigger.
type TriggerResponse struct {
	Job string `json:"job"`
	runlog.Summary
}

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, envelope{Error: &errorBody{Code: code, Message: msg}})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"status": "ok",
		"jobs":   s.runner.Names(),
	}})
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if !s.runner.Has(job) {
		writeError(w, http.StatusNotFound, CodeNotFound, "Unknown job: "+job)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = "limit must be between 1 and 500"
		}
		writeError(w, http.StatusBadRequest, CodeValidation, msg)
		return
	}

	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
	}

	ctx := runlog.WithTrigger(r.Context(), "http")
	sum, err := s.runner.Run(ctx, job, limit)
	if err != nil {
		zap.L().Error("server: job failed", zap.String("job", job), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, envelope{
			Data:  TriggerResponse{Job: job, Summary: sum},
			Error: &errorBody{Code: CodeInternal, Message: err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: TriggerResponse{Job: job, Summary: sum}})
}

// Package server exposes the HTTP batch trigger endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
)

const maxTriggerBodyLen = 4096

// Processor is the slice of the pipeline the trigger drives.
type Processor interface {
	ProcessNext(ctx context.Context) (*domain.MessageBatch, error)
	ProcessBatch(ctx context.Context, id string) (*domain.MessageBatch, error)
}

type triggerRequest struct {
	BatchID string `json:"batch_id"`
}

type triggerResponse struct {
	Message string `json:"message,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// TriggerHandler serves POST /v1/process: with an empty body it processes
// the oldest pending batch, with {"batch_id": ...} it processes that batch.
type TriggerHandler struct {
	proc   Processor
	logger *zerolog.Logger
}

func NewTriggerHandler(proc Processor, logger *zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{proc: proc, logger: logger}
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, triggerResponse{Error: "method not allowed"})

		return
	}

	req, err := decodeTrigger(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, triggerResponse{Error: "invalid request body", Details: err.Error()})

		return
	}

	var batch *domain.MessageBatch

	if req.BatchID != "" {
		batch, err = h.proc.ProcessBatch(r.Context(), req.BatchID)
	} else {
		batch, err = h.proc.ProcessNext(r.Context())
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, triggerResponse{Message: "batch processed", BatchID: batch.ID})
	case errors.Is(err, errs.ErrNoPendingBatch):
		writeJSON(w, http.StatusOK, triggerResponse{Message: "no pending batches"})
	case errors.Is(err, errs.ErrBatchClaimed):
		// Another processor won the claim; report a clean no-op.
		writeJSON(w, http.StatusOK, triggerResponse{Message: "batch already being processed", BatchID: batch.ID})
	case errors.Is(err, errs.ErrBatchNotFound):
		writeJSON(w, http.StatusNotFound, triggerResponse{Error: "batch not found", Details: err.Error()})
	case errors.Is(err, errs.ErrBatchNotPending):
		writeJSON(w, http.StatusConflict, triggerResponse{Error: "batch is not pending", Details: err.Error()})
	default:
		h.logger.Error().Err(err).Msg("trigger processing failed")
		writeJSON(w, http.StatusInternalServerError, triggerResponse{Error: "batch processing failed", Details: err.Error()})
	}
}

func decodeTrigger(r *http.Request) (*triggerRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTriggerBodyLen))
	if err != nil {
		return nil, err
	}

	req := &triggerRequest{}
	if len(body) == 0 {
		return req, nil
	}

	if err := json.Unmarshal(body, req); err != nil {
		return nil, err
	}

	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, resp triggerResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

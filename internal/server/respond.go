package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"agriconnect/pkg/types"
)

type errorResponse struct {
	Error      string            `json:"error"`
	Submission *types.Submission `json:"submission,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func required(v string) bool {
	return strings.TrimSpace(v) != ""
}

func (s *Service) internalServerError(w http.ResponseWriter) {
	s.writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeWorkflowError maps a workflow error onto a status code. current is
// the record returned alongside ErrAlreadyFinalized so the caller can
// refresh its view.
func (s *Service) writeWorkflowError(w http.ResponseWriter, err error, current *types.Submission) {
	switch {
	case errors.Is(err, types.ErrInvalidImage), errors.Is(err, types.ErrInvalidSubmission):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrForbidden):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrSubmissionNotFound), errors.Is(err, types.ErrImageNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrAlreadyFinalized):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Submission: current})
	case errors.Is(err, types.ErrNoDraft):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrStorage):
		s.writeError(w, http.StatusInsufficientStorage, "could not store submission, try again")
	default:
		s.internalServerError(w)
	}
}

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"agriconnect/internal/mrv"
	"agriconnect/internal/report"
	"agriconnect/internal/vision"
	"agriconnect/pkg/types"

	"github.com/alexedwards/flow"
)

type analyzeResponse struct {
	Crop        types.CropLabel    `json:"crop"`
	Health      types.HealthLabel  `json:"health"`
	Confidence  float64            `json:"confidence"`
	Diagnostics map[string]float64 `json:"diagnostics"`
	Scores      []vision.Score     `json:"scores"`
}

type submitForm struct {
	Notes string `form:"notes"`
}

func (s *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	actor := actorFromContext(ctx)

	if r.ContentLength > s.config.MaxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image larger than %d bytes", s.config.MaxUploadBytes))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image larger than %d bytes", s.config.MaxUploadBytes))
			return
		}
		s.writeError(w, http.StatusBadRequest, "expected a multipart form with an image field")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.WithError(err).Error("failed to read uploaded image")
		s.internalServerError(w)
		return
	}

	draft, err := s.mrv.Analyze(ctx, actor, data)
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	s.writeJSON(w, http.StatusOK, newAnalyzeResponse(draft))
}

// handleGetAnalysis shows the analysis still waiting to be submitted.
func (s *Service) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	draft, ok := s.mrv.Draft(actorFromContext(r.Context()))
	if !ok {
		s.writeWorkflowError(w, types.ErrNoDraft, nil)
		return
	}

	s.writeJSON(w, http.StatusOK, newAnalyzeResponse(draft))
}

func newAnalyzeResponse(draft *mrv.Draft) analyzeResponse {
	return analyzeResponse{
		Crop:        draft.Result.Crop,
		Health:      draft.Result.Health,
		Confidence:  draft.Result.Confidence,
		Diagnostics: draft.Result.Features.Diagnostics(),
		Scores:      draft.Result.Scores,
	}
}

func (s *Service) handlePostSubmission(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	var input submitForm
	if err := decoder.Decode(&input, r.PostForm); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid form payload")
		return
	}

	sub, err := s.mrv.Submit(ctx, actorFromContext(ctx), input.Notes)
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	w.Header().Set("Location", "/submissions/"+sub.ID)
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Service) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	actor := actorFromContext(ctx)

	var filter types.SubmissionFilter
	if err := decoder.Decode(&filter, r.URL.Query()); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid query")
		return
	}

	// Officials land on the verification queue unless they ask for more.
	switch {
	case filter.Status == "all":
		filter.Status = ""
	case actor.IsOfficial() && filter.Status == "" && filter.FarmerID == "":
		filter.Status = types.SubmissionStatusPending
	}

	subs, err := s.mrv.List(ctx, actor, filter)
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	s.writeJSON(w, http.StatusOK, subs)
}

func (s *Service) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	sub, err := s.mrv.Get(ctx, actorFromContext(ctx), flow.Param(ctx, "id"))
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Service) handleGetSubmissionImage(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	data, sub, err := s.mrv.Image(ctx, actorFromContext(ctx), flow.Param(ctx, "id"))
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, sub.ImageReference, sub.Timestamp, bytes.NewReader(data))
}

func (s *Service) handleVerifySubmission(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	sub, err := s.mrv.Verify(ctx, actorFromContext(ctx), flow.Param(ctx, "id"))
	if err != nil {
		s.writeWorkflowError(w, err, sub)
		return
	}

	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Service) handleRejectSubmission(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()

	sub, err := s.mrv.Reject(ctx, actorFromContext(ctx), flow.Param(ctx, "id"))
	if err != nil {
		s.writeWorkflowError(w, err, sub)
		return
	}

	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Service) handleVerifiedReport(w http.ResponseWriter, r *http.Request) {
	var ctx = r.Context()
	actor := actorFromContext(ctx)

	if !actor.IsOfficial() {
		s.writeWorkflowError(w, types.ErrForbidden, nil)
		return
	}

	subs, err := s.mrv.List(ctx, actor, types.SubmissionFilter{Status: types.SubmissionStatusVerified})
	if err != nil {
		s.writeWorkflowError(w, err, nil)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteVerified(&buf, subs); err != nil {
		s.logger.WithError(err).Error("failed to build verified report")
		s.internalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="verified-records.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Package mrv runs the farmer-submits / official-verifies workflow on top of
// the classifier, a submission store and an image store.
package mrv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agriconnect/internal/storage"
	"agriconnect/internal/utils"
	"agriconnect/internal/vision"
	"agriconnect/pkg/types"

	"github.com/sirupsen/logrus"
)

// Store is the submission persistence the workflow needs. It is satisfied
// by every repository in internal/store.
type Store interface {
	CreateSubmission(ctx context.Context, sub *types.Submission) error
	Submission(ctx context.Context, submissionID string) (*types.Submission, error)
	SubmissionsByFarmer(ctx context.Context, farmerID string) ([]*types.Submission, error)
	SubmissionsByStatus(ctx context.Context, status types.SubmissionStatus) ([]*types.Submission, error)
	AllSubmissions(ctx context.Context) ([]*types.Submission, error)
	TransitionSubmission(ctx context.Context, submissionID string, status types.SubmissionStatus, verifier string, at time.Time) (*types.Submission, error)
}

type Service struct {
	store  Store
	images storage.ImageStore
	logger logrus.FieldLogger
	drafts *draftBook
	now    func() time.Time
}

func New(store Store, images storage.ImageStore, logger logrus.FieldLogger) *Service {
	return &Service{
		store:  store,
		images: images,
		logger: logger,
		drafts: newDraftBook(),
		now:    time.Now,
	}
}

// timestamp is the current time as it is persisted: UTC, microsecond
// precision, so every backend stores it without loss.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func requireFarmer(actor types.Actor) error {
	if !actor.IsFarmer() || strings.TrimSpace(actor.ID) == "" {
		return fmt.Errorf("%w: farmers only", types.ErrForbidden)
	}
	return nil
}

func requireOfficial(actor types.Actor) error {
	if !actor.IsOfficial() || strings.TrimSpace(actor.Name) == "" {
		return fmt.Errorf("%w: officials only", types.ErrForbidden)
	}
	return nil
}

// Analyze classifies a photo and keeps it as the farmer's draft, replacing
// any earlier one. A photo that cannot be decoded leaves the previous draft
// in place.
func (s *Service) Analyze(ctx context.Context, actor types.Actor, data []byte) (*Draft, error) {
	if err := requireFarmer(actor); err != nil {
		return nil, err
	}

	result, format, err := vision.Analyze(data)
	if err != nil {
		return nil, err
	}

	draft := &Draft{
		Result:     result,
		Format:     format,
		AnalyzedAt: s.timestamp(),
		data:       append([]byte(nil), data...),
	}
	s.drafts.put(actor.ID, draft)

	s.logger.WithFields(logrus.Fields{
		"farmer_id":  actor.ID,
		"crop":       result.Crop,
		"health":     result.Health,
		"confidence": result.Confidence,
	}).Debug("photo analyzed")

	return draft, nil
}

// Draft returns the farmer's analysed photo awaiting submission.
func (s *Service) Draft(actor types.Actor) (*Draft, bool) {
	return s.drafts.peek(actor.ID)
}

// DiscardDraft forgets the actor's draft, as on sign out.
func (s *Service) DiscardDraft(actor types.Actor) {
	s.drafts.drop(actor.ID)
}

// Submit binds the farmer's draft photo to a new Pending submission. The
// image is stored first; if the record cannot be created the blob is
// removed again and the draft is kept for another attempt.
func (s *Service) Submit(ctx context.Context, actor types.Actor, notes string) (*types.Submission, error) {
	if err := requireFarmer(actor); err != nil {
		return nil, err
	}

	draft, ok := s.drafts.take(actor.ID)
	if !ok {
		return nil, types.ErrNoDraft
	}

	sub, err := s.submit(ctx, actor, draft, notes)
	if err != nil {
		s.drafts.restore(actor.ID, draft)
		return nil, err
	}

	return sub, nil
}

// SubmitPhoto analyses and submits a photo in one step, bypassing the draft
// book. The CLI and the seeder use it.
func (s *Service) SubmitPhoto(ctx context.Context, actor types.Actor, data []byte, notes string) (*types.Submission, error) {
	if err := requireFarmer(actor); err != nil {
		return nil, err
	}

	result, format, err := vision.Analyze(data)
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, actor, &Draft{Result: result, Format: format, AnalyzedAt: s.timestamp(), data: data}, notes)
}

func (s *Service) submit(ctx context.Context, actor types.Actor, draft *Draft, notes string) (*types.Submission, error) {
	ref, err := s.images.Put(ctx, draft.data, storage.ExtForFormat(draft.Format))
	if err != nil {
		s.logger.WithError(err).WithField("farmer_id", actor.ID).Error("failed to store submission image")
		return nil, err
	}

	sub := &types.Submission{
		ID:             utils.SubmissionID(),
		FarmerID:       actor.ID,
		FarmerName:     actor.Name,
		State:          actor.State,
		Timestamp:      s.timestamp(),
		ImageReference: ref,
		DetectedCrop:   draft.Result.Crop,
		DetectedHealth: draft.Result.Health,
		Confidence:     draft.Result.Confidence,
		Notes:          types.NormalizeNotes(notes),
		Status:         types.SubmissionStatusPending,
	}

	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		entry := s.logger.WithError(err).WithFields(logrus.Fields{
			"submission_id":   sub.ID,
			"image_reference": ref,
		})
		if errors.Is(err, types.ErrDuplicateID) {
			entry.Error("submission id collided with an existing record")
		} else {
			entry.Error("failed to create submission")
		}

		if derr := s.images.Delete(ctx, ref); derr != nil {
			entry.WithField("delete_error", derr.Error()).Warn("failed to remove image of unsaved submission")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"farmer_id":     sub.FarmerID,
		"crop":          sub.DetectedCrop,
	}).Info("submission created")

	return sub, nil
}

// List returns submissions newest first. Farmers only ever see their own
// records; officials may narrow by farmer and status.
func (s *Service) List(ctx context.Context, actor types.Actor, filter types.SubmissionFilter) ([]*types.Submission, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", types.ErrInvalidSubmission, filter.Status)
	}

	switch {
	case actor.IsFarmer():
		if actor.ID == "" {
			return nil, types.ErrForbidden
		}
		filter.FarmerID = actor.ID
	case actor.IsOfficial():
	default:
		return nil, types.ErrForbidden
	}

	var (
		subs []*types.Submission
		err  error
	)
	switch {
	case filter.FarmerID != "":
		subs, err = s.store.SubmissionsByFarmer(ctx, filter.FarmerID)
	case filter.Status != "":
		return s.store.SubmissionsByStatus(ctx, filter.Status)
	default:
		subs, err = s.store.AllSubmissions(ctx)
	}
	if err != nil {
		return nil, err
	}

	if filter.Status == "" {
		return subs, nil
	}

	out := make([]*types.Submission, 0, len(subs))
	for _, sub := range subs {
		if sub.Status == filter.Status {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Get returns one submission to its owner or to an official.
func (s *Service) Get(ctx context.Context, actor types.Actor, submissionID string) (*types.Submission, error) {
	sub, err := s.store.Submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if actor.IsOfficial() || (actor.IsFarmer() && actor.ID != "" && actor.ID == sub.FarmerID) {
		return sub, nil
	}

	return nil, types.ErrForbidden
}

// Image returns the photo bound to a submission.
func (s *Service) Image(ctx context.Context, actor types.Actor, submissionID string) ([]byte, *types.Submission, error) {
	sub, err := s.Get(ctx, actor, submissionID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.images.Get(ctx, sub.ImageReference)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"submission_id":   sub.ID,
			"image_reference": sub.ImageReference,
		}).Error("submission image unavailable")
		return nil, sub, err
	}

	return data, sub, nil
}

func (s *Service) Verify(ctx context.Context, actor types.Actor, submissionID string) (*types.Submission, error) {
	return s.decide(ctx, actor, submissionID, types.SubmissionStatusVerified)
}

func (s *Service) Reject(ctx context.Context, actor types.Actor, submissionID string) (*types.Submission, error) {
	return s.decide(ctx, actor, submissionID, types.SubmissionStatusRejected)
}

// decide records an official's verdict. When another official got there
// first the current record comes back with types.ErrAlreadyFinalized so the
// caller can show what actually happened.
func (s *Service) decide(ctx context.Context, actor types.Actor, submissionID string, status types.SubmissionStatus) (*types.Submission, error) {
	if err := requireOfficial(actor); err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"official":      actor.Name,
		"status":        status,
	})

	sub, err := s.store.TransitionSubmission(ctx, submissionID, status, actor.Name, s.timestamp())
	switch {
	case err == nil:
		entry.Info("submission finalized")
		return sub, nil
	case errors.Is(err, types.ErrAlreadyFinalized):
		if sub != nil {
			entry = entry.WithField("current_status", sub.Status)
		}
		entry.Info("submission was already finalized")
		return sub, err
	case errors.Is(err, types.ErrSubmissionNotFound):
		return nil, err
	default:
		entry.WithError(err).Error("failed to finalize submission")
		return nil, err
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agriconnect/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubmissionRow is the gorm model of a submission in the embedded database.
type SubmissionRow struct {
	SubmissionID    string     `gorm:"column:submission_id;primaryKey"`
	FarmerID        string     `gorm:"column:farmer_id;not null;index:idx_submissions_farmer"`
	FarmerName      string     `gorm:"column:farmer_name;not null"`
	State           string     `gorm:"column:state"`
	Timestamp       time.Time  `gorm:"column:timestamp;not null;index"`
	ImageReference  string     `gorm:"column:image_reference;not null"`
	DetectedCrop    string     `gorm:"column:detected_crop;not null"`
	DetectedHealth  string     `gorm:"column:detected_health;not null"`
	Confidence      float64    `gorm:"column:confidence;not null"`
	Notes           string     `gorm:"column:notes"`
	Status          string     `gorm:"column:status;not null;index:idx_submissions_status"`
	Verifier        *string    `gorm:"column:verifier"`
	VerifyTimestamp *time.Time `gorm:"column:verify_timestamp"`
}

func (SubmissionRow) TableName() string {
	return "submissions"
}

func rowFromSubmission(s *types.Submission) *SubmissionRow {
	c := s.Clone()
	return &SubmissionRow{
		SubmissionID:    c.ID,
		FarmerID:        c.FarmerID,
		FarmerName:      c.FarmerName,
		State:           c.State,
		Timestamp:       c.Timestamp.UTC(),
		ImageReference:  c.ImageReference,
		DetectedCrop:    string(c.DetectedCrop),
		DetectedHealth:  string(c.DetectedHealth),
		Confidence:      c.Confidence,
		Notes:           c.Notes,
		Status:          string(c.Status),
		Verifier:        c.VerifiedBy,
		VerifyTimestamp: c.VerifiedAt,
	}
}

func (r *SubmissionRow) submission() *types.Submission {
	return normalize(&types.Submission{
		ID:             r.SubmissionID,
		FarmerID:       r.FarmerID,
		FarmerName:     r.FarmerName,
		State:          r.State,
		Timestamp:      r.Timestamp,
		ImageReference: r.ImageReference,
		DetectedCrop:   types.CropLabel(r.DetectedCrop),
		DetectedHealth: types.HealthLabel(r.DetectedHealth),
		Confidence:     r.Confidence,
		Notes:          r.Notes,
		Status:         types.SubmissionStatus(r.Status),
		VerifiedBy:     r.Verifier,
		VerifiedAt:     r.VerifyTimestamp,
	})
}

// SQLiteRepository stores submissions through gorm. The handle is expected
// to come from db.OpenSQLite, which limits it to a single connection so
// writers are serialised by the driver.
type SQLiteRepository struct {
	db *gorm.DB
}

func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Submission(ctx context.Context, submissionID string) (*types.Submission, error) {
	var row SubmissionRow
	err := r.db.WithContext(ctx).Where("submission_id = ?", submissionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch submission %s: %w", submissionID, err)
	}

	return row.submission(), nil
}

func (r *SQLiteRepository) SubmissionsByFarmer(ctx context.Context, farmerID string) ([]*types.Submission, error) {
	return r.list(r.db.WithContext(ctx).Where("farmer_id = ?", farmerID))
}

func (r *SQLiteRepository) SubmissionsByStatus(ctx context.Context, status types.SubmissionStatus) ([]*types.Submission, error) {
	return r.list(r.db.WithContext(ctx).Where("status = ?", string(status)))
}

func (r *SQLiteRepository) AllSubmissions(ctx context.Context) ([]*types.Submission, error) {
	return r.list(r.db.WithContext(ctx))
}

func (r *SQLiteRepository) list(q *gorm.DB) ([]*types.Submission, error) {
	var rows []SubmissionRow
	if err := q.Order("timestamp desc, submission_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := make([]*types.Submission, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].submission())
	}

	// sqlite compares timestamps as text, so settle the order in Go.
	sortNewestFirst(out)
	return out, nil
}

func (r *SQLiteRepository) CreateSubmission(ctx context.Context, sub *types.Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rowFromSubmission(sub))
	if res.Error != nil {
		return fmt.Errorf("%w: create submission: %v", types.ErrStorage, res.Error)
	}

	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", types.ErrDuplicateID, sub.ID)
	}

	return nil
}

// TransitionSubmission moves a Pending submission to status. When the
// submission has already left Pending the stored record is returned together
// with types.ErrAlreadyFinalized.
func (r *SQLiteRepository) TransitionSubmission(ctx context.Context, submissionID string, status types.SubmissionStatus, verifier string, at time.Time) (*types.Submission, error) {
	if err := checkTransition(status, verifier, at); err != nil {
		return nil, err
	}

	res := r.db.WithContext(ctx).Model(&SubmissionRow{}).
		Where("submission_id = ? AND status = ?", submissionID, string(types.SubmissionStatusPending)).
		Updates(map[string]any{
			"status":           string(status),
			"verifier":         verifier,
			"verify_timestamp": at.UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: transition submission: %v", types.ErrStorage, res.Error)
	}

	current, err := r.Submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return current, alreadyFinalized(current)
	}

	return current, nil
}

package types

import (
	"fmt"
	"strings"
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusPending  SubmissionStatus = "Pending"
	SubmissionStatusVerified SubmissionStatus = "Verified"
	SubmissionStatusRejected SubmissionStatus = "Rejected"
)

func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusVerified, SubmissionStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusVerified || s == SubmissionStatusRejected
}

func ParseSubmissionStatus(v string) (SubmissionStatus, error) {
	s := SubmissionStatus(strings.TrimSpace(v))
	if !s.Valid() {
		return "", fmt.Errorf("unknown submission status %q", v)
	}
	return s, nil
}

type CropLabel string

const (
	CropWheat     CropLabel = "Wheat"
	CropRice      CropLabel = "Rice"
	CropMillet    CropLabel = "Millet"
	CropMaize     CropLabel = "Maize"
	CropSugarcane CropLabel = "Sugarcane"
	CropUnknown   CropLabel = "Unknown"
)

var CropLabels = []CropLabel{CropWheat, CropRice, CropMillet, CropMaize, CropSugarcane, CropUnknown}

func (c CropLabel) Valid() bool {
	for _, l := range CropLabels {
		if c == l {
			return true
		}
	}
	return false
}

type HealthLabel string

const (
	HealthHealthy  HealthLabel = "Healthy"
	HealthStressed HealthLabel = "Stressed / Possible Disease"
	HealthPest     HealthLabel = "Possible Pest / Disease"
)

func (h HealthLabel) Valid() bool {
	return h == HealthHealthy || h == HealthStressed || h == HealthPest
}

const (
	MinConfidence = 0.35
	MaxConfidence = 0.99
)

// Submission is one farmer observation. Everything except Status, VerifiedBy
// and VerifiedAt is fixed when the record is created.
type Submission struct {
	ID             string           `db:"submission_id" json:"submissionId"`
	FarmerID       string           `db:"farmer_id" json:"farmerId"`
	FarmerName     string           `db:"farmer_name" json:"farmerName"`
	State          string           `db:"state" json:"state"`
	Timestamp      time.Time        `db:"timestamp" json:"timestamp"`
	ImageReference string           `db:"image_reference" json:"imageReference"`
	DetectedCrop   CropLabel        `db:"detected_crop" json:"detectedCrop"`
	DetectedHealth HealthLabel      `db:"detected_health" json:"detectedHealth"`
	Confidence     float64          `db:"confidence" json:"confidence"`
	Notes          string           `db:"notes" json:"notes"`
	Status         SubmissionStatus `db:"status" json:"status"`
	VerifiedBy     *string          `db:"verifier" json:"verifier,omitempty"`
	VerifiedAt     *time.Time       `db:"verify_timestamp" json:"verifyTimestamp,omitempty"`
}

// Validate checks the record invariants that must hold before it is persisted.
// NormalizeNotes trims notes and turns CRLF line breaks into LF.
func NormalizeNotes(notes string) string {
	return strings.TrimSpace(strings.ReplaceAll(notes, "\r\n", "\n"))
}

func (s *Submission) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return fmt.Errorf("%w: submission id is required", ErrInvalidSubmission)
	case strings.TrimSpace(s.FarmerID) == "":
		return fmt.Errorf("%w: farmer id is required", ErrInvalidSubmission)
	case strings.TrimSpace(s.ImageReference) == "":
		return fmt.Errorf("%w: image reference is required", ErrInvalidSubmission)
	case s.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidSubmission)
	case !s.DetectedCrop.Valid():
		return fmt.Errorf("%w: unknown crop label %q", ErrInvalidSubmission, s.DetectedCrop)
	case !s.DetectedHealth.Valid():
		return fmt.Errorf("%w: unknown health label %q", ErrInvalidSubmission, s.DetectedHealth)
	case s.Confidence < MinConfidence || s.Confidence > MaxConfidence:
		return fmt.Errorf("%w: confidence %v outside [%v, %v]", ErrInvalidSubmission, s.Confidence, MinConfidence, MaxConfidence)
	case !s.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSubmission, s.Status)
	}

	verified := s.VerifiedBy != nil || s.VerifiedAt != nil
	if s.Status == SubmissionStatusPending && verified {
		return fmt.Errorf("%w: pending submission carries verifier fields", ErrInvalidSubmission)
	}
	if s.Status.Terminal() && (s.VerifiedBy == nil || s.VerifiedAt == nil) {
		return fmt.Errorf("%w: %s submission is missing verifier fields", ErrInvalidSubmission, s.Status)
	}

	return nil
}

// Clone returns a deep copy so callers never share pointer fields with a store.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	if s.VerifiedBy != nil {
		v := *s.VerifiedBy
		out.VerifiedBy = &v
	}
	if s.VerifiedAt != nil {
		v := *s.VerifiedAt
		out.VerifiedAt = &v
	}
	return &out
}

// SubmissionFilter narrows a listing. Empty fields match everything.
type SubmissionFilter struct {
	FarmerID string           `form:"farmer_id"`
	Status   SubmissionStatus `form:"status"`
}

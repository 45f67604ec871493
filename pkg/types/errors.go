package types

import "errors"

var (
	ErrInvalidImage       = errors.New("invalid image")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrDuplicateID        = errors.New("duplicate submission id")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyFinalized   = errors.New("submission already finalized")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorage            = errors.New("storage failure")
	ErrImageNotFound      = errors.New("image not found")
	ErrNoDraft            = errors.New("no analyzed image awaiting submission")
	ErrForbidden          = errors.New("action not permitted for this user")
)

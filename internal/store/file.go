package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"
)

// FileHeader is the column layout of the submissions table on disk. It must
// not be reordered: existing files are rejected if their header differs.
var FileHeader = utils.StructTagValues(types.Submission{})

const fileTimeLayout = time.RFC3339Nano

// FileRepository keeps every submission in memory and mirrors the whole set
// to a CSV file. Each write produces a complete new file that replaces the
// old one by rename, and memory is only updated once that rename succeeded,
// so a failed or interrupted write is never visible to readers.
type FileRepository struct {
	path string

	mu      sync.RWMutex
	records map[string]*types.Submission
	order   []string
}

// OpenFileRepository loads path, creating it with just the header when it
// does not exist yet.
func OpenFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	r := &FileRepository{
		path:    path,
		records: make(map[string]*types.Submission),
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := r.write(nil, nil); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open submissions file: %w", err)
	}
	defer f.Close()

	if err := r.load(f); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return r, nil
}

func (r *FileRepository) load(src io.Reader) error {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = len(FileHeader)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	if !slices.Equal(head, FileHeader) {
		return fmt.Errorf("unexpected header %v", head)
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		sub, err := decodeRow(row)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		if _, ok := r.records[sub.ID]; ok {
			return fmt.Errorf("line %d: %w: %s", line, types.ErrDuplicateID, sub.ID)
		}

		r.records[sub.ID] = sub
		r.order = append(r.order, sub.ID)
	}
}

func (r *FileRepository) Submission(_ context.Context, submissionID string) (*types.Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.records[submissionID]
	if !ok {
		return nil, types.ErrSubmissionNotFound
	}

	return sub.Clone(), nil
}

func (r *FileRepository) SubmissionsByFarmer(_ context.Context, farmerID string) ([]*types.Submission, error) {
	return r.filter(func(s *types.Submission) bool { return s.FarmerID == farmerID }), nil
}

func (r *FileRepository) SubmissionsByStatus(_ context.Context, status types.SubmissionStatus) ([]*types.Submission, error) {
	return r.filter(func(s *types.Submission) bool { return s.Status == status }), nil
}

func (r *FileRepository) AllSubmissions(_ context.Context) ([]*types.Submission, error) {
	return r.filter(func(*types.Submission) bool { return true }), nil
}

func (r *FileRepository) filter(keep func(*types.Submission) bool) []*types.Submission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Submission, 0)
	for _, id := range r.order {
		if sub := r.records[id]; keep(sub) {
			out = append(out, sub.Clone())
		}
	}

	sortNewestFirst(out)
	return out
}

func (r *FileRepository) CreateSubmission(_ context.Context, sub *types.Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[sub.ID]; ok {
		return fmt.Errorf("%w: %s", types.ErrDuplicateID, sub.ID)
	}

	stored := normalize(sub.Clone())
	// csv.Reader folds CRLF inside quoted fields to LF.
	stored.Notes = strings.ReplaceAll(stored.Notes, "\r\n", "\n")
	order := append(slices.Clip(r.order), stored.ID)
	if err := r.write(order, stored); err != nil {
		return err
	}

	r.records[stored.ID] = stored
	r.order = order

	return nil
}

// TransitionSubmission moves a Pending submission to status. When the
// submission has already left Pending the stored record is returned together
// with types.ErrAlreadyFinalized.
func (r *FileRepository) TransitionSubmission(_ context.Context, submissionID string, status types.SubmissionStatus, verifier string, at time.Time) (*types.Submission, error) {
	if err := checkTransition(status, verifier, at); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.records[submissionID]
	if !ok {
		return nil, types.ErrSubmissionNotFound
	}

	if cur.Status != types.SubmissionStatusPending {
		return cur.Clone(), alreadyFinalized(cur)
	}

	next := cur.Clone()
	next.Status = status
	next.VerifiedBy = utils.StringPtr(verifier)
	next.VerifiedAt = utils.TimePtr(at.UTC())

	if err := r.write(r.order, next); err != nil {
		return nil, err
	}

	r.records[next.ID] = next

	return next.Clone(), nil
}

// write serialises order to a temporary file next to r.path, syncs it and
// renames it into place. override, when set, replaces the in-memory record
// with the same id. Callers hold r.mu.
func (r *FileRepository) write(order []string, override *types.Submission) error {
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", types.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(FileHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write header: %v", types.ErrStorage, err)
	}

	for _, id := range order {
		sub := r.records[id]
		if override != nil && override.ID == id {
			sub = override
		}
		if err := cw.Write(encodeRow(sub)); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: write row %s: %v", types.ErrStorage, id, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush submissions: %v", types.ErrStorage, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync submissions: %v", types.ErrStorage, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close submissions: %v", types.ErrStorage, err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("%w: replace submissions file: %v", types.ErrStorage, err)
	}

	syncDir(filepath.Dir(r.path))
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on a directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func encodeRow(s *types.Submission) []string {
	verifiedAt := ""
	if s.VerifiedAt != nil {
		verifiedAt = s.VerifiedAt.UTC().Format(fileTimeLayout)
	}

	return []string{
		s.ID,
		s.FarmerID,
		s.FarmerName,
		s.State,
		s.Timestamp.UTC().Format(fileTimeLayout),
		s.ImageReference,
		string(s.DetectedCrop),
		string(s.DetectedHealth),
		strconv.FormatFloat(s.Confidence, 'g', -1, 64),
		s.Notes,
		string(s.Status),
		utils.PtrString(s.VerifiedBy),
		verifiedAt,
	}
}

func decodeRow(row []string) (*types.Submission, error) {
	ts, err := time.Parse(fileTimeLayout, row[4])
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	confidence, err := strconv.ParseFloat(row[8], 64)
	if err != nil {
		return nil, fmt.Errorf("parse confidence: %w", err)
	}

	status, err := types.ParseSubmissionStatus(row[10])
	if err != nil {
		return nil, err
	}

	sub := &types.Submission{
		ID:             row[0],
		FarmerID:       row[1],
		FarmerName:     row[2],
		State:          row[3],
		Timestamp:      ts.UTC(),
		ImageReference: row[5],
		DetectedCrop:   types.CropLabel(row[6]),
		DetectedHealth: types.HealthLabel(row[7]),
		Confidence:     confidence,
		Notes:          row[9],
		Status:         status,
	}

	if row[11] != "" {
		sub.VerifiedBy = utils.StringPtr(row[11])
	}

	if row[12] != "" {
		at, err := time.Parse(fileTimeLayout, row[12])
		if err != nil {
			return nil, fmt.Errorf("parse verify timestamp: %w", err)
		}
		sub.VerifiedAt = utils.TimePtr(at.UTC())
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}

	return sub, nil
}

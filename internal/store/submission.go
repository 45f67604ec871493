package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

const submissionTableName = "agriconnect.submissions"

// Column names are quoted because "timestamp" and "state" collide with SQL keywords.
var submissionColumns = quoteColumns(utils.StructTagValues(types.Submission{}))

func quoteColumns(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quote(c)
	}
	return out
}

func quote(col string) string {
	return `"` + col + `"`
}

// SubmissionRepository keeps submissions in Postgres. Status changes are a
// single conditional UPDATE, so racing officials are arbitrated by the row lock.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

func (r *SubmissionRepository) Submission(ctx context.Context, submissionID string) (*types.Submission, error) {

	query, args, err := psql().Select(submissionColumns...).From(submissionTableName).
		Where(sq.Eq{quote("submission_id"): submissionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate submission query: %w", err)
	}

	var sub = new(types.Submission)
	err = pgxscan.Get(ctx, r.pool, sub, query, args...)
	if err != nil && !pgxscan.NotFound(err) {
		return nil, err
	}

	if err != nil {
		return nil, types.ErrSubmissionNotFound
	}

	return normalize(sub), nil
}

func (r *SubmissionRepository) SubmissionsByFarmer(ctx context.Context, farmerID string) ([]*types.Submission, error) {
	return r.selectWhere(ctx, sq.Eq{quote("farmer_id"): farmerID})
}

func (r *SubmissionRepository) SubmissionsByStatus(ctx context.Context, status types.SubmissionStatus) ([]*types.Submission, error) {
	return r.selectWhere(ctx, sq.Eq{quote("status"): status})
}

func (r *SubmissionRepository) AllSubmissions(ctx context.Context) ([]*types.Submission, error) {
	return r.selectWhere(ctx, nil)
}

func (r *SubmissionRepository) selectWhere(ctx context.Context, pred sq.Sqlizer) ([]*types.Submission, error) {

	builder := psql().Select(submissionColumns...).From(submissionTableName)
	if pred != nil {
		builder = builder.Where(pred)
	}

	query, args, err := builder.
		OrderBy(quote("timestamp")+" DESC", quote("submission_id")+" ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate submissions query: %w", err)
	}

	var subs = make([]*types.Submission, 0)
	err = pgxscan.Select(ctx, r.pool, &subs, query, args...)
	if err != nil {
		return nil, utils.ErrorWrapOrNil(err, "failed to fetch submissions")
	}

	for _, sub := range subs {
		normalize(sub)
	}

	return subs, nil
}

func (r *SubmissionRepository) CreateSubmission(ctx context.Context, sub *types.Submission) error {

	if err := sub.Validate(); err != nil {
		return err
	}

	subMap := make(map[string]any)
	for col, v := range utils.StructToMap(sub) {
		subMap[quote(col)] = v
	}

	query, args, err := psql().Insert(submissionTableName).SetMap(subMap).
		Suffix("ON CONFLICT (" + quote("submission_id") + ") DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to generate insert submission query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to create submission: %v", types.ErrStorage, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", types.ErrDuplicateID, sub.ID)
	}

	return nil
}

// TransitionSubmission moves a Pending submission to status. When the
// submission has already left Pending the stored record is returned together
// with types.ErrAlreadyFinalized.
func (r *SubmissionRepository) TransitionSubmission(ctx context.Context, submissionID string, status types.SubmissionStatus, verifier string, at time.Time) (*types.Submission, error) {

	if err := checkTransition(status, verifier, at); err != nil {
		return nil, err
	}

	query, args, err := psql().Update(submissionTableName).
		SetMap(map[string]any{
			quote("status"):           status,
			quote("verifier"):         verifier,
			quote("verify_timestamp"): at,
		}).
		Where(sq.Eq{
			quote("submission_id"): submissionID,
			quote("status"):        types.SubmissionStatusPending,
		}).
		Suffix("RETURNING " + strings.Join(submissionColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transition query for submission %s: %w", submissionID, err)
	}

	var sub = new(types.Submission)
	err = pgxscan.Get(ctx, r.pool, sub, query, args...)
	if err == nil {
		return normalize(sub), nil
	}

	if !pgxscan.NotFound(err) {
		return nil, fmt.Errorf("%w: failed to transition submission: %v", types.ErrStorage, err)
	}

	current, err := r.Submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	return current, alreadyFinalized(current)
}

func alreadyFinalized(sub *types.Submission) error {
	return fmt.Errorf("%w: %s is %s", types.ErrAlreadyFinalized, sub.ID, sub.Status)
}

// normalize puts timestamps in UTC so records compare equal whichever
// backend produced them.
func normalize(sub *types.Submission) *types.Submission {
	sub.Timestamp = sub.Timestamp.UTC()
	if sub.VerifiedAt != nil {
		at := sub.VerifiedAt.UTC()
		sub.VerifiedAt = &at
	}
	return sub
}

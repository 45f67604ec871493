package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"agriconnect/pkg/types"

	sq "github.com/Masterminds/squirrel"
)

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// checkTransition validates the requested target of a status change. Only
// the two terminal states can be requested, and they need a verifier.
func checkTransition(status types.SubmissionStatus, verifier string, at time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: cannot move a submission to %q", types.ErrInvalidTransition, status)
	}

	if strings.TrimSpace(verifier) == "" {
		return fmt.Errorf("%w: verifier is required", types.ErrInvalidTransition)
	}

	if at.IsZero() {
		return fmt.Errorf("%w: verify timestamp is required", types.ErrInvalidTransition)
	}

	return nil
}

// sortNewestFirst orders by creation time descending, then by id so equal
// timestamps still list deterministically.
func sortNewestFirst(subs []*types.Submission) {
	sort.SliceStable(subs, func(i, j int) bool {
		if !subs[i].Timestamp.Equal(subs[j].Timestamp) {
			return subs[i].Timestamp.After(subs[j].Timestamp)
		}
		return subs[i].ID < subs[j].ID
	})
}

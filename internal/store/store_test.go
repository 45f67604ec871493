package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agriconnect/internal/db"
	"agriconnect/internal/utils"
	"agriconnect/pkg/types"

	"github.com/sirupsen/logrus"
)

type submissions interface {
	CreateSubmission(ctx context.Context, sub *types.Submission) error
	Submission(ctx context.Context, submissionID string) (*types.Submission, error)
	SubmissionsByFarmer(ctx context.Context, farmerID string) ([]*types.Submission, error)
	SubmissionsByStatus(ctx context.Context, status types.SubmissionStatus) ([]*types.Submission, error)
	AllSubmissions(ctx context.Context) ([]*types.Submission, error)
	TransitionSubmission(ctx context.Context, submissionID string, status types.SubmissionStatus, verifier string, at time.Time) (*types.Submission, error)
}

var (
	_ submissions = (*FileRepository)(nil)
	_ submissions = (*SQLiteRepository)(nil)
	_ submissions = (*SubmissionRepository)(nil)
)

var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 123456000, time.UTC)

func newSubmission(farmerID string, offset time.Duration) *types.Submission {
	return &types.Submission{
		ID:             utils.SubmissionID(),
		FarmerID:       farmerID,
		FarmerName:     "Asha, \"field 4\"",
		State:          "Karnataka",
		Timestamp:      baseTime.Add(offset),
		ImageReference: utils.BlobName(".jpg"),
		DetectedCrop:   types.CropMaize,
		DetectedHealth: types.HealthStressed,
		Confidence:     0.87,
		Notes:          "east plot\nleaves yellowing",
		Status:         types.SubmissionStatusPending,
	}
}

func sameSubmission(a, b *types.Submission) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	if (a.VerifiedAt == nil) != (b.VerifiedAt == nil) || (a.VerifiedAt != nil && !a.VerifiedAt.Equal(*b.VerifiedAt)) {
		return false
	}
	if utils.PtrString(a.VerifiedBy) != utils.PtrString(b.VerifiedBy) || (a.VerifiedBy == nil) != (b.VerifiedBy == nil) {
		return false
	}
	x, y := *a, *b
	x.Timestamp, y.Timestamp = time.Time{}, time.Time{}
	x.VerifiedAt, y.VerifiedAt = nil, nil
	x.VerifiedBy, y.VerifiedBy = nil, nil
	return x == y
}

func setupFileRepository(t *testing.T) (*FileRepository, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "submissions.csv")
	repo, err := OpenFileRepository(path)
	if err != nil {
		t.Fatalf("OpenFileRepository() error = %v", err)
	}
	return repo, path
}

func setupSQLiteRepository(t *testing.T, path string) *SQLiteRepository {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	gdb, err := db.OpenSQLite(path, logger, &SubmissionRow{})
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return NewSQLiteRepository(gdb)
}

// backends returns a fresh instance of every store the tests run against.
func backends(t *testing.T) map[string]func(t *testing.T) submissions {
	t.Helper()

	out := map[string]func(t *testing.T) submissions{
		"file": func(t *testing.T) submissions {
			repo, _ := setupFileRepository(t)
			return repo
		},
		"sqlite": func(t *testing.T) submissions {
			return setupSQLiteRepository(t, filepath.Join(t.TempDir(), "agriconnect.db"))
		},
	}

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		out["postgres"] = func(t *testing.T) submissions {
			ctx := context.Background()
			pool, err := db.Connect(ctx, &types.Config{DatabaseURL: url})
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			t.Cleanup(pool.Close)
			if err := db.Migrate(ctx, pool); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			return NewSubmissionRepository(pool)
		}
	}

	return out
}

func TestSubmissionsCreateAndRead(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			farmer := "F-" + utils.NanoIDSize(8)

			older := newSubmission(farmer, 0)
			newer := newSubmission(farmer, time.Hour)
			other := newSubmission("F-"+utils.NanoIDSize(8), 2*time.Hour)

			for _, s := range []*types.Submission{older, newer, other} {
				if err := repo.CreateSubmission(ctx, s); err != nil {
					t.Fatalf("CreateSubmission() error = %v", err)
				}
			}

			got, err := repo.Submission(ctx, older.ID)
			if err != nil {
				t.Fatalf("Submission() error = %v", err)
			}
			if !sameSubmission(got, older) {
				t.Fatalf("Submission() = %+v, want %+v", got, older)
			}

			mine, err := repo.SubmissionsByFarmer(ctx, farmer)
			if err != nil {
				t.Fatalf("SubmissionsByFarmer() error = %v", err)
			}
			if len(mine) != 2 || mine[0].ID != newer.ID || mine[1].ID != older.ID {
				t.Fatalf("SubmissionsByFarmer() = %v, want newest first", ids(mine))
			}

			pending, err := repo.SubmissionsByStatus(ctx, types.SubmissionStatusPending)
			if err != nil {
				t.Fatalf("SubmissionsByStatus() error = %v", err)
			}
			if !containsAll(pending, older.ID, newer.ID, other.ID) {
				t.Fatalf("SubmissionsByStatus(Pending) = %v", ids(pending))
			}

			if _, err := repo.Submission(ctx, "missing"); !errors.Is(err, types.ErrSubmissionNotFound) {
				t.Fatalf("Submission(missing) error = %v, want ErrSubmissionNotFound", err)
			}
		})
	}
}

func TestSubmissionsRejectDuplicateID(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			first := newSubmission("F-dup", 0)
			if err := repo.CreateSubmission(ctx, first); err != nil {
				t.Fatalf("CreateSubmission() error = %v", err)
			}

			second := newSubmission("F-other", time.Minute)
			second.ID = first.ID
			if err := repo.CreateSubmission(ctx, second); !errors.Is(err, types.ErrDuplicateID) {
				t.Fatalf("CreateSubmission(dup) error = %v, want ErrDuplicateID", err)
			}

			got, err := repo.Submission(ctx, first.ID)
			if err != nil {
				t.Fatalf("Submission() error = %v", err)
			}
			if got.FarmerID != "F-dup" {
				t.Fatalf("duplicate create overwrote record: %+v", got)
			}
		})
	}
}

func TestSubmissionsRejectInvalidRecord(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)

			bad := newSubmission("F-bad", 0)
			bad.ImageReference = ""
			if err := repo.CreateSubmission(context.Background(), bad); !errors.Is(err, types.ErrInvalidSubmission) {
				t.Fatalf("CreateSubmission() error = %v, want ErrInvalidSubmission", err)
			}
		})
	}
}

func TestSubmissionsTransitionOnce(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			sub := newSubmission("F-once", 0)
			if err := repo.CreateSubmission(ctx, sub); err != nil {
				t.Fatalf("CreateSubmission() error = %v", err)
			}

			at := baseTime.Add(24 * time.Hour)
			got, err := repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusVerified, "Officer One", at)
			if err != nil {
				t.Fatalf("TransitionSubmission() error = %v", err)
			}
			if got.Status != types.SubmissionStatusVerified || utils.PtrString(got.VerifiedBy) != "Officer One" || !utils.PtrTime(got.VerifiedAt).Equal(at) {
				t.Fatalf("TransitionSubmission() = %+v", got)
			}

			later := at.Add(time.Hour)
			cur, err := repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusRejected, "Officer Two", later)
			if !errors.Is(err, types.ErrAlreadyFinalized) {
				t.Fatalf("second TransitionSubmission() error = %v, want ErrAlreadyFinalized", err)
			}
			if cur == nil || cur.Status != types.SubmissionStatusVerified {
				t.Fatalf("second TransitionSubmission() current = %+v", cur)
			}

			_, err = repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusVerified, "Officer Two", later)
			if !errors.Is(err, types.ErrAlreadyFinalized) {
				t.Fatalf("repeated TransitionSubmission() error = %v, want ErrAlreadyFinalized", err)
			}

			stored, err := repo.Submission(ctx, sub.ID)
			if err != nil {
				t.Fatalf("Submission() error = %v", err)
			}
			if stored.Status != types.SubmissionStatusVerified || utils.PtrString(stored.VerifiedBy) != "Officer One" || !utils.PtrTime(stored.VerifiedAt).Equal(at) {
				t.Fatalf("terminal record changed: %+v", stored)
			}

			verified, err := repo.SubmissionsByStatus(ctx, types.SubmissionStatusVerified)
			if err != nil {
				t.Fatalf("SubmissionsByStatus() error = %v", err)
			}
			if !containsAll(verified, sub.ID) {
				t.Fatalf("SubmissionsByStatus(Verified) = %v", ids(verified))
			}
		})
	}
}

func TestSubmissionsTransitionErrors(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			_, err := repo.TransitionSubmission(ctx, "missing", types.SubmissionStatusRejected, "Officer", baseTime)
			if !errors.Is(err, types.ErrSubmissionNotFound) {
				t.Fatalf("TransitionSubmission(missing) error = %v, want ErrSubmissionNotFound", err)
			}

			sub := newSubmission("F-err", 0)
			if err := repo.CreateSubmission(ctx, sub); err != nil {
				t.Fatalf("CreateSubmission() error = %v", err)
			}

			_, err = repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusPending, "Officer", baseTime)
			if !errors.Is(err, types.ErrInvalidTransition) {
				t.Fatalf("TransitionSubmission(Pending) error = %v, want ErrInvalidTransition", err)
			}

			_, err = repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusVerified, " ", baseTime)
			if !errors.Is(err, types.ErrInvalidTransition) {
				t.Fatalf("TransitionSubmission(no verifier) error = %v, want ErrInvalidTransition", err)
			}

			stored, err := repo.Submission(ctx, sub.ID)
			if err != nil {
				t.Fatalf("Submission() error = %v", err)
			}
			if stored.Status != types.SubmissionStatusPending || stored.VerifiedBy != nil || stored.VerifiedAt != nil {
				t.Fatalf("rejected transitions changed the record: %+v", stored)
			}
		})
	}
}

func TestSubmissionsRacingTransitions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			sub := newSubmission("F-race", 0)
			if err := repo.CreateSubmission(ctx, sub); err != nil {
				t.Fatalf("CreateSubmission() error = %v", err)
			}

			const officials = 8
			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make([]error, officials)
			)
			for i := range officials {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					status := types.SubmissionStatusVerified
					if i%2 == 1 {
						status = types.SubmissionStatusRejected
					}
					<-start
					_, results[i] = repo.TransitionSubmission(ctx, sub.ID, status, fmt.Sprintf("Officer %d", i), baseTime.Add(time.Duration(i)*time.Second))
				}(i)
			}
			close(start)
			wg.Wait()

			winner := -1
			for i, err := range results {
				switch {
				case err == nil:
					if winner != -1 {
						t.Fatalf("officials %d and %d both won", winner, i)
					}
					winner = i
				case errors.Is(err, types.ErrAlreadyFinalized):
				default:
					t.Fatalf("official %d error = %v", i, err)
				}
			}
			if winner == -1 {
				t.Fatalf("no transition succeeded")
			}

			stored, err := repo.Submission(ctx, sub.ID)
			if err != nil {
				t.Fatalf("Submission() error = %v", err)
			}
			wantStatus := types.SubmissionStatusVerified
			if winner%2 == 1 {
				wantStatus = types.SubmissionStatusRejected
			}
			if stored.Status != wantStatus || utils.PtrString(stored.VerifiedBy) != fmt.Sprintf("Officer %d", winner) {
				t.Fatalf("stored = %+v, want status %s by official %d", stored, wantStatus, winner)
			}
		})
	}
}

func TestSubmissionsConcurrentCreates(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			farmer := "F-" + utils.NanoIDSize(8)

			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- repo.CreateSubmission(ctx, newSubmission(farmer, time.Duration(i)*time.Minute))
				}(i)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				if err != nil {
					t.Fatalf("CreateSubmission() error = %v", err)
				}
			}

			mine, err := repo.SubmissionsByFarmer(ctx, farmer)
			if err != nil {
				t.Fatalf("SubmissionsByFarmer() error = %v", err)
			}
			if len(mine) != n {
				t.Fatalf("SubmissionsByFarmer() returned %d records, want %d", len(mine), n)
			}
		})
	}
}

func TestFileRepositoryReload(t *testing.T) {
	repo, path := setupFileRepository(t)
	ctx := context.Background()

	var written []*types.Submission
	for i := range 5 {
		s := newSubmission(fmt.Sprintf("F-%d", i%2), time.Duration(i)*time.Minute)
		switch i {
		case 3:
			s.Notes = ""
			s.State = ""
		case 4:
			s.Notes = "leaf spots\r\nnear the canal"
		}
		if err := repo.CreateSubmission(ctx, s); err != nil {
			t.Fatalf("CreateSubmission() error = %v", err)
		}

		stored, err := repo.Submission(ctx, s.ID)
		if err != nil {
			t.Fatalf("Submission() error = %v", err)
		}
		written = append(written, stored)
	}

	if got := written[4].Notes; got != "leaf spots\nnear the canal" {
		t.Fatalf("stored Notes = %q, want LF line endings", got)
	}

	verified, err := repo.TransitionSubmission(ctx, written[1].ID, types.SubmissionStatusVerified, "Officer, Senior", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("TransitionSubmission() error = %v", err)
	}
	written[1] = verified

	reloaded, err := OpenFileRepository(path)
	if err != nil {
		t.Fatalf("OpenFileRepository(reload) error = %v", err)
	}

	all, err := reloaded.AllSubmissions(ctx)
	if err != nil {
		t.Fatalf("AllSubmissions() error = %v", err)
	}
	if len(all) != len(written) {
		t.Fatalf("reload returned %d records, want %d", len(all), len(written))
	}

	for _, w := range written {
		got, err := reloaded.Submission(ctx, w.ID)
		if err != nil {
			t.Fatalf("Submission(%s) error = %v", w.ID, err)
		}
		if !sameSubmission(got, w) {
			t.Fatalf("reloaded %+v, want %+v", got, w)
		}
	}
}

func TestFileRepositoryFailedWriteLeavesStateUnchanged(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	repo, err := OpenFileRepository(filepath.Join(dir, "submissions.csv"))
	if err != nil {
		t.Fatalf("OpenFileRepository() error = %v", err)
	}
	ctx := context.Background()

	kept := newSubmission("F-keep", 0)
	if err := repo.CreateSubmission(ctx, kept); err != nil {
		t.Fatalf("CreateSubmission() error = %v", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}

	lost := newSubmission("F-keep", time.Minute)
	if err := repo.CreateSubmission(ctx, lost); !errors.Is(err, types.ErrStorage) {
		t.Fatalf("CreateSubmission() error = %v, want ErrStorage", err)
	}
	if _, err := repo.Submission(ctx, lost.ID); !errors.Is(err, types.ErrSubmissionNotFound) {
		t.Fatalf("failed create is visible: %v", err)
	}

	if _, err := repo.TransitionSubmission(ctx, kept.ID, types.SubmissionStatusVerified, "Officer", baseTime); !errors.Is(err, types.ErrStorage) {
		t.Fatalf("TransitionSubmission() error = %v, want ErrStorage", err)
	}
	got, err := repo.Submission(ctx, kept.ID)
	if err != nil {
		t.Fatalf("Submission() error = %v", err)
	}
	if got.Status != types.SubmissionStatusPending || got.VerifiedBy != nil {
		t.Fatalf("failed transition is visible: %+v", got)
	}
}

func TestFileRepositoryRejectsForeignHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "submissions.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := OpenFileRepository(path); err == nil {
		t.Fatalf("OpenFileRepository() expected error for unknown header")
	}
}

func TestSQLiteRepositoryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agriconnect.db")
	repo := setupSQLiteRepository(t, path)
	ctx := context.Background()

	sub := newSubmission("F-sqlite", 0)
	if err := repo.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission() error = %v", err)
	}
	rejected, err := repo.TransitionSubmission(ctx, sub.ID, types.SubmissionStatusRejected, "Officer", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("TransitionSubmission() error = %v", err)
	}

	reopened := setupSQLiteRepository(t, path)
	got, err := reopened.Submission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Submission() error = %v", err)
	}
	if !sameSubmission(got, rejected) {
		t.Fatalf("reopened %+v, want %+v", got, rejected)
	}
}

func ids(subs []*types.Submission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func containsAll(subs []*types.Submission, want ...string) bool {
	have := make(map[string]bool, len(subs))
	for _, s := range subs {
		have[s.ID] = true
	}
	for _, id := range want {
		if !have[id] {
			return false
		}
	}
	return true
}

package mrv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agriconnect/internal/storage"
	"agriconnect/internal/store"
	"agriconnect/pkg/types"

	"github.com/sirupsen/logrus"
)

var clock = time.Date(2026, 6, 1, 8, 0, 0, 123456789, time.FixedZone("IST", 5*3600+1800))

var (
	farmer   = types.Actor{Role: types.RoleFarmer, Name: "Asha", ID: types.ActorID(types.RoleFarmer, "Asha"), State: "Punjab"}
	neighbor = types.Actor{Role: types.RoleFarmer, Name: "Ravi", ID: types.ActorID(types.RoleFarmer, "Ravi"), State: "Bihar"}
	official = types.Actor{Role: types.RoleOfficial, Name: "Officer Mehta", ID: types.ActorID(types.RoleOfficial, "Officer Mehta")}
	second   = types.Actor{Role: types.RoleOfficial, Name: "Officer Rao", ID: types.ActorID(types.RoleOfficial, "Officer Rao")}
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func photo(t *testing.T, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type fixture struct {
	svc      *Service
	repo     *store.FileRepository
	imageDir string
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	repo, err := store.OpenFileRepository(filepath.Join(dir, "submissions.csv"))
	if err != nil {
		t.Fatalf("OpenFileRepository() error = %v", err)
	}

	imageDir := filepath.Join(dir, "images")
	svc := New(repo, storage.NewLocalStorage(imageDir), quietLogger())
	svc.now = func() time.Time { return clock }

	return &fixture{svc: svc, repo: repo, imageDir: imageDir}
}

func (f *fixture) submit(t *testing.T, actor types.Actor, c color.RGBA) *types.Submission {
	t.Helper()

	ctx := context.Background()
	if _, err := f.svc.Analyze(ctx, actor, photo(t, c)); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	sub, err := f.svc.Submit(ctx, actor, "north field")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return sub
}

func blobCount(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	return len(entries)
}

func TestAnalyzeThenSubmit(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	data := photo(t, color.RGBA{30, 180, 40, 255})

	draft, err := f.svc.Analyze(ctx, farmer, data)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if draft.Result.Features.GreenRatio != 1 || draft.Format != "png" {
		t.Fatalf("Analyze() draft = %+v", draft)
	}

	sub, err := f.svc.Submit(ctx, farmer, "  leaves look fine\r\nafter rain \n")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if sub.Status != types.SubmissionStatusPending || sub.VerifiedBy != nil || sub.VerifiedAt != nil {
		t.Fatalf("Submit() = %+v, want a Pending record", sub)
	}
	if sub.FarmerID != farmer.ID || sub.FarmerName != "Asha" || sub.State != "Punjab" || sub.Notes != "leaves look fine\nafter rain" {
		t.Fatalf("Submit() identity fields = %+v", sub)
	}
	if sub.DetectedCrop != draft.Result.Crop || sub.DetectedHealth != draft.Result.Health || sub.Confidence != draft.Result.Confidence {
		t.Fatalf("Submit() classifier fields = %+v, want %+v", sub, draft.Result)
	}
	if want := clock.UTC().Truncate(time.Microsecond); !sub.Timestamp.Equal(want) || sub.Timestamp.Location() != time.UTC {
		t.Fatalf("Submit() timestamp = %v, want %v", sub.Timestamp, want)
	}

	stored, err := f.svc.Get(ctx, farmer, sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.ImageReference != sub.ImageReference {
		t.Fatalf("Get() image reference = %q, want %q", stored.ImageReference, sub.ImageReference)
	}

	img, _, err := f.svc.Image(ctx, official, sub.ID)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if !bytes.Equal(img, data) {
		t.Fatalf("Image() returned different bytes")
	}

	if _, err := f.svc.Submit(ctx, farmer, ""); !errors.Is(err, types.ErrNoDraft) {
		t.Fatalf("second Submit() error = %v, want ErrNoDraft", err)
	}
}

func TestSubmitWithoutDraft(t *testing.T) {
	f := setupService(t)

	if _, err := f.svc.Submit(context.Background(), farmer, "notes"); !errors.Is(err, types.ErrNoDraft) {
		t.Fatalf("Submit() error = %v, want ErrNoDraft", err)
	}
}

func TestReanalysisReplacesDraft(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	first := photo(t, color.RGBA{30, 180, 40, 255})
	latest := photo(t, color.RGBA{200, 190, 60, 255})

	if _, err := f.svc.Analyze(ctx, farmer, first); err != nil {
		t.Fatalf("Analyze(first) error = %v", err)
	}
	if _, err := f.svc.Analyze(ctx, farmer, latest); err != nil {
		t.Fatalf("Analyze(latest) error = %v", err)
	}
	if _, err := f.svc.Analyze(ctx, farmer, []byte("not an image")); !errors.Is(err, types.ErrInvalidImage) {
		t.Fatalf("Analyze(garbage) error = %v, want ErrInvalidImage", err)
	}

	sub, err := f.svc.Submit(ctx, farmer, "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	img, _, err := f.svc.Image(ctx, farmer, sub.ID)
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if !bytes.Equal(img, latest) {
		t.Fatalf("submitted image is not the latest analysed photo")
	}

	all, err := f.repo.AllSubmissions(ctx)
	if err != nil {
		t.Fatalf("AllSubmissions() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("re-analysis created %d records, want 1", len(all))
	}
}

func TestRolesAreEnforced(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	data := photo(t, color.RGBA{30, 180, 40, 255})

	if _, err := f.svc.Analyze(ctx, official, data); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("official Analyze() error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Submit(ctx, types.Actor{}, ""); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("anonymous Submit() error = %v, want ErrForbidden", err)
	}

	sub := f.submit(t, farmer, color.RGBA{30, 180, 40, 255})

	if _, err := f.svc.Verify(ctx, farmer, sub.ID); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("farmer Verify() error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.Get(ctx, neighbor, sub.ID); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("neighbour Get() error = %v, want ErrForbidden", err)
	}
	if _, _, err := f.svc.Image(ctx, neighbor, sub.ID); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("neighbour Image() error = %v, want ErrForbidden", err)
	}
}

func TestVerifyThenReject(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	sub := f.submit(t, farmer, color.RGBA{30, 180, 40, 255})

	verified, err := f.svc.Verify(ctx, official, sub.ID)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if verified.Status != types.SubmissionStatusVerified || *verified.VerifiedBy != official.Name {
		t.Fatalf("Verify() = %+v", verified)
	}

	f.svc.now = func() time.Time { return clock.Add(time.Hour) }
	current, err := f.svc.Reject(ctx, second, sub.ID)
	if !errors.Is(err, types.ErrAlreadyFinalized) {
		t.Fatalf("Reject() error = %v, want ErrAlreadyFinalized", err)
	}
	if current == nil || current.Status != types.SubmissionStatusVerified {
		t.Fatalf("Reject() current = %+v, want the Verified record", current)
	}

	stored, err := f.svc.Get(ctx, farmer, sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != types.SubmissionStatusVerified || *stored.VerifiedBy != official.Name || !stored.VerifiedAt.Equal(clock.UTC().Truncate(time.Microsecond)) {
		t.Fatalf("stored = %+v, want verified by %s at the first timestamp", stored, official.Name)
	}

	if _, err := f.svc.Verify(ctx, official, "missing"); !errors.Is(err, types.ErrSubmissionNotFound) {
		t.Fatalf("Verify(missing) error = %v, want ErrSubmissionNotFound", err)
	}
}

func TestConcurrentOfficials(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	sub := f.submit(t, farmer, color.RGBA{30, 180, 40, 255})

	officials := []types.Actor{official, second}
	var (
		wg   sync.WaitGroup
		errs = make([]error, len(officials))
	)
	for i, o := range officials {
		wg.Add(1)
		go func(i int, o types.Actor) {
			defer wg.Done()
			if i == 0 {
				_, errs[i] = f.svc.Verify(ctx, o, sub.ID)
			} else {
				_, errs[i] = f.svc.Reject(ctx, o, sub.ID)
			}
		}(i, o)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, types.ErrAlreadyFinalized):
		default:
			t.Fatalf("unexpected error = %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("%d officials won, want exactly 1", winners)
	}

	stored, err := f.svc.Get(ctx, official, sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	want := types.SubmissionStatusVerified
	if errs[0] != nil {
		want = types.SubmissionStatusRejected
	}
	if stored.Status != want {
		t.Fatalf("stored status = %s, want %s", stored.Status, want)
	}
}

func TestList(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	var mine []*types.Submission
	for i := range 3 {
		f.svc.now = func() time.Time { return clock.Add(time.Duration(i) * time.Minute) }
		mine = append(mine, f.submit(t, farmer, color.RGBA{30, 180, 40, 255}))
	}
	theirs := f.submit(t, neighbor, color.RGBA{30, 180, 40, 255})

	if _, err := f.svc.Verify(ctx, official, mine[0].ID); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	got, err := f.svc.List(ctx, farmer, types.SubmissionFilter{FarmerID: neighbor.ID})
	if err != nil {
		t.Fatalf("List(farmer) error = %v", err)
	}
	if len(got) != 3 || got[0].ID != mine[2].ID || got[2].ID != mine[0].ID {
		t.Fatalf("List(farmer) = %d records, want own 3 newest first", len(got))
	}

	pending, err := f.svc.List(ctx, official, types.SubmissionFilter{Status: types.SubmissionStatusPending})
	if err != nil {
		t.Fatalf("List(pending) error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("List(pending) = %d records, want 3", len(pending))
	}

	verified, err := f.svc.List(ctx, official, types.SubmissionFilter{FarmerID: farmer.ID, Status: types.SubmissionStatusVerified})
	if err != nil {
		t.Fatalf("List(verified) error = %v", err)
	}
	if len(verified) != 1 || verified[0].ID != mine[0].ID {
		t.Fatalf("List(verified) = %+v", verified)
	}

	neighbors, err := f.svc.List(ctx, official, types.SubmissionFilter{FarmerID: neighbor.ID})
	if err != nil {
		t.Fatalf("List(neighbor) error = %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].ID != theirs.ID {
		t.Fatalf("List(neighbor) = %+v", neighbors)
	}

	if _, err := f.svc.List(ctx, official, types.SubmissionFilter{Status: "Approved"}); !errors.Is(err, types.ErrInvalidSubmission) {
		t.Fatalf("List(bad status) error = %v, want ErrInvalidSubmission", err)
	}
	if _, err := f.svc.List(ctx, types.Actor{}, types.SubmissionFilter{}); !errors.Is(err, types.ErrForbidden) {
		t.Fatalf("List(anonymous) error = %v, want ErrForbidden", err)
	}
}

type brokenImages struct {
	storage.ImageStore
}

func (brokenImages) Put(context.Context, []byte, string) (string, error) {
	return "", fmt.Errorf("%w: disk full", types.ErrStorage)
}

func TestImageFailureCreatesNothing(t *testing.T) {
	f := setupService(t)
	f.svc.images = brokenImages{}
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, farmer, photo(t, color.RGBA{30, 180, 40, 255})); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if _, err := f.svc.Submit(ctx, farmer, ""); !errors.Is(err, types.ErrStorage) {
		t.Fatalf("Submit() error = %v, want ErrStorage", err)
	}

	all, err := f.repo.AllSubmissions(ctx)
	if err != nil {
		t.Fatalf("AllSubmissions() error = %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("failed submit left %d records", len(all))
	}
	if _, ok := f.svc.Draft(farmer); !ok {
		t.Fatalf("failed submit discarded the draft")
	}
}

type collidingStore struct {
	Store
}

func (collidingStore) CreateSubmission(_ context.Context, sub *types.Submission) error {
	return fmt.Errorf("%w: %s", types.ErrDuplicateID, sub.ID)
}

func TestRecordFailureRemovesImage(t *testing.T) {
	f := setupService(t)
	f.svc.store = collidingStore{Store: f.repo}
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, farmer, photo(t, color.RGBA{30, 180, 40, 255})); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if _, err := f.svc.Submit(ctx, farmer, ""); !errors.Is(err, types.ErrDuplicateID) {
		t.Fatalf("Submit() error = %v, want ErrDuplicateID", err)
	}
	if n := blobCount(t, f.imageDir); n != 0 {
		t.Fatalf("image dir holds %d blobs after failed create, want 0", n)
	}
	if _, ok := f.svc.Draft(farmer); !ok {
		t.Fatalf("failed submit discarded the draft")
	}
}

func TestSubmitPhoto(t *testing.T) {
	f := setupService(t)

	sub, err := f.svc.SubmitPhoto(context.Background(), farmer, photo(t, color.RGBA{30, 180, 40, 255}), "seeded")
	if err != nil {
		t.Fatalf("SubmitPhoto() error = %v", err)
	}
	if sub.Status != types.SubmissionStatusPending || blobCount(t, f.imageDir) != 1 {
		t.Fatalf("SubmitPhoto() = %+v", sub)
	}
	if _, ok := f.svc.Draft(farmer); ok {
		t.Fatalf("SubmitPhoto() left a draft behind")
	}
}

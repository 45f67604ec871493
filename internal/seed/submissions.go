package seed

import (
	"context"
	"fmt"
	"math/rand"

	"agriconnect/internal/mrv"
	"agriconnect/pkg/types"
)

var fakeNotes = []string{
	"Photo taken after morning irrigation.",
	"Lower leaves turning yellow near the canal edge.",
	"Second sowing on the east plot.",
	"Holes in leaves noticed this week.",
	"",
	"Field flooded two days ago.",
	"Looks healthy, sharing for the record.",
}

type weightedStatus struct {
	Status types.SubmissionStatus
	Weight int
}

var weightedStatuses = []weightedStatus{
	{Status: types.SubmissionStatusPending, Weight: 60},
	{Status: types.SubmissionStatusVerified, Weight: 25},
	{Status: types.SubmissionStatusRejected, Weight: 15},
}

// SeedSubmissions pushes count synthetic photos through the real workflow:
// each is analysed and submitted by a fake farmer, and some are then
// verified or rejected by a fake official.
func SeedSubmissions(ctx context.Context, svc *mrv.Service, count int, seed int64) (int, error) {
	if count <= 0 {
		fmt.Println("Skipping submissions seed because count <= 0")
		return 0, nil
	}

	rng := rand.New(rand.NewSource(seed))
	farmers := fakeActors(types.RoleFarmer)
	officials := fakeActors(types.RoleOfficial)

	created := 0
	for i := 0; i < count; i++ {
		scene := Scenes[rng.Intn(len(Scenes))]
		photo, err := FieldPhoto(rng, scene, 320+rng.Intn(4)*80, 240+rng.Intn(3)*60)
		if err != nil {
			return created, err
		}

		farmer := farmers[rng.Intn(len(farmers))]
		sub, err := svc.SubmitPhoto(ctx, farmer, photo, fakeNotes[rng.Intn(len(fakeNotes))])
		if err != nil {
			return created, fmt.Errorf("failed to submit fake photo %d (%s): %w", i+1, scene.Name, err)
		}
		created++

		official := officials[rng.Intn(len(officials))]
		switch pickWeightedStatus(rng) {
		case types.SubmissionStatusVerified:
			_, err = svc.Verify(ctx, official, sub.ID)
		case types.SubmissionStatusRejected:
			_, err = svc.Reject(ctx, official, sub.ID)
		}
		if err != nil {
			return created, fmt.Errorf("failed to finalize fake submission %s: %w", sub.ID, err)
		}
	}

	fmt.Printf("Fake submissions seeded: %d created\n", created)
	return created, nil
}

func pickWeightedStatus(rng *rand.Rand) types.SubmissionStatus {
	total := 0
	for _, item := range weightedStatuses {
		total += item.Weight
	}

	roll := rng.Intn(total)
	running := 0
	for _, item := range weightedStatuses {
		running += item.Weight
		if roll < running {
			return item.Status
		}
	}

	return types.SubmissionStatusPending
}

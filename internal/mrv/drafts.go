package mrv

import (
	"sync"
	"time"

	"agriconnect/internal/vision"
)

// Draft is an analysed photo a farmer has not submitted yet. It lives only
// in memory and is replaced by the next analysis.
type Draft struct {
	Result     vision.Result `json:"result"`
	Format     string        `json:"format"`
	AnalyzedAt time.Time     `json:"analyzedAt"`

	data []byte
}

type draftBook struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

func newDraftBook() *draftBook {
	return &draftBook{drafts: make(map[string]*Draft)}
}

func (b *draftBook) put(actorID string, d *Draft) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drafts[actorID] = d
}

func (b *draftBook) peek(actorID string) (*Draft, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[actorID]
	return d, ok
}

// take removes and returns the actor's draft, so two concurrent submits
// cannot both consume it.
func (b *draftBook) take(actorID string) (*Draft, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.drafts[actorID]
	if ok {
		delete(b.drafts, actorID)
	}
	return d, ok
}

// restore hands back a draft whose submit failed, unless a newer analysis
// has already taken its place.
func (b *draftBook) restore(actorID string, d *Draft) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.drafts[actorID]; !ok {
		b.drafts[actorID] = d
	}
}

func (b *draftBook) drop(actorID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.drafts, actorID)
}

package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"podnote/internal/repository"
)

// StateKey is the metadata key holding the one wizard state per device.
const StateKey = "podcast_creator_state"

// Persistence stores the wizard state as a JSON blob. Writes are last write
// wins; entries older than the TTL are discarded on load.
type Persistence struct {
	repo *repository.Store
	ttl  time.Duration
	now  func() time.Time
}

func NewPersistence(repo *repository.Store, ttl time.Duration) *Persistence {
	return &Persistence{repo: repo, ttl: ttl, now: time.Now}
}

func (p *Persistence) Save(ctx context.Context, st State) error {
	if st.SavedAt == 0 {
		st.SavedAt = p.now().UnixMilli()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode wizard state: %w", err)
	}
	return p.repo.Put(ctx, StateKey, string(data))
}

// Load returns the persisted state. ok is false when there is none, or when
// it is expired or unreadable; such entries are removed.
func (p *Persistence) Load(ctx context.Context) (State, bool, error) {
	raw, ok, err := p.repo.Get(ctx, StateKey)
	if err != nil || !ok {
		return State{}, false, err
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		log.Printf("discarding unreadable wizard state: %v", err)
		return State{}, false, p.Clear(ctx)
	}
	if !st.Step.Valid() {
		return State{}, false, p.Clear(ctx)
	}
	if p.ttl > 0 && p.now().Sub(time.UnixMilli(st.SavedAt)) > p.ttl {
		log.Printf("discarding wizard state saved at %s", time.UnixMilli(st.SavedAt).Format(time.RFC3339))
		return State{}, false, p.Clear(ctx)
	}
	return st, true, nil
}

// Raw returns the stored JSON blob, for export.
func (p *Persistence) Raw(ctx context.Context) (string, bool, error) {
	return p.repo.Get(ctx, StateKey)
}

func (p *Persistence) Clear(ctx context.Context) error {
	return p.repo.Delete(ctx, StateKey)
}

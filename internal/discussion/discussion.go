// Package discussion keeps the public per-episode Q&A log.
package discussion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"podnote/internal/contentstore"
	"podnote/internal/domain"
	"podnote/internal/notes"
)

// Store appends discussions to one JSON file per slug. Each visitor may add at
// most one entry per slug.
type Store struct {
	store    contentstore.Store
	dir      string
	attempts int
	now      func() time.Time
}

func New(store contentstore.Store, dir string, attempts int) *Store {
	if dir == "" {
		dir = "data/discussions"
	}
	if attempts <= 0 {
		attempts = 2
	}
	return &Store{store: store, dir: dir, attempts: attempts, now: time.Now}
}

func (s *Store) path(slug string) string {
	return path.Join(s.dir, slug+".json")
}

// List returns the discussions for slug, oldest first. A slug without a file
// has no discussions.
func (s *Store) List(ctx context.Context, slug string) ([]domain.Discussion, error) {
	if !notes.ValidSlug(slug) {
		return nil, fmt.Errorf("%w: invalid slug %q", domain.ErrValidation, slug)
	}
	file, err := s.store.Get(ctx, s.path(slug))
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Discussion{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(file.Content)
}

// Save appends a discussion for visitorID. It fails with
// domain.ErrAlreadyParticipated when the visitor already has an entry.
func (s *Store) Save(ctx context.Context, slug, visitorID, question, answer string) (domain.Discussion, error) {
	if !notes.ValidSlug(slug) {
		return domain.Discussion{}, fmt.Errorf("%w: invalid slug %q", domain.ErrValidation, slug)
	}
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" || strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return domain.Discussion{}, fmt.Errorf("%w: slug, visitorId, question and answer are required", domain.ErrValidation)
	}

	entry := domain.Discussion{
		ID:        uuid.NewString(),
		VisitorID: visitorID,
		Question:  question,
		Answer:    answer,
		CreatedAt: s.now().UTC(),
	}

	_, err := contentstore.Update(ctx, s.store, s.path(slug), "Add discussion: "+slug, s.attempts,
		func(current []byte, exists bool) ([]byte, error) {
			var list []domain.Discussion
			if exists {
				decoded, err := decode(current)
				if err != nil {
					return nil, err
				}
				list = decoded
			}
			for _, d := range list {
				if d.VisitorID == visitorID {
					return nil, domain.ErrAlreadyParticipated
				}
			}
			return json.MarshalIndent(append(list, entry), "", "  ")
		})
	if err != nil {
		return domain.Discussion{}, err
	}
	return entry, nil
}

func decode(content []byte) ([]domain.Discussion, error) {
	list := []domain.Discussion{}
	if len(strings.TrimSpace(string(content))) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(content, &list); err != nil {
		return nil, fmt.Errorf("%w: decode discussions: %v", domain.ErrUpstream, err)
	}
	return list, nil
}

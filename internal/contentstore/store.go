// Package contentstore reads and conditionally writes files in the
// version-controlled content store that backs published notes and discussions.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"podnote/internal/domain"
)

// File is a stored file with its opaque version token.
type File struct {
	Path    string
	Content []byte
	Version string
}

// Entry describes a successful write.
type Entry struct {
	Path    string
	URL     string
	Version string
}

// Store is a file store with compare-and-swap writes.
type Store interface {
	// Get returns domain.ErrNotFound when the file does not exist.
	Get(ctx context.Context, path string) (File, error)
	// Put writes content if the file's current version equals version. An
	// empty version means the file must not exist yet. A mismatch returns
	// domain.ErrVersionConflict.
	Put(ctx context.Context, path string, content []byte, version, message string) (Entry, error)
}

// Mutation derives the new file content from the current one. exists is false
// when the file is absent. Errors abort the update without retrying.
type Mutation func(current []byte, exists bool) ([]byte, error)

// Update runs read-mutate-write cycles until a write succeeds or attempts are
// exhausted, in which case domain.ErrSaveFailed is returned.
func Update(ctx context.Context, store Store, path, message string, attempts int, mutate Mutation) (Entry, error) {
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Entry{}, err
		}

		file, err := store.Get(ctx, path)
		exists := true
		if errors.Is(err, domain.ErrNotFound) {
			exists = false
			file = File{Path: path}
		} else if err != nil {
			return Entry{}, fmt.Errorf("read %s: %w", path, err)
		}

		content, err := mutate(file.Content, exists)
		if err != nil {
			return Entry{}, err
		}

		entry, err := store.Put(ctx, path, content, file.Version, message)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return Entry{}, fmt.Errorf("write %s: %w", path, err)
		}
		log.Printf("content store conflict on %s (attempt %d/%d)", path, attempt, attempts)
	}

	return Entry{}, fmt.Errorf("%w: %s changed concurrently", domain.ErrSaveFailed, path)
}

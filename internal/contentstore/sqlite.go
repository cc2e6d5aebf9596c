package contentstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"podnote/internal/domain"
	"podnote/internal/storage"
)

// SQLite keeps content in the local database. Versions are integers bumped on
// every write.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Get(ctx context.Context, path string) (File, error) {
	var (
		body    []byte
		version int64
	)
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT body, version FROM contents WHERE path = ?", path).Scan(&body, &version)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return File{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	}
	if err != nil {
		return File{}, err
	}
	return File{Path: path, Content: body, Version: strconv.FormatInt(version, 10)}, nil
}

func (s *SQLite) Put(ctx context.Context, path string, content []byte, version, message string) (Entry, error) {
	now := time.Now().UTC()

	if version == "" {
		err := s.withRetry(ctx, func() error {
			_, err := s.db.ExecContext(ctx, `INSERT INTO contents (path, body, version, message, updated_at)
VALUES (?, ?, 1, ?, ?)`, path, content, message, now)
			return err
		})
		if storage.IsConstraint(err) {
			return Entry{}, fmt.Errorf("%w: %s", domain.ErrVersionConflict, path)
		}
		if err != nil {
			return Entry{}, err
		}
		return Entry{Path: path, Version: "1"}, nil
	}

	current, err := strconv.ParseInt(version, 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %s", domain.ErrVersionConflict, path)
	}

	var affected int64
	err = s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE contents SET body = ?, version = version + 1, message = ?, updated_at = ?
WHERE path = ? AND version = ?`, content, message, now, path, current)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if affected == 0 {
		return Entry{}, fmt.Errorf("%w: %s", domain.ErrVersionConflict, path)
	}
	return Entry{Path: path, Version: strconv.FormatInt(current+1, 10)}, nil
}

func (s *SQLite) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil || !storage.IsBusy(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<i)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

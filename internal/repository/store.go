// Package repository keeps device-local values in the metadata table.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VisitorKey holds the pseudonymous id used for public discussions.
const VisitorKey = "visitor_id"

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Get returns the value under key. ok is false when nothing is stored.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO metadata (key, value, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, s.now().UTC())
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM metadata WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// VisitorID returns the device's visitor id, generating and storing one on
// first use.
func (s *Store) VisitorID(ctx context.Context) (string, error) {
	value, ok, err := s.Get(ctx, VisitorKey)
	if err != nil {
		return "", err
	}
	if ok && strings.TrimSpace(value) != "" {
		return value, nil
	}

	id := "visitor_" + uuid.NewString()
	// Another process may have raced us; keep whichever id landed first.
	if _, err := s.db.ExecContext(ctx, `INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO NOTHING`, VisitorKey, id, s.now().UTC()); err != nil {
		return "", fmt.Errorf("write %s: %w", VisitorKey, err)
	}
	value, _, err = s.Get(ctx, VisitorKey)
	return value, err
}

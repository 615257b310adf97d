// Package store persists pending challenges. It is the single source of
// truth the settlement path reads and deletes from; nothing else mutates it.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/m4xw311/typestake/errors"
)

// Challenge is a pending wager: an identifier plus the words-per-minute a
// completion proof must beat. Completed is carried for display; a qualifying
// settlement deletes the record instead of marking it.
type Challenge struct {
	ChallengeID string    `json:"challengeId"`
	TargetWPM   float64   `json:"targetWpm"`
	CreatedAt   time.Time `json:"createdAt"`
	Completed   bool      `json:"completed"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the challenge database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening challenge database %s", path)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS challenges (
		challenge_id TEXT PRIMARY KEY,
		target_wpm   REAL NOT NULL,
		created_at   DATETIME NOT NULL,
		completed    BOOLEAN NOT NULL DEFAULT FALSE
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return errors.Wrapf(err, "migrating challenge schema")
}

// Create inserts a new challenge. A reused id fails with KindDuplicate and
// leaves the original record untouched.
func (s *Store) Create(ctx context.Context, id string, targetWPM float64) (*Challenge, error) {
	c := &Challenge{
		ChallengeID: id,
		TargetWPM:   targetWPM,
		CreatedAt:   time.Now().UTC(),
	}

	query := `INSERT INTO challenges (challenge_id, target_wpm, created_at, completed) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		c.ChallengeID, c.TargetWPM, c.CreatedAt.Format(time.RFC3339Nano), c.Completed)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, errors.WithKind(errors.KindDuplicate, "challenge %q already exists", id)
		}
		return nil, errors.Wrapf(err, "inserting challenge %q", id)
	}
	return c, nil
}

// Get returns the challenge with the given id or KindNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Challenge, error) {
	query := `SELECT challenge_id, target_wpm, created_at, completed FROM challenges WHERE challenge_id = ?`
	return s.queryOne(ctx, query, id)
}

// Delete removes the challenge with the given id or fails with KindNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM challenges WHERE challenge_id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "deleting challenge %q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "deleting challenge %q", id)
	}
	if n == 0 {
		return errors.WithKind(errors.KindNotFound, "challenge %q not found", id)
	}
	return nil
}

// ListAll returns every pending challenge, newest first. Read-only, for display.
func (s *Store) ListAll(ctx context.Context) ([]*Challenge, error) {
	query := `SELECT challenge_id, target_wpm, created_at, completed FROM challenges ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrapf(err, "listing challenges")
	}
	defer func() { _ = rows.Close() }()

	var challenges []*Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "listing challenges")
	}
	return challenges, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) queryOne(ctx context.Context, query string, args ...interface{}) (*Challenge, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithKind(errors.KindNotFound, "challenge not found")
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChallenge(row rowScanner) (*Challenge, error) {
	var c Challenge
	var createdAt string
	if err := row.Scan(&c.ChallengeID, &c.TargetWPM, &createdAt, &c.Completed); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrapf(err, "scanning challenge row")
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing created_at %q", createdAt)
	}
	c.CreatedAt = t
	return &c, nil
}

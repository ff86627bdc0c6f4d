package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"jobradar/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single writer keeps toggle-while-scanning serialization trivial.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SetBanned records the ban state for a message link. Setting the same
// state twice is a no-op; setting the opposite state restores it.
func (s *SQLite) SetBanned(ctx context.Context, link string, banned bool) error {
	key := normalizeLink(link)
	if key == "" {
		return fmt.Errorf("empty message link")
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ban_list (link, banned, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(link) DO UPDATE SET banned = excluded.banned, updated_at = excluded.updated_at`,
		key, boolToInt(banned), now,
	)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

// IsBanned reports the current ban state for a message link.
// Unknown links are not banned.
func (s *SQLite) IsBanned(ctx context.Context, link string) (bool, error) {
	key := normalizeLink(link)
	if key == "" {
		return false, nil
	}
	var banned int
	err := s.db.QueryRowContext(ctx,
		`SELECT banned FROM ban_list WHERE link = ?`, key,
	).Scan(&banned)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check banned: %w", err)
	}
	return banned == 1, nil
}

// ListBanned returns every currently banned link, oldest toggle first.
func (s *SQLite) ListBanned(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT link FROM ban_list WHERE banned = 1 ORDER BY updated_at, link`,
	)
	if err != nil {
		return nil, fmt.Errorf("query banned: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan banned link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// normalizeLink canonicalizes a message link so that case and trailing
// whitespace differences map to the same registry entry.
func normalizeLink(link string) string {
	return strings.ToLower(strings.TrimSpace(link))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

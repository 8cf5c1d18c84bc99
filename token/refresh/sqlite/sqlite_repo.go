// Package sqlite stores refresh tokens in a SQLite database so that sessions
// survive restarts and can be shared by instances pointing at the same file.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/token/refresh"
	_ "modernc.org/sqlite"
)

var _ refresh.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath in WAL mode and runs
// migrations.
func Open(dbPath string) (*Repo, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current migration version: %w", err)
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS refresh_tokens (
					user_id TEXT PRIMARY KEY,
					token TEXT NOT NULL,
					last_seen_at INTEGER NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_refresh_tokens_last_seen_at ON refresh_tokens(last_seen_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migrations: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.up); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) Upsert(rt *refresh.StoredRefreshToken) error {
	_, err := r.db.Exec(`
		INSERT INTO refresh_tokens (user_id, token, last_seen_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			token = excluded.token,
			last_seen_at = excluded.last_seen_at
	`, rt.UserID, rt.Token, rt.LastSeenAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert refresh token: %w", err)
	}
	return nil
}

func (r *Repo) Get(userID string) (*refresh.StoredRefreshToken, error) {
	var (
		rt         refresh.StoredRefreshToken
		lastSeenAt int64
	)
	err := r.db.QueryRow(`SELECT user_id, token, last_seen_at FROM refresh_tokens WHERE user_id = ?`, userID).
		Scan(&rt.UserID, &rt.Token, &lastSeenAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	rt.LastSeenAt = time.Unix(0, lastSeenAt)
	return &rt, nil
}

func (r *Repo) Delete(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *Repo) Touch(userID string, at time.Time) error {
	res, err := r.db.Exec(`UPDATE refresh_tokens SET last_seen_at = ? WHERE user_id = ?`, at.UnixNano(), userID)
	if err != nil {
		return fmt.Errorf("touch refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteIdleSince(cutoff time.Time) ([]string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin eviction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT user_id FROM refresh_tokens WHERE last_seen_at < ? ORDER BY user_id`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list idle refresh tokens: %w", err)
	}
	var removed []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan idle refresh token: %w", err)
		}
		removed = append(removed, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list idle refresh tokens: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM refresh_tokens WHERE last_seen_at < ?`, cutoff.UnixNano()); err != nil {
		return nil, fmt.Errorf("delete idle refresh tokens: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit eviction: %w", err)
	}
	return removed, nil
}

func (r *Repo) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

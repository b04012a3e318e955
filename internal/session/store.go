package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store archives terminal sessions to SQLite. It satisfies Archiver, so the
// manager's cleanup sweep and shutdown flush both land here, which keeps the
// in-memory registry trivially replaceable with a persistent one.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the archive database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session archive: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		tool       TEXT NOT NULL,
		status     TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time   TIMESTAMP,
		metadata   TEXT
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		timestamp  TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_tool ON sessions(tool);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate session archive: %w", err)
	}
	return nil
}

// Archive writes sessions and their messages in one transaction.
// Re-archiving a session id replaces the previous row.
func (s *Store) Archive(sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	sessStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO sessions (id, tool, status, start_time, end_time, metadata)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer sessStmt.Close()

	msgStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO messages (session_id, seq, role, content, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer msgStmt.Close()

	for _, sess := range sessions {
		var metadata []byte
		if len(sess.Metadata) > 0 {
			metadata, _ = json.Marshal(sess.Metadata)
		}

		var end *time.Time
		if sess.EndTime != nil {
			end = sess.EndTime
		}
		if _, err := sessStmt.Exec(sess.ID, sess.Tool, string(sess.Status), sess.StartTime, end, string(metadata)); err != nil {
			return fmt.Errorf("failed to archive session %s: %w", sess.ID, err)
		}

		for seq, msg := range sess.Messages {
			if _, err := msgStmt.Exec(sess.ID, seq, string(msg.Role), msg.Content, msg.Timestamp); err != nil {
				return fmt.Errorf("failed to archive message %d of %s: %w", seq, sess.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads one archived session back, including its messages.
func (s *Store) Load(id string) (Session, error) {
	row := s.db.QueryRow(`
		SELECT id, tool, status, start_time, end_time, metadata
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var status string
	var end sql.NullTime
	var metadata sql.NullString
	if err := row.Scan(&sess.ID, &sess.Tool, &status, &sess.StartTime, &end, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
		return Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	sess.Status = Status(status)
	if end.Valid {
		t := end.Time
		sess.EndTime = &t
	}
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &sess.Metadata)
	}

	rows, err := s.db.Query(`
		SELECT role, content, timestamp FROM messages
		WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load messages of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg Message
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			return Session{}, err
		}
		msg.Role = Role(role)
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, rows.Err()
}

// Count returns the number of archived sessions.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

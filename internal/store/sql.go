package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver.
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ChatLogStore = (*SQLStore)(nil)

// SQLStore implements ChatLogStore on SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens the chat log database and runs migrations. driver is
// "sqlite" or "postgres".
func OpenSQL(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_log (
			id         ` + id + `,
			session_id TEXT NOT NULL,
			question   TEXT NOT NULL,
			answer     TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_log_session ON chat_log(session_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append records one question and its answer.
func (s *SQLStore) Append(ctx context.Context, sessionID, question, answer string) error {
	_, err := s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO chat_log (session_id, question, answer, created_at) VALUES (?, ?, ?, ?)`),
		sessionID, question, answer, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting chat log: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first.
func (s *SQLStore) Recent(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, session_id, question, answer, created_at FROM chat_log`
	args := []any{}
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("querying chat log: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var r ChatRecord
		var ms int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Answer, &ms); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders as $1, $2... for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != "postgres" {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists user records and append-only turn history in
// PostgreSQL. Per-user append ordering comes from the turns sequence column,
// so concurrent appends serialize per key without any locking here.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			phone_number TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS user_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL REFERENCES users(user_id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_turns_user_seq ON user_turns (user_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init history schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: exists %q: %v", ErrUnavailable, userID, err)
	}
	return exists, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn, profile Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin append for %q: %v", ErrUnavailable, turn.UserID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Set-if-absent on the profile columns: the first non-empty value wins and
	// later empty values never clobber a stored one.
	_, err = tx.Exec(ctx,
		`INSERT INTO users (user_id, phone_number, first_name, user_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET
			phone_number = CASE WHEN users.phone_number = '' THEN EXCLUDED.phone_number ELSE users.phone_number END,
			first_name   = CASE WHEN users.first_name = ''   THEN EXCLUDED.first_name   ELSE users.first_name END,
			user_name    = CASE WHEN users.user_name = ''    THEN EXCLUDED.user_name    ELSE users.user_name END`,
		turn.UserID,
		profile.PhoneNumber,
		profile.FirstName,
		profile.UserName,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert user %q: %v", ErrUnavailable, turn.UserID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_turns (id, user_id, role, content, kind, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID,
		turn.UserID,
		string(turn.Role),
		turn.Content,
		string(turn.Kind),
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert turn for %q: %v", ErrUnavailable, turn.UserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit append for %q: %v", ErrUnavailable, turn.UserID, err)
	}
	return nil
}

func (s *PostgresStore) ReadRecent(ctx context.Context, userID string, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM user_turns WHERE user_id=$1 ORDER BY seq DESC LIMIT $2`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: read recent for %q: %v", ErrUnavailable, userID, err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, n)
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("%w: scan turn for %q: %v", ErrMalformedRecord, userID, err)
		}
		switch Role(role) {
		case RoleHuman, RoleAssistant:
		default:
			return nil, fmt.Errorf("%w: unknown role %q for %q", ErrMalformedRecord, role, userID)
		}
		msgs = append(msgs, Message{Role: Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate turns for %q: %v", ErrUnavailable, userID, err)
	}

	// Rows arrive newest-first; reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

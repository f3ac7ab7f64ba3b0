package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikolanovoselec/codeflare-sub001/model"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			email       TEXT NOT NULL,
			name        TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_email ON sessions(email, last_active DESC);

		CREATE TABLE IF NOT EXISTS kv (
			email      TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (email, key)
		);
	`)
	return err
}

func (db *DB) Healthy(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) CreateSession(ctx context.Context, email, name string) (*model.Session, error) {
	s := &model.Session{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
	}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO sessions (id, email, name)
		VALUES ($1, $2, $3)
		RETURNING created_at, last_active`,
		s.ID, s.Email, s.Name,
	).Scan(&s.CreatedAt, &s.LastActive)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s := &model.Session{}
	err := db.Pool.QueryRow(ctx, `
		SELECT id, email, name, created_at, last_active
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Email, &s.Name, &s.CreatedAt, &s.LastActive)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (db *DB) ListSessions(ctx context.Context, email string) ([]model.Session, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, email, name, created_at, last_active
		FROM sessions WHERE email = $1
		ORDER BY last_active DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &s.CreatedAt, &s.LastActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TouchSession bumps last_active; called on every startup-status poll so
// stale sessions can be expired later.
func (db *DB) TouchSession(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE sessions SET last_active = now() WHERE id = $1`, id)
	return err
}

func (db *DB) DeleteSession(ctx context.Context, id, email string) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND email = $2`, id, email)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

func (db *DB) GetKV(ctx context.Context, email, key string) (*model.KVEntry, error) {
	e := &model.KVEntry{Key: key}
	var raw []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT value, updated_at FROM kv WHERE email = $1 AND key = $2`,
		email, key,
	).Scan(&raw, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("key %s not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get kv: %w", err)
	}
	e.Value = json.RawMessage(raw)
	return e, nil
}

func (db *DB) PutKV(ctx context.Context, email, key string, value json.RawMessage) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO kv (email, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (email, key) DO UPDATE SET value = $3, updated_at = now()`,
		email, key, []byte(value))
	if err != nil {
		return fmt.Errorf("put kv: %w", err)
	}
	return nil
}

func (db *DB) DeleteKV(ctx context.Context, email, key string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM kv WHERE email = $1 AND key = $2`, email, key)
	return err
}

// Package sqlite は SQLite を使った users.Store 実装です。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/yourusername/gatehouse/internal/users"
)

// Store は SQLite に保存する users.Store です。
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore は DSN を開いて Store を作成します。マイグレーションは ApplyMigrations で行います。
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// 書き込みを直列化して SQLITE_BUSY を避ける
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close はデータベース接続を閉じます。
func (s *Store) Close() error { return s.db.Close() }

// Ping は接続が生きているか確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectUser = `SELECT id, name, email, password_hash, created_at, updated_at FROM users`

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE email = ?`, email)
	return scanUser(row)
}

// FindByID はIDでユーザーを検索します。
func (s *Store) FindByID(ctx context.Context, id string) (*users.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id)
	return scanUser(row)
}

// Create はユーザーを挿入します。email の一意制約違反は users.ErrEmailTaken になります。
func (s *Store) Create(ctx context.Context, name, email, passwordHash string) (*users.User, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	u := &users.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func scanUser(row *sql.Row) (*users.User, error) {
	var (
		u                  users.User
		created, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &created, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.CreatedAt = time.UnixMilli(created).UTC()
	u.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

// Package postgres は PostgreSQL を使った users.Store 実装です。
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/yourusername/gatehouse/internal/users"
	"github.com/yourusername/gatehouse/internal/users/postgres/migrations"
)

const uniqueViolation = "23505"

// DBTX は *sql.DB と *sql.Tx の共通部分です。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store は PostgreSQL に保存する users.Store です。
type Store struct {
	db     DBTX
	closer func() error
}

// Open は pgx ドライバーで接続し、マイグレーションを適用した Store を返します。
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	s := NewStore(db)
	s.closer = db.Close
	return s, nil
}

// NewStore は既存の接続から Store を作成します。
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// gooseUpContext はテストで差し替えるための goose.UpContext です。
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations は埋め込みマイグレーションを goose で適用します。
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Close は Open で開いた接続を閉じます。
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	query :=
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users
		 WHERE email = $1`
	return s.scan(s.db.QueryRowContext(ctx, query, email))
}

// FindByID はIDでユーザーを検索します。
func (s *Store) FindByID(ctx context.Context, id string) (*users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, users.ErrNotFound
	}
	query :=
		`SELECT id, name, email, password_hash, created_at, updated_at FROM users
		 WHERE id = $1`
	return s.scan(s.db.QueryRowContext(ctx, query, id))
}

// Create はユーザーを挿入します。email の一意制約違反は users.ErrEmailTaken になります。
func (s *Store) Create(ctx context.Context, name, email, passwordHash string) (*users.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`

	u := &users.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}
	err := s.db.QueryRowContext(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) scan(row *sql.Row) (*users.User, error) {
	u := &users.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// Package users はユーザーレコードとその永続化（CredentialStore）を提供します。
package users

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound は該当するユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken はメールアドレスの一意制約に違反した場合に返されます。
	ErrEmailTaken = errors.New("email already taken")
)

// User はログイン可能なユーザーを表します。PasswordHash は平文を保持しません。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store はユーザーレコードの保存先が実装するインターフェースです。
type Store interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, name, email, passwordHash string) (*User, error)
	Close() error
}

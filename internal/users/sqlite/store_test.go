package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/gatehouse/internal/users"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Create(ctx, "Ann", "ann@x.com", "$2a$hash")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, "$2a$hash", got.PasswordHash)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt), "created_at should round-trip")

	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", byID.Email)
}

func TestStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByEmail(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, users.ErrNotFound)

	_, err = s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestStoreDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, "Ann", "ann@x.com", "h1")
	require.NoError(t, err)

	_, err = s.Create(ctx, "Impostor", "ann@x.com", "h2")
	assert.ErrorIs(t, err, users.ErrEmailTaken)

	got, err := s.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
}

package users

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, "Ann", "ann@x.com", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byEmail, err := s.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", byID.Name)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.FindByEmail(context.Background(), "ghost@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Create(ctx, "Ann", "ann@x.com", "hash")
	require.NoError(t, err)

	_, err = s.Create(ctx, "Other", "ann@x.com", "hash2")
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStoreConcurrentCreateKeepsEmailUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, "Ann", "race@x.com", "hash"); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), success.Load())
	assert.Equal(t, 1, s.Count())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, "Ann", "ann@x.com", "hash")
	require.NoError(t, err)
	created.Name = "mutated"

	got, err := s.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

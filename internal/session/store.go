// Package session はログイン状態（トークン → ユーザーID）のサーバー側保存と失効ポリシーを提供します。
//
// ブラウザには不透明なトークンだけを渡し、保存先にはトークンの SHA-256 をキーとして
// Record を保存します。
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Record はサーバー側に保存されるセッション情報です。
type Record struct {
	UserID       string    `json:"userId"`
	IssuedAt     time.Time `json:"issuedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Store はセッションレコードの保存先です。Get は存在しない場合 (nil, nil) を返します。
type Store interface {
	Save(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Get(ctx context.Context, key string) (*Record, error)
	Delete(ctx context.Context, key string) error
}

// RedisStore はセッションを Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Save はレコードを TTL 付きで保存します。
func (s *RedisStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

// Get はレコードを取得します。
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &record, nil
}

// Delete はレコードを削除します。存在しなくてもエラーにはなりません。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

const memorySweepInterval = time.Minute

// MemoryStore はプロセス内にセッションを保持します。期限切れのものは Save のたびに定期的に掃除します。
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Save はレコードを TTL 付きで保存します。
func (s *MemoryStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= memorySweepInterval {
		for k, entry := range s.entries {
			if !now.Before(entry.expiresAt) {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	s.entries[key] = memoryEntry{record: *record, expiresAt: now.Add(ttl)}
	return nil
}

// Len は保持しているレコード数を返します。期限切れで未掃除のものも含みます。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Get はレコードを取得します。期限切れのものは削除して (nil, nil) を返します。
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

// Delete はレコードを削除します。
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

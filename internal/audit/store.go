package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const historyKeyPrefix = "audit:user:"

// Store はユーザーごとの直近イベントを Redis のリストに保存します。
type Store struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewStore は Store を作成します。limit は1ユーザーあたりの保持件数です。
func NewStore(rdb *redis.Client, limit int, ttl time.Duration) *Store {
	if limit <= 0 {
		limit = 20
	}
	return &Store{
		rdb:   rdb,
		limit: limit,
		ttl:   ttl,
	}
}

// Append はイベントを履歴の先頭に追加し、古いものを切り詰めます。
func (s *Store) Append(ctx context.Context, event Event) error {
	if event.UserID == "" {
		// ユーザーに紐づかないイベント（未登録メールでの失敗など）は履歴に残さない
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := historyKey(event.UserID)
	tx := s.rdb.TxPipeline()
	tx.LPush(ctx, key, payload)
	tx.LTrim(ctx, key, 0, int64(s.limit-1))
	if s.ttl > 0 {
		tx.Expire(ctx, key, s.ttl)
	}
	_, err = tx.Exec(ctx)
	return err
}

// Recent は新しい順に最大 limit 件のイベントを返します。
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	items, err := s.rdb.LRange(ctx, historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(items))
	for _, item := range items {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("corrupt audit entry: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func historyKey(userID string) string {
	return historyKeyPrefix + userID
}

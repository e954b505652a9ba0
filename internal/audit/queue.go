package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	taskTypeRecord = "audit:record"
	queueName      = "audit"
)

// Queue はイベントを Asynq に投入し、ワーカーで履歴へ保存します。
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger *slog.Logger
}

// NewQueue は Queue を初期化します。redisURL は Asynq の接続URLです。
func NewQueue(redisURL string, store *Store, logger *slog.Logger) (*Queue, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	q := &Queue{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		}),
		mux:    asynq.NewServeMux(),
		store:  store,
		logger: logger,
	}
	q.mux.HandleFunc(taskTypeRecord, q.handleRecordTask)
	return q, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (q *Queue) StartWorkers() {
	go func() {
		if err := q.server.Run(q.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			q.logger.Error("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (q *Queue) Shutdown() error {
	q.server.Shutdown()
	return q.client.Close()
}

// Dispatch はイベントをキューに投入します。
func (q *Queue) Dispatch(ctx context.Context, event Event) error {
	event = normalize(event)
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskTypeRecord, body, asynq.Queue(queueName))
	if _, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.TaskID(event.ID)); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	return nil
}

// Recent は履歴ストアから直近イベントを返します。
func (q *Queue) Recent(ctx context.Context, userID string, limit int) ([]Event, error) {
	return q.store.Recent(ctx, userID, limit)
}

func (q *Queue) handleRecordTask(ctx context.Context, task *asynq.Task) error {
	var event Event
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return fmt.Errorf("invalid audit payload: %v: %w", err, asynq.SkipRetry)
	}
	if event.Type == "" {
		return fmt.Errorf("missing event type: %w", asynq.SkipRetry)
	}

	if err := q.store.Append(ctx, event); err != nil {
		return err
	}
	q.logger.InfoContext(ctx, "audit_event",
		"event_id", event.ID,
		"type", string(event.Type),
		"user_id", event.UserID,
	)
	return nil
}

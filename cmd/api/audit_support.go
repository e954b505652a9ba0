package main

import (
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/config"
)

const auditHistoryTTL = 30 * 24 * time.Hour

// auditSetup は監査イベントの送り先と、ダッシュボード用の読み出し元です。
type auditSetup struct {
	dispatcher audit.Dispatcher
	reader     audit.Reader // ログ出力のみの場合は nil
	close      func() error
}

// setupAudit は AUDIT_REDIS_URL が設定されていれば Asynq キューを、無ければログ出力だけを使います。
func setupAudit(cfg *config.Config, logger *slog.Logger) (*auditSetup, error) {
	if cfg.AuditRedisURL == "" {
		return &auditSetup{
			dispatcher: audit.NewLogDispatcher(logger),
			close:      func() error { return nil },
		}, nil
	}

	opt, err := redis.ParseURL(cfg.AuditRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AUDIT_REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opt)

	store := audit.NewStore(redisClient, cfg.AuditHistory, auditHistoryTTL)
	queue, err := audit.NewQueue(cfg.AuditRedisURL, store, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	queue.StartWorkers()

	return &auditSetup{
		dispatcher: queue,
		reader:     queue,
		close: func() error {
			err := queue.Shutdown()
			if cerr := redisClient.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

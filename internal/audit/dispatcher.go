package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Dispatcher は認証イベントの送り先です。
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Reader はユーザーごとの直近イベントを読み出します。
type Reader interface {
	Recent(ctx context.Context, userID string, limit int) ([]Event, error)
}

// LogDispatcher はイベントを構造化ログに出力するだけの Dispatcher です。
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher は LogDispatcher を作成します。
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch はイベントを1行のログとして出力します。
func (d *LogDispatcher) Dispatch(ctx context.Context, event Event) error {
	event = normalize(event)
	d.logger.InfoContext(ctx, "audit_event",
		"event_id", event.ID,
		"type", string(event.Type),
		"user_id", event.UserID,
		"email", event.Email,
		"ip", event.IP,
	)
	return nil
}

// normalize は ID と発生時刻が未設定なら補完します。
func normalize(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return event
}

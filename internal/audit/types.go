// Package audit は認証イベントの記録（ログ出力・非同期キュー・履歴保存）を提供します。
package audit

import "time"

// EventType は認証イベントの種別です。
type EventType string

const (
	EventRegistered     EventType = "registered"
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventLoginLocked    EventType = "login_locked"
	EventLoggedOut      EventType = "logged_out"
)

// Event は1件の認証イベントです。パスワードやトークンは含めません。
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

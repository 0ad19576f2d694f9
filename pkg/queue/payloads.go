package queue

import (
	"time"

	"go.opentelemetry.io/otel/propagation"
)

// EventHeader 所有事件共用的头部.
type EventHeader struct {
	Topic      string    `json:"topic"`
	TraceID    string    `json:"trace_id,omitempty"`
	Producer   string    `json:"producer,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Version    string    `json:"version,omitempty"`

	carrier propagation.MapCarrier
}

// Message 事件信封，T 为主题对应的负载.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- 在线状态领域 --------------------------

// PresenceEvent 文件级在线事件：锁获取/释放与查看者进出.
type PresenceEvent struct {
	Type      string     `json:"type"` // lock-acquired | lock-released | presence
	FileID    int64      `json:"file_id"`
	Entity    string     `json:"entity,omitempty"` // 锁事件的记录类型（file/row）
	RecordID  int64      `json:"record_id,omitempty"`
	SessionID string     `json:"session_id"`
	User      string     `json:"user,omitempty"`
	Action    string     `json:"action,omitempty"` // presence: joined | left
	Reason    string     `json:"reason,omitempty"` // lock-released: released | expired
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// -------------------------- 同步领域 --------------------------

// SyncConflictPayload 双方修改后的裁决结果.
type SyncConflictPayload struct {
	EntityType      string    `json:"entity_type"`
	SyncKey         string    `json:"sync_key"`
	Name            string    `json:"name,omitempty"`
	Direction       string    `json:"direction"`
	Winner          string    `json:"winner"` // local | remote
	LosingHash      string    `json:"losing_hash"`
	LocalUpdatedAt  time.Time `json:"local_updated_at"`
	RemoteUpdatedAt time.Time `json:"remote_updated_at"`
}

// SyncCompletedPayload 同步操作汇总.
type SyncCompletedPayload struct {
	Operation string `json:"operation"` // download-file, upload-folder ...
	Direction string `json:"direction"`
	SyncKey   string `json:"sync_key"`
	Synced    int    `json:"synced"`
	Skipped   int    `json:"skipped"`
	Orphaned  int    `json:"orphaned"`
	Conflicts int    `json:"conflicts"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// -------------------------- 回收站领域 --------------------------

// TrashPurgedPayload 回收站清理结果.
type TrashPurgedPayload struct {
	Store  string    `json:"store"` // central | local
	Purged int       `json:"purged"`
	Before time.Time `json:"before"`
}

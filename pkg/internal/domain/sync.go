package domain

import "time"

// SyncState 同步状态机的状态.
type SyncState string

const (
	StateLocalOnly SyncState = "local-only"
	StateSynced    SyncState = "synced"
	StateModified  SyncState = "modified"
	StateOrphaned  SyncState = "orphaned"
)

// Direction 同步方向.
type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
	DirectionMerge    Direction = "merge"
)

// AllowsPull 报告该方向是否允许中心库写入本地库.
func (d Direction) AllowsPull() bool { return d == DirectionDownload || d == DirectionMerge }

// AllowsPush 报告该方向是否允许本地库写入中心库.
func (d Direction) AllowsPush() bool { return d == DirectionUpload || d == DirectionMerge }

// ConflictStatus 最近一次同步的冲突处理结果.
type ConflictStatus string

const (
	ConflictNone      ConflictStatus = "none"
	ConflictLocalWon  ConflictStatus = "local_won"
	ConflictRemoteWon ConflictStatus = "remote_won"
)

// SyncMetadata 单个可同步实体的同步记录，以 (EntityType, SyncKey) 为键.
// LocalHash/RemoteHash 分别是上次同步时本存储与对端存储的内容哈希.
type SyncMetadata struct {
	EntityType     string         `json:"entity_type"`
	SyncKey        string         `json:"sync_key"`
	LocalHash      string         `json:"local_hash"`
	RemoteHash     string         `json:"remote_hash"`
	LosingHash     string         `json:"losing_hash"`
	LastSyncAt     *time.Time     `json:"last_sync_at"`
	Direction      Direction      `json:"sync_direction"`
	ConflictStatus ConflictStatus `json:"conflict_status"`
	State          SyncState      `json:"state"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

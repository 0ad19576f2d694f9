// Package model 定义中心库的 GORM 表模型.
//
// 时间字段关闭 GORM 的自动时间戳，由仓储使用注入的时钟显式写入，
// 同步写入路径才能保留对端记录的时间.
package model

import (
	"time"
)

// Platform 平台表.
type Platform struct {
	ID          int64     `gorm:"primaryKey"`
	SyncKey     string    `gorm:"size:32;uniqueIndex"`
	Name        string    `gorm:"size:255;index"`
	Owner       string    `gorm:"size:255;index"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Platform) TableName() string { return "platforms" }

// Project 项目表，PlatformID 为空即 Unassigned.
type Project struct {
	ID          int64     `gorm:"primaryKey"`
	SyncKey     string    `gorm:"size:32;uniqueIndex"`
	PlatformID  *int64    `gorm:"index"`
	Name        string    `gorm:"size:255;index"`
	Owner       string    `gorm:"size:255;index"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (Project) TableName() string { return "projects" }

// Folder 文件夹表.
type Folder struct {
	ID        int64     `gorm:"primaryKey"`
	SyncKey   string    `gorm:"size:32;uniqueIndex"`
	ProjectID int64     `gorm:"index"`
	ParentID  *int64    `gorm:"index"`
	Name      string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (Folder) TableName() string { return "folders" }

// File 文件表.
type File struct {
	ID         int64     `gorm:"primaryKey"`
	SyncKey    string    `gorm:"size:32;uniqueIndex"`
	ProjectID  int64     `gorm:"index"`
	FolderID   *int64    `gorm:"index"`
	Name       string    `gorm:"size:255;index"`
	Format     string    `gorm:"size:32"`
	SourceLang string    `gorm:"size:35"`
	TargetLang string    `gorm:"size:35"`
	RowCount   int       `gorm:"not null;default:0"`
	SyncStatus string    `gorm:"size:16;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime:false"`
}

func (File) TableName() string { return "files" }

// Row 行表，按 (file_id, row_num) 读取.
type Row struct {
	ID        int64     `gorm:"primaryKey"`
	SyncKey   string    `gorm:"size:32;uniqueIndex"`
	FileID    int64     `gorm:"index:idx_rows_file_num"`
	RowNum    int       `gorm:"index:idx_rows_file_num"`
	Source    string    `gorm:"type:text"`
	Target    string    `gorm:"type:text"`
	StringID  string    `gorm:"size:255"`
	Status    string    `gorm:"size:16;index"`
	Memo      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (Row) TableName() string { return "file_rows" }

// TranslationMemory TM 表.
type TranslationMemory struct {
	ID          int64     `gorm:"primaryKey"`
	SyncKey     string    `gorm:"size:32;uniqueIndex"`
	Name        string    `gorm:"size:255;index"`
	SourceLang  string    `gorm:"size:35;index"`
	TargetLang  string    `gorm:"size:35;index"`
	Owner       string    `gorm:"size:255;index"`
	Description string    `gorm:"type:text"`
	EntryCount  int       `gorm:"not null;default:0"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (TranslationMemory) TableName() string { return "translation_memories" }

// TMEntry TM 条目表，只追加.
type TMEntry struct {
	ID        int64     `gorm:"primaryKey"`
	SyncKey   string    `gorm:"size:32;uniqueIndex"`
	TMID      int64     `gorm:"column:tm_id;index"`
	Source    string    `gorm:"type:text"`
	Target    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (TMEntry) TableName() string { return "tm_entries" }

// TMAssignment 每个 TM 至多一条分配记录，三个作用域指针至多一个非空.
type TMAssignment struct {
	ID         int64     `gorm:"primaryKey;check:chk_tm_assignments_scope,(CASE WHEN platform_id IS NULL THEN 0 ELSE 1 END + CASE WHEN project_id IS NULL THEN 0 ELSE 1 END + CASE WHEN folder_id IS NULL THEN 0 ELSE 1 END) <= 1"`
	TMID       int64     `gorm:"column:tm_id;uniqueIndex"`
	PlatformID *int64    `gorm:"index"`
	ProjectID  *int64    `gorm:"index"`
	FolderID   *int64    `gorm:"index"`
	IsActive   bool      `gorm:"index"`
	AssignedBy string    `gorm:"size:255"`
	AssignedAt time.Time `gorm:"autoCreateTime:false"`
}

func (TMAssignment) TableName() string { return "tm_assignments" }

// QAResult QA 结果表.
type QAResult struct {
	ID        int64     `gorm:"primaryKey"`
	FileID    int64     `gorm:"index"`
	RowID     int64     `gorm:"index"`
	CheckType string    `gorm:"size:64"`
	Severity  string    `gorm:"size:16"`
	Message   string    `gorm:"type:text"`
	Resolved  bool      `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (QAResult) TableName() string { return "qa_results" }

// TrashItem 回收站表；SyncKeys 以 " k1 k2 " 形式存放快照内的 sync key，便于 LIKE 查询.
type TrashItem struct {
	ID            int64     `gorm:"primaryKey"`
	EntityType    string    `gorm:"size:16;index"`
	EntitySyncKey string    `gorm:"size:32;index"`
	Name          string    `gorm:"size:255"`
	ProjectID     *int64    `gorm:"index"`
	DeletedBy     string    `gorm:"size:255;index"`
	DeletedAt     time.Time `gorm:"index"`
	ExpiresAt     time.Time `gorm:"index"`
	SyncKeys      string    `gorm:"type:text"`
	Snapshot      []byte
}

func (TrashItem) TableName() string { return "trash_items" }

// Capability 能力表.
type Capability struct {
	ID        int64     `gorm:"primaryKey"`
	User      string    `gorm:"column:user_name;size:255;uniqueIndex:idx_capability_user_name"`
	Name      string    `gorm:"size:64;uniqueIndex:idx_capability_user_name"`
	GrantedBy string    `gorm:"size:255"`
	GrantedAt time.Time `gorm:"autoCreateTime:false"`
}

func (Capability) TableName() string { return "capabilities" }

// SyncMetadata 同步元数据表，以 (entity_type, sync_key) 唯一.
type SyncMetadata struct {
	ID             int64  `gorm:"primaryKey"`
	EntityType     string `gorm:"size:32;uniqueIndex:idx_sync_entity_key"`
	SyncKey        string `gorm:"size:32;uniqueIndex:idx_sync_entity_key"`
	LocalHash      string `gorm:"size:32"`
	RemoteHash     string `gorm:"size:32"`
	LosingHash     string `gorm:"size:32"`
	LastSyncAt     *time.Time
	Direction      string    `gorm:"column:sync_direction;size:16"`
	ConflictStatus string    `gorm:"size:16"`
	State          string    `gorm:"size:16;index"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime:false"`
}

func (SyncMetadata) TableName() string { return "sync_metadata" }

// All 返回需要 AutoMigrate 的全部模型.
func All() []any {
	return []any{
		&Platform{},
		&Project{},
		&Folder{},
		&File{},
		&Row{},
		&TranslationMemory{},
		&TMEntry{},
		&TMAssignment{},
		&QAResult{},
		&TrashItem{},
		&Capability{},
		&SyncMetadata{},
	}
}

// Package domain 定义两套存储共享的实体值类型、输入/补丁/过滤结构与错误分类.
//
// 中心库与本地库的适配器都构造这里的同一套类型，调用方不需要区分结果来自哪个存储.
package domain

import (
	"strconv"
	"time"
)

// 实体名称，同时作为 SyncMetadata 与 Trash 的 entity_type.
const (
	EntityPlatform     = "platform"
	EntityProject      = "project"
	EntityFolder       = "folder"
	EntityFile         = "file"
	EntityRow          = "row"
	EntityTM           = "tm"
	EntityTMEntry      = "tm_entry"
	EntityTMAssignment = "tm_assignment"
	EntityQAResult     = "qa_result"
	EntityTrash        = "trash"
	EntityCapability   = "capability"
	EntitySyncMetadata = "sync_metadata"
)

// SyncStatus 文件相对另一存储的同步状态.
type SyncStatus string

const (
	SyncStatusLocal    SyncStatus = "local"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusModified SyncStatus = "modified"
	SyncStatusOrphaned SyncStatus = "orphaned"
)

// RowStatus 行的翻译状态.
type RowStatus string

const (
	RowStatusPending    RowStatus = "pending"
	RowStatusTranslated RowStatus = "translated"
	RowStatusReviewed   RowStatus = "reviewed"
	RowStatusApproved   RowStatus = "approved"
)

// Platform 顶层分组（如产品线）.
type Platform struct {
	ID          int64     `json:"id"`
	SyncKey     string    `json:"sync_key"`
	Name        string    `json:"name"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Project 可选归属于一个 Platform.
type Project struct {
	ID          int64     `json:"id"`
	SyncKey     string    `json:"sync_key"`
	PlatformID  *int64    `json:"platform_id"`
	Name        string    `json:"name"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Folder 项目内的无环文件夹树节点.
type Folder struct {
	ID        int64     `json:"id"`
	SyncKey   string    `json:"sync_key"`
	ProjectID int64     `json:"project_id"`
	ParentID  *int64    `json:"parent_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File 归属于项目、可选归属于文件夹，拥有按 row_num 排序的行.
type File struct {
	ID         int64      `json:"id"`
	SyncKey    string     `json:"sync_key"`
	ProjectID  int64      `json:"project_id"`
	FolderID   *int64     `json:"folder_id"`
	Name       string     `json:"name"`
	Format     string     `json:"format"`
	SourceLang string     `json:"source_lang"`
	TargetLang string     `json:"target_lang"`
	RowCount   int        `json:"row_count"`
	SyncStatus SyncStatus `json:"sync_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Row 文件中的一行原文/译文.
type Row struct {
	ID        int64     `json:"id"`
	SyncKey   string    `json:"sync_key"`
	FileID    int64     `json:"file_id"`
	RowNum    int       `json:"row_num"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	StringID  string    `json:"string_id"`
	Status    RowStatus `json:"status"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TranslationMemory 独立于文件的双语语料库.
type TranslationMemory struct {
	ID          int64     `json:"id"`
	SyncKey     string    `json:"sync_key"`
	Name        string    `json:"name"`
	SourceLang  string    `json:"source_lang"`
	TargetLang  string    `json:"target_lang"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	EntryCount  int       `json:"entry_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TMEntry TM 中的一条 (source, target)，只追加，允许重复.
type TMEntry struct {
	ID        int64     `json:"id"`
	SyncKey   string    `json:"sync_key"`
	TMID      int64     `json:"tm_id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope TM 分配的作用域，至多一个指针非空；全空即 Unassigned.
type Scope struct {
	PlatformID *int64 `json:"platform_id"`
	ProjectID  *int64 `json:"project_id"`
	FolderID   *int64 `json:"folder_id"`
}

// ScopeLevel 作用域层级.
type ScopeLevel string

const (
	ScopeNone     ScopeLevel = "unassigned"
	ScopePlatform ScopeLevel = "platform"
	ScopeProject  ScopeLevel = "project"
	ScopeFolder   ScopeLevel = "folder"
)

// Count 返回非空指针数量.
func (s Scope) Count() int {
	n := 0

	for _, p := range []*int64{s.PlatformID, s.ProjectID, s.FolderID} {
		if p != nil {
			n++
		}
	}

	return n
}

// Level 返回作用域层级，多个指针时按 folder > project > platform 返回最具体的一个.
func (s Scope) Level() ScopeLevel {
	switch {
	case s.FolderID != nil:
		return ScopeFolder
	case s.ProjectID != nil:
		return ScopeProject
	case s.PlatformID != nil:
		return ScopePlatform
	default:
		return ScopeNone
	}
}

// IsUnassigned 报告是否未分配.
func (s Scope) IsUnassigned() bool { return s.Count() == 0 }

// PlatformScope 构造平台作用域.
func PlatformScope(id int64) Scope { return Scope{PlatformID: &id} }

// ProjectScope 构造项目作用域.
func ProjectScope(id int64) Scope { return Scope{ProjectID: &id} }

// FolderScope 构造文件夹作用域.
func FolderScope(id int64) Scope { return Scope{FolderID: &id} }

// TMAssignment 将 TM 绑定到唯一作用域，并带激活标记.
type TMAssignment struct {
	TMID       int64     `json:"tm_id"`
	Scope      Scope     `json:"scope"`
	IsActive   bool      `json:"is_active"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ActiveTM 激活分配与其 TM.
type ActiveTM struct {
	TM         TranslationMemory `json:"tm"`
	Assignment TMAssignment      `json:"assignment"`
}

// Severity QA 结果级别.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// QAResult 行级质量检查结果（检查引擎在外部，这里只负责存储）.
type QAResult struct {
	ID        int64     `json:"id"`
	FileID    int64     `json:"file_id"`
	RowID     int64     `json:"row_id"`
	CheckType string    `json:"check_type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// 能力名称.
const (
	CapDeletePlatform = "delete_platform"
	CapDeleteProject  = "delete_project"
	CapManageTM       = "manage_tm"
	CapPurgeTrash     = "purge_trash"
)

// Capability 授予用户的一项能力.
type Capability struct {
	ID        int64     `json:"id"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	GrantedBy string    `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// RecordRef 标识中心库中的一条可加锁记录.
type RecordRef struct {
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
}

// FileRef 构造文件引用.
func FileRef(id int64) RecordRef { return RecordRef{Entity: EntityFile, ID: id} }

// RowRef 构造行引用.
func RowRef(id int64) RecordRef { return RecordRef{Entity: EntityRow, ID: id} }

// String 返回 "entity:id" 形式.
func (r RecordRef) String() string { return r.Entity + ":" + strconv.FormatInt(r.ID, 10) }

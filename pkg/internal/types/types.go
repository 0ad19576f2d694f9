// Package types 定义 HTTP 请求与响应结构；领域输入直接复用 domain 中的类型.
package types

import (
	"time"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

// ErrorBody 错误响应体.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误类别与原因.
type ErrorDetail struct {
	Kind   domain.Kind `json:"kind"`
	Reason string      `json:"reason"`
}

// ListResponse 列表响应.
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// NewList 构造列表响应，nil 切片输出为空数组.
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}

	return ListResponse[T]{Total: len(items), Items: items}
}

// ActionResponse 通用动作响应.
type ActionResponse struct {
	Affected int    `json:"affected"`
	Message  string `json:"message,omitempty"`
}

// PlatformQuery 平台列表查询参数.
type PlatformQuery struct {
	Owner string `form:"owner"`
}

// Filter 转换为仓储过滤条件.
func (q PlatformQuery) Filter() domain.PlatformFilter {
	return domain.PlatformFilter{Owner: q.Owner}
}

// ProjectQuery 项目列表查询参数.
type ProjectQuery struct {
	PlatformID *int64 `form:"platform_id"`
	Unassigned bool   `form:"unassigned"`
	Owner      string `form:"owner"`
}

func (q ProjectQuery) Filter() domain.ProjectFilter {
	return domain.ProjectFilter{PlatformID: q.PlatformID, Unassigned: q.Unassigned, Owner: q.Owner}
}

// FolderQuery 文件夹列表查询参数.
type FolderQuery struct {
	ProjectID *int64 `form:"project_id"`
	ParentID  *int64 `form:"parent_id"`
	RootOnly  bool   `form:"root_only"`
}

func (q FolderQuery) Filter() domain.FolderFilter {
	return domain.FolderFilter{ProjectID: q.ProjectID, ParentID: q.ParentID, RootOnly: q.RootOnly}
}

// FileQuery 文件列表查询参数.
type FileQuery struct {
	ProjectID  *int64 `form:"project_id"`
	FolderID   *int64 `form:"folder_id"`
	RootOnly   bool   `form:"root_only"`
	SyncStatus string `form:"sync_status"`
}

func (q FileQuery) Filter() domain.FileFilter {
	return domain.FileFilter{
		ProjectID:  q.ProjectID,
		FolderID:   q.FolderID,
		RootOnly:   q.RootOnly,
		SyncStatus: domain.SyncStatus(q.SyncStatus),
	}
}

// RowQuery 行列表查询参数，文件 id 来自路径.
type RowQuery struct {
	Status string `form:"status"`
	Offset int    `form:"offset"`
	Limit  int    `form:"limit"`
}

func (q RowQuery) Filter(fileID int64) domain.RowFilter {
	return domain.RowFilter{FileID: fileID, Status: domain.RowStatus(q.Status), Offset: q.Offset, Limit: q.Limit}
}

// BatchRowsRequest 批量导入行；每行的 file_id 由路径覆盖.
type BatchRowsRequest struct {
	Rows []domain.RowInput `binding:"required" json:"rows"`
}

// TMQuery TM 列表查询参数.
type TMQuery struct {
	Owner      string `form:"owner"`
	SourceLang string `form:"source_lang"`
	TargetLang string `form:"target_lang"`
	Unassigned bool   `form:"unassigned"`
}

func (q TMQuery) Filter() domain.TMFilter {
	return domain.TMFilter{Owner: q.Owner, SourceLang: q.SourceLang, TargetLang: q.TargetLang, Unassigned: q.Unassigned}
}

// EntriesRequest 追加 TM 条目.
type EntriesRequest struct {
	Entries []domain.TMEntryInput `binding:"required" json:"entries"`
}

// QAQuery QA 结果查询参数.
type QAQuery struct {
	FileID     *int64 `form:"file_id"`
	RowID      *int64 `form:"row_id"`
	Unresolved bool   `form:"unresolved"`
}

func (q QAQuery) Filter() domain.QAFilter {
	return domain.QAFilter{FileID: q.FileID, RowID: q.RowID, Unresolved: q.Unresolved}
}

// TrashQuery 回收站查询参数.
type TrashQuery struct {
	EntityType string     `form:"entity_type"`
	DeletedBy  string     `form:"deleted_by"`
	ExpiresBy  *time.Time `form:"expires_by"  time_format:"2006-01-02T15:04:05Z07:00"`
}

func (q TrashQuery) Filter() domain.TrashFilter {
	return domain.TrashFilter{EntityType: q.EntityType, DeletedBy: q.DeletedBy, ExpiresBy: q.ExpiresBy}
}

// ReassignRequest 为 orphaned 文件指定新的本地归属.
type ReassignRequest struct {
	ProjectID int64  `binding:"required" json:"project_id"`
	FolderID  *int64 `json:"folder_id"`
}

// MatchQuery TM 匹配查询参数.
type MatchQuery struct {
	Source string `binding:"required" form:"source"`
}

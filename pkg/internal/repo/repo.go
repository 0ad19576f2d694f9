// Package repo 定义每个实体族的仓储接口与仓储集合 Bundle.
//
// 中心库适配器与本地库适配器实现同一套接口，行为契约一致：
// 相同输入得到结构相同的输出，"不存在"、"空"、"重复" 的处理方式相同.
// 所有方法返回填充的结果或 *domain.Error，不会用空值代替错误.
package repo

import (
	"context"
	"time"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

// StoreKind 标识仓储集合绑定的存储.
type StoreKind string

const (
	StoreCentral StoreKind = "central"
	StoreLocal   StoreKind = "local"
)

// PlatformRepository 平台仓储.
type PlatformRepository interface {
	Get(ctx context.Context, id int64) (*domain.Platform, error)
	GetAll(ctx context.Context, filter domain.PlatformFilter) ([]domain.Platform, error)
	Create(ctx context.Context, in domain.PlatformInput) (*domain.Platform, error)
	Update(ctx context.Context, id int64, patch domain.PlatformPatch) (*domain.Platform, error)
	// Delete 将其项目移入 Unassigned 池，并把平台作用域的 TM 分配改为未分配.
	Delete(ctx context.Context, id int64) error

	GetBySyncKey(ctx context.Context, key string) (*domain.Platform, error)
	// Upsert 按 SyncKey 写入，保留传入的时间戳，供同步引擎使用.
	Upsert(ctx context.Context, p domain.Platform) (*domain.Platform, error)
}

// ProjectRepository 项目仓储.
type ProjectRepository interface {
	Get(ctx context.Context, id int64) (*domain.Project, error)
	GetAll(ctx context.Context, filter domain.ProjectFilter) ([]domain.Project, error)
	Create(ctx context.Context, in domain.ProjectInput) (*domain.Project, error)
	Update(ctx context.Context, id int64, patch domain.ProjectPatch) (*domain.Project, error)
	// Delete 将项目内容整体移入回收站，并把项目与其文件夹作用域的 TM 分配改为未分配.
	Delete(ctx context.Context, id int64) error

	GetBySyncKey(ctx context.Context, key string) (*domain.Project, error)
	Upsert(ctx context.Context, p domain.Project) (*domain.Project, error)
}

// FolderRepository 文件夹仓储.
type FolderRepository interface {
	Get(ctx context.Context, id int64) (*domain.Folder, error)
	GetAll(ctx context.Context, filter domain.FolderFilter) ([]domain.Folder, error)
	Create(ctx context.Context, in domain.FolderInput) (*domain.Folder, error)
	Update(ctx context.Context, id int64, patch domain.FolderPatch) (*domain.Folder, error)
	// Delete 将子树移入回收站，子树作用域的 TM 分配改为未分配.
	Delete(ctx context.Context, id int64) error

	// Ancestors 返回从该文件夹到项目根的链，最近的在前（包含自身）.
	Ancestors(ctx context.Context, id int64) ([]domain.Folder, error)
	GetBySyncKey(ctx context.Context, key string) (*domain.Folder, error)
	Upsert(ctx context.Context, f domain.Folder) (*domain.Folder, error)
}

// FileRepository 文件仓储.
type FileRepository interface {
	Get(ctx context.Context, id int64) (*domain.File, error)
	GetAll(ctx context.Context, filter domain.FileFilter) ([]domain.File, error)
	Create(ctx context.Context, in domain.FileInput) (*domain.File, error)
	// Update 对 orphaned 文件返回 InvalidTransition；synced 文件变为 modified.
	Update(ctx context.Context, id int64, patch domain.FilePatch) (*domain.File, error)
	// Delete 将文件与行移入回收站.
	Delete(ctx context.Context, id int64) error

	GetBySyncKey(ctx context.Context, key string) (*domain.File, error)
	Upsert(ctx context.Context, f domain.File) (*domain.File, error)
	SetSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error
	// Relocate 修改文件归属，是 orphaned 文件唯一允许的写操作.
	Relocate(ctx context.Context, id, projectID int64, folderID *int64) (*domain.File, error)
}

// RowRepository 行仓储.
type RowRepository interface {
	Get(ctx context.Context, id int64) (*domain.Row, error)
	GetAll(ctx context.Context, filter domain.RowFilter) ([]domain.Row, error)
	Create(ctx context.Context, in domain.RowInput) (*domain.Row, error)
	Update(ctx context.Context, id int64, patch domain.RowPatch) (*domain.Row, error)
	// Delete 总是返回 InvalidTransition：行只随文件删除.
	Delete(ctx context.Context, id int64) error

	// CreateBatch 批量导入，全部成功或全部失败.
	CreateBatch(ctx context.Context, fileID int64, in []domain.RowInput) ([]domain.Row, error)
	GetBySyncKey(ctx context.Context, fileID int64, key string) (*domain.Row, error)
	Upsert(ctx context.Context, r domain.Row) (*domain.Row, error)
}

// TranslationMemoryRepository TM 仓储，包含条目与分配的领域操作.
type TranslationMemoryRepository interface {
	Get(ctx context.Context, id int64) (*domain.TranslationMemory, error)
	GetAll(ctx context.Context, filter domain.TMFilter) ([]domain.TranslationMemory, error)
	Create(ctx context.Context, in domain.TMInput) (*domain.TranslationMemory, error)
	Update(ctx context.Context, id int64, patch domain.TMPatch) (*domain.TranslationMemory, error)
	// Delete 将 TM、条目与分配移入回收站.
	Delete(ctx context.Context, id int64) error

	AddEntries(ctx context.Context, tmID int64, in []domain.TMEntryInput) ([]domain.TMEntry, error)
	Entries(ctx context.Context, tmID int64) ([]domain.TMEntry, error)
	// SearchEntries 在给定 TM 中精确查找 source，结果按 tmIDs 顺序、再按条目 id 排列.
	SearchEntries(ctx context.Context, tmIDs []int64, source string) ([]domain.TMEntry, error)
	// RegisterFromFile 以文件中译文非空的行创建 TM.
	RegisterFromFile(ctx context.Context, fileID int64, in domain.RegisterTMInput) (*domain.TranslationMemory, error)

	// Assign 多于一个作用域指针返回 ScopeConflict，没有指针返回 Validation.
	Assign(ctx context.Context, tmID int64, scope domain.Scope, by string) (*domain.TMAssignment, error)
	Unassign(ctx context.Context, tmID int64) (*domain.TMAssignment, error)
	// Activate 未分配的 TM 或超过作用域上限时返回 InvalidTransition.
	Activate(ctx context.Context, tmID int64) (*domain.TMAssignment, error)
	Deactivate(ctx context.Context, tmID int64) (*domain.TMAssignment, error)
	GetAssignment(ctx context.Context, tmID int64) (*domain.TMAssignment, error)
	// ActiveForScope 返回恰好该作用域的激活分配，按 TM id 排序.
	ActiveForScope(ctx context.Context, scope domain.Scope) ([]domain.ActiveTM, error)

	GetBySyncKey(ctx context.Context, key string) (*domain.TranslationMemory, error)
	Upsert(ctx context.Context, tm domain.TranslationMemory) (*domain.TranslationMemory, error)
	// UpsertEntries 按 SyncKey 追加尚不存在的条目，返回新增数量.
	UpsertEntries(ctx context.Context, tmID int64, entries []domain.TMEntry) (int, error)
}

// QAResultRepository QA 结果仓储.
type QAResultRepository interface {
	Get(ctx context.Context, id int64) (*domain.QAResult, error)
	GetAll(ctx context.Context, filter domain.QAFilter) ([]domain.QAResult, error)
	Create(ctx context.Context, in domain.QAInput) (*domain.QAResult, error)
	Update(ctx context.Context, id int64, patch domain.QAPatch) (*domain.QAResult, error)
	Delete(ctx context.Context, id int64) error

	Resolve(ctx context.Context, id int64) (*domain.QAResult, error)
	DeleteForRow(ctx context.Context, rowID int64) (int, error)
}

// TrashRepository 回收站仓储；条目由各实体的 Delete 产生，不跨存储镜像.
type TrashRepository interface {
	Get(ctx context.Context, id int64) (*domain.TrashItem, error)
	GetAll(ctx context.Context, filter domain.TrashFilter) ([]domain.TrashItem, error)
	// Restore 以新 id、原 sync key 重建快照中的记录.
	Restore(ctx context.Context, id int64) (*domain.TrashItem, error)
	Purge(ctx context.Context, id int64) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	ContainsSyncKey(ctx context.Context, key string) (bool, error)
}

// CapabilityRepository 能力仓储.
type CapabilityRepository interface {
	Grant(ctx context.Context, in domain.CapabilityInput) (*domain.Capability, error)
	Revoke(ctx context.Context, user, name string) error
	Has(ctx context.Context, user, name string) (bool, error)
	GetAll(ctx context.Context, user string) ([]domain.Capability, error)
}

// SyncMetadataRepository 同步元数据仓储.
type SyncMetadataRepository interface {
	Get(ctx context.Context, entityType, key string) (*domain.SyncMetadata, error)
	GetAll(ctx context.Context, filter domain.SyncMetadataFilter) ([]domain.SyncMetadata, error)
	Put(ctx context.Context, meta domain.SyncMetadata) (*domain.SyncMetadata, error)
	Delete(ctx context.Context, entityType, key string) error
}

// Bundle 绑定到同一存储的一整套仓储.
type Bundle struct {
	Store        StoreKind
	Platforms    PlatformRepository
	Projects     ProjectRepository
	Folders      FolderRepository
	Files        FileRepository
	Rows         RowRepository
	TMs          TranslationMemoryRepository
	QA           QAResultRepository
	Trash        TrashRepository
	Capabilities CapabilityRepository
	SyncMeta     SyncMetadataRepository
}

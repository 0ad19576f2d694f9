package domain

import (
	"time"

	"github.com/yeisme/tmvault/pkg/rule"
)

// Validate 按 rule 标签校验输入，失败时返回 Validation 类错误.
func Validate(entity string, in any) error {
	if err := rule.ValidateStruct(in); err != nil {
		return Invalid(entity, err)
	}

	return nil
}

type (
	// PlatformInput 创建平台.
	PlatformInput struct {
		Name        string `json:"name"        rule:"required,max=255"`
		Owner       string `json:"owner"       rule:"max=255"`
		Description string `json:"description" rule:"max=4096"`
	}

	// PlatformPatch 平台更新，nil 字段不修改.
	PlatformPatch struct {
		Name        *string `json:"name"        rule:"omitempty,min=1,max=255"`
		Owner       *string `json:"owner"       rule:"omitempty,max=255"`
		Description *string `json:"description" rule:"omitempty,max=4096"`
	}

	// PlatformFilter 平台列表过滤.
	PlatformFilter struct {
		Owner string `json:"owner"`
	}
)

type (
	// ProjectInput 创建项目.
	ProjectInput struct {
		PlatformID  *int64 `json:"platform_id"`
		Name        string `json:"name"        rule:"required,max=255"`
		Owner       string `json:"owner"       rule:"max=255"`
		Description string `json:"description" rule:"max=4096"`
	}

	// ProjectPatch 项目更新；ClearPlatform 为 true 时移入 Unassigned 池.
	ProjectPatch struct {
		Name          *string `json:"name"           rule:"omitempty,min=1,max=255"`
		Description   *string `json:"description"    rule:"omitempty,max=4096"`
		PlatformID    *int64  `json:"platform_id"`
		ClearPlatform bool    `json:"clear_platform"`
	}

	// ProjectFilter 项目列表过滤；Unassigned 只返回无平台项目.
	ProjectFilter struct {
		PlatformID *int64 `json:"platform_id"`
		Unassigned bool   `json:"unassigned"`
		Owner      string `json:"owner"`
	}
)

type (
	// FolderInput 创建文件夹.
	FolderInput struct {
		ProjectID int64  `json:"project_id" rule:"required,gt=0"`
		ParentID  *int64 `json:"parent_id"`
		Name      string `json:"name"       rule:"required,max=255"`
	}

	// FolderPatch 文件夹更新；MoveToRoot 为 true 时移到项目根.
	FolderPatch struct {
		Name       *string `json:"name"         rule:"omitempty,min=1,max=255"`
		ParentID   *int64  `json:"parent_id"`
		MoveToRoot bool    `json:"move_to_root"`
	}

	// FolderFilter 文件夹列表过滤.
	FolderFilter struct {
		ProjectID *int64 `json:"project_id"`
		ParentID  *int64 `json:"parent_id"`
		RootOnly  bool   `json:"root_only"`
	}
)

type (
	// FileInput 创建文件.
	FileInput struct {
		ProjectID  int64  `json:"project_id"  rule:"required,gt=0"`
		FolderID   *int64 `json:"folder_id"`
		Name       string `json:"name"        rule:"required,max=255"`
		Format     string `json:"format"      rule:"max=32"`
		SourceLang string `json:"source_lang" rule:"omitempty,bcp47_language_tag"`
		TargetLang string `json:"target_lang" rule:"omitempty,bcp47_language_tag"`
	}

	// FilePatch 文件更新；MoveToRoot 为 true 时移出文件夹.
	FilePatch struct {
		Name       *string `json:"name"         rule:"omitempty,min=1,max=255"`
		Format     *string `json:"format"       rule:"omitempty,max=32"`
		SourceLang *string `json:"source_lang"  rule:"omitempty,bcp47_language_tag"`
		TargetLang *string `json:"target_lang"  rule:"omitempty,bcp47_language_tag"`
		FolderID   *int64  `json:"folder_id"`
		MoveToRoot bool    `json:"move_to_root"`
	}

	// FileFilter 文件列表过滤.
	FileFilter struct {
		ProjectID  *int64     `json:"project_id"`
		FolderID   *int64     `json:"folder_id"`
		RootOnly   bool       `json:"root_only"`
		SyncStatus SyncStatus `json:"sync_status"`
	}
)

type (
	// RowInput 创建行.
	RowInput struct {
		FileID   int64     `json:"file_id"   rule:"required,gt=0"`
		RowNum   int       `json:"row_num"   rule:"min=0"`
		Source   string    `json:"source"`
		Target   string    `json:"target"`
		StringID string    `json:"string_id" rule:"max=255"`
		Status   RowStatus `json:"status"    rule:"omitempty,oneof=pending translated reviewed approved"`
		Memo     string    `json:"memo"`
	}

	// RowPatch 行更新.
	RowPatch struct {
		RowNum   *int       `json:"row_num"   rule:"omitempty,min=0"`
		Source   *string    `json:"source"`
		Target   *string    `json:"target"`
		StringID *string    `json:"string_id" rule:"omitempty,max=255"`
		Status   *RowStatus `json:"status"    rule:"omitempty,oneof=pending translated reviewed approved"`
		Memo     *string    `json:"memo"`
	}

	// RowFilter 行列表过滤，FileID 必填.
	RowFilter struct {
		FileID int64     `json:"file_id" rule:"required,gt=0"`
		Status RowStatus `json:"status"`
		Offset int       `json:"offset"  rule:"min=0"`
		Limit  int       `json:"limit"   rule:"min=0"`
	}
)

type (
	// TMInput 创建 TM.
	TMInput struct {
		Name        string `json:"name"        rule:"required,max=255"`
		SourceLang  string `json:"source_lang" rule:"required,bcp47_language_tag"`
		TargetLang  string `json:"target_lang" rule:"required,bcp47_language_tag"`
		Owner       string `json:"owner"       rule:"max=255"`
		Description string `json:"description" rule:"max=4096"`
	}

	// TMPatch TM 更新.
	TMPatch struct {
		Name        *string `json:"name"        rule:"omitempty,min=1,max=255"`
		Description *string `json:"description" rule:"omitempty,max=4096"`
	}

	// TMFilter TM 列表过滤.
	TMFilter struct {
		Owner      string `json:"owner"`
		SourceLang string `json:"source_lang"`
		TargetLang string `json:"target_lang"`
		Unassigned bool   `json:"unassigned"`
	}

	// TMEntryInput TM 条目.
	TMEntryInput struct {
		Source string `json:"source" rule:"required"`
		Target string `json:"target"`
	}

	// RegisterTMInput 由文件注册为 TM，语言取自文件.
	RegisterTMInput struct {
		Name        string `json:"name"        rule:"required,max=255"`
		Owner       string `json:"owner"       rule:"max=255"`
		Description string `json:"description" rule:"max=4096"`
	}
)

type (
	// QAInput 创建 QA 结果.
	QAInput struct {
		RowID     int64    `json:"row_id"     rule:"required,gt=0"`
		CheckType string   `json:"check_type" rule:"required,max=64"`
		Severity  Severity `json:"severity"   rule:"required,oneof=info warning error"`
		Message   string   `json:"message"`
	}

	// QAPatch QA 结果更新.
	QAPatch struct {
		Severity *Severity `json:"severity" rule:"omitempty,oneof=info warning error"`
		Message  *string   `json:"message"`
		Resolved *bool     `json:"resolved"`
	}

	// QAFilter QA 结果过滤.
	QAFilter struct {
		FileID     *int64 `json:"file_id"`
		RowID      *int64 `json:"row_id"`
		Unresolved bool   `json:"unresolved"`
	}
)

type (
	// TrashFilter 回收站过滤.
	TrashFilter struct {
		EntityType string     `json:"entity_type"`
		DeletedBy  string     `json:"deleted_by"`
		ExpiresBy  *time.Time `json:"expires_by"`
	}

	// CapabilityInput 授予能力.
	CapabilityInput struct {
		User      string `json:"user"       rule:"required,max=255"`
		Name      string `json:"name"       rule:"required,oneof=delete_platform delete_project manage_tm purge_trash"`
		GrantedBy string `json:"granted_by" rule:"max=255"`
	}

	// SyncMetadataFilter 同步元数据过滤.
	SyncMetadataFilter struct {
		EntityType string    `json:"entity_type"`
		State      SyncState `json:"state"`
	}
)

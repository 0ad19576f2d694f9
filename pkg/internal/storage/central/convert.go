package central

import (
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/model"
)

func toPlatform(m *model.Platform) *domain.Platform {
	return &domain.Platform{
		ID:          m.ID,
		SyncKey:     m.SyncKey,
		Name:        m.Name,
		Owner:       m.Owner,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func toProject(m *model.Project) *domain.Project {
	return &domain.Project{
		ID:          m.ID,
		SyncKey:     m.SyncKey,
		PlatformID:  m.PlatformID,
		Name:        m.Name,
		Owner:       m.Owner,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func toFolder(m *model.Folder) *domain.Folder {
	return &domain.Folder{
		ID:        m.ID,
		SyncKey:   m.SyncKey,
		ProjectID: m.ProjectID,
		ParentID:  m.ParentID,
		Name:      m.Name,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toFile(m *model.File) *domain.File {
	return &domain.File{
		ID:         m.ID,
		SyncKey:    m.SyncKey,
		ProjectID:  m.ProjectID,
		FolderID:   m.FolderID,
		Name:       m.Name,
		Format:     m.Format,
		SourceLang: m.SourceLang,
		TargetLang: m.TargetLang,
		RowCount:   m.RowCount,
		SyncStatus: domain.SyncStatus(m.SyncStatus),
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func toRow(m *model.Row) *domain.Row {
	return &domain.Row{
		ID:        m.ID,
		SyncKey:   m.SyncKey,
		FileID:    m.FileID,
		RowNum:    m.RowNum,
		Source:    m.Source,
		Target:    m.Target,
		StringID:  m.StringID,
		Status:    domain.RowStatus(m.Status),
		Memo:      m.Memo,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toTM(m *model.TranslationMemory) *domain.TranslationMemory {
	return &domain.TranslationMemory{
		ID:          m.ID,
		SyncKey:     m.SyncKey,
		Name:        m.Name,
		SourceLang:  m.SourceLang,
		TargetLang:  m.TargetLang,
		Owner:       m.Owner,
		Description: m.Description,
		EntryCount:  m.EntryCount,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func toTMEntry(m *model.TMEntry) *domain.TMEntry {
	return &domain.TMEntry{
		ID:        m.ID,
		SyncKey:   m.SyncKey,
		TMID:      m.TMID,
		Source:    m.Source,
		Target:    m.Target,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func toAssignment(m *model.TMAssignment) *domain.TMAssignment {
	return &domain.TMAssignment{
		TMID: m.TMID,
		Scope: domain.Scope{
			PlatformID: m.PlatformID,
			ProjectID:  m.ProjectID,
			FolderID:   m.FolderID,
		},
		IsActive:   m.IsActive,
		AssignedBy: m.AssignedBy,
		AssignedAt: m.AssignedAt.UTC(),
	}
}

func toQAResult(m *model.QAResult) *domain.QAResult {
	return &domain.QAResult{
		ID:        m.ID,
		FileID:    m.FileID,
		RowID:     m.RowID,
		CheckType: m.CheckType,
		Severity:  domain.Severity(m.Severity),
		Message:   m.Message,
		Resolved:  m.Resolved,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

func toTrashItem(m *model.TrashItem) *domain.TrashItem {
	return &domain.TrashItem{
		ID:            m.ID,
		EntityType:    m.EntityType,
		EntitySyncKey: m.EntitySyncKey,
		Name:          m.Name,
		ProjectID:     m.ProjectID,
		DeletedBy:     m.DeletedBy,
		DeletedAt:     m.DeletedAt.UTC(),
		ExpiresAt:     m.ExpiresAt.UTC(),
		Snapshot:      m.Snapshot,
	}
}

func toCapability(m *model.Capability) *domain.Capability {
	return &domain.Capability{
		ID:        m.ID,
		User:      m.User,
		Name:      m.Name,
		GrantedBy: m.GrantedBy,
		GrantedAt: m.GrantedAt.UTC(),
	}
}

func toSyncMetadata(m *model.SyncMetadata) *domain.SyncMetadata {
	return &domain.SyncMetadata{
		EntityType:     m.EntityType,
		SyncKey:        m.SyncKey,
		LocalHash:      m.LocalHash,
		RemoteHash:     m.RemoteHash,
		LosingHash:     m.LosingHash,
		LastSyncAt:     utcPtr(m.LastSyncAt),
		Direction:      domain.Direction(m.Direction),
		ConflictStatus: domain.ConflictStatus(m.ConflictStatus),
		State:          domain.SyncState(m.State),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

// mapSlice 将模型切片转换为领域切片，空输入返回非 nil 空切片.
func mapSlice[M any, D any](in []M, fn func(*M) *D) []D {
	out := make([]D, 0, len(in))
	for i := range in {
		out = append(out, *fn(&in[i]))
	}

	return out
}

package domain

import "time"

// TrashItem 回收站条目，Snapshot 保存被移除记录的 JSON 快照.
type TrashItem struct {
	ID            int64     `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntitySyncKey string    `json:"entity_sync_key"`
	Name          string    `json:"name"`
	ProjectID     *int64    `json:"project_id"`
	DeletedBy     string    `json:"deleted_by"`
	DeletedAt     time.Time `json:"deleted_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Snapshot      []byte    `json:"-"`
}

// FileSnapshot 文件及其行.
type FileSnapshot struct {
	File File  `json:"file"`
	Rows []Row `json:"rows"`
}

// TMSnapshot TM 及其条目与分配.
type TMSnapshot struct {
	TM         TranslationMemory `json:"tm"`
	Entries    []TMEntry         `json:"entries"`
	Assignment *TMAssignment     `json:"assignment,omitempty"`
}

// Snapshot 回收站快照，按删除入口填充相应字段.
// Folders 按父在前的顺序排列，恢复时依序重建.
type Snapshot struct {
	Project *Project       `json:"project,omitempty"`
	Folders []Folder       `json:"folders,omitempty"`
	Files   []FileSnapshot `json:"files,omitempty"`
	TM      *TMSnapshot    `json:"tm,omitempty"`
}

// SyncKeys 返回快照中所有可同步实体的 sync key.
func (s *Snapshot) SyncKeys() []string {
	keys := make([]string, 0)

	if s.Project != nil {
		keys = append(keys, s.Project.SyncKey)
	}

	for _, f := range s.Folders {
		keys = append(keys, f.SyncKey)
	}

	for _, f := range s.Files {
		keys = append(keys, f.File.SyncKey)
	}

	if s.TM != nil {
		keys = append(keys, s.TM.TM.SyncKey)
	}

	return keys
}

package local

import (
	"database/sql"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

const (
	tablePlatforms    = "platforms"
	tableProjects     = "projects"
	tableFolders      = "folders"
	tableFiles        = "files"
	tableRows         = "file_rows"
	tableTMs          = "translation_memories"
	tableTMEntries    = "tm_entries"
	tableAssignments  = "tm_assignments"
	tableQAResults    = "qa_results"
	tableTrash        = "trash_items"
	tableCapabilities = "capabilities"
	tableSyncMetadata = "sync_metadata"
)

var (
	platformCols   = []string{"id", "sync_key", "name", "owner", "description", "created_at", "updated_at"}
	projectCols    = []string{"id", "sync_key", "platform_id", "name", "owner", "description", "created_at", "updated_at"}
	folderCols     = []string{"id", "sync_key", "project_id", "parent_id", "name", "created_at", "updated_at"}
	fileCols       = []string{"id", "sync_key", "project_id", "folder_id", "name", "format", "source_lang", "target_lang", "row_count", "sync_status", "created_at", "updated_at"}
	rowCols        = []string{"id", "sync_key", "file_id", "row_num", "source", "target", "string_id", "status", "memo", "created_at", "updated_at"}
	tmCols         = []string{"id", "sync_key", "name", "source_lang", "target_lang", "owner", "description", "entry_count", "created_at", "updated_at"}
	tmEntryCols    = []string{"id", "sync_key", "tm_id", "source", "target", "created_at"}
	assignmentCols = []string{"tm_id", "platform_id", "project_id", "folder_id", "is_active", "assigned_by", "assigned_at"}
	qaCols         = []string{"id", "file_id", "row_id", "check_type", "severity", "message", "resolved", "created_at", "updated_at"}
	trashCols      = []string{"id", "entity_type", "entity_sync_key", "name", "project_id", "deleted_by", "deleted_at", "expires_at", "snapshot"}
	capabilityCols = []string{"id", "user_name", "name", "granted_by", "granted_at"}
	syncMetaCols   = []string{"entity_type", "sync_key", "local_hash", "remote_hash", "losing_hash", "last_sync_at", "sync_direction", "conflict_status", "state", "updated_at"}
)

func scanPlatform(sc scanner) (*domain.Platform, error) {
	var (
		p                domain.Platform
		created, updated int64
	)

	if err := sc.Scan(&p.ID, &p.SyncKey, &p.Name, &p.Owner, &p.Description, &created, &updated); err != nil {
		return nil, err
	}

	p.CreatedAt, p.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &p, nil
}

func scanProject(sc scanner) (*domain.Project, error) {
	var (
		p                domain.Project
		platformID       sql.NullInt64
		created, updated int64
	)

	if err := sc.Scan(&p.ID, &p.SyncKey, &platformID, &p.Name, &p.Owner, &p.Description, &created, &updated); err != nil {
		return nil, err
	}

	p.PlatformID = intPtr(platformID)
	p.CreatedAt, p.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &p, nil
}

func scanFolder(sc scanner) (*domain.Folder, error) {
	var (
		f                domain.Folder
		parentID         sql.NullInt64
		created, updated int64
	)

	if err := sc.Scan(&f.ID, &f.SyncKey, &f.ProjectID, &parentID, &f.Name, &created, &updated); err != nil {
		return nil, err
	}

	f.ParentID = intPtr(parentID)
	f.CreatedAt, f.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &f, nil
}

func scanFile(sc scanner) (*domain.File, error) {
	var (
		f                domain.File
		folderID         sql.NullInt64
		status           string
		created, updated int64
	)

	if err := sc.Scan(&f.ID, &f.SyncKey, &f.ProjectID, &folderID, &f.Name, &f.Format, &f.SourceLang, &f.TargetLang,
		&f.RowCount, &status, &created, &updated); err != nil {
		return nil, err
	}

	f.FolderID = intPtr(folderID)
	f.SyncStatus = domain.SyncStatus(status)
	f.CreatedAt, f.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &f, nil
}

func scanRow(sc scanner) (*domain.Row, error) {
	var (
		r                domain.Row
		status           string
		created, updated int64
	)

	if err := sc.Scan(&r.ID, &r.SyncKey, &r.FileID, &r.RowNum, &r.Source, &r.Target, &r.StringID, &status, &r.Memo,
		&created, &updated); err != nil {
		return nil, err
	}

	r.Status = domain.RowStatus(status)
	r.CreatedAt, r.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &r, nil
}

func scanTM(sc scanner) (*domain.TranslationMemory, error) {
	var (
		t                domain.TranslationMemory
		created, updated int64
	)

	if err := sc.Scan(&t.ID, &t.SyncKey, &t.Name, &t.SourceLang, &t.TargetLang, &t.Owner, &t.Description, &t.EntryCount,
		&created, &updated); err != nil {
		return nil, err
	}

	t.CreatedAt, t.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &t, nil
}

func scanTMEntry(sc scanner) (*domain.TMEntry, error) {
	var (
		e       domain.TMEntry
		created int64
	)

	if err := sc.Scan(&e.ID, &e.SyncKey, &e.TMID, &e.Source, &e.Target, &created); err != nil {
		return nil, err
	}

	e.CreatedAt = fromNanos(created)

	return &e, nil
}

func scanAssignment(sc scanner) (*domain.TMAssignment, error) {
	var (
		a                             domain.TMAssignment
		platformID, projectID, folder sql.NullInt64
		assigned                      int64
	)

	if err := sc.Scan(&a.TMID, &platformID, &projectID, &folder, &a.IsActive, &a.AssignedBy, &assigned); err != nil {
		return nil, err
	}

	a.Scope = domain.Scope{PlatformID: intPtr(platformID), ProjectID: intPtr(projectID), FolderID: intPtr(folder)}
	a.AssignedAt = fromNanos(assigned)

	return &a, nil
}

func scanQAResult(sc scanner) (*domain.QAResult, error) {
	var (
		q                domain.QAResult
		severity         string
		created, updated int64
	)

	if err := sc.Scan(&q.ID, &q.FileID, &q.RowID, &q.CheckType, &severity, &q.Message, &q.Resolved, &created, &updated); err != nil {
		return nil, err
	}

	q.Severity = domain.Severity(severity)
	q.CreatedAt, q.UpdatedAt = fromNanos(created), fromNanos(updated)

	return &q, nil
}

func scanTrashItem(sc scanner) (*domain.TrashItem, error) {
	var (
		t                domain.TrashItem
		projectID        sql.NullInt64
		deleted, expires int64
	)

	if err := sc.Scan(&t.ID, &t.EntityType, &t.EntitySyncKey, &t.Name, &projectID, &t.DeletedBy, &deleted, &expires,
		&t.Snapshot); err != nil {
		return nil, err
	}

	t.ProjectID = intPtr(projectID)
	t.DeletedAt, t.ExpiresAt = fromNanos(deleted), fromNanos(expires)

	return &t, nil
}

func scanCapability(sc scanner) (*domain.Capability, error) {
	var (
		c       domain.Capability
		granted int64
	)

	if err := sc.Scan(&c.ID, &c.User, &c.Name, &c.GrantedBy, &granted); err != nil {
		return nil, err
	}

	c.GrantedAt = fromNanos(granted)

	return &c, nil
}

func scanSyncMetadata(sc scanner) (*domain.SyncMetadata, error) {
	var (
		m                          domain.SyncMetadata
		lastSync                   sql.NullInt64
		direction, conflict, state string
		updated                    int64
	)

	if err := sc.Scan(&m.EntityType, &m.SyncKey, &m.LocalHash, &m.RemoteHash, &m.LosingHash, &lastSync,
		&direction, &conflict, &state, &updated); err != nil {
		return nil, err
	}

	m.LastSyncAt = timePtr(lastSync)
	m.Direction = domain.Direction(direction)
	m.ConflictStatus = domain.ConflictStatus(conflict)
	m.State = domain.SyncState(state)
	m.UpdatedAt = fromNanos(updated)

	return &m, nil
}

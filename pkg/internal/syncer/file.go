package syncer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// chain 一个文件或文件夹在某一侧的父链，文件夹从根到叶.
type chain struct {
	platform string
	project  string
	folders  []string
}

func (r *run) chainOf(ctx context.Context, k *keyCache, b *repo.Bundle, projectID int64, folderID *int64) (chain, error) {
	var c chain

	p, err := b.Projects.Get(ctx, projectID)
	if err != nil {
		return c, err
	}

	k.projects[p.ID] = p.SyncKey
	c.project = p.SyncKey

	if c.platform, err = k.platform(ctx, p.PlatformID); err != nil {
		return c, err
	}

	if folderID == nil {
		return c, nil
	}

	anc, err := b.Folders.Ancestors(ctx, *folderID)
	if err != nil {
		return c, err
	}

	for i := len(anc) - 1; i >= 0; i-- {
		k.folders[anc[i].ID] = anc[i].SyncKey
		c.folders = append(c.folders, anc[i].SyncKey)
	}

	return c, nil
}

// ensure 按 平台 → 项目 → 文件夹 的顺序同步父链.
func (r *run) ensure(ctx context.Context, chains ...chain) error {
	for _, c := range chains {
		if c.platform == "" {
			continue
		}

		if _, err := r.syncPlatform(ctx, c.platform); err != nil {
			return err
		}
	}

	for _, c := range chains {
		if _, err := r.syncProject(ctx, c.project); err != nil {
			return err
		}
	}

	for _, c := range chains {
		for _, key := range c.folders {
			if _, err := r.syncFolder(ctx, key); err != nil {
				return err
			}
		}
	}

	return nil
}

// parent 每个父记录在一次操作中只同步一次.
func (r *run) parent(ctx context.Context, entity, key string, build func(ctx context.Context) (entitySync, error)) (result, error) {
	id := entity + "/" + key
	if res, ok := r.parents[id]; ok {
		return res, nil
	}

	es, err := build(ctx)
	if err != nil {
		return result{}, err
	}

	res, err := r.apply(ctx, es)
	if err != nil {
		return result{}, fmt.Errorf("sync %s: %w", describe(entity, key), err)
	}

	r.parents[id] = res

	return res, nil
}

func (r *run) syncPlatform(ctx context.Context, key string) (result, error) {
	return r.parent(ctx, domain.EntityPlatform, key, func(ctx context.Context) (entitySync, error) {
		es := entitySync{entity: domain.EntityPlatform, key: key}

		lp, err := lookup(r.e.local.Platforms.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		cp, err := lookup(r.e.central.Platforms.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		if lp != nil {
			es.name = lp.Name
			es.local = &record{hash: hashPlatform(lp), updatedAt: lp.UpdatedAt}
		}

		if cp != nil {
			es.name = cp.Name
			es.remote = &record{hash: hashPlatform(cp), updatedAt: cp.UpdatedAt}
		}

		es.pull = func(ctx context.Context) error {
			p := *cp
			p.ID = 0
			_, err := r.e.local.Platforms.Upsert(ctx, p)

			return err
		}

		es.push = func(ctx context.Context) error {
			p := *lp
			p.ID = 0
			_, err := r.e.central.Platforms.Upsert(ctx, p)

			return err
		}

		return es, nil
	})
}

func (r *run) syncProject(ctx context.Context, key string) (result, error) {
	return r.parent(ctx, domain.EntityProject, key, func(ctx context.Context) (entitySync, error) {
		es := entitySync{entity: domain.EntityProject, key: key}

		lp, err := lookup(r.e.local.Projects.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		cp, err := lookup(r.e.central.Projects.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		var localPlatform, centralPlatform string

		if lp != nil {
			if localPlatform, err = r.localKeys.platform(ctx, lp.PlatformID); err != nil {
				return es, err
			}

			es.name = lp.Name
			es.local = &record{hash: hashProject(lp, localPlatform), updatedAt: lp.UpdatedAt}
		}

		if cp != nil {
			if centralPlatform, err = r.centralKeys.platform(ctx, cp.PlatformID); err != nil {
				return es, err
			}

			es.name = cp.Name
			es.remote = &record{hash: hashProject(cp, centralPlatform), updatedAt: cp.UpdatedAt}
		}

		es.pull = func(ctx context.Context) error {
			p := *cp
			p.ID = 0

			var err error
			if p.PlatformID, err = platformID(ctx, r.e.local, centralPlatform); err != nil {
				return err
			}

			_, err = r.e.local.Projects.Upsert(ctx, p)

			return err
		}

		es.push = func(ctx context.Context) error {
			p := *lp
			p.ID = 0

			var err error
			if p.PlatformID, err = platformID(ctx, r.e.central, localPlatform); err != nil {
				return err
			}

			_, err = r.e.central.Projects.Upsert(ctx, p)

			return err
		}

		return es, nil
	})
}

func (r *run) syncFolder(ctx context.Context, key string) (result, error) {
	return r.parent(ctx, domain.EntityFolder, key, func(ctx context.Context) (entitySync, error) {
		es := entitySync{entity: domain.EntityFolder, key: key}

		lf, err := lookup(r.e.local.Folders.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		cf, err := lookup(r.e.central.Folders.GetBySyncKey(ctx, key))
		if err != nil {
			return es, err
		}

		var lProject, lParent, cProject, cParent string

		if lf != nil {
			if lProject, err = r.localKeys.project(ctx, lf.ProjectID); err != nil {
				return es, err
			}

			if lParent, err = r.localKeys.folder(ctx, lf.ParentID); err != nil {
				return es, err
			}

			es.name = lf.Name
			es.local = &record{hash: hashFolder(lf, lProject, lParent), updatedAt: lf.UpdatedAt}
		}

		if cf != nil {
			if cProject, err = r.centralKeys.project(ctx, cf.ProjectID); err != nil {
				return es, err
			}

			if cParent, err = r.centralKeys.folder(ctx, cf.ParentID); err != nil {
				return es, err
			}

			es.name = cf.Name
			es.remote = &record{hash: hashFolder(cf, cProject, cParent), updatedAt: cf.UpdatedAt}
		}

		es.pull = func(ctx context.Context) error {
			f := *cf
			f.ID = 0

			var err error
			if f.ProjectID, err = projectID(ctx, r.e.local, cProject); err != nil {
				return err
			}

			if f.ParentID, err = folderID(ctx, r.e.local, cParent); err != nil {
				return err
			}

			_, err = r.e.local.Folders.Upsert(ctx, f)

			return err
		}

		es.push = func(ctx context.Context) error {
			f := *lf
			f.ID = 0

			var err error
			if f.ProjectID, err = projectID(ctx, r.e.central, lProject); err != nil {
				return err
			}

			if f.ParentID, err = folderID(ctx, r.e.central, lParent); err != nil {
				return err
			}

			_, err = r.e.central.Folders.Upsert(ctx, f)

			return err
		}

		return es, nil
	})
}

// syncFile 同步一个文件：先父链，再文件记录，最后逐行.
func (r *run) syncFile(ctx context.Context, lf, cf *domain.File) (Item, error) {
	it := Item{Entity: domain.EntityFile}
	if lf != nil {
		it.SyncKey, it.Name = lf.SyncKey, lf.Name
	} else {
		it.SyncKey, it.Name = cf.SyncKey, cf.Name
	}

	if lf != nil && lf.SyncStatus == domain.SyncStatusOrphaned {
		it.Outcome = OutcomeSkipped
		it.Reason = "file is orphaned; reassign or convert it to local-only first"

		return it, nil
	}

	if cf != nil && r.dir.AllowsPush() {
		release, err := r.e.lockFile(ctx, cf.ID)
		if err != nil {
			if domain.KindOf(err) == domain.KindLocked {
				it.Outcome, it.Reason = OutcomeSkipped, err.Error()

				return it, nil
			}

			return it, err
		}
		defer release()
	}

	var chains []chain

	if lf != nil {
		c, err := r.chainOf(ctx, r.localKeys, r.e.local, lf.ProjectID, lf.FolderID)
		if err != nil {
			return it, err
		}

		chains = append(chains, c)
	}

	if cf != nil {
		c, err := r.chainOf(ctx, r.centralKeys, r.e.central, cf.ProjectID, cf.FolderID)
		if err != nil {
			return it, err
		}

		chains = append(chains, c)
	}

	if err := r.ensure(ctx, chains...); err != nil {
		return it, err
	}

	es, err := r.fileSync(ctx, lf, cf)
	if err != nil {
		return it, err
	}

	res, err := r.apply(ctx, es)
	if err != nil {
		return it, fmt.Errorf("sync %s: %w", describe(domain.EntityFile, it.SyncKey), err)
	}

	it.Outcome, it.Action, it.Reason = res.outcome, res.action, res.reason

	switch res.outcome {
	case OutcomeOrphaned:
		if lf != nil {
			if err := r.e.local.Files.SetSyncStatus(ctx, lf.ID, domain.SyncStatusOrphaned); err != nil {
				return it, err
			}
		}

		return it, nil
	case OutcomeSkipped, OutcomeNone:
		return it, nil
	}

	lf, err = lookup(r.e.local.Files.GetBySyncKey(ctx, it.SyncKey))
	if err != nil {
		return it, err
	}

	cf, err = lookup(r.e.central.Files.GetBySyncKey(ctx, it.SyncKey))
	if err != nil {
		return it, err
	}

	if lf == nil || cf == nil {
		return it, nil
	}

	moved, pending, err := r.syncRows(ctx, lf, cf)
	if err != nil {
		return it, err
	}

	it.Rows = moved

	status := domain.SyncStatusSynced
	if res.outcome == OutcomeModified || pending {
		status = domain.SyncStatusModified
	}

	if pending && it.Outcome == OutcomeSynced {
		it.Outcome, it.Reason = OutcomeModified, "rows pending"
	}

	if err := r.e.local.Files.SetSyncStatus(ctx, lf.ID, status); err != nil {
		return it, err
	}

	if status == domain.SyncStatusSynced && cf.SyncStatus != domain.SyncStatusSynced && r.dir.AllowsPush() {
		if err := r.e.central.Files.SetSyncStatus(ctx, cf.ID, domain.SyncStatusSynced); err != nil {
			return it, err
		}
	}

	return it, nil
}

func (r *run) fileSync(ctx context.Context, lf, cf *domain.File) (entitySync, error) {
	es := entitySync{entity: domain.EntityFile}

	var lProject, lFolder, cProject, cFolder string

	var err error

	if lf != nil {
		if lProject, err = r.localKeys.project(ctx, lf.ProjectID); err != nil {
			return es, err
		}

		if lFolder, err = r.localKeys.folder(ctx, lf.FolderID); err != nil {
			return es, err
		}

		es.key, es.name = lf.SyncKey, lf.Name
		es.local = &record{hash: hashFile(lf, lProject, lFolder), updatedAt: lf.UpdatedAt}
	}

	if cf != nil {
		if cProject, err = r.centralKeys.project(ctx, cf.ProjectID); err != nil {
			return es, err
		}

		if cFolder, err = r.centralKeys.folder(ctx, cf.FolderID); err != nil {
			return es, err
		}

		es.key, es.name = cf.SyncKey, cf.Name
		es.remote = &record{hash: hashFile(cf, cProject, cFolder), updatedAt: cf.UpdatedAt}
	}

	es.pull = func(ctx context.Context) error {
		f := *cf
		f.ID = 0
		f.SyncStatus = domain.SyncStatusSynced

		var err error

		if f.ProjectID, err = projectID(ctx, r.e.local, cProject); err != nil {
			return err
		}

		if f.FolderID, err = folderID(ctx, r.e.local, cFolder); err != nil {
			return err
		}

		_, err = r.e.local.Files.Upsert(ctx, f)

		return err
	}

	es.push = func(ctx context.Context) error {
		f := *lf
		f.ID = 0
		f.SyncStatus = domain.SyncStatusSynced

		var err error

		if f.ProjectID, err = projectID(ctx, r.e.central, lProject); err != nil {
			return err
		}

		if f.FolderID, err = folderID(ctx, r.e.central, lFolder); err != nil {
			return err
		}

		_, err = r.e.central.Files.Upsert(ctx, f)

		return err
	}

	return es, nil
}

// syncRows 逐行决策，返回传输的行数以及是否仍有未同步的行.
func (r *run) syncRows(ctx context.Context, lf, cf *domain.File) (int, bool, error) {
	lrows, err := r.e.local.Rows.GetAll(ctx, domain.RowFilter{FileID: lf.ID})
	if err != nil {
		return 0, false, err
	}

	crows, err := r.e.central.Rows.GetAll(ctx, domain.RowFilter{FileID: cf.ID})
	if err != nil {
		return 0, false, err
	}

	locals := make(map[string]*domain.Row, len(lrows))
	for i := range lrows {
		locals[lrows[i].SyncKey] = &lrows[i]
	}

	centrals := make(map[string]*domain.Row, len(crows))
	keys := make([]string, 0, len(crows)+len(lrows))

	for i := range crows {
		centrals[crows[i].SyncKey] = &crows[i]
		keys = append(keys, crows[i].SyncKey)
	}

	for _, row := range lrows {
		if _, ok := centrals[row.SyncKey]; !ok {
			keys = append(keys, row.SyncKey)
		}
	}

	var (
		moved   int
		pending bool
	)

	for _, key := range keys {
		lr, cr := locals[key], centrals[key]

		es := entitySync{entity: domain.EntityRow, key: key}

		if lr != nil {
			es.name = strconv.Itoa(lr.RowNum)
			es.local = &record{hash: hashRow(lr), updatedAt: lr.UpdatedAt}
		}

		if cr != nil {
			es.name = strconv.Itoa(cr.RowNum)
			es.remote = &record{hash: hashRow(cr), updatedAt: cr.UpdatedAt}
		}

		es.pull = func(ctx context.Context) error {
			row := *cr
			row.ID, row.FileID = 0, lf.ID
			_, err := r.e.local.Rows.Upsert(ctx, row)

			return err
		}

		es.push = func(ctx context.Context) error {
			row := *lr
			row.ID, row.FileID = 0, cf.ID
			_, err := r.e.central.Rows.Upsert(ctx, row)

			return err
		}

		res, err := r.apply(ctx, es)
		if err != nil {
			return moved, pending, fmt.Errorf("sync %s: %w", describe(domain.EntityRow, key), err)
		}

		if res.action != "" {
			moved++
		}

		if res.outcome != OutcomeSynced && res.outcome != OutcomeNone {
			pending = true
		}
	}

	return moved, pending, nil
}

func platformID(ctx context.Context, b *repo.Bundle, key string) (*int64, error) {
	if key == "" {
		return nil, nil
	}

	p, err := lookup(b.Platforms.GetBySyncKey(ctx, key))
	if err != nil {
		return nil, err
	}

	if p == nil {
		return nil, fmt.Errorf("%s: %w", describe(domain.EntityPlatform, key), errParentMissing)
	}

	return &p.ID, nil
}

func projectID(ctx context.Context, b *repo.Bundle, key string) (int64, error) {
	p, err := lookup(b.Projects.GetBySyncKey(ctx, key))
	if err != nil {
		return 0, err
	}

	if p == nil {
		return 0, fmt.Errorf("%s: %w", describe(domain.EntityProject, key), errParentMissing)
	}

	return p.ID, nil
}

func folderID(ctx context.Context, b *repo.Bundle, key string) (*int64, error) {
	if key == "" {
		return nil, nil
	}

	f, err := lookup(b.Folders.GetBySyncKey(ctx, key))
	if err != nil {
		return nil, err
	}

	if f == nil {
		return nil, fmt.Errorf("%s: %w", describe(domain.EntityFolder, key), errParentMissing)
	}

	return &f.ID, nil
}

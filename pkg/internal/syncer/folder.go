package syncer

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// DownloadFolder 将中心库文件夹子树拉到本地库，文件之间检查取消.
func (e *Engine) DownloadFolder(ctx context.Context, centralFolderID int64) (*Report, error) {
	r := e.newRun(domain.DirectionDownload, "download-folder")

	cf, err := e.central.Folders.Get(ctx, centralFolderID)
	if err != nil {
		return nil, err
	}

	lf, err := lookup(e.local.Folders.GetBySyncKey(ctx, cf.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.folder(ctx, lf, cf)
}

// UploadFolder 将本地文件夹子树推送到中心库.
func (e *Engine) UploadFolder(ctx context.Context, localFolderID int64) (*Report, error) {
	r := e.newRun(domain.DirectionUpload, "upload-folder")

	lf, err := e.local.Folders.Get(ctx, localFolderID)
	if err != nil {
		return nil, err
	}

	cf, err := lookup(e.central.Folders.GetBySyncKey(ctx, lf.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.folder(ctx, lf, cf)
}

// folder 同步文件夹子树；取消时返回已完成部分的报告与 ctx.Err().
func (r *run) folder(ctx context.Context, lfo, cfo *domain.Folder) (*Report, error) {
	ctx, span := startSpan(ctx, r)
	defer span.End()

	key := ""

	var (
		chains         []chain
		lfolds, cfolds []domain.Folder
		lfiles, cfiles []domain.File
		err            error
	)

	if lfo != nil {
		key = lfo.SyncKey

		c, err := r.chainOf(ctx, r.localKeys, r.e.local, lfo.ProjectID, &lfo.ID)
		if err != nil {
			return nil, err
		}

		chains = append(chains, c)

		if lfolds, lfiles, err = subtree(ctx, r.e.local, lfo); err != nil {
			return nil, err
		}
	}

	if cfo != nil {
		key = cfo.SyncKey

		c, err := r.chainOf(ctx, r.centralKeys, r.e.central, cfo.ProjectID, &cfo.ID)
		if err != nil {
			return nil, err
		}

		chains = append(chains, c)

		if cfolds, cfiles, err = subtree(ctx, r.e.central, cfo); err != nil {
			return nil, err
		}
	}

	// 取消后以已完成部分作为报告返回
	stop := func(err error) (*Report, error) {
		if cerr := ctx.Err(); cerr != nil {
			r.report.Cancelled = true
			err = cerr
		}

		if !r.report.Cancelled {
			span.RecordError(err)
		}

		return r.done(ctx, key, err)
	}

	if err = r.ensure(ctx, chains...); err != nil {
		return stop(err)
	}

	for _, list := range [][]domain.Folder{cfolds, lfolds} {
		for _, f := range list {
			if _, err := r.syncFolder(ctx, f.SyncKey); err != nil {
				return stop(err)
			}
		}
	}

	seen := make(map[string]bool, len(cfiles)+len(lfiles))

	next := func(lf, cf *domain.File) error {
		it, err := r.syncFile(ctx, lf, cf)
		if err != nil {
			return err
		}

		r.record(it)

		return nil
	}

	for i := range cfiles {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}

		cf := &cfiles[i]
		seen[cf.SyncKey] = true

		lf, err := lookup(r.e.local.Files.GetBySyncKey(ctx, cf.SyncKey))
		if err != nil {
			return stop(err)
		}

		if err := next(lf, cf); err != nil {
			return stop(err)
		}
	}

	for i := range lfiles {
		if err := ctx.Err(); err != nil {
			return stop(err)
		}

		lf := &lfiles[i]
		if seen[lf.SyncKey] {
			continue
		}

		cf, err := lookup(r.e.central.Files.GetBySyncKey(ctx, lf.SyncKey))
		if err != nil {
			return stop(err)
		}

		if err := next(lf, cf); err != nil {
			return stop(err)
		}
	}

	return r.done(ctx, key, nil)
}

// done 结束报告；取消属于合法的终止状态.
func (r *run) done(ctx context.Context, key string, err error) (*Report, error) {
	if err != nil && !r.report.Cancelled {
		return r.report, err
	}

	r.finish(ctx, key)

	return r.report, err
}

// subtree 返回根之下的文件夹（广度优先）以及子树中的全部文件.
func subtree(ctx context.Context, b *repo.Bundle, root *domain.Folder) ([]domain.Folder, []domain.File, error) {
	var (
		folders []domain.Folder
		files   []domain.File
	)

	queue := []int64{root.ID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		fs, err := b.Files.GetAll(ctx, domain.FileFilter{FolderID: &id})
		if err != nil {
			return nil, nil, err
		}

		files = append(files, fs...)

		children, err := b.Folders.GetAll(ctx, domain.FolderFilter{ParentID: &id})
		if err != nil {
			return nil, nil, err
		}

		for _, c := range children {
			folders = append(folders, c)
			queue = append(queue, c.ID)
		}
	}

	return folders, files, nil
}

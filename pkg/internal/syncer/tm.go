package syncer

import (
	"context"
	"fmt"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

// DownloadTM 拉取中心库 TM 及其条目.
func (e *Engine) DownloadTM(ctx context.Context, centralTMID int64) (*Report, error) {
	r := e.newRun(domain.DirectionDownload, "download-tm")

	ct, err := e.central.TMs.Get(ctx, centralTMID)
	if err != nil {
		return nil, err
	}

	lt, err := lookup(e.local.TMs.GetBySyncKey(ctx, ct.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.one(ctx, ct.SyncKey, func(ctx context.Context) (Item, error) { return r.syncTM(ctx, lt, ct) })
}

// UploadTM 推送本地 TM 及其条目.
func (e *Engine) UploadTM(ctx context.Context, localTMID int64) (*Report, error) {
	r := e.newRun(domain.DirectionUpload, "upload-tm")

	lt, err := e.local.TMs.Get(ctx, localTMID)
	if err != nil {
		return nil, err
	}

	ct, err := lookup(e.central.TMs.GetBySyncKey(ctx, lt.SyncKey))
	if err != nil {
		return nil, err
	}

	return r.one(ctx, lt.SyncKey, func(ctx context.Context) (Item, error) { return r.syncTM(ctx, lt, ct) })
}

// syncTM 先同步 TM 记录，再按 sync key 追加对方缺少的条目.
// 分配属于各存储自己的配置，不参与同步.
func (r *run) syncTM(ctx context.Context, lt, ct *domain.TranslationMemory) (Item, error) {
	it := Item{Entity: domain.EntityTM}
	es := entitySync{entity: domain.EntityTM}

	if lt != nil {
		it.SyncKey, it.Name = lt.SyncKey, lt.Name
		es.local = &record{hash: hashTM(lt), updatedAt: lt.UpdatedAt}
	}

	if ct != nil {
		it.SyncKey, it.Name = ct.SyncKey, ct.Name
		es.remote = &record{hash: hashTM(ct), updatedAt: ct.UpdatedAt}
	}

	es.key, es.name = it.SyncKey, it.Name

	es.pull = func(ctx context.Context) error {
		tm := *ct
		tm.ID = 0
		_, err := r.e.local.TMs.Upsert(ctx, tm)

		return err
	}

	es.push = func(ctx context.Context) error {
		tm := *lt
		tm.ID = 0
		_, err := r.e.central.TMs.Upsert(ctx, tm)

		return err
	}

	res, err := r.apply(ctx, es)
	if err != nil {
		return it, fmt.Errorf("sync %s: %w", describe(domain.EntityTM, it.SyncKey), err)
	}

	it.Outcome, it.Action, it.Reason = res.outcome, res.action, res.reason

	switch res.outcome {
	case OutcomeSkipped, OutcomeNone, OutcomeOrphaned:
		return it, nil
	}

	lt, err = lookup(r.e.local.TMs.GetBySyncKey(ctx, it.SyncKey))
	if err != nil {
		return it, err
	}

	ct, err = lookup(r.e.central.TMs.GetBySyncKey(ctx, it.SyncKey))
	if err != nil {
		return it, err
	}

	if lt == nil || ct == nil {
		return it, nil
	}

	if r.dir.AllowsPull() {
		entries, err := r.e.central.TMs.Entries(ctx, ct.ID)
		if err != nil {
			return it, err
		}

		n, err := r.e.local.TMs.UpsertEntries(ctx, lt.ID, entries)
		if err != nil {
			return it, err
		}

		it.Entries += n
	}

	if r.dir.AllowsPush() {
		entries, err := r.e.local.TMs.Entries(ctx, lt.ID)
		if err != nil {
			return it, err
		}

		n, err := r.e.central.TMs.UpsertEntries(ctx, ct.ID, entries)
		if err != nil {
			return it, err
		}

		it.Entries += n
	}

	return it, nil
}

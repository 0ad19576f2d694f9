package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	nlog "github.com/yeisme/tmvault/pkg/log"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/queue"
)

// errParentMissing 目标存储中缺少父记录，无法写入.
var errParentMissing = errors.New("parent record missing in target store")

// logger 返回同步组件的 logger，带上 ctx 中的追踪 id.
func logger(ctx context.Context) *zerolog.Logger {
	l := nlog.Ctx(ctx, nlog.Component("syncer"))

	return &l
}

// record 一侧实体的可比较状态.
type record struct {
	hash      string
	updatedAt time.Time
}

// entitySync 一个实体在两侧的状态与写入方法.
type entitySync struct {
	entity string
	key    string
	name   string
	local  *record
	remote *record
	// pull 用中心库版本覆盖本地库，push 反之.
	pull func(ctx context.Context) error
	push func(ctx context.Context) error
}

type verdict int

const (
	verdictNone verdict = iota
	verdictSynced
	verdictPull
	verdictPush
	verdictOrphan
	verdictConflict
)

// previouslySynced 报告元数据是否记录过一次成功同步.
func previouslySynced(meta *domain.SyncMetadata) bool {
	return meta != nil && meta.LastSyncAt != nil
}

// decide 根据上次同步时的哈希判断本次动作.
func decide(meta *domain.SyncMetadata, local, remote *record) verdict {
	switch {
	case local == nil && remote == nil:
		return verdictNone
	case local == nil:
		return verdictPull
	case remote == nil:
		if previouslySynced(meta) {
			return verdictOrphan
		}

		return verdictPush
	case local.hash == remote.hash:
		return verdictSynced
	case !previouslySynced(meta):
		return verdictConflict
	}

	localChanged := local.hash != meta.LocalHash
	remoteChanged := remote.hash != meta.RemoteHash

	switch {
	case remoteChanged && !localChanged:
		return verdictPull
	case localChanged && !remoteChanged:
		return verdictPush
	default:
		return verdictConflict
	}
}

// result apply 的结果.
type result struct {
	outcome Outcome
	action  string
	reason  string
}

// run 一次同步操作的状态.
type run struct {
	e      *Engine
	dir    domain.Direction
	report *Report

	localKeys   *keyCache
	centralKeys *keyCache
	parents     map[string]result
}

func (e *Engine) newRun(dir domain.Direction, op string) *run {
	return &run{
		e:           e,
		dir:         dir,
		report:      &Report{Operation: op, Direction: dir, Items: []Item{}, Conflicts: []ConflictNotice{}},
		localKeys:   newKeyCache(e.local),
		centralKeys: newKeyCache(e.central),
		parents:     make(map[string]result),
	}
}

// apply 决策并执行一个实体的同步，写入元数据.
func (r *run) apply(ctx context.Context, es entitySync) (result, error) {
	meta, err := lookup(r.e.local.SyncMeta.Get(ctx, es.entity, es.key))
	if err != nil {
		return result{}, err
	}

	var res result

	switch decide(meta, es.local, es.remote) {
	case verdictNone:
		return result{outcome: OutcomeNone}, nil
	case verdictSynced:
		err = r.putMeta(ctx, es, meta, es.local.hash, es.remote.hash, "", domain.ConflictNone, domain.StateSynced, true)
		res = result{outcome: OutcomeSynced}
	case verdictPull:
		res, err = r.pull(ctx, es, meta, domain.ConflictNone, "")
	case verdictPush:
		res, err = r.push(ctx, es, meta, domain.ConflictNone, "")
	case verdictOrphan:
		err = r.putMeta(ctx, es, meta, meta.LocalHash, meta.RemoteHash, meta.LosingHash, meta.ConflictStatus, domain.StateOrphaned, false)
		res = result{outcome: OutcomeOrphaned, reason: "missing in central store after a previous sync"}
	case verdictConflict:
		res, err = r.conflict(ctx, es, meta)
	}

	if err != nil {
		return result{}, err
	}

	metrics.SyncTransfers.WithLabelValues(string(r.dir), es.entity, string(res.outcome)).Inc()

	return res, nil
}

func (r *run) pull(ctx context.Context, es entitySync, meta *domain.SyncMetadata, cs domain.ConflictStatus, losing string) (result, error) {
	if !r.dir.AllowsPull() {
		if es.local == nil {
			return result{outcome: OutcomeSkipped, reason: "only in central store"}, nil
		}

		return result{outcome: OutcomeModified, reason: "central changes pending download"}, nil
	}

	if es.local == nil {
		trashed, err := r.e.local.Trash.ContainsSyncKey(ctx, es.key)
		if err != nil {
			return result{}, err
		}

		if trashed {
			return result{outcome: OutcomeSkipped, reason: "in local trash"}, nil
		}
	}

	if err := es.pull(ctx); err != nil {
		if errors.Is(err, errParentMissing) {
			return result{outcome: OutcomeSkipped, reason: err.Error()}, nil
		}

		return result{}, err
	}

	if err := r.putMeta(ctx, es, meta, es.remote.hash, es.remote.hash, losing, cs, domain.StateSynced, true); err != nil {
		return result{}, err
	}

	return result{outcome: OutcomeSynced, action: ActionPull}, nil
}

func (r *run) push(ctx context.Context, es entitySync, meta *domain.SyncMetadata, cs domain.ConflictStatus, losing string) (result, error) {
	if !r.dir.AllowsPush() {
		if !previouslySynced(meta) && es.remote == nil {
			return result{outcome: OutcomeSkipped, reason: "only in local store"}, nil
		}

		return result{outcome: OutcomeModified, reason: "local changes pending upload"}, nil
	}

	if es.remote == nil {
		trashed, err := r.e.central.Trash.ContainsSyncKey(ctx, es.key)
		if err != nil {
			return result{}, err
		}

		if trashed {
			return result{outcome: OutcomeSkipped, reason: "in central trash"}, nil
		}
	}

	if err := es.push(ctx); err != nil {
		switch {
		case errors.Is(err, errParentMissing) && previouslySynced(meta):
			if err := r.putMeta(ctx, es, meta, meta.LocalHash, meta.RemoteHash, meta.LosingHash, meta.ConflictStatus, domain.StateOrphaned, false); err != nil {
				return result{}, err
			}

			return result{outcome: OutcomeOrphaned, reason: err.Error()}, nil
		case errors.Is(err, errParentMissing):
			return result{outcome: OutcomeSkipped, reason: err.Error()}, nil
		case domain.KindOf(err) == domain.KindLocked:
			return result{outcome: OutcomeSkipped, reason: err.Error()}, nil
		}

		return result{}, err
	}

	if err := r.putMeta(ctx, es, meta, es.local.hash, es.local.hash, losing, cs, domain.StateSynced, true); err != nil {
		return result{}, err
	}

	return result{outcome: OutcomeSynced, action: ActionPush}, nil
}

// conflict 后写者胜，相同时间本地胜.
func (r *run) conflict(ctx context.Context, es entitySync, meta *domain.SyncMetadata) (result, error) {
	localWins := !es.local.updatedAt.Before(es.remote.updatedAt)

	notice := ConflictNotice{
		Entity:          es.entity,
		SyncKey:         es.key,
		Name:            es.name,
		LocalUpdatedAt:  es.local.updatedAt,
		RemoteUpdatedAt: es.remote.updatedAt,
	}

	var (
		res domain.ConflictStatus
		out result
		err error
	)

	baseLocal, baseRemote := "", ""
	if meta != nil {
		baseLocal, baseRemote = meta.LocalHash, meta.RemoteHash
	}

	if localWins {
		notice.Winner, notice.LosingHash, res = "local", es.remote.hash, domain.ConflictLocalWon

		if r.dir.AllowsPush() {
			out, err = r.push(ctx, es, meta, res, notice.LosingHash)
		} else {
			// 保留旧的本地基线，下次上传时仍视为本地修改
			err = r.putMeta(ctx, es, meta, baseLocal, es.remote.hash, notice.LosingHash, res, domain.StateModified, false)
			out = result{outcome: OutcomeModified, reason: "local version won; pending upload"}
		}
	} else {
		notice.Winner, notice.LosingHash, res = "remote", es.local.hash, domain.ConflictRemoteWon

		if r.dir.AllowsPull() {
			out, err = r.pull(ctx, es, meta, res, notice.LosingHash)
		} else {
			err = r.putMeta(ctx, es, meta, es.local.hash, baseRemote, notice.LosingHash, res, domain.StateModified, false)
			out = result{outcome: OutcomeModified, reason: "central version won; pending download"}
		}
	}

	if err != nil {
		return result{}, err
	}

	notice.Applied = out.action != ""
	r.notify(ctx, notice)

	return out, nil
}

// notify 记录、发布并统计冲突.
func (r *run) notify(ctx context.Context, n ConflictNotice) {
	r.report.Conflicts = append(r.report.Conflicts, n)
	metrics.SyncConflicts.WithLabelValues(n.Entity, n.Winner).Inc()

	logger(ctx).Warn().
		Str("entity", n.Entity).
		Str("sync_key", n.SyncKey).
		Str("winner", n.Winner).
		Bool("applied", n.Applied).
		Time("local_updated_at", n.LocalUpdatedAt).
		Time("remote_updated_at", n.RemoteUpdatedAt).
		Msg("sync conflict resolved by last write")

	err := queue.PublishSyncConflict(r.e.pub, queue.SyncConflictPayload{
		EntityType:      n.Entity,
		SyncKey:         n.SyncKey,
		Name:            n.Name,
		Direction:       string(r.dir),
		Winner:          n.Winner,
		LosingHash:      n.LosingHash,
		LocalUpdatedAt:  n.LocalUpdatedAt,
		RemoteUpdatedAt: n.RemoteUpdatedAt,
	}, queue.WithSpan(ctx))
	if err != nil {
		logger(ctx).Warn().Err(err).Str("sync_key", n.SyncKey).Msg("publish sync conflict failed")
	}
}

func (r *run) putMeta(ctx context.Context, es entitySync, prev *domain.SyncMetadata, localHash, remoteHash, losing string,
	cs domain.ConflictStatus, state domain.SyncState, synced bool,
) error {
	m := domain.SyncMetadata{
		EntityType:     es.entity,
		SyncKey:        es.key,
		LocalHash:      localHash,
		RemoteHash:     remoteHash,
		LosingHash:     losing,
		Direction:      r.dir,
		ConflictStatus: cs,
		State:          state,
	}

	switch {
	case synced:
		now := r.e.clock()
		m.LastSyncAt = &now
	case prev != nil:
		m.LastSyncAt = prev.LastSyncAt
	}

	_, err := r.e.local.SyncMeta.Put(ctx, m)

	return err
}

// one 执行单个实体的同步并结束报告.
func (r *run) one(ctx context.Context, key string, fn func(ctx context.Context) (Item, error)) (*Report, error) {
	ctx, span := startSpan(ctx, r)
	defer span.End()

	it, err := fn(ctx)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	r.record(it)
	r.finish(ctx, key)

	return r.report, nil
}

func (r *run) record(it Item) {
	r.report.add(it)

	if r.e.progress != nil {
		r.e.progress(it)
	}
}

// finish 记录并发布完成事件.
func (r *run) finish(ctx context.Context, key string) {
	rep := r.report

	logger(ctx).Info().
		Str("operation", rep.Operation).
		Str("sync_key", key).
		Int("synced", rep.Synced).
		Int("modified", rep.Modified).
		Int("skipped", rep.Skipped).
		Int("orphaned", rep.Orphaned).
		Int("conflicts", len(rep.Conflicts)).
		Bool("cancelled", rep.Cancelled).
		Msg("sync finished")

	err := queue.PublishSyncCompleted(r.e.pub, queue.SyncCompletedPayload{
		Operation: rep.Operation,
		Direction: string(rep.Direction),
		SyncKey:   key,
		Synced:    rep.Synced,
		Skipped:   rep.Skipped,
		Orphaned:  rep.Orphaned,
		Conflicts: len(rep.Conflicts),
		Cancelled: rep.Cancelled,
	}, queue.WithSpan(ctx))
	if err != nil {
		logger(ctx).Warn().Err(err).Str("operation", rep.Operation).Msg("publish sync completed failed")
	}
}

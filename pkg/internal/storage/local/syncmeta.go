package local

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

type syncMetaRepo struct {
	s *Store
}

func selectSyncMeta(s *Store) sq.SelectBuilder {
	return s.sq.Select(syncMetaCols...).From(tableSyncMetadata)
}

func (r *syncMetaRepo) Get(ctx context.Context, entityType, key string) (*domain.SyncMetadata, error) {
	return one(ctx, r.s.db, selectSyncMeta(r.s).Where(sq.Eq{"entity_type": entityType, "sync_key": key}),
		scanSyncMetadata, domain.EntitySyncMetadata, entityType+"/"+key)
}

func (r *syncMetaRepo) GetAll(ctx context.Context, filter domain.SyncMetadataFilter) ([]domain.SyncMetadata, error) {
	b := selectSyncMeta(r.s)
	if filter.EntityType != "" {
		b = b.Where(sq.Eq{"entity_type": filter.EntityType})
	}

	if filter.State != "" {
		b = b.Where(sq.Eq{"state": string(filter.State)})
	}

	out, err := all(ctx, r.s.db, b.OrderBy("id"), scanSyncMetadata)

	return out, translate(domain.EntitySyncMetadata, err)
}

// Put 按 (entity_type, sync_key) 插入或覆盖.
func (r *syncMetaRepo) Put(ctx context.Context, meta domain.SyncMetadata) (*domain.SyncMetadata, error) {
	if meta.EntityType == "" || meta.SyncKey == "" {
		return nil, domain.Invalidf(domain.EntitySyncMetadata, "entity type and sync key are required")
	}

	out := meta
	out.UpdatedAt = r.s.now()
	out.LastSyncAt = utcPtr(out.LastSyncAt)

	err := r.s.write(ctx, func(tx querier) error {
		_, err := exec(ctx, tx, r.s.sq.Insert(tableSyncMetadata).
			Columns(syncMetaCols...).
			Values(out.EntityType, out.SyncKey, out.LocalHash, out.RemoteHash, out.LosingHash, nullNanos(out.LastSyncAt),
				string(out.Direction), string(out.ConflictStatus), string(out.State), nanos(out.UpdatedAt)).
			Suffix("ON CONFLICT(entity_type, sync_key) DO UPDATE SET local_hash = excluded.local_hash, "+
				"remote_hash = excluded.remote_hash, losing_hash = excluded.losing_hash, last_sync_at = excluded.last_sync_at, "+
				"sync_direction = excluded.sync_direction, conflict_status = excluded.conflict_status, "+
				"state = excluded.state, updated_at = excluded.updated_at"))

		return err
	})
	if err != nil {
		return nil, translate(domain.EntitySyncMetadata, err)
	}

	return &out, nil
}

// Delete 幂等，记录不存在时不报错.
func (r *syncMetaRepo) Delete(ctx context.Context, entityType, key string) error {
	err := r.s.write(ctx, func(tx querier) error {
		_, err := exec(ctx, tx, r.s.sq.Delete(tableSyncMetadata).Where(sq.Eq{"entity_type": entityType, "sync_key": key}))

		return err
	})

	return translate(domain.EntitySyncMetadata, err)
}

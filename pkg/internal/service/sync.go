package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
	"github.com/yeisme/tmvault/pkg/rule"
)

// SyncService 在中心库与本地库之间同步.
// 引擎以会话身份持有文件锁，因此每个请求单独创建.
type SyncService struct{ base }

// NewSyncService 从 context 创建服务.
func NewSyncService(c context.Context) *SyncService {
	return &SyncService{newBase(c)}
}

// engine 创建绑定到会话的引擎；withCentral 为 false 时只需要本地库.
func (s *SyncService) engine(withCentral bool, opts ...syncer.Option) (*syncer.Engine, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	local, err := s.mgr.Factory.Local()
	if err != nil {
		return nil, err
	}

	var central *repo.Bundle

	if withCentral {
		if central, err = s.mgr.Factory.Central(s.sess.ID); err != nil {
			return nil, err
		}
	}

	opts = append([]syncer.Option{
		syncer.WithLocker(s.mgr.Locks),
		syncer.WithHolder(s.sess.ID, s.sess.User),
		syncer.WithPublisher(s.mgr.SyncPublisher()),
	}, opts...)

	return syncer.NewEngine(central, local, opts...), nil
}

func (s *SyncService) run(fn func(e *syncer.Engine) (*syncer.Report, error)) (*syncer.Report, error) {
	e, err := s.engine(true)
	if err != nil {
		return nil, err
	}

	return fn(e)
}

// DownloadFile 按中心库文件 id 拉取.
func (s *SyncService) DownloadFile(ctx context.Context, centralFileID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.DownloadFile(ctx, centralFileID) })
}

// UploadFile 按本地文件 id 推送.
func (s *SyncService) UploadFile(ctx context.Context, localFileID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.UploadFile(ctx, localFileID) })
}

// MergeFile 双向同步本地文件.
func (s *SyncService) MergeFile(ctx context.Context, localFileID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.MergeFile(ctx, localFileID) })
}

func (s *SyncService) DownloadFolder(ctx context.Context, centralFolderID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.DownloadFolder(ctx, centralFolderID) })
}

func (s *SyncService) UploadFolder(ctx context.Context, localFolderID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.UploadFolder(ctx, localFolderID) })
}

func (s *SyncService) DownloadTM(ctx context.Context, centralTMID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.DownloadTM(ctx, centralTMID) })
}

func (s *SyncService) UploadTM(ctx context.Context, localTMID int64) (*syncer.Report, error) {
	return s.run(func(e *syncer.Engine) (*syncer.Report, error) { return e.UploadTM(ctx, localTMID) })
}

// Status 返回本地库记录的同步元数据.
func (s *SyncService) Status(ctx context.Context, entityType, key string) (*domain.SyncMetadata, error) {
	if err := rule.ValidateVar(entityType, "required,"+rule.TagEntityType); err != nil {
		return nil, domain.Invalidf("entity_type", "unknown entity type %q", entityType)
	}

	if err := rule.ValidateVar(key, "required,"+rule.TagSyncKey); err != nil {
		return nil, domain.Invalidf("sync_key", "malformed sync key %q", key)
	}

	e, err := s.engine(false)
	if err != nil {
		return nil, err
	}

	return e.Status(ctx, entityType, key)
}

// Reassign 为 orphaned 文件指定新的归属.
func (s *SyncService) Reassign(ctx context.Context, localFileID, projectID int64, folderID *int64) (*domain.File, error) {
	e, err := s.engine(false)
	if err != nil {
		return nil, err
	}

	return e.Reassign(ctx, localFileID, projectID, folderID)
}

// ConvertToLocalOnly 断开文件与中心库的关联.
func (s *SyncService) ConvertToLocalOnly(ctx context.Context, localFileID int64) (*domain.File, error) {
	e, err := s.engine(false)
	if err != nil {
		return nil, err
	}

	return e.ConvertToLocalOnly(ctx, localFileID)
}

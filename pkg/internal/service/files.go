package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/presence"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/internal/syncer"
	"github.com/yeisme/tmvault/pkg/internal/tmresolver"
	nlog "github.com/yeisme/tmvault/pkg/log"
)

// FileService 管理文件，并提供打开文件时的组合操作.
type FileService struct{ base }

// NewFileService 从 context 创建服务.
func NewFileService(c context.Context) *FileService {
	return &FileService{newBase(c)}
}

// OpenResult 打开文件的结果.
type OpenResult struct {
	File    *domain.File            `json:"file"`
	TMs     []tmresolver.ResolvedTM `json:"tms"`
	Viewers []presence.Viewer       `json:"viewers,omitempty"`
	Sync    *syncer.Report          `json:"sync,omitempty"`
}

func (s *FileService) List(ctx context.Context, f domain.FileFilter) ([]domain.File, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.File, error) { return r.Files.GetAll(ctx, f) })
}

func (s *FileService) Get(ctx context.Context, id int64) (*domain.File, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.File, error) { return r.Files.Get(ctx, id) })
}

func (s *FileService) Create(ctx context.Context, in domain.FileInput) (*domain.File, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.File, error) { return r.Files.Create(ctx, in) })
}

func (s *FileService) Update(ctx context.Context, id int64, p domain.FilePatch) (*domain.File, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.File, error) { return r.Files.Update(ctx, id, p) })
}

// Delete 把文件移入回收站；中心库上同时清空它的在线列表.
func (s *FileService) Delete(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error {
		if err := r.Files.Delete(ctx, id); err != nil {
			return err
		}

		if r.Store == repo.StoreCentral && s.mgr != nil && s.mgr.Tracker != nil {
			return s.mgr.Tracker.Forget(ctx, id)
		}

		return nil
	})
}

func (s *FileService) resolver(r *repo.Bundle) *tmresolver.Resolver {
	return tmresolver.New(r, tmresolver.WithMaxDepth(configs.GetConfig().TM.MaxFolderDepth))
}

// TMs 返回文件生效的 TM，按层级优先级排列.
func (s *FileService) TMs(ctx context.Context, id int64) ([]tmresolver.ResolvedTM, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]tmresolver.ResolvedTM, error) {
		return s.resolver(r).Resolve(ctx, id)
	})
}

// Match 在文件生效的 TM 中查找 source 的译文.
func (s *FileService) Match(ctx context.Context, id int64, source string) ([]tmresolver.Candidate, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]tmresolver.Candidate, error) {
		return s.resolver(r).Match(ctx, id, source)
	})
}

// Open 打开文件：在线时先自动拉取到本地库，再解析 TM 并加入在线列表.
// 自动同步失败只记录日志，不影响打开.
func (s *FileService) Open(ctx context.Context, id int64) (*OpenResult, error) {
	r, err := s.bundle(ctx)
	if err != nil {
		return nil, err
	}

	f, err := r.Files.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	res := &OpenResult{File: f}
	central := r.Store == repo.StoreCentral

	if central && configs.GetConfig().Sync.AutoSyncOnOpen && s.mgr.AutoSync != nil {
		report, err := s.mgr.AutoSync.OnFileOpen(ctx, id)
		if err != nil {
			l := nlog.Component("service")
			l.Warn().Err(err).Int64("file_id", id).Msg("auto sync on open failed")
		}

		res.Sync = report
	}

	if res.TMs, err = s.resolver(r).Resolve(ctx, id); err != nil {
		return nil, err
	}

	if central && s.mgr.Tracker != nil {
		holder := presence.Holder{SessionID: s.sess.ID, User: s.sess.User, FileID: id}
		if _, err := s.mgr.Tracker.Join(ctx, id, holder); err != nil {
			return nil, err
		}

		if res.Viewers, err = s.mgr.Tracker.Viewers(ctx, id); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// Close 离开文件的在线列表.
func (s *FileService) Close(ctx context.Context, id int64) error {
	if s.mgr == nil || s.mgr.Tracker == nil {
		return nil
	}

	return s.mgr.Tracker.Leave(ctx, id, s.sess.ID)
}

// Viewers 返回正在查看文件的会话.
func (s *FileService) Viewers(ctx context.Context, id int64) ([]presence.Viewer, error) {
	if s.mgr == nil || s.mgr.Tracker == nil {
		return []presence.Viewer{}, nil
	}

	return s.mgr.Tracker.Viewers(ctx, id)
}

// Watch 将连接升级为 WebSocket 并推送文件的锁与在线事件，阻塞直到连接关闭.
// 在线状态只存在于中心库.
func (s *FileService) Watch(w http.ResponseWriter, r *http.Request, id int64) error {
	ctx := r.Context()

	b, err := s.bundle(ctx)
	if err != nil {
		return err
	}

	if b.Store != repo.StoreCentral {
		return domain.InvalidTransition(domain.EntityFile, "presence requires a connected session")
	}

	if _, err := b.Files.Get(ctx, id); err != nil {
		return err
	}

	if s.mgr.Hub == nil {
		return domain.Unavailable("presence", errors.New("presence hub not initialized"))
	}

	return s.mgr.Hub.Serve(w, r, id, presence.Holder{SessionID: s.sess.ID, User: s.sess.User, FileID: id})
}

package service

import (
	"context"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
)

// HierarchyService 管理平台、项目与文件夹.
type HierarchyService struct{ base }

// NewHierarchyService 从 context 创建服务.
func NewHierarchyService(c context.Context) *HierarchyService {
	return &HierarchyService{newBase(c)}
}

func (s *HierarchyService) ListPlatforms(ctx context.Context, f domain.PlatformFilter) ([]domain.Platform, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Platform, error) { return r.Platforms.GetAll(ctx, f) })
}

func (s *HierarchyService) GetPlatform(ctx context.Context, id int64) (*domain.Platform, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Platform, error) { return r.Platforms.Get(ctx, id) })
}

// CreatePlatform 未指定 owner 时归属当前用户.
func (s *HierarchyService) CreatePlatform(ctx context.Context, in domain.PlatformInput) (*domain.Platform, error) {
	in.Owner = orActor(in.Owner, s.sess)

	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Platform, error) { return r.Platforms.Create(ctx, in) })
}

func (s *HierarchyService) UpdatePlatform(ctx context.Context, id int64, p domain.PlatformPatch) (*domain.Platform, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Platform, error) { return r.Platforms.Update(ctx, id, p) })
}

// DeletePlatform 需要 delete_platform 能力；项目移入 Unassigned 池.
func (s *HierarchyService) DeletePlatform(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error {
		if err := s.require(ctx, r, domain.CapDeletePlatform); err != nil {
			return err
		}

		return r.Platforms.Delete(ctx, id)
	})
}

func (s *HierarchyService) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Project, error) { return r.Projects.GetAll(ctx, f) })
}

func (s *HierarchyService) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Project, error) { return r.Projects.Get(ctx, id) })
}

func (s *HierarchyService) CreateProject(ctx context.Context, in domain.ProjectInput) (*domain.Project, error) {
	in.Owner = orActor(in.Owner, s.sess)

	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Project, error) { return r.Projects.Create(ctx, in) })
}

func (s *HierarchyService) UpdateProject(ctx context.Context, id int64, p domain.ProjectPatch) (*domain.Project, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Project, error) { return r.Projects.Update(ctx, id, p) })
}

// DeleteProject 需要 delete_project 能力；内容整体进入回收站.
func (s *HierarchyService) DeleteProject(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error {
		if err := s.require(ctx, r, domain.CapDeleteProject); err != nil {
			return err
		}

		return r.Projects.Delete(ctx, id)
	})
}

func (s *HierarchyService) ListFolders(ctx context.Context, f domain.FolderFilter) ([]domain.Folder, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Folder, error) { return r.Folders.GetAll(ctx, f) })
}

func (s *HierarchyService) GetFolder(ctx context.Context, id int64) (*domain.Folder, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Folder, error) { return r.Folders.Get(ctx, id) })
}

func (s *HierarchyService) CreateFolder(ctx context.Context, in domain.FolderInput) (*domain.Folder, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Folder, error) { return r.Folders.Create(ctx, in) })
}

func (s *HierarchyService) UpdateFolder(ctx context.Context, id int64, p domain.FolderPatch) (*domain.Folder, error) {
	return call(ctx, s.base, func(r *repo.Bundle) (*domain.Folder, error) { return r.Folders.Update(ctx, id, p) })
}

func (s *HierarchyService) DeleteFolder(ctx context.Context, id int64) error {
	return exec(ctx, s.base, func(r *repo.Bundle) error { return r.Folders.Delete(ctx, id) })
}

// FolderPath 返回文件夹到项目根的链，最近的在前.
func (s *HierarchyService) FolderPath(ctx context.Context, id int64) ([]domain.Folder, error) {
	return call(ctx, s.base, func(r *repo.Bundle) ([]domain.Folder, error) { return r.Folders.Ancestors(ctx, id) })
}

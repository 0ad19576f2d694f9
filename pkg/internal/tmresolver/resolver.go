// Package tmresolver 按作用域层级解析文件可用的翻译记忆库.
//
// 顺序为：最近的文件夹 → 祖先文件夹 → 项目 → 平台.
// 每次调用都重新读取分配，结果不缓存.
package tmresolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/metrics"
	"github.com/yeisme/tmvault/pkg/tracing"
)

// ResolvedTM 一个生效的 TM 及其来源层级.
// Depth 只对文件夹层级有意义：0 为文件所在文件夹，1 为其父文件夹，依此类推.
type ResolvedTM struct {
	TM         domain.TranslationMemory `json:"tm"`
	Assignment domain.TMAssignment      `json:"assignment"`
	Level      domain.ScopeLevel        `json:"level"`
	Depth      int                      `json:"depth"`
}

// Candidate Match 返回的一条候选译文.
type Candidate struct {
	TMID   int64             `json:"tm_id"`
	TMName string            `json:"tm_name"`
	Level  domain.ScopeLevel `json:"level"`
	Source string            `json:"source"`
	Target string            `json:"target"`
}

// Resolver TM 层级解析器.
type Resolver struct {
	bundle   *repo.Bundle
	maxDepth int
}

// Option 配置 Resolver.
type Option func(*Resolver)

// WithMaxDepth 限制文件夹链长度.
func WithMaxDepth(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// New 创建绑定到仓储集合的解析器.
func New(bundle *repo.Bundle, opts ...Option) *Resolver {
	r := &Resolver{bundle: bundle, maxDepth: configs.DefaultMaxFolderDepth}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

type level struct {
	scope domain.Scope
	kind  domain.ScopeLevel
	depth int
}

// Resolve 返回文件生效的 TM，按优先级排列.
func (r *Resolver) Resolve(ctx context.Context, fileID int64) ([]ResolvedTM, error) {
	start := time.Now()
	defer func() {
		metrics.ResolverLatency.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.StartSpan(ctx, "tmresolver.Resolve")
	defer span.End()

	span.SetAttributes(attribute.Int64("file.id", fileID), attribute.String("store", string(r.bundle.Store)))

	levels, err := r.levels(ctx, fileID)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	found := make([][]domain.ActiveTM, len(levels))

	g, gctx := errgroup.WithContext(ctx)
	for i, lv := range levels {
		g.Go(func() error {
			active, err := r.bundle.TMs.ActiveForScope(gctx, lv.scope)
			if err != nil {
				return err
			}

			found[i] = active

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)

		return nil, err
	}

	out := make([]ResolvedTM, 0, len(levels))
	for i, lv := range levels {
		for _, a := range found[i] {
			out = append(out, ResolvedTM{TM: a.TM, Assignment: a.Assignment, Level: lv.kind, Depth: lv.depth})
		}
	}

	span.SetAttributes(attribute.Int("tm.count", len(out)))

	return out, nil
}

// levels 计算文件的作用域链.
func (r *Resolver) levels(ctx context.Context, fileID int64) ([]level, error) {
	file, err := r.bundle.Files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	project, err := r.bundle.Projects.Get(ctx, file.ProjectID)
	if err != nil {
		return nil, err
	}

	var levels []level

	if file.FolderID != nil {
		chain, err := r.bundle.Folders.Ancestors(ctx, *file.FolderID)
		if err != nil {
			return nil, err
		}

		if len(chain) > r.maxDepth {
			return nil, domain.Invalidf(domain.EntityFolder, "folder chain of file %d deeper than %d", fileID, r.maxDepth)
		}

		for depth, f := range chain {
			levels = append(levels, level{scope: domain.FolderScope(f.ID), kind: domain.ScopeFolder, depth: depth})
		}
	}

	levels = append(levels, level{scope: domain.ProjectScope(project.ID), kind: domain.ScopeProject})

	if project.PlatformID != nil {
		levels = append(levels, level{scope: domain.PlatformScope(*project.PlatformID), kind: domain.ScopePlatform})
	}

	return levels, nil
}

// Match 在生效 TM 中精确查找原文，按解析优先级返回，相同 (source, target) 只保留第一条.
func (r *Resolver) Match(ctx context.Context, fileID int64, source string) ([]Candidate, error) {
	start := time.Now()
	defer func() {
		metrics.ResolverLatency.WithLabelValues("match").Observe(time.Since(start).Seconds())
	}()

	resolved, err := r.Resolve(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if len(resolved) == 0 {
		return []Candidate{}, nil
	}

	ids := make([]int64, 0, len(resolved))
	byID := make(map[int64]ResolvedTM, len(resolved))

	for _, rt := range resolved {
		if _, ok := byID[rt.TM.ID]; ok {
			continue
		}

		byID[rt.TM.ID] = rt
		ids = append(ids, rt.TM.ID)
	}

	entries, err := r.bundle.TMs.SearchEntries(ctx, ids, source)
	if err != nil {
		return nil, err
	}

	type pair struct{ source, target string }

	seen := make(map[pair]struct{}, len(entries))
	out := make([]Candidate, 0, len(entries))

	for _, e := range entries {
		k := pair{e.Source, e.Target}
		if _, ok := seen[k]; ok {
			continue
		}

		seen[k] = struct{}{}
		rt := byID[e.TMID]
		out = append(out, Candidate{TMID: e.TMID, TMName: rt.TM.Name, Level: rt.Level, Source: e.Source, Target: e.Target})
	}

	return out, nil
}

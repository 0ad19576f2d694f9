package syncer

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/repo"
	"github.com/yeisme/tmvault/pkg/tracing"
)

// digest 对字段做规范编码后计算 xxhash64，字段之间以单元分隔符隔开.
func digest(fields ...string) string {
	d := xxhash.New()
	for _, f := range fields {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0x1f})
	}

	return strconv.FormatUint(d.Sum64(), 16)
}

// 哈希不包含 id 与时间戳；父记录以 sync key 表示.

func hashPlatform(p *domain.Platform) string {
	return digest(domain.EntityPlatform, p.Name, p.Owner, p.Description)
}

func hashProject(p *domain.Project, platformKey string) string {
	return digest(domain.EntityProject, platformKey, p.Name, p.Owner, p.Description)
}

func hashFolder(f *domain.Folder, projectKey, parentKey string) string {
	return digest(domain.EntityFolder, projectKey, parentKey, f.Name)
}

// hashFile 只覆盖文件自身字段，不包含行数.
func hashFile(f *domain.File, projectKey, folderKey string) string {
	return digest(domain.EntityFile, projectKey, folderKey, f.Name, f.Format, f.SourceLang, f.TargetLang)
}

func hashRow(r *domain.Row) string {
	return digest(domain.EntityRow, strconv.Itoa(r.RowNum), r.Source, r.Target, r.StringID, string(r.Status), r.Memo)
}

func hashTM(tm *domain.TranslationMemory) string {
	return digest(domain.EntityTM, tm.Name, tm.SourceLang, tm.TargetLang, tm.Owner, tm.Description)
}

// keyCache 缓存一个存储中 id 到 sync key 的映射.
type keyCache struct {
	b         *repo.Bundle
	platforms map[int64]string
	projects  map[int64]string
	folders   map[int64]string
}

func newKeyCache(b *repo.Bundle) *keyCache {
	return &keyCache{
		b:         b,
		platforms: make(map[int64]string),
		projects:  make(map[int64]string),
		folders:   make(map[int64]string),
	}
}

func (k *keyCache) platform(ctx context.Context, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}

	if key, ok := k.platforms[*id]; ok {
		return key, nil
	}

	p, err := k.b.Platforms.Get(ctx, *id)
	if err != nil {
		return "", err
	}

	k.platforms[*id] = p.SyncKey

	return p.SyncKey, nil
}

func (k *keyCache) project(ctx context.Context, id int64) (string, error) {
	if key, ok := k.projects[id]; ok {
		return key, nil
	}

	p, err := k.b.Projects.Get(ctx, id)
	if err != nil {
		return "", err
	}

	k.projects[id] = p.SyncKey

	return p.SyncKey, nil
}

func (k *keyCache) folder(ctx context.Context, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}

	if key, ok := k.folders[*id]; ok {
		return key, nil
	}

	f, err := k.b.Folders.Get(ctx, *id)
	if err != nil {
		return "", err
	}

	k.folders[*id] = f.SyncKey

	return f.SyncKey, nil
}

func startSpan(ctx context.Context, r *run) (context.Context, trace.Span) {
	ctx, span := tracing.StartSpan(ctx, "syncer."+r.report.Operation)
	span.SetAttributes(attribute.String("sync.direction", string(r.dir)))

	return ctx, span
}

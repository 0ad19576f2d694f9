package handle_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/handle"
	"github.com/yeisme/tmvault/pkg/internal/router"
	"github.com/yeisme/tmvault/pkg/internal/storage"
	"github.com/yeisme/tmvault/pkg/internal/types"
	"github.com/yeisme/tmvault/pkg/middleware"
)

const user = "alice@example.com"

// newServer 在临时目录上创建中心库与本地库，并装配完整路由.
func newServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &configs.AppConfig{
		Central: configs.DBConfig{
			Type:         configs.SQLite,
			DSN:          filepath.Join(dir, "central.db"),
			MaxOpenConns: 1,
			LogLevel:     "silent",
		},
		Local:    configs.LocalStoreConfig{Path: filepath.Join(dir, "local.db")},
		KV:       configs.KVConfig{Type: "memory"},
		MQ:       configs.MQConfig{Type: configs.MQTypeGoChannel},
		Locks:    configs.LocksConfig{TTL: time.Minute, KeyPrefix: configs.DefaultLockKeyPrefix},
		Presence: configs.PresenceConfig{HeartbeatTTL: time.Minute},
		TM:       configs.TMConfig{MaxFolderDepth: configs.DefaultMaxFolderDepth},
		Sync:     configs.SyncConfig{ProbeTimeout: time.Second},
		Trash:    configs.TrashConfig{RetentionDays: configs.DefaultTrashRetentionDays},
	}

	mgr, err := storage.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new storage manager: %v", err)
	}

	t.Cleanup(func() { _ = mgr.Close() })

	if mgr.Central == nil {
		t.Fatal("central store not opened")
	}

	e := gin.New()
	v1 := e.Group("/api/v1",
		middleware.SessionMiddleware(configs.AuthConfig{}),
		middleware.RoleMiddleware(),
		middleware.StorageMiddleware(mgr),
	)
	router.RegisterAll(v1)

	return e
}

type client struct {
	t       *testing.T
	e       *gin.Engine
	session string
	mode    string
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderAuthEmail, user)
	req.Header.Set(middleware.HeaderSessionID, c.session)
	req.Header.Set(middleware.HeaderSessionMode, c.mode)

	w := httptest.NewRecorder()
	c.e.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}

	return v
}

func expect(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()

	if w.Code != status {
		t.Fatalf("status = %d, want %d; body %s", w.Code, status, w.Body.String())
	}
}

// seedFile 在 c 所在的存储中创建平台、项目与文件.
func seedFile(t *testing.T, c client) domain.File {
	t.Helper()

	w := c.do(http.MethodPost, "/platforms", domain.PlatformInput{Name: "web"})
	expect(t, w, http.StatusCreated)
	pl := decode[domain.Platform](t, w)

	w = c.do(http.MethodPost, "/projects", domain.ProjectInput{PlatformID: &pl.ID, Name: "checkout"})
	expect(t, w, http.StatusCreated)
	pr := decode[domain.Project](t, w)

	w = c.do(http.MethodPost, "/files", domain.FileInput{ProjectID: pr.ID, Name: "strings.json", Format: "json"})
	expect(t, w, http.StatusCreated)

	return decode[domain.File](t, w)
}

// TestStatusOf 测试错误类别到状态码的映射.
func TestStatusOf(t *testing.T) {
	cases := map[domain.Kind]int{
		domain.KindNotFound:          http.StatusNotFound,
		domain.KindValidation:        http.StatusBadRequest,
		domain.KindConflict:          http.StatusConflict,
		domain.KindScopeConflict:     http.StatusConflict,
		domain.KindInvalidTransition: http.StatusUnprocessableEntity,
		domain.KindLocked:            http.StatusLocked,
		domain.KindStoreUnavailable:  http.StatusServiceUnavailable,
		domain.KindForbidden:         http.StatusForbidden,
		domain.KindInternal:          http.StatusInternalServerError,
	}

	for kind, want := range cases {
		if got := handle.StatusOf(kind); got != want {
			t.Errorf("StatusOf(%s) = %d, want %d", kind, got, want)
		}
	}
}

// TestStoresAreSeparate 测试连接模式决定请求落到哪个存储.
func TestStoresAreSeparate(t *testing.T) {
	e := newServer(t)
	online := client{t: t, e: e, session: "s-online", mode: "connected"}
	offline := client{t: t, e: e, session: "s-offline", mode: "disconnected"}

	seedFile(t, online)

	w := online.do(http.MethodGet, "/platforms", nil)
	expect(t, w, http.StatusOK)

	if got := decode[types.ListResponse[domain.Platform]](t, w); got.Total != 1 {
		t.Errorf("central platforms = %d, want 1", got.Total)
	}

	w = offline.do(http.MethodGet, "/platforms", nil)
	expect(t, w, http.StatusOK)

	if got := decode[types.ListResponse[domain.Platform]](t, w); got.Total != 0 {
		t.Errorf("local platforms = %d, want 0", got.Total)
	}
}

// TestNotFoundBody 测试错误响应体的结构.
func TestNotFoundBody(t *testing.T) {
	e := newServer(t)
	c := client{t: t, e: e, session: "s1", mode: "disconnected"}

	w := c.do(http.MethodGet, "/files/999", nil)
	expect(t, w, http.StatusNotFound)

	body := decode[types.ErrorBody](t, w)
	if body.Error.Kind != domain.KindNotFound {
		t.Errorf("kind = %q, want %q", body.Error.Kind, domain.KindNotFound)
	}

	w = c.do(http.MethodGet, "/files/abc", nil)
	expect(t, w, http.StatusBadRequest)
}

// TestDeletePlatformRequiresCapability 测试中心库上的能力校验.
func TestDeletePlatformRequiresCapability(t *testing.T) {
	e := newServer(t)
	c := client{t: t, e: e, session: "s1", mode: "connected"}

	f := seedFile(t, c)

	w := c.do(http.MethodGet, fmt.Sprintf("/projects/%d", f.ProjectID), nil)
	expect(t, w, http.StatusOK)
	pr := decode[domain.Project](t, w)

	w = c.do(http.MethodDelete, fmt.Sprintf("/platforms/%d", *pr.PlatformID), nil)
	expect(t, w, http.StatusForbidden)

	if body := decode[types.ErrorBody](t, w); body.Error.Kind != domain.KindForbidden {
		t.Errorf("kind = %q, want %q", body.Error.Kind, domain.KindForbidden)
	}
}

// TestFileLockContention 测试第二个会话无法获取已被持有的文件锁.
func TestFileLockContention(t *testing.T) {
	e := newServer(t)
	a := client{t: t, e: e, session: "s-a", mode: "connected"}
	b := client{t: t, e: e, session: "s-b", mode: "connected"}

	f := seedFile(t, a)
	path := fmt.Sprintf("/files/%d/lock", f.ID)

	expect(t, a.do(http.MethodPost, path, nil), http.StatusOK)
	expect(t, b.do(http.MethodPost, path, nil), http.StatusLocked)

	// 持有者可以续期
	expect(t, a.do(http.MethodPost, path, nil), http.StatusOK)

	expect(t, a.do(http.MethodDelete, path, nil), http.StatusOK)
	expect(t, b.do(http.MethodPost, path, nil), http.StatusOK)
}

// TestLocksNeedCentral 测试离线会话不能使用记录锁.
func TestLocksNeedCentral(t *testing.T) {
	e := newServer(t)
	c := client{t: t, e: e, session: "s1", mode: "disconnected"}

	f := seedFile(t, c)

	w := c.do(http.MethodPost, fmt.Sprintf("/files/%d/lock", f.ID), nil)
	expect(t, w, http.StatusUnprocessableEntity)
}

// TestDownloadFile 测试下载后离线会话可以看到同一 sync key 的文件.
func TestDownloadFile(t *testing.T) {
	e := newServer(t)
	online := client{t: t, e: e, session: "s-online", mode: "connected"}
	offline := client{t: t, e: e, session: "s-offline", mode: "disconnected"}

	f := seedFile(t, online)

	w := online.do(http.MethodPost, fmt.Sprintf("/sync/files/%d/download", f.ID), nil)
	expect(t, w, http.StatusOK)

	w = offline.do(http.MethodGet, "/files", nil)
	expect(t, w, http.StatusOK)

	files := decode[types.ListResponse[domain.File]](t, w)
	if files.Total != 1 {
		t.Fatalf("local files = %d, want 1", files.Total)
	}

	if files.Items[0].SyncKey != f.SyncKey {
		t.Errorf("sync key = %q, want %q", files.Items[0].SyncKey, f.SyncKey)
	}

	w = offline.do(http.MethodGet, "/sync/status/file/"+f.SyncKey, nil)
	expect(t, w, http.StatusOK)

	expect(t, offline.do(http.MethodGet, "/sync/status/file/not-a-key", nil), http.StatusBadRequest)
	expect(t, offline.do(http.MethodGet, "/sync/status/widget/"+f.SyncKey, nil), http.StatusBadRequest)
}

// TestSchedulerRoutesNeedScheduler 测试未注入调度器时任务接口返回 503.
func TestSchedulerRoutesNeedScheduler(t *testing.T) {
	e := newServer(t)
	c := client{t: t, e: e, session: "s1", mode: "disconnected"}

	expect(t, c.do(http.MethodGet, "/scheduler/jobs", nil), http.StatusServiceUnavailable)
	expect(t, c.do(http.MethodPost, "/scheduler/jobs/locks.sweep/run", nil), http.StatusForbidden)
}

// TestHealth 测试汇总健康检查.
func TestHealth(t *testing.T) {
	e := newServer(t)
	c := client{t: t, e: e, session: "s1", mode: "disconnected"}

	w := c.do(http.MethodGet, "/health", nil)
	expect(t, w, http.StatusOK)

	body := decode[map[string]any](t, w)
	if body["local"] != "ok" {
		t.Errorf("local = %v, want ok", body["local"])
	}
}

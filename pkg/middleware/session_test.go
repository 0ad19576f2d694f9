package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/configs"
	"github.com/yeisme/tmvault/pkg/internal/session"
	"github.com/yeisme/tmvault/pkg/middleware"
)

func serveSession(conf configs.AuthConfig, req *http.Request) (session.Session, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)

	var got session.Session

	e := gin.New()
	e.Use(middleware.SessionMiddleware(conf))
	e.GET("/s", func(c *gin.Context) {
		got = session.From(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	return got, w
}

// TestSessionFromHeaders 测试从代理请求头构造会话.
func TestSessionFromHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/s", nil)
	req.Header.Set(middleware.HeaderAuthEmail, "bob@example.com")
	req.Header.Set(middleware.HeaderSessionID, "sess-1")
	req.Header.Set(middleware.HeaderSessionMode, "connected")

	s, w := serveSession(configs.AuthConfig{}, req)

	if s.ID != "sess-1" || s.User != "bob@example.com" || s.Mode != session.ModeConnected {
		t.Errorf("session = %+v", s)
	}

	if got := w.Header().Get(middleware.HeaderSessionID); got != "sess-1" {
		t.Errorf("response session id = %q, want sess-1", got)
	}
}

// TestSessionDefaults 测试缺省时生成会话 id 且为离线模式.
func TestSessionDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/s?user=dev", nil)

	s, w := serveSession(configs.AuthConfig{DevAllowQuery: true}, req)

	if s.ID == "" {
		t.Fatal("session id not generated")
	}

	if w.Header().Get(middleware.HeaderSessionID) != s.ID {
		t.Errorf("response header does not echo generated id")
	}

	if s.Mode != session.ModeDisconnected {
		t.Errorf("mode = %q, want disconnected", s.Mode)
	}

	if s.User != "dev" {
		t.Errorf("user = %q, want dev", s.User)
	}
}

// TestSessionQueryUserDisabled 测试未开启开发模式时忽略 ?user.
func TestSessionQueryUserDisabled(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/s?user=dev", nil)

	s, _ := serveSession(configs.AuthConfig{}, req)
	if s.User != "" {
		t.Errorf("user = %q, want empty", s.User)
	}
}

// TestSessionIdentityHeaders 测试按配置的请求头顺序取身份.
func TestSessionIdentityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/s", nil)
	req.Header.Set(middleware.HeaderAuthEmail, "proxy@example.com")
	req.Header.Set("X-User", "carol")

	s, _ := serveSession(configs.AuthConfig{IdentityHeaders: []string{"X-User", middleware.HeaderAuthEmail}}, req)
	if s.User != "carol" {
		t.Errorf("user = %q, want carol", s.User)
	}
}

// TestAuthRejectsAnonymous 测试开启认证后匿名请求返回 401，跳过的路径放行.
func TestAuthRejectsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)

	conf := configs.AuthConfig{Enabled: true, SkipPaths: []string{"/health"}}

	e := gin.New()
	e.Use(middleware.AuthMiddleware(conf))
	e.GET("/s", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		path, user string
		want       int
	}{
		{"/s", "", http.StatusUnauthorized},
		{"/s", "dave@example.com", http.StatusOK},
		{"/health", "", http.StatusOK},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.user != "" {
			req.Header.Set(middleware.HeaderAuthEmail, tc.user)
		}

		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		if w.Code != tc.want {
			t.Errorf("%s user=%q: status = %d, want %d", tc.path, tc.user, w.Code, tc.want)
		}
	}
}

// TestRequireMinRole 测试角色取自用户组中最高的一个.
func TestRequireMinRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.Use(middleware.RoleMiddleware())
	e.POST("/admin", middleware.RequireMinRole(middleware.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := map[string]int{
		"":                              http.StatusForbidden,
		"tmvault-translator":            http.StatusForbidden,
		"staff, tmvault-admin":          http.StatusOK,
		"tmvault-viewer,tmvault-admin ": http.StatusOK,
	}

	for groups, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set(middleware.HeaderGroups, groups)

		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		if w.Code != want {
			t.Errorf("groups %q: status = %d, want %d", groups, w.Code, want)
		}
	}
}

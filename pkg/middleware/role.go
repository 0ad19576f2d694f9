package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
)

// 角色来源请求头：oauth2-proxy 转发的用户组，或开发时直接指定的 X-Role.
const (
	HeaderGroups = "X-Auth-Request-Groups"
	HeaderRole   = "X-Role"
)

// Role 请求方角色，数值越大权限越高.
// 角色只控制管理类接口；记录级权限由中心库的 capability 决定.
type Role int

const (
	RoleViewer Role = iota + 1
	RoleTranslator
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer:     "viewer",
	RoleTranslator: "translator",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
}

// String 返回角色的字符串表示.
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}

	return roleNames[RoleTranslator]
}

type roleKey struct{}

// ParseRole 解析单个角色名，支持 tmvault- 前缀的组名；未知值返回 0.
func ParseRole(s string) Role {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tmvault-")

	for r, n := range roleNames {
		if n == s {
			return r
		}
	}

	return 0
}

// roleOf 取用户组中最高的角色，都无法识别时为 translator.
func roleOf(c *gin.Context) Role {
	best := ParseRole(c.GetHeader(HeaderRole))

	for _, g := range strings.Split(c.GetHeader(HeaderGroups), ",") {
		if r := ParseRole(g); r > best {
			best = r
		}
	}

	if best == 0 {
		return RoleTranslator
	}

	return best
}

// RoleMiddleware 解析角色并注入到 gin.Context 和 request.Context.
func RoleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := roleOf(c)
		c.Set("role", r)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), roleKey{}, r))
		c.Next()
	}
}

// RoleFrom 从 request context 获取角色，未注入时为 translator.
func RoleFrom(ctx context.Context) Role {
	if r, ok := ctx.Value(roleKey{}).(Role); ok {
		return r
	}

	return RoleTranslator
}

// GetRole 从 gin.Context 获取当前请求角色.
func GetRole(c *gin.Context) Role {
	if v, ok := c.Get("role"); ok {
		if r, ok := v.(Role); ok {
			return r
		}
	}

	return RoleFrom(c.Request.Context())
}

// RequireMinRole 要求最小角色，不满足则返回 403.
func RequireMinRole(minRole Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r := GetRole(c); r < minRole {
			abort(c, http.StatusForbidden, domain.KindForbidden, "role "+r.String()+" is below "+minRole.String())
			return
		}

		c.Next()
	}
}

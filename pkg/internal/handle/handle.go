// Package handle 提供 HTTP 请求处理器的实现.
package handle

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/types"
	"github.com/yeisme/tmvault/pkg/log"
)

// DefaultHandler 未实现的路由占位.
func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"message": "Not Implemented"})
}

// StatusOf 将错误类别映射为 HTTP 状态码.
func StatusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict, domain.KindScopeConflict:
		return http.StatusConflict
	case domain.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case domain.KindLocked:
		return http.StatusLocked
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail 按错误类别写入 {"error": {"kind", "reason"}}.
func fail(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := StatusOf(kind)
	reason := err.Error()

	var de *domain.Error
	if errors.As(err, &de) && de.Reason != "" && de.Err == nil {
		reason = de.Entity + ": " + de.Reason
	}

	if status == http.StatusInternalServerError {
		l := log.Logger()
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	if domain.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}

	c.AbortWithStatusJSON(status, types.ErrorBody{Error: types.ErrorDetail{Kind: kind, Reason: reason}})
}

// paramID 解析路径中的正整数 id.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, domain.Invalidf(name, "invalid id %q", c.Param(name)))
		return 0, false
	}

	return id, true
}

// bindJSON 解析请求体，失败时写入 400.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, domain.Invalid("request", err))
		return false
	}

	return true
}

// bindQuery 解析查询参数，失败时写入 400.
func bindQuery(c *gin.Context, v any) bool {
	if err := c.ShouldBindQuery(v); err != nil {
		fail(c, domain.Invalid("query", err))
		return false
	}

	return true
}

// reply 统一输出：err 非空时按类别映射，否则写入 status 与 body.
func reply(c *gin.Context, status int, body any, err error) {
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(status, body)
}

// list 输出列表响应.
func list[T any](c *gin.Context, items []T, err error) {
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.NewList(items))
}

// noContent 输出 204.
func noContent(c *gin.Context, err error) {
	if err != nil {
		fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

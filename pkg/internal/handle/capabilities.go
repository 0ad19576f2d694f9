package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tmvault/pkg/internal/domain"
	"github.com/yeisme/tmvault/pkg/internal/service"
)

// ListCapabilities GET /capabilities?user=.
func ListCapabilities(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := service.NewCapabilityService(ctx).List(ctx, c.Query("user"))
	list(c, items, err)
}

// GrantCapability POST /capabilities.
func GrantCapability(c *gin.Context) {
	var in domain.CapabilityInput
	if !bindJSON(c, &in) {
		return
	}

	ctx := c.Request.Context()
	cp, err := service.NewCapabilityService(ctx).Grant(ctx, in)
	reply(c, http.StatusCreated, cp, err)
}

// RevokeCapability DELETE /capabilities/:user/:name.
func RevokeCapability(c *gin.Context) {
	ctx := c.Request.Context()
	noContent(c, service.NewCapabilityService(ctx).Revoke(ctx, c.Param("user"), c.Param("name")))
}

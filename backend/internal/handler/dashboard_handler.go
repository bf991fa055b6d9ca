package handler

import (
	"net/http"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	response "github.com/antrhizom/prompt-managerin/backend/internal/infra/common"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/dashboard"

	"github.com/gin-gonic/gin"
)

// DashboardSource 提供最近一次统计结果。
type DashboardSource interface {
	Current() dashboard.Snapshot
}

// CatalogSource 提供当前生效的枚举。
type CatalogSource interface {
	Get() promptdomain.Catalog
}

// DashboardHandler 暴露统计看板与枚举目录。
type DashboardHandler struct {
	stats   DashboardSource
	catalog CatalogSource
}

// NewDashboardHandler 创建 DashboardHandler。
func NewDashboardHandler(stats DashboardSource, catalog CatalogSource) *DashboardHandler {
	return &DashboardHandler{stats: stats, catalog: catalog}
}

// Dashboard 返回统计看板。
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	snap := h.stats.Current()
	response.Success(c, http.StatusOK, snap, gin.H{"version": snap.Version, "computed_at": snap.ComputedAt})
}

// Catalog 返回表单使用的枚举目录。
func (h *DashboardHandler) Catalog(c *gin.Context) {
	response.Success(c, http.StatusOK, h.catalog.Get(), nil)
}

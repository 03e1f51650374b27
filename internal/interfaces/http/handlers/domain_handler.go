package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/psn/internal/application/dto"
	"github.com/turtacn/psn/internal/application/service"
	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// DomainHandler 域管理 HTTP 处理器
type DomainHandler struct {
	domainService service.DomainAppService
	access        AccessChecker
	logger        logger.Logger
}

// NewDomainHandler 创建域处理器。access 为 nil 时不做授权检查。
func NewDomainHandler(domainService service.DomainAppService, access AccessChecker, log logger.Logger) *DomainHandler {
	return &DomainHandler{
		domainService: domainService,
		access:        access,
		logger:        log,
	}
}

// CreateDomain 创建域
// POST /api/v1/domains
func (h *DomainHandler) CreateDomain(c *gin.Context) {
	var in models.DomainInput
	if !bindJSON(c, h.logger, &in, "create_domain") {
		return
	}
	if in.Name == nil || *in.Name == "" {
		handleError(c, h.logger, errors.ErrBadRequest("name is required"), "create_domain")
		return
	}

	if h.access != nil {
		path := *in.Name
		if in.SuperDomainName != nil && *in.SuperDomainName != "" {
			parentPath, err := h.domainService.DomainPath(c.Request.Context(), *in.SuperDomainName)
			if err != nil {
				handleError(c, h.logger, err, "create_domain")
				return
			}
			path = parentPath + "/" + *in.Name
		}
		if !h.access.Allowed(c.Request.Context(), path) {
			forbidden(c, h.logger, *in.Name, "create_domain")
			return
		}
	}

	domain, err := h.domainService.CreateDomain(c.Request.Context(), &in)
	if err != nil {
		handleError(c, h.logger, err, "create_domain")
		return
	}

	h.logger.Info(c.Request.Context(), "Domain created", logger.String("domain", domain.Name))
	respond(c, http.StatusCreated, domain)
}

// ListDomains 分页列出域，只返回调用方有权访问的域
// GET /api/v1/domains
func (h *DomainHandler) ListDomains(c *gin.Context) {
	var req dto.ListDomainsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		handleError(c, h.logger, errors.ErrBadRequest(err.Error()), "list_domains")
		return
	}

	resp, err := h.domainService.ListDomains(c.Request.Context(), &req)
	if err != nil {
		handleError(c, h.logger, err, "list_domains")
		return
	}

	if h.access != nil {
		visible := resp.Domains[:0]
		for _, d := range resp.Domains {
			path, err := h.domainService.DomainPath(c.Request.Context(), d.Name)
			if err != nil {
				handleError(c, h.logger, err, "list_domains")
				return
			}
			if h.access.Allowed(c.Request.Context(), path) {
				visible = append(visible, d)
			}
		}
		resp.Domains = visible
		resp.Pagination.Count = len(visible)
	}
	respond(c, http.StatusOK, resp)
}

// GetDomain 获取域配置
// GET /api/v1/domains/:domain
func (h *DomainHandler) GetDomain(c *gin.Context) {
	domain, err := h.domainService.GetDomain(c.Request.Context(), c.Param("domain"))
	if err != nil {
		handleError(c, h.logger, err, "get_domain")
		return
	}
	respond(c, http.StatusOK, domain)
}

// ListChildren 列出直接子域
// GET /api/v1/domains/:domain/children
func (h *DomainHandler) ListChildren(c *gin.Context) {
	children, err := h.domainService.ListChildren(c.Request.Context(), c.Param("domain"))
	if err != nil {
		handleError(c, h.logger, err, "list_children")
		return
	}
	respond(c, http.StatusOK, children)
}

// UpdateDomain 更新域
// PUT /api/v1/domains/:domain?cascade=true
func (h *DomainHandler) UpdateDomain(c *gin.Context) {
	cascade, err := queryBool(c, "cascade")
	if err != nil {
		handleError(c, h.logger, err, "update_domain")
		return
	}
	var patch models.DomainInput
	if !bindJSON(c, h.logger, &patch, "update_domain") {
		return
	}

	resp, err := h.domainService.UpdateDomain(c.Request.Context(), c.Param("domain"), &patch, cascade)
	if err != nil {
		handleError(c, h.logger, err, "update_domain")
		return
	}
	respond(c, http.StatusOK, resp)
}

// DeleteDomain 删除域
// DELETE /api/v1/domains/:domain?cascade=true
func (h *DomainHandler) DeleteDomain(c *gin.Context) {
	cascade, err := queryBool(c, "cascade")
	if err != nil {
		handleError(c, h.logger, err, "delete_domain")
		return
	}

	resp, err := h.domainService.DeleteDomain(c.Request.Context(), c.Param("domain"), cascade)
	if err != nil {
		handleError(c, h.logger, err, "delete_domain")
		return
	}

	h.logger.Info(c.Request.Context(), "Domain deleted",
		logger.String("domain", c.Param("domain")),
		logger.Int("domains_removed", len(resp.Domains)),
		logger.Int64("records_removed", resp.RecordsDeleted))
	respond(c, http.StatusOK, resp)
}

// DomainStats 返回域填充率
// GET /api/v1/domains/:domain/stats
func (h *DomainHandler) DomainStats(c *gin.Context) {
	stats, err := h.domainService.FillingRate(c.Request.Context(), c.Param("domain"))
	if err != nil {
		handleError(c, h.logger, err, "domain_stats")
		return
	}
	respond(c, http.StatusOK, stats)
}

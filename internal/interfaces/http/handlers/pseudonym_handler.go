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

// PseudonymHandler 假名记录 HTTP 处理器
type PseudonymHandler struct {
	pseudonymService service.PseudonymAppService
	logger           logger.Logger
}

// NewPseudonymHandler 创建假名处理器
func NewPseudonymHandler(pseudonymService service.PseudonymAppService, log logger.Logger) *PseudonymHandler {
	return &PseudonymHandler{
		pseudonymService: pseudonymService,
		logger:           log,
	}
}

// CheckDigitRequest carries a raw value to complete with a check symbol.
type CheckDigitRequest struct {
	Value string `json:"value"`
}

// Allocate 为标识符分配假名
// POST /api/v1/domains/:domain/pseudonyms
// Responds 201 when a record was created and 200 when an existing one is returned.
func (h *PseudonymHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if !bindJSON(c, h.logger, &req, "allocate") {
		return
	}

	resp, err := h.pseudonymService.Allocate(c.Request.Context(), c.Param("domain"), &req)
	if err != nil {
		handleError(c, h.logger, err, "allocate")
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	respond(c, status, resp)
}

// Lookup 按标识符查询假名
// GET /api/v1/domains/:domain/pseudonyms?identifier=&id_type=
func (h *PseudonymHandler) Lookup(c *gin.Context) {
	identifier := c.Query("identifier")
	idType := c.Query("id_type")
	if idType == "" {
		idType = c.Query("idType")
	}
	if identifier == "" || idType == "" {
		handleError(c, h.logger, errors.ErrBadRequest("identifier and id_type are required"), "lookup")
		return
	}

	records, err := h.pseudonymService.Lookup(c.Request.Context(), c.Param("domain"), identifier, idType)
	if err != nil {
		handleError(c, h.logger, err, "lookup")
		return
	}
	respond(c, http.StatusOK, records)
}

// Resolve 按假名查询记录
// GET /api/v1/domains/:domain/pseudonyms/:pseudonym
func (h *PseudonymHandler) Resolve(c *gin.Context) {
	record, err := h.pseudonymService.Resolve(c.Request.Context(), c.Param("domain"), c.Param("pseudonym"))
	if err != nil {
		handleError(c, h.logger, err, "resolve")
		return
	}
	respond(c, http.StatusOK, record)
}

// Validate 校验假名的校验位
// GET /api/v1/domains/:domain/pseudonyms/:pseudonym/validation
func (h *PseudonymHandler) Validate(c *gin.Context) {
	resp, err := h.pseudonymService.ValidatePseudonym(c.Request.Context(), c.Param("domain"), c.Param("pseudonym"))
	if err != nil {
		handleError(c, h.logger, err, "validate")
		return
	}
	respond(c, http.StatusOK, resp)
}

// AddCheckDigit 为原始值追加校验位
// POST /api/v1/domains/:domain/check-digit
func (h *PseudonymHandler) AddCheckDigit(c *gin.Context) {
	var req CheckDigitRequest
	if !bindJSON(c, h.logger, &req, "check_digit") {
		return
	}
	resp, err := h.pseudonymService.AddCheckDigit(c.Request.Context(), c.Param("domain"), req.Value)
	if err != nil {
		handleError(c, h.logger, err, "check_digit")
		return
	}
	respond(c, http.StatusOK, resp)
}

// Update 更新单条记录
// PUT /api/v1/domains/:domain/pseudonyms
func (h *PseudonymHandler) Update(c *gin.Context) {
	var req models.PseudonymUpdate
	if !bindJSON(c, h.logger, &req, "update") {
		return
	}
	if err := h.pseudonymService.Update(c.Request.Context(), c.Param("domain"), req); err != nil {
		handleError(c, h.logger, err, "update")
		return
	}
	noContent(c)
}

// Delete 删除单条记录；记录不存在时 deleted 为 false
// DELETE /api/v1/domains/:domain/pseudonyms
func (h *PseudonymHandler) Delete(c *gin.Context) {
	var key models.PseudonymKey
	if !bindJSON(c, h.logger, &key, "delete") {
		return
	}
	deleted, err := h.pseudonymService.Delete(c.Request.Context(), c.Param("domain"), key)
	if err != nil {
		handleError(c, h.logger, err, "delete")
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": deleted})
}

// CreateBatch 批量插入
// POST /api/v1/domains/:domain/pseudonyms/batch
func (h *PseudonymHandler) CreateBatch(c *gin.Context) {
	var req dto.BatchCreateRequest
	if !bindJSON(c, h.logger, &req, "create_batch") {
		return
	}
	result, err := h.pseudonymService.CreateBatch(c.Request.Context(), c.Param("domain"), req.Items)
	if err != nil {
		handleError(c, h.logger, err, "create_batch")
		return
	}
	respond(c, http.StatusOK, result)
}

// UpdateBatch 批量更新
// PUT /api/v1/domains/:domain/pseudonyms/batch
func (h *PseudonymHandler) UpdateBatch(c *gin.Context) {
	var req dto.BatchUpdateRequest
	if !bindJSON(c, h.logger, &req, "update_batch") {
		return
	}
	result, err := h.pseudonymService.UpdateBatch(c.Request.Context(), c.Param("domain"), req.Items)
	if err != nil {
		handleError(c, h.logger, err, "update_batch")
		return
	}
	respond(c, http.StatusOK, result)
}

// DeleteBatch 批量删除
// DELETE /api/v1/domains/:domain/pseudonyms/batch
func (h *PseudonymHandler) DeleteBatch(c *gin.Context) {
	var req dto.BatchDeleteRequest
	if !bindJSON(c, h.logger, &req, "delete_batch") {
		return
	}
	result, err := h.pseudonymService.DeleteBatch(c.Request.Context(), c.Param("domain"), req.Items)
	if err != nil {
		handleError(c, h.logger, err, "delete_batch")
		return
	}
	respond(c, http.StatusOK, result)
}

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/psn/internal/application/dto"
	"github.com/turtacn/psn/internal/interfaces/http/middleware"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

// AccessChecker decides whether the request subject may act on a domain path.
// A nil AccessChecker disables authorization.
type AccessChecker interface {
	Allowed(ctx context.Context, domainPath string) bool
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, dto.SuccessResponse(data, middleware.TraceID(c)))
}

// handleError 统一处理错误
func handleError(c *gin.Context, log logger.Logger, err error, operation string) {
	ctx := c.Request.Context()
	if psnErr, ok := errors.AsPSNError(err); ok && !errors.ShouldLogError(err) {
		log.Warn(ctx, "Request failed",
			logger.String("operation", operation),
			logger.String("error_code", string(psnErr.Code())),
			logger.String("error", psnErr.Error()))
	} else {
		log.Error(ctx, "Unexpected error in request", err, logger.String("operation", operation))
	}
	status, body := dto.ErrorResponse(err, middleware.TraceID(c))
	c.JSON(status, body)
}

func bindJSON(c *gin.Context, log logger.Logger, v interface{}, operation string) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		handleError(c, log, errors.ErrBadRequest("malformed request body: "+err.Error()), operation)
		return false
	}
	return true
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.ErrBadRequest("query parameter " + name + " must be a boolean")
	}
	return v, nil
}

func forbidden(c *gin.Context, log logger.Logger, domain, operation string) {
	handleError(c, log, errors.ErrForbidden(middleware.Subject(c.Request.Context()), domain), operation)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

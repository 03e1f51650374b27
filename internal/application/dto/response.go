package dto

import (
	"time"

	"github.com/turtacn/psn/pkg/errors"
)

// APIResponse 通用 API 响应结构
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	TraceID   string                `json:"trace_id,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// PaginationResponse 分页响应元数据
type PaginationResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// SuccessResponse 创建成功响应
func SuccessResponse(data interface{}, traceID string) *APIResponse {
	return &APIResponse{
		Success:   true,
		Data:      data,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// ErrorResponse 创建错误响应，并返回对应的 HTTP 状态码
func ErrorResponse(err error, traceID string) (int, *APIResponse) {
	status, body := errors.ToErrorResponse(err)
	return status, &APIResponse{
		Success:   false,
		Error:     body,
		TraceID:   traceID,
		Timestamp: time.Now().Unix(),
	}
}

// WithMetadata 添加元数据到响应
func (r *APIResponse) WithMetadata(key string, value interface{}) *APIResponse {
	if dataMap, ok := r.Data.(map[string]interface{}); ok {
		dataMap[key] = value
	} else {
		r.Data = map[string]interface{}{
			"result": r.Data,
			key:      value,
		}
	}
	return r
}

package utils

import (
	"encoding/json"
	"net/http"

	"quickcap-auth-backend/pkg/apperror"
)

// APIResponse 成功响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// APIError 错误响应结构 {success:false, status, message, error}
type APIError struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse 写入创建成功响应
func WriteCreatedResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusCreated, data)
}

// WriteErrorResponse 写入错误响应
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, APIError{
		Success: false,
		Status:  statusCode,
		Message: message,
		Error:   http.StatusText(statusCode),
	})
}

// WriteError 根据 apperror 分类写入错误响应；非分类错误按500处理，不暴露原因
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorResponse(w, apperror.Status(err), apperror.Message(err))
}

// WriteErrorWithDetails 同 WriteError，但附带原始错误（仅开发环境使用）
func WriteErrorWithDetails(w http.ResponseWriter, err error) {
	status := apperror.Status(err)
	writeJSON(w, status, APIError{
		Success: false,
		Status:  status,
		Message: apperror.Message(err),
		Error:   http.StatusText(status),
		Details: err.Error(),
	})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, message)
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, message)
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusInternalServerError, message)
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// header 已写出，只能放弃
		return
	}
}

// ParseJSONBody 解析JSON请求体，失败返回 BadRequest
func ParseJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return apperror.BadRequest("Request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Wrap(apperror.KindBadRequest, "Invalid request body", err)
	}
	return nil
}

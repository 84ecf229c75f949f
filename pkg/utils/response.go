package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorBody 统一的错误响应结构
type ErrorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应，附带状态码便于前端统一处理
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorBody{Error: message, Status: status})
}

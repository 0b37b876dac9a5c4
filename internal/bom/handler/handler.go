// Package handler 提供HTTP接口层
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/erozee1/bomkit/internal/bom/service"
)

// Handlers 处理器集合
type Handlers struct {
	Snapshot *SnapshotHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.SnapshotService) *Handlers {
	return &Handlers{
		Snapshot: NewSnapshotHandler(svc),
	}
}

// RegisterRoutes 注册全部路由
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/snapshots", h.Snapshot.IngestSnapshot)
	rg.GET("/snapshots/:id", h.Snapshot.GetSnapshot)
	rg.GET("/snapshots/:id/items", h.Snapshot.GetSnapshotItems)
	rg.POST("/diff", h.Snapshot.DiffSnapshots)
	rg.POST("/diff/classify", h.Snapshot.ClassifySnapshots)
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务端错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

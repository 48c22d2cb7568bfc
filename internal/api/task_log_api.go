package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/daq-ao/internal/models"
	"github.com/wfunc/daq-ao/internal/service"
)

// TaskLogAPI 任务日志API
type TaskLogAPI struct {
	service *service.TaskLogService
}

// NewTaskLogAPI 创建任务日志API
func NewTaskLogAPI(service *service.TaskLogService) *TaskLogAPI {
	return &TaskLogAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由
func (api *TaskLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/task-logs")
	{
		logs.GET("", api.QueryLogs)            // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs) // 获取最新日志
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.GET("/request/:id", api.GetByRequestID) // 按请求ID获取任务全生命周期
		logs.POST("/cleanup", api.CleanupLogs) // 清理旧日志
		logs.GET("/export", api.ExportLogs)    // 导出日志
	}
}

// QueryLogs 查询日志列表
func (api *TaskLogAPI) QueryLogs(c *gin.Context) {
	query := &models.TaskLogQuery{}

	// 解析查询参数
	if event := c.Query("event"); event != "" {
		query.Event = models.TaskLogEvent(event)
	}
	if level := c.Query("level"); level != "" {
		query.Level = models.TaskLogLevel(level)
	}
	if taskID := c.Query("task_id"); taskID != "" {
		if v, err := strconv.ParseUint(taskID, 10, 64); err == nil {
			query.TaskID = v
		}
	}
	query.RequestID = c.Query("request_id")
	query.DeviceID = c.Query("device_id")

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 采样频率范围
	if minFreq := c.Query("min_freq"); minFreq != "" {
		if v, err := strconv.ParseFloat(minFreq, 64); err == nil {
			query.MinFreq = &v
		}
	}
	if maxFreq := c.Query("max_freq"); maxFreq != "" {
		if v, err := strconv.ParseFloat(maxFreq, 64); err == nil {
			query.MaxFreq = &v
		}
	}

	// 是否有错误
	if hasError := c.Query("has_error"); hasError == "true" {
		b := true
		query.HasError = &b
	}

	// 分页参数
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	query.OrderBy = c.DefaultQuery("order_by", "created_at DESC")

	// 查询日志
	logs, total, err := api.service.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *TaskLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	event := models.TaskLogEvent(c.Query("event"))

	logs, err := api.service.GetLatestLogs(limit, event)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetStats 获取统计信息
func (api *TaskLogAPI) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time

	if st := c.Query("start_time"); st != "" {
		if t, err := time.Parse(time.RFC3339, st); err == nil {
			startTime = &t
		}
	}
	if et := c.Query("end_time"); et != "" {
		if t, err := time.Parse(time.RFC3339, et); err == nil {
			endTime = &t
		}
	}

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetByRequestID 获取同一请求的全部事件
func (api *TaskLogAPI) GetByRequestID(c *gin.Context) {
	requestID := c.Param("id")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少请求ID"})
		return
	}

	logs, err := api.service.GetByRequestID(requestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// CleanupLogs 清理旧日志
func (api *TaskLogAPI) CleanupLogs(c *gin.Context) {
	retentionDays, _ := strconv.Atoi(c.DefaultQuery("retention_days", "30"))

	deleted, err := api.service.CleanupOldLogs(retentionDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        deleted,
		"retention_days": retentionDays,
	})
}

// ExportLogs 导出日志
func (api *TaskLogAPI) ExportLogs(c *gin.Context) {
	query := &models.TaskLogQuery{
		RequestID: c.Query("request_id"),
		DeviceID:  c.Query("device_id"),
	}
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "1000"))

	data, err := api.service.ExportLogs(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "导出失败",
			"message": err.Error(),
		})
		return
	}

	c.Header("Content-Disposition", "attachment; filename=task_logs.json")
	c.Data(http.StatusOK, "application/json", data)
}

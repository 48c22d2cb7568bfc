package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wfunc/daq-ao/internal/errors"
	"github.com/wfunc/daq-ao/internal/hardware"
	"github.com/wfunc/daq-ao/internal/repository"
	"github.com/wfunc/daq-ao/internal/service"
	ws "github.com/wfunc/daq-ao/internal/websocket"
	"go.uber.org/zap"
)

// DeviceHandler 设备控制处理器
// 远程调用面与控制器接口一一对应: ping / 装载采样值 / 关闭，
// 另带取消任务和统计等辅助操作
type DeviceHandler struct {
	controller hardware.OutputController
	taskLogSvc *service.TaskLogService
	deviceRepo repository.DeviceStatusRepository
	hub        *ws.Hub
	deviceID   string
	logger     *zap.Logger
}

// NewDeviceHandler 创建设备控制处理器
func NewDeviceHandler(
	controller hardware.OutputController,
	taskLogSvc *service.TaskLogService,
	deviceRepo repository.DeviceStatusRepository,
	hub *ws.Hub,
	deviceID string,
	logger *zap.Logger,
) *DeviceHandler {
	return &DeviceHandler{
		controller: controller,
		taskLogSvc: taskLogSvc,
		deviceRepo: deviceRepo,
		hub:        hub,
		deviceID:   deviceID,
		logger:     logger,
	}
}

// LoadSamplesRequest 装载采样值请求
type LoadSamplesRequest struct {
	// 采样频率 (Hz)，设备在每个时钟上升沿输出一个采样
	SamplingFreq float64 `json:"sampling_freq" binding:"required"`
	// 采样电压值，多通道时按通道分组串接
	Values []float64 `json:"values" binding:"required"`
}

// Ping 设备存活探测
func (h *DeviceHandler) Ping(c *gin.Context) {
	alive := h.controller.Ping()

	// 探测结果同步到设备状态表（尽力而为）
	if h.deviceRepo != nil {
		var err error
		if alive {
			err = h.deviceRepo.UpdatePing(c.Request.Context(), h.deviceID)
		} else {
			err = h.deviceRepo.UpdateStatus(c.Request.Context(), h.deviceID, "offline")
		}
		if err != nil {
			h.logger.Warn("更新设备状态失败", zap.Error(err))
		}
	}
	if h.hub != nil && !alive {
		h.hub.BroadcastDeviceStatus(h.deviceID, false)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"alive":     alive,
		"device_id": h.deviceID,
		"timestamp": time.Now().Unix(),
	})
}

// LoadSamples 装载采样值并启动输出任务
// 任何调用都会取消之前的任务，即使其尚未完成
func (h *DeviceHandler) LoadSamples(c *gin.Context) {
	var req LoadSamplesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Wrap(err, errors.ErrInvalidParam, "请求体解析失败"))
		return
	}

	start := time.Now()
	if err := h.controller.LoadSampleValues(req.SamplingFreq, req.Values); err != nil {
		if h.taskLogSvc != nil {
			h.taskLogSvc.LogLoadFailure(req.SamplingFreq, len(req.Values), err, time.Since(start))
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"sampling_freq": req.SamplingFreq,
		"sample_count":  len(req.Values),
		"elapsed_ms":    time.Since(start).Milliseconds(),
		"timestamp":     time.Now().Unix(),
	})
}

// ClearTask 取消在途任务
// 幂等: 无任务时是空操作
func (h *DeviceHandler) ClearTask(c *gin.Context) {
	ctrl, ok := h.controller.(*hardware.AOController)
	if !ok {
		// 仿真控制器没有任务可取消
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	if err := ctrl.ClearPendingTask(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CloseDevice 释放设备资源
func (h *DeviceHandler) CloseDevice(c *gin.Context) {
	if err := h.controller.Close(); err != nil {
		h.respondError(c, err)
		return
	}

	if h.deviceRepo != nil {
		if err := h.deviceRepo.UpdateStatus(c.Request.Context(), h.deviceID, "offline"); err != nil {
			h.logger.Warn("更新设备状态失败", zap.Error(err))
		}
	}
	if h.hub != nil {
		h.hub.BroadcastDeviceStatus(h.deviceID, false)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetStatistics 获取任务统计
func (h *DeviceHandler) GetStatistics(c *gin.Context) {
	ctrl, ok := h.controller.(*hardware.AOController)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"simulation": true,
		})
		return
	}

	stats := ctrl.GetStatistics()
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"simulation":      false,
		"tasks_loaded":    stats.TasksLoaded,
		"tasks_completed": stats.TasksCompleted,
		"tasks_cleared":   stats.TasksCleared,
		"load_failures":   stats.LoadFailures,
		"active_task":     uint64(ctrl.ActiveTask()),
	})
}

// GetStatus 获取设备状态
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	if h.deviceRepo == nil {
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"device_id": h.deviceID,
		})
		return
	}

	device, err := h.deviceRepo.FindByDeviceID(c.Request.Context(), h.deviceID)
	if err != nil {
		h.respondError(c, errors.Wrap(err, errors.ErrNotFound, "设备未注册"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"device":  device,
	})
}

// respondError 统一错误响应
func (h *DeviceHandler) respondError(c *gin.Context, err error) {
	requestID := uuid.New().String()

	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}

	h.logger.Error("请求处理失败",
		zap.String("request_id", requestID),
		zap.String("path", c.Request.URL.Path),
		zap.Int("code", int(appErr.Code)),
		zap.Error(err))

	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, requestID))
}

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wfunc/daq-ao/internal/hardware"
	"github.com/wfunc/daq-ao/internal/repository"
	"github.com/wfunc/daq-ao/internal/service"
	ws "github.com/wfunc/daq-ao/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine        *gin.Engine
	db            *gorm.DB
	deviceHandler *DeviceHandler
	taskLogAPI    *TaskLogAPI
	wsHandler     *WebSocketHandler
	log           *zap.Logger
}

// RouterOptions 路由器依赖
type RouterOptions struct {
	DB         *gorm.DB
	Controller hardware.OutputController
	TaskLogSvc *service.TaskLogService
	DeviceRepo repository.DeviceStatusRepository
	Hub        *ws.Hub
	DeviceID   string
	Logger     *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts RouterOptions) *Router {
	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	router := &Router{
		engine: engine,
		db:     opts.DB,
		deviceHandler: NewDeviceHandler(
			opts.Controller,
			opts.TaskLogSvc,
			opts.DeviceRepo,
			opts.Hub,
			opts.DeviceID,
			opts.Logger,
		),
		log: opts.Logger,
	}

	if opts.TaskLogSvc != nil {
		router.taskLogAPI = NewTaskLogAPI(opts.TaskLogSvc)
	}
	if opts.Hub != nil {
		router.wsHandler = NewWebSocketHandler(opts.Hub, opts.Logger)
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// API v1路由组
	v1 := r.engine.Group("/api/v1")
	{
		// 设备控制路由
		device := v1.Group("/device")
		{
			device.GET("/ping", r.deviceHandler.Ping)
			device.POST("/samples", r.deviceHandler.LoadSamples)
			device.POST("/clear", r.deviceHandler.ClearTask)
			device.POST("/close", r.deviceHandler.CloseDevice)
			device.GET("/stats", r.deviceHandler.GetStatistics)
			device.GET("/status", r.deviceHandler.GetStatus)
		}

		// 任务日志路由
		if r.taskLogAPI != nil {
			r.taskLogAPI.RegisterRoutes(v1)
		}
	}

	// 任务事件WebSocket
	if r.wsHandler != nil {
		r.engine.GET("/ws/events", r.wsHandler.EventsWebSocket)
		r.engine.GET("/ws/online", r.wsHandler.GetOnlineCount)
	}
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	dbOK := true
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil || sqlDB.Ping() != nil {
			dbOK = false
		}
	}

	c.JSON(200, gin.H{
		"status":   "ok",
		"database": dbOK,
	})
}

// Engine 返回Gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

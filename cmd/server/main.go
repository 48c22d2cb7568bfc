package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/daq-ao/internal/api"
	"github.com/wfunc/daq-ao/internal/config"
	"github.com/wfunc/daq-ao/internal/database"
	"github.com/wfunc/daq-ao/internal/errors"
	"github.com/wfunc/daq-ao/internal/hardware"
	"github.com/wfunc/daq-ao/internal/logger"
	"github.com/wfunc/daq-ao/internal/models"
	"github.com/wfunc/daq-ao/internal/repository"
	"github.com/wfunc/daq-ao/internal/service"
	ws "github.com/wfunc/daq-ao/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	controller hardware.OutputController
	taskLogSvc *service.TaskLogService
	deviceRepo repository.DeviceStatusRepository
	hub        *ws.Hub
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 设置系统参数
	setupSystem(&cfg.System)

	// 打印启动信息
	printStartInfo(cfg)

	// 创建服务器实例
	server := NewServer(cfg)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动模拟输出控制服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.Bool("simulation", s.cfg.SimulationMode()),
	)

	// 初始化各个组件
	if err := s.initComponents(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "初始化组件失败")
	}

	// 启动HTTP服务
	if err := s.startHTTPServer(); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "启动服务失败")
	}

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.cfg = newCfg
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)),
		zap.String("channels", s.cfg.Device.Channels),
		zap.String("clock", s.cfg.Device.Clock),
	)

	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	if err := s.initDatabase(); err != nil {
		return err
	}

	// 任务日志服务
	s.taskLogSvc = service.NewTaskLogService(database.GetDB(), s.cfg.Device.DeviceID)
	s.deviceRepo = repository.NewDeviceStatusRepository(database.GetDB())

	// WebSocket事件推送
	s.hub = ws.NewHub(logger.GetModuleLogger("websocket"))
	go s.hub.Run()

	// 输出控制器
	if err := s.initController(); err != nil {
		return err
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...")

	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.logger.Info("数据库初始化完成")
	return nil
}

// initController 初始化输出控制器
// 未配置物理通道时使用仿真替身，接口与真实控制器完全一致
func (s *Server) initController() error {
	deviceCfg := &s.cfg.Device

	if s.cfg.SimulationMode() {
		s.logger.Info("未配置物理通道，进入仿真模式")
		s.controller = hardware.NewSimController()
		return s.registerDevice("simulation", "online")
	}

	// 选择驱动
	var (
		dev hardware.DAQ
		err error
	)
	switch deviceCfg.Driver {
	case "mock":
		s.logger.Info("使用进程内DAQ模拟器")
		dev = hardware.NewMockDAQ()
	default:
		dev, err = hardware.OpenNIDAQmx(hardware.DeviceName(deviceCfg.Channels))
		if err != nil {
			return err
		}
	}

	ctrl, err := hardware.NewAOController(dev, deviceCfg.Channels, deviceCfg.Clock, deviceCfg.DeviceID)
	if err != nil {
		return err
	}

	// 任务事件: 落库 + WebSocket推送
	ctrl.SetTaskEventCallback(func(event *hardware.TaskEvent) {
		s.taskLogSvc.LogTaskEvent(event)
		s.hub.BroadcastTaskEvent(event)
	})

	s.controller = ctrl

	status := "online"
	if !ctrl.Ping() {
		s.logger.Warn("设备存活探测失败，服务继续启动",
			zap.String("channels", deviceCfg.Channels))
		status = "offline"
	}

	return s.registerDevice("daq_ao", status)
}

// registerDevice 把设备登记到状态表
func (s *Server) registerDevice(deviceType, status string) error {
	device := &models.DeviceStatus{
		DeviceID:   s.cfg.Device.DeviceID,
		DeviceName: "PXI-6733",
		Type:       deviceType,
		Status:     status,
		Driver:     s.cfg.Device.Driver,
		Channels:   s.cfg.Device.Channels,
		Clock:      s.cfg.Device.Clock,
		Version:    Version,
		LastPingAt: time.Now(),
	}

	if err := s.deviceRepo.RegisterDevice(s.ctx, device); err != nil {
		// 状态表是辅助信息，登记失败不阻止启动
		s.logger.Warn("登记设备状态失败", zap.Error(err))
	}
	return nil
}

// startHTTPServer 启动HTTP服务
func (s *Server) startHTTPServer() error {
	if s.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewRouter(api.RouterOptions{
		DB:         database.GetDB(),
		Controller: s.controller,
		TaskLogSvc: s.taskLogSvc,
		DeviceRepo: s.deviceRepo,
		Hub:        s.hub,
		DeviceID:   s.cfg.Device.DeviceID,
		Logger:     s.logger,
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			close(s.shutdownCh)
		}
	}()

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.shutdownCh:
		s.logger.Info("服务内部请求退出")
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
		}
	}

	s.cancel()

	// 关闭各个组件
	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	// 释放硬件资源（清除在途任务）
	if s.controller != nil {
		if err := s.controller.Close(); err != nil {
			s.logger.Error("关闭输出控制器失败", zap.Error(err))
		}
	}

	// 任务日志排空落库
	if s.taskLogSvc != nil {
		s.taskLogSvc.Close()
	}

	// 关闭数据库连接
	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	// 设置时区
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	// 设置最大处理器数
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}

	// 设置文件描述符限制（Unix系统）
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err == nil {
		rLimit.Cur = rLimit.Max
		syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("PXI-6733模拟输出控制服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("PXI-6733模拟输出控制服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  daq-ao-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  DAQ_AO_DEVICE_CHANNELS   物理通道描述符（留空表示仿真模式）")
	fmt.Println("  DAQ_AO_DEVICE_CLOCK      采样时钟源端子（默认 PFI5）")
	fmt.Println("  DAQ_AO_SERVER_PORT       HTTP服务端口（默认 3256）")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  daq-ao-server -config=/path/to/config.yaml")
	fmt.Println("  DAQ_AO_DEVICE_CHANNELS=Dev1/ao0:1 daq-ao-server")
	fmt.Println("  daq-ao-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	banner := `
╔═══════════════════════════════════════════════════════════════╗
║                                                               ║
║     ____    _    ___         _    ___                        ║
║    |  _ \  / \  / _ \       / \  / _ \                       ║
║    | | | |/ _ \| | | |     / _ \| | | |                      ║
║    | |_| / ___ \ |_| |    / ___ \ |_| |                      ║
║    |____/_/   \_\__\_\   /_/   \_\___/                       ║
║                                                               ║
║               PXI-6733 模拟输出控制服务器                     ║
║                                                               ║
╚═══════════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	if cfg.SimulationMode() {
		fmt.Println("运行模式: 仿真（未配置物理通道）")
	} else {
		fmt.Printf("物理通道: %s | 时钟: %s\n", cfg.Device.Channels, cfg.Device.Clock)
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
}

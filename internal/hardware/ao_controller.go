package hardware

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/daq-ao/internal/errors"
	"github.com/wfunc/daq-ao/internal/logger"
	"go.uber.org/zap"
)

// AOController 模拟输出任务控制器
// 每个设备绑定一个实例，同一时刻最多持有一个在途硬件任务。
// 新的装载请求总是先取消/清除之前的任务（无论其是否完成）。
//
// 并发模型: 请求由服务端逐个同步调用，但驱动的完成通知来自驱动自己的
// 执行上下文，因此任务槽位由互斥锁保护；正确性机制是句柄身份比较——
// 完成通知只在句柄与当前任务一致时生效，过期通知直接忽略。
type AOController struct {
	dev      DAQ
	channels string // 物理通道描述符（NI-DAQmx通道列表语法）
	clock    string // 采样时钟源端子（NI-DAQmx端子名语法）
	deviceID string

	mu        sync.Mutex
	task      TaskHandle // 当前任务句柄，NoTask表示无任务
	requestID string     // 当前任务对应的请求ID
	closed    bool

	stats TaskStatistics

	logger *zap.Logger

	// 事件回调，由独立的分发goroutine按产生顺序调用
	onTaskEvent func(*TaskEvent)
	events      chan *TaskEvent
}

// NewAOController 创建模拟输出任务控制器
// channels和clock接受string或[]byte，其他类型返回配置错误
func NewAOController(dev DAQ, channels, clock interface{}, deviceID string) (*AOController, error) {
	ch, err := NormalizeDescriptor(channels, "channels")
	if err != nil {
		return nil, err
	}
	clk, err := NormalizeDescriptor(clock, "clock")
	if err != nil {
		return nil, err
	}

	return &AOController{
		dev:      dev,
		channels: ch,
		clock:    clk,
		deviceID: deviceID,
		logger:   logger.GetModuleLogger("hardware"),
	}, nil
}

// SetTaskEventCallback 设置任务生命周期事件回调
// 回调由单独的分发goroutine串行调用，事件顺序与产生顺序一致
func (c *AOController) SetTaskEventCallback(callback func(*TaskEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onTaskEvent = callback
	if c.events == nil && callback != nil {
		c.events = make(chan *TaskEvent, 64)
		go c.dispatchEvents(c.events)
	}
}

// dispatchEvents 事件分发循环，Close时随通道关闭退出
func (c *AOController) dispatchEvents(events <-chan *TaskEvent) {
	for event := range events {
		c.mu.Lock()
		callback := c.onTaskEvent
		c.mu.Unlock()

		if callback != nil {
			callback(event)
		}
	}
}

// Channels 返回绑定的通道描述符
func (c *AOController) Channels() string {
	return c.channels
}

// Clock 返回采样时钟源端子
func (c *AOController) Clock() string {
	return c.clock
}

// GetStatistics 获取任务统计
func (c *AOController) GetStatistics() TaskStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ActiveTask 返回当前任务句柄（NoTask表示空闲）
func (c *AOController) ActiveTask() TaskHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task
}

// Ping 设备存活探测
// 查询设备序列号，任何失败（包括驱动panic）都转换为false，从不返回错误
func (c *AOController) Ping() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("存活探测时驱动panic", zap.Any("panic", r))
			ok = false
		}
	}()

	serial, err := c.dev.SerialNumber()
	if err != nil {
		c.logger.Debug("存活探测失败", zap.Error(err))
		return false
	}

	c.logger.Debug("存活探测成功", zap.Uint32("serial", serial))
	return true
}

// LoadSampleValues 装载采样值并启动输出任务
//
// 设备在每个时钟上升沿输出一个采样，第一个采样在第一个上升沿输出。
// 多通道时values按通道分组串接（通道0的全部采样在前，依此类推），
// 长度必须是任务解析出的通道数的整数倍。电压范围按本次数据的
// [min, max] 重新计算，超出设备物理能力的值由硬件层报配置错误而
// 不是被静默截断。
//
// 流程中任何失败都是本次调用的终点，不做任何重试；调用方重新发起
// 请求时第一步的清除操作天然接管损坏的状态。
func (c *AOController) LoadSampleValues(samplingFreq float64, values []float64) error {
	if samplingFreq <= 0 {
		return errors.Newf(errors.ErrInvalidParam, "采样频率必须为正数: %v", samplingFreq)
	}
	if len(values) == 0 {
		return errors.New(errors.ErrInvalidParam, "采样值不能为空")
	}

	requestID := uuid.New().String()
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New(errors.ErrDeviceOffline, "控制器已关闭")
	}

	// 第一步: 无条件取消任何在途任务，保证最多一个任务被武装
	superseded := c.task
	if err := c.clearPendingLocked(TaskEventSuperseded); err != nil {
		c.stats.LoadFailures++
		return err
	}
	if superseded != NoTask {
		c.logger.Info("在途任务已被新请求替代",
			zap.Uint64("superseded_task", uint64(superseded)),
			zap.String("request_id", requestID))
	}

	// 电压范围按本次数据重新计算
	minVolts, maxVolts := values[0], values[0]
	for _, v := range values[1:] {
		if v < minVolts {
			minVolts = v
		}
		if v > maxVolts {
			maxVolts = v
		}
	}

	task, err := c.dev.CreateAOVoltageTask(c.channels, minVolts, maxVolts)
	if err != nil {
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrTaskCreate)
	}

	channelCount, err := c.dev.TaskChannelCount(task)
	if err != nil {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrTaskCreate, "查询任务通道数失败")
	}

	// 采样数必须整除通道数，否则销毁刚创建的任务（不留悬挂任务）
	if len(values)%channelCount != 0 {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Newf(errors.ErrInvalidBufferSize,
			"采样数 %d 必须是通道数（%d）的整数倍", len(values), channelCount)
	}
	samplesPerChannel := len(values) / channelCount

	// 采样时钟: 外部时钟源、上升沿、有限采样
	if err := c.dev.CfgSampleClockTiming(task, c.clock, samplingFreq, samplesPerChannel); err != nil {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrClockConfig)
	}

	// 阻塞写入整个缓冲区。短写说明硬件状态已不可靠，按致命错误处理，
	// 尽力清除后绝不复用该句柄
	written, status, err := c.dev.WriteAnalog(task, samplesPerChannel, values)
	if err != nil {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrWriteFailed)
	}
	if written != len(values) {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Newf(errors.ErrIncompleteWrite,
			"仅写入 %d/%d 个采样值", written, len(values))
	}
	if status != 0 {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Newf(errors.ErrWriteFailed, "写入返回非零状态码 %d", status)
	}

	// 注册完成通知: 回调由驱动在自己的线程上触发，
	// HandleDoneEvent内部用句柄身份比较过滤过期通知
	if err := c.dev.RegisterDoneEvent(task, c.HandleDoneEvent); err != nil {
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrDoneEventRegister)
	}

	c.task = task
	c.requestID = requestID

	if err := c.dev.StartTask(task); err != nil {
		c.task = NoTask
		c.requestID = ""
		c.destroyTaskLocked(task)
		c.stats.LoadFailures++
		return errors.Wrap(err, errors.ErrTaskStart)
	}

	c.stats.TasksLoaded++
	c.stats.LastLoadTime = time.Now()

	c.logger.Info("输出任务已装载并启动",
		zap.Uint64("task", uint64(task)),
		zap.String("request_id", requestID),
		zap.String("channels", c.channels),
		zap.Int("channel_count", channelCount),
		zap.Int("samples_per_channel", samplesPerChannel),
		zap.Float64("sampling_freq", samplingFreq),
		zap.Float64("min_volts", minVolts),
		zap.Float64("max_volts", maxVolts),
		zap.Duration("elapsed", time.Since(start)))

	c.emitLocked(&TaskEvent{
		Type:              TaskEventStarted,
		Task:              task,
		RequestID:         requestID,
		Channels:          c.channels,
		ChannelCount:      channelCount,
		SamplesPerChannel: samplesPerChannel,
		SamplingFreq:      samplingFreq,
		MinVolts:          minVolts,
		MaxVolts:          maxVolts,
		Timestamp:         time.Now(),
	})

	return nil
}

// ClearPendingTask 清除在途任务
// 幂等: 无任务时是空操作，从不报错
func (c *AOController) ClearPendingTask() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearPendingLocked(TaskEventCleared)
}

// clearPendingLocked 清除任务槽位（须持锁调用）
// 清除失败时槽位仍然置空——句柄已不可信，保留只会让后续请求反复撞上
// 同一个坏句柄；错误向上传播而不是静默吞掉
func (c *AOController) clearPendingLocked(eventType TaskEventType) error {
	if c.task == NoTask {
		return nil
	}

	task := c.task
	requestID := c.requestID
	c.task = NoTask
	c.requestID = ""

	err := c.dev.ClearTask(task)
	logger.LogDAQCall("ClearTask", err, zap.Uint64("task", uint64(task)))
	if err != nil {
		return errors.Wrap(err, errors.ErrTaskClear)
	}

	c.stats.TasksCleared++

	c.emitLocked(&TaskEvent{
		Type:      eventType,
		Task:      task,
		RequestID: requestID,
		Timestamp: time.Now(),
	})

	return nil
}

// destroyTaskLocked 尽力销毁装载流程中途失败的任务（须持锁调用）
// 该任务从未成为当前任务，失败只记录日志
func (c *AOController) destroyTaskLocked(task TaskHandle) {
	if err := c.dev.ClearTask(task); err != nil {
		c.logger.Error("销毁未完成装载的任务失败",
			zap.Uint64("task", uint64(task)),
			zap.Error(err))
	}
}

// HandleDoneEvent 任务完成通知处理
// 由驱动层在自己的执行上下文中异步调用。只有当句柄与当前任务一致时
// 才清除状态；任务已被替代时的过期通知、以及同一句柄的重复通知都是
// 空操作。任务已自然完成，这里的ClearTask只是释放驱动侧句柄资源。
func (c *AOController) HandleDoneEvent(task TaskHandle, status int32) {
	c.mu.Lock()

	if task != c.task {
		c.mu.Unlock()
		c.logger.Debug("忽略过期的完成通知",
			zap.Uint64("task", uint64(task)),
			zap.Int32("status", status))
		return
	}

	requestID := c.requestID
	c.task = NoTask
	c.requestID = ""

	if err := c.dev.ClearTask(task); err != nil {
		c.logger.Error("释放已完成任务失败",
			zap.Uint64("task", uint64(task)),
			zap.Error(err))
	}

	c.stats.TasksCompleted++
	c.stats.LastDoneTime = time.Now()

	c.logger.Info("输出任务完成",
		zap.Uint64("task", uint64(task)),
		zap.String("request_id", requestID),
		zap.Int32("status", status))

	c.emitLocked(&TaskEvent{
		Type:      TaskEventDone,
		Task:      task,
		RequestID: requestID,
		Status:    status,
		Timestamp: time.Now(),
	})

	c.mu.Unlock()
}

// Close 释放持有的硬件资源
// 可重复调用，重复关闭是空操作
func (c *AOController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	clearErr := c.clearPendingLocked(TaskEventCleared)
	if clearErr != nil {
		c.logger.Error("关闭时清除任务失败", zap.Error(clearErr))
	}

	c.closed = true

	if c.events != nil {
		close(c.events)
		c.events = nil
	}

	if err := c.dev.Close(); err != nil {
		return errors.Wrap(err, errors.ErrTaskClear, "释放设备资源失败")
	}

	c.logger.Info("模拟输出控制器已关闭", zap.String("device_id", c.deviceID))
	return clearErr
}

// emitLocked 投递任务事件（须持锁调用）
// 事件进入缓冲通道由分发goroutine异步消费，避免订阅方回调反向调用
// 控制器时死锁；队列满时丢弃而不是阻塞装载路径
func (c *AOController) emitLocked(event *TaskEvent) {
	if c.events == nil {
		return
	}

	select {
	case c.events <- event:
	default:
		c.logger.Warn("任务事件队列已满，丢弃事件",
			zap.String("type", string(event.Type)),
			zap.Uint64("task", uint64(event.Task)))
	}
}

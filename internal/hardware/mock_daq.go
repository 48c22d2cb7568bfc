package hardware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/daq-ao/internal/logger"
	"go.uber.org/zap"
)

// MockDAQ 进程内DAQ设备模拟器（用于测试和无硬件台架）
// 按NI-DAQmx通道列表语法解析通道数，任务启动后按采样数/采样率
// 计算输出时长，到期在独立goroutine上触发完成回调——与真实驱动
// 在自己线程上回调的行为一致
type MockDAQ struct {
	mu     sync.Mutex
	logger *zap.Logger

	serial     uint32
	nextHandle TaskHandle
	tasks      map[TaskHandle]*mockTask
	offline    bool
	closed     bool
}

// mockTask 模拟任务状态
type mockTask struct {
	channels          int
	minVolts          float64
	maxVolts          float64
	clockSource       string
	rate              float64
	samplesPerChannel int
	buffer            []float64
	done              DoneHandler
	started           bool
	timer             *time.Timer
}

// NewMockDAQ 创建DAQ模拟器
func NewMockDAQ() *MockDAQ {
	return &MockDAQ{
		logger: logger.GetModuleLogger("hardware"),
		serial: 0x00673301,
		tasks:  make(map[TaskHandle]*mockTask),
	}
}

// SetOffline 设置设备离线（模拟探测失败路径）
func (m *MockDAQ) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// SerialNumber 查询模拟设备序列号
func (m *MockDAQ) SerialNumber() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.offline {
		return 0, fmt.Errorf("device unreachable")
	}
	return m.serial, nil
}

// CreateAOVoltageTask 创建模拟输出任务
func (m *MockDAQ) CreateAOVoltageTask(channels string, minVolts, maxVolts float64) (TaskHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NoTask, fmt.Errorf("device closed")
	}
	if minVolts > maxVolts {
		return NoTask, fmt.Errorf("invalid voltage range [%v, %v]", minVolts, maxVolts)
	}

	count, err := parsePhysicalChannels(channels)
	if err != nil {
		return NoTask, err
	}

	m.nextHandle++
	handle := m.nextHandle
	m.tasks[handle] = &mockTask{
		channels: count,
		minVolts: minVolts,
		maxVolts: maxVolts,
	}

	m.logger.Debug("模拟任务已创建",
		zap.Uint64("task", uint64(handle)),
		zap.String("channels", channels),
		zap.Int("channel_count", count))

	return handle, nil
}

// TaskChannelCount 查询任务通道数
func (m *MockDAQ) TaskChannelCount(task TaskHandle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return 0, fmt.Errorf("unknown task handle %d", task)
	}
	return t.channels, nil
}

// CfgSampleClockTiming 配置模拟采样时钟
func (m *MockDAQ) CfgSampleClockTiming(task TaskHandle, source string, rate float64, samplesPerChannel int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return fmt.Errorf("unknown task handle %d", task)
	}
	if rate <= 0 {
		return fmt.Errorf("invalid sample clock rate %v", rate)
	}

	t.clockSource = source
	t.rate = rate
	t.samplesPerChannel = samplesPerChannel
	return nil
}

// WriteAnalog 模拟缓冲写入，总是全量写入成功
func (m *MockDAQ) WriteAnalog(task TaskHandle, samplesPerChannel int, values []float64) (int, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return 0, 0, fmt.Errorf("unknown task handle %d", task)
	}

	t.buffer = append([]float64(nil), values...)
	return len(values), 0, nil
}

// RegisterDoneEvent 注册完成回调
func (m *MockDAQ) RegisterDoneEvent(task TaskHandle, handler DoneHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return fmt.Errorf("unknown task handle %d", task)
	}
	t.done = handler
	return nil
}

// StartTask 启动模拟任务
// 输出时长 = 每通道采样数 / 采样率，到期触发完成回调
func (m *MockDAQ) StartTask(task TaskHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return fmt.Errorf("unknown task handle %d", task)
	}
	if t.started {
		return fmt.Errorf("task %d already started", task)
	}
	if t.rate <= 0 {
		return fmt.Errorf("task %d has no sample clock configured", task)
	}

	t.started = true
	duration := time.Duration(float64(t.samplesPerChannel) / t.rate * float64(time.Second))

	handler := t.done
	t.timer = time.AfterFunc(duration, func() {
		if handler != nil {
			handler(task, 0)
		}
	})

	m.logger.Debug("模拟任务已启动",
		zap.Uint64("task", uint64(task)),
		zap.Duration("duration", duration))

	return nil
}

// ClearTask 取消/销毁模拟任务
func (m *MockDAQ) ClearTask(task TaskHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[task]
	if !ok {
		return fmt.Errorf("unknown task handle %d", task)
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	delete(m.tasks, task)
	return nil
}

// Close 释放模拟设备
func (m *MockDAQ) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for handle, t := range m.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(m.tasks, handle)
	}
	m.closed = true
	return nil
}

// TaskCount 当前存活的任务数量（测试用）
func (m *MockDAQ) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// parsePhysicalChannels 按NI-DAQmx物理通道列表语法计算通道数
// 支持单通道（Dev1/ao0）和范围（Dev1/ao1:3、Dev1/ao1:ao3），逗号分隔
func parsePhysicalChannels(desc string) (int, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return 0, fmt.Errorf("empty channel descriptor")
	}

	total := 0
	for _, part := range strings.Split(desc, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0, fmt.Errorf("empty channel term in %q", desc)
		}

		// 去掉设备前缀
		name := part
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}

		lo, hi, ok := splitChannelRange(name)
		if !ok {
			return 0, fmt.Errorf("invalid channel term %q", part)
		}
		if hi < lo {
			return 0, fmt.Errorf("invalid channel range %q", part)
		}
		total += hi - lo + 1
	}

	return total, nil
}

// splitChannelRange 解析 aoN 或 aoM:N / aoM:aoN 形式的通道项
func splitChannelRange(name string) (lo, hi int, ok bool) {
	first := name
	second := ""
	if i := strings.IndexByte(name, ':'); i >= 0 {
		first = name[:i]
		second = name[i+1:]
	}

	lo, ok = channelIndex(first)
	if !ok {
		return 0, 0, false
	}

	if second == "" {
		return lo, lo, true
	}

	hi, ok = channelIndex(second)
	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

// channelIndex 提取通道名末尾的序号（ao3 -> 3，也接受纯数字）
func channelIndex(name string) (int, bool) {
	name = strings.TrimSpace(name)
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, false
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}

package hardware

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/wfunc/daq-ao/internal/errors"
)

// fakeDAQ 可编程DAQ桩，用于注入各阶段的失败
// 函数字段为nil时执行默认成功路径
type fakeDAQ struct {
	mu sync.Mutex

	serialFn      func() (uint32, error)
	createFn      func(channels string, minVolts, maxVolts float64) (TaskHandle, error)
	chanCountFn   func(task TaskHandle) (int, error)
	cfgClockFn    func(task TaskHandle, source string, rate float64, spc int) error
	writeFn       func(task TaskHandle, spc int, values []float64) (int, int32, error)
	startFn       func(task TaskHandle) error
	clearFn       func(task TaskHandle) error
	closeFn       func() error

	channelCount int
	nextHandle   TaskHandle

	// 记录的调用参数
	createdMin, createdMax float64
	clockSource            string
	clockRate              float64
	clockSPC               int
	writtenValues          []float64
	doneHandler            DoneHandler
	doneTask               TaskHandle
	clearedTasks           []TaskHandle
	startedTasks           []TaskHandle
}

func newFakeDAQ(channelCount int) *fakeDAQ {
	return &fakeDAQ{channelCount: channelCount}
}

func (f *fakeDAQ) SerialNumber() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serialFn != nil {
		return f.serialFn()
	}
	return 0x1234, nil
}

func (f *fakeDAQ) CreateAOVoltageTask(channels string, minVolts, maxVolts float64) (TaskHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(channels, minVolts, maxVolts)
	}
	f.createdMin, f.createdMax = minVolts, maxVolts
	f.nextHandle++
	return f.nextHandle, nil
}

func (f *fakeDAQ) TaskChannelCount(task TaskHandle) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chanCountFn != nil {
		return f.chanCountFn(task)
	}
	return f.channelCount, nil
}

func (f *fakeDAQ) CfgSampleClockTiming(task TaskHandle, source string, rate float64, spc int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfgClockFn != nil {
		return f.cfgClockFn(task, source, rate, spc)
	}
	f.clockSource, f.clockRate, f.clockSPC = source, rate, spc
	return nil
}

func (f *fakeDAQ) WriteAnalog(task TaskHandle, spc int, values []float64) (int, int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeFn != nil {
		return f.writeFn(task, spc, values)
	}
	f.writtenValues = append([]float64(nil), values...)
	return len(values), 0, nil
}

func (f *fakeDAQ) RegisterDoneEvent(task TaskHandle, handler DoneHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.doneHandler = handler
	f.doneTask = task
	return nil
}

func (f *fakeDAQ) StartTask(task TaskHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(task)
	}
	f.startedTasks = append(f.startedTasks, task)
	return nil
}

func (f *fakeDAQ) ClearTask(task TaskHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearFn != nil {
		return f.clearFn(task)
	}
	f.clearedTasks = append(f.clearedTasks, task)
	return nil
}

func (f *fakeDAQ) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func (f *fakeDAQ) cleared() []TaskHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TaskHandle(nil), f.clearedTasks...)
}

func (f *fakeDAQ) fireDone(task TaskHandle, status int32) {
	f.mu.Lock()
	handler := f.doneHandler
	f.mu.Unlock()
	if handler != nil {
		handler(task, status)
	}
}

// AOControllerTestSuite 控制器测试套件
type AOControllerTestSuite struct {
	suite.Suite
}

func (s *AOControllerTestSuite) newController(dev DAQ) *AOController {
	c, err := NewAOController(dev, "Dev1/ao0:1", "PFI5", "Dev1")
	s.Require().NoError(err)
	return c
}

// TestNewController 构造时归一化描述符
func (s *AOControllerTestSuite) TestNewController() {
	dev := newFakeDAQ(2)

	// string和[]byte都接受
	c, err := NewAOController(dev, []byte("Dev1/ao0:1"), []byte("PFI5"), "Dev1")
	s.NoError(err)
	s.Equal("Dev1/ao0:1", c.Channels())
	s.Equal("PFI5", c.Clock())

	// 其他类型是配置错误
	_, err = NewAOController(dev, 42, "PFI5", "Dev1")
	s.True(errors.Is(err, errors.ErrInvalidConfigValue))

	_, err = NewAOController(dev, "Dev1/ao0", 3.14, "Dev1")
	s.True(errors.Is(err, errors.ErrInvalidConfigValue))
}

// TestLoadSampleValues 正常装载流程
func (s *AOControllerTestSuite) TestLoadSampleValues() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	// 2通道4采样 -> 每通道2个采样
	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0, 3.0, 4.0})
	s.Require().NoError(err)

	s.Equal(1.0, dev.createdMin)
	s.Equal(4.0, dev.createdMax)
	s.Equal("PFI5", dev.clockSource)
	s.Equal(100.0, dev.clockRate)
	s.Equal(2, dev.clockSPC)
	s.Equal([]float64{1.0, 2.0, 3.0, 4.0}, dev.writtenValues)
	s.NotEqual(NoTask, c.ActiveTask())

	stats := c.GetStatistics()
	s.Equal(uint64(1), stats.TasksLoaded)
}

// TestLoadInvalidParams 参数校验
func (s *AOControllerTestSuite) TestLoadInvalidParams() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.True(errors.Is(c.LoadSampleValues(0, []float64{1.0}), errors.ErrInvalidParam))
	s.True(errors.Is(c.LoadSampleValues(-100, []float64{1.0}), errors.ErrInvalidParam))
	s.True(errors.Is(c.LoadSampleValues(100, nil), errors.ErrInvalidParam))
	s.Equal(NoTask, c.ActiveTask())
}

// TestLoadBufferNotDivisible 采样数不整除通道数
func (s *AOControllerTestSuite) TestLoadBufferNotDivisible() {
	dev := newFakeDAQ(3)
	c := s.newController(dev)

	// 3通道4采样: 拒绝，且刚创建的任务必须被销毁
	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0, 3.0, 4.0})
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrInvalidBufferSize))
	s.Contains(err.Error(), "3")
	s.Equal(NoTask, c.ActiveTask())
	s.Len(dev.cleared(), 1)

	stats := c.GetStatistics()
	s.Equal(uint64(1), stats.LoadFailures)
}

// TestLoadSupersedes 新装载总是替代在途任务
func (s *AOControllerTestSuite) TestLoadSupersedes() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	first := c.ActiveTask()

	s.Require().NoError(c.LoadSampleValues(200.0, []float64{3.0, 4.0}))
	second := c.ActiveTask()

	s.NotEqual(first, second)
	s.Equal([]TaskHandle{first}, dev.cleared())

	stats := c.GetStatistics()
	s.Equal(uint64(2), stats.TasksLoaded)
	s.Equal(uint64(1), stats.TasksCleared)
}

// TestIncompleteWrite 短写按致命错误处理
func (s *AOControllerTestSuite) TestIncompleteWrite() {
	dev := newFakeDAQ(2)
	dev.writeFn = func(task TaskHandle, spc int, values []float64) (int, int32, error) {
		return len(values) - 1, 0, nil
	}
	c := s.newController(dev)

	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0, 3.0, 4.0})
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrIncompleteWrite))
	s.Contains(err.Error(), "3/4")

	// 尽力清除，绝不保留坏句柄
	s.Equal(NoTask, c.ActiveTask())
	s.Len(dev.cleared(), 1)
	s.True(errors.IsCritical(err))
	s.False(errors.IsRetryable(err))
}

// TestWriteNonZeroStatus 写入返回非零状态码
func (s *AOControllerTestSuite) TestWriteNonZeroStatus() {
	dev := newFakeDAQ(2)
	dev.writeFn = func(task TaskHandle, spc int, values []float64) (int, int32, error) {
		return len(values), -200088, nil
	}
	c := s.newController(dev)

	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0})
	s.Require().Error(err)
	s.True(errors.Is(err, errors.ErrWriteFailed))
	s.Equal(NoTask, c.ActiveTask())
	s.Len(dev.cleared(), 1)
}

// TestWriteError 写入调用本身失败
func (s *AOControllerTestSuite) TestWriteError() {
	dev := newFakeDAQ(2)
	dev.writeFn = func(task TaskHandle, spc int, values []float64) (int, int32, error) {
		return 0, 0, assert.AnError
	}
	c := s.newController(dev)

	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0})
	s.True(errors.Is(err, errors.ErrWriteFailed))
	s.Equal(NoTask, c.ActiveTask())
}

// TestStartFailure 启动失败时槽位必须回空
func (s *AOControllerTestSuite) TestStartFailure() {
	dev := newFakeDAQ(2)
	dev.startFn = func(task TaskHandle) error {
		return assert.AnError
	}
	c := s.newController(dev)

	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0})
	s.True(errors.Is(err, errors.ErrTaskStart))
	s.Equal(NoTask, c.ActiveTask())
	s.Len(dev.cleared(), 1)
}

// TestDoneIdentity 完成通知的句柄身份比较
func (s *AOControllerTestSuite) TestDoneIdentity() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	current := c.ActiveTask()

	// 过期句柄: 空操作，槽位不变
	dev.fireDone(current+100, 0)
	s.Equal(current, c.ActiveTask())
	s.Equal(uint64(0), c.GetStatistics().TasksCompleted)

	// 匹配句柄: 清除槽位并释放驱动侧资源
	dev.fireDone(current, 0)
	s.Equal(NoTask, c.ActiveTask())
	s.Equal(uint64(1), c.GetStatistics().TasksCompleted)
	s.Equal([]TaskHandle{current}, dev.cleared())

	// 同一句柄的重复通知: 空操作
	dev.fireDone(current, 0)
	s.Equal(uint64(1), c.GetStatistics().TasksCompleted)
	s.Len(dev.cleared(), 1)
}

// TestStaleDoneAfterSupersede 被替代任务的迟到通知不影响新任务
func (s *AOControllerTestSuite) TestStaleDoneAfterSupersede() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	first := c.ActiveTask()

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{3.0, 4.0}))
	second := c.ActiveTask()

	// 第一个任务的完成通知在替代之后到达
	dev.fireDone(first, 0)
	s.Equal(second, c.ActiveTask())
	s.Equal(uint64(0), c.GetStatistics().TasksCompleted)
}

// TestClearPendingTask 清除操作幂等
func (s *AOControllerTestSuite) TestClearPendingTask() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	// 无任务时空操作
	s.NoError(c.ClearPendingTask())
	s.Empty(dev.cleared())

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	task := c.ActiveTask()

	s.NoError(c.ClearPendingTask())
	s.Equal(NoTask, c.ActiveTask())
	s.Equal([]TaskHandle{task}, dev.cleared())

	// 再次清除仍是空操作
	s.NoError(c.ClearPendingTask())
	s.Len(dev.cleared(), 1)
}

// TestClearFailureEmptiesSlot 清除失败时槽位仍然置空
func (s *AOControllerTestSuite) TestClearFailureEmptiesSlot() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))

	dev.mu.Lock()
	dev.clearFn = func(task TaskHandle) error { return assert.AnError }
	dev.mu.Unlock()

	err := c.ClearPendingTask()
	s.True(errors.Is(err, errors.ErrTaskClear))
	s.Equal(NoTask, c.ActiveTask())

	// 后续请求不会再撞上坏句柄
	dev.mu.Lock()
	dev.clearFn = nil
	dev.mu.Unlock()
	s.NoError(c.LoadSampleValues(100.0, []float64{3.0, 4.0}))
}

// TestPing 存活探测
func (s *AOControllerTestSuite) TestPing() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)
	s.True(c.Ping())

	dev.mu.Lock()
	dev.serialFn = func() (uint32, error) { return 0, assert.AnError }
	dev.mu.Unlock()
	s.False(c.Ping())

	// 驱动panic也转换为false
	dev.mu.Lock()
	dev.serialFn = func() (uint32, error) { panic("driver crashed") }
	dev.mu.Unlock()
	s.False(c.Ping())
}

// TestClose 关闭幂等且装载后拒绝服务
func (s *AOControllerTestSuite) TestClose() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	task := c.ActiveTask()

	s.NoError(c.Close())
	s.Equal([]TaskHandle{task}, dev.cleared())

	// 重复关闭是空操作
	s.NoError(c.Close())
	s.Len(dev.cleared(), 1)

	// 关闭后装载被拒绝
	err := c.LoadSampleValues(100.0, []float64{1.0, 2.0})
	s.True(errors.Is(err, errors.ErrDeviceOffline))
}

// TestTaskEvents 任务生命周期事件
func (s *AOControllerTestSuite) TestTaskEvents() {
	dev := newFakeDAQ(2)
	c := s.newController(dev)

	events := make(chan *TaskEvent, 8)
	c.SetTaskEventCallback(func(e *TaskEvent) { events <- e })

	s.Require().NoError(c.LoadSampleValues(100.0, []float64{1.0, 2.0}))
	first := c.ActiveTask()

	e := s.waitEvent(events)
	s.Equal(TaskEventStarted, e.Type)
	s.Equal(first, e.Task)
	s.Equal(2, e.ChannelCount)
	s.Equal(1, e.SamplesPerChannel)
	s.Equal(100.0, e.SamplingFreq)
	s.Equal(1.0, e.MinVolts)
	s.Equal(2.0, e.MaxVolts)
	s.NotEmpty(e.RequestID)

	// 替代产生superseded + started
	s.Require().NoError(c.LoadSampleValues(100.0, []float64{3.0, 4.0}))
	second := c.ActiveTask()

	e = s.waitEvent(events)
	s.Equal(TaskEventSuperseded, e.Type)
	s.Equal(first, e.Task)

	e = s.waitEvent(events)
	s.Equal(TaskEventStarted, e.Type)
	s.Equal(second, e.Task)

	// 自然完成产生done
	dev.fireDone(second, 0)
	e = s.waitEvent(events)
	s.Equal(TaskEventDone, e.Type)
	s.Equal(second, e.Task)
}

func (s *AOControllerTestSuite) waitEvent(events chan *TaskEvent) *TaskEvent {
	select {
	case e := <-events:
		return e
	case <-time.After(2 * time.Second):
		s.FailNow("等待任务事件超时")
		return nil
	}
}

func TestAOControllerSuite(t *testing.T) {
	suite.Run(t, new(AOControllerTestSuite))
}

// TestNaturalCompletionWithMock 用进程内模拟器验证完整闭环:
// 装载 -> 定时完成 -> 槽位清空、驱动侧无存活任务
func TestNaturalCompletionWithMock(t *testing.T) {
	dev := NewMockDAQ()
	c, err := NewAOController(dev, "Dev1/ao0:1", "PFI5", "Dev1")
	require.NoError(t, err)
	defer c.Close()

	// 高采样率让任务几乎立即完成
	require.NoError(t, c.LoadSampleValues(100000.0, []float64{1.0, 2.0, 3.0, 4.0}))
	require.NotEqual(t, NoTask, c.ActiveTask())

	assert.Eventually(t, func() bool {
		return c.ActiveTask() == NoTask && dev.TaskCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	stats := c.GetStatistics()
	assert.Equal(t, uint64(1), stats.TasksLoaded)
	assert.Equal(t, uint64(1), stats.TasksCompleted)
}

// TestSupersedeWithMock 模拟器上验证替代语义: 始终最多一个存活任务
func TestSupersedeWithMock(t *testing.T) {
	dev := NewMockDAQ()
	c, err := NewAOController(dev, "Dev1/ao0:1", "PFI5", "Dev1")
	require.NoError(t, err)
	defer c.Close()

	// 低采样率让第一个任务在替代前不会完成
	for i := 0; i < 5; i++ {
		require.NoError(t, c.LoadSampleValues(0.001, []float64{1.0, 2.0}))
		assert.Equal(t, 1, dev.TaskCount())
	}

	stats := c.GetStatistics()
	assert.Equal(t, uint64(5), stats.TasksLoaded)
	assert.Equal(t, uint64(4), stats.TasksCleared)
}

// TestPingWithMock 模拟器离线时探测返回false
func TestPingWithMock(t *testing.T) {
	dev := NewMockDAQ()
	c, err := NewAOController(dev, "Dev1/ao0:1", "PFI5", "Dev1")
	require.NoError(t, err)

	assert.True(t, c.Ping())
	dev.SetOffline(true)
	assert.False(t, c.Ping())
	dev.SetOffline(false)
	assert.True(t, c.Ping())
}

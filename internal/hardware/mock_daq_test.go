package hardware

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MockDAQTestSuite 模拟器测试套件
type MockDAQTestSuite struct {
	suite.Suite
	dev *MockDAQ
}

func (s *MockDAQTestSuite) SetupTest() {
	s.dev = NewMockDAQ()
}

// TestSerialNumber 序列号查询与离线模拟
func (s *MockDAQTestSuite) TestSerialNumber() {
	serial, err := s.dev.SerialNumber()
	s.NoError(err)
	s.NotZero(serial)

	s.dev.SetOffline(true)
	_, err = s.dev.SerialNumber()
	s.Error(err)

	s.dev.SetOffline(false)
	_, err = s.dev.SerialNumber()
	s.NoError(err)
}

// TestChannelParsing 通道描述符解析
func (s *MockDAQTestSuite) TestChannelParsing() {
	cases := []struct {
		desc  string
		count int
	}{
		{"Dev1/ao0", 1},
		{"Dev1/ao0:1", 2},
		{"Dev1/ao1:3", 3},
		{"Dev1/ao1:ao3", 3},
		{"Dev1/ao0, Dev1/ao2", 2},
		{"Dev1/ao0:3, Dev1/ao5", 5},
		{"ao7", 1},
	}

	for _, tc := range cases {
		task, err := s.dev.CreateAOVoltageTask(tc.desc, -1, 1)
		s.Require().NoError(err, tc.desc)

		count, err := s.dev.TaskChannelCount(task)
		s.NoError(err, tc.desc)
		s.Equal(tc.count, count, tc.desc)

		s.NoError(s.dev.ClearTask(task))
	}
}

// TestChannelParsingErrors 非法通道描述符
func (s *MockDAQTestSuite) TestChannelParsingErrors() {
	for _, desc := range []string{"", "  ", "Dev1/", "Dev1/ao", "Dev1/ao3:1", "Dev1/ao0,,Dev1/ao1"} {
		_, err := s.dev.CreateAOVoltageTask(desc, -1, 1)
		s.Error(err, "desc=%q", desc)
	}
}

// TestInvalidVoltageRange 反向电压范围
func (s *MockDAQTestSuite) TestInvalidVoltageRange() {
	_, err := s.dev.CreateAOVoltageTask("Dev1/ao0", 5, -5)
	s.Error(err)
}

// TestUnknownHandle 未知句柄统一报错
func (s *MockDAQTestSuite) TestUnknownHandle() {
	_, err := s.dev.TaskChannelCount(99)
	s.Error(err)
	s.Error(s.dev.CfgSampleClockTiming(99, "PFI5", 100, 1))
	s.Error(s.dev.StartTask(99))
	s.Error(s.dev.ClearTask(99))
}

// TestStartRequiresClock 未配置时钟不能启动
func (s *MockDAQTestSuite) TestStartRequiresClock() {
	task, err := s.dev.CreateAOVoltageTask("Dev1/ao0", -1, 1)
	s.Require().NoError(err)
	s.Error(s.dev.StartTask(task))
}

// TestClearStopsTimer 清除后不再触发完成回调
func (s *MockDAQTestSuite) TestClearStopsTimer() {
	task, err := s.dev.CreateAOVoltageTask("Dev1/ao0", -1, 1)
	s.Require().NoError(err)
	s.Require().NoError(s.dev.CfgSampleClockTiming(task, "PFI5", 100, 2))

	var fired atomic.Bool
	s.Require().NoError(s.dev.RegisterDoneEvent(task, func(TaskHandle, int32) {
		fired.Store(true)
	}))
	s.Require().NoError(s.dev.StartTask(task))
	s.Require().NoError(s.dev.ClearTask(task))

	time.Sleep(50 * time.Millisecond)
	s.False(fired.Load())
	s.Zero(s.dev.TaskCount())
}

func TestMockDAQSuite(t *testing.T) {
	suite.Run(t, new(MockDAQTestSuite))
}

// TestMockDoneTiming 完成回调按采样数/采样率的时长触发
func TestMockDoneTiming(t *testing.T) {
	dev := NewMockDAQ()
	task, err := dev.CreateAOVoltageTask("Dev1/ao0:1", -1, 1)
	require.NoError(t, err)

	// 2通道各2采样，10kHz -> 0.2ms
	require.NoError(t, dev.CfgSampleClockTiming(task, "PFI5", 10000, 2))

	done := make(chan int32, 1)
	require.NoError(t, dev.RegisterDoneEvent(task, func(h TaskHandle, status int32) {
		assert.Equal(t, task, h)
		done <- status
	}))

	written, status, err := dev.WriteAnalog(task, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, written)
	assert.Zero(t, status)

	require.NoError(t, dev.StartTask(task))

	select {
	case st := <-done:
		assert.Zero(t, st)
	case <-time.After(time.Second):
		t.Fatal("完成回调未触发")
	}
}

package hardware

import (
	"strings"

	"github.com/wfunc/daq-ao/internal/errors"
)

// DAQ 厂商硬件抽象层接口
// 对应NI-DAQmx提供的能力子集：任务创建/销毁、通道数查询、采样时钟配置、
// 缓冲写入、完成事件注册、设备序列号查询。
// 实现: 真实cgo绑定（nidaqmx构建标签）和进程内模拟器（MockDAQ）。
type DAQ interface {
	// SerialNumber 查询设备序列号（用于存活探测）
	SerialNumber() (uint32, error)

	// CreateAOVoltageTask 创建绑定到通道描述符的模拟电压输出任务
	// 电压范围为 [minVolts, maxVolts]
	CreateAOVoltageTask(channels string, minVolts, maxVolts float64) (TaskHandle, error)

	// TaskChannelCount 查询任务解析出的物理通道数量
	TaskChannelCount(task TaskHandle) (int, error)

	// CfgSampleClockTiming 配置有限采样、上升沿触发的采样时钟
	CfgSampleClockTiming(task TaskHandle, source string, rate float64, samplesPerChannel int) error

	// WriteAnalog 按通道分组阻塞写入整个采样缓冲区
	// 返回实际写入的采样总数和驱动状态码（0表示成功）
	WriteAnalog(task TaskHandle, samplesPerChannel int, values []float64) (written int, status int32, err error)

	// RegisterDoneEvent 注册任务完成回调（由驱动在自己的线程上异步调用）
	RegisterDoneEvent(task TaskHandle, handler DoneHandler) error

	// StartTask 启动任务（武装时钟，第一个上升沿输出第一个采样）
	StartTask(task TaskHandle) error

	// ClearTask 取消/销毁任务并释放其资源
	ClearTask(task TaskHandle) error

	// Close 释放设备资源
	Close() error
}

// NormalizeDescriptor 将通道/时钟描述符归一为字符串表示
// 接受 string 或 []byte，其他类型为配置错误（构造时报错，之后不再做类型分支）
func NormalizeDescriptor(value interface{}, name string) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Newf(errors.ErrInvalidConfigValue,
			"%s 必须是 string 或 []byte 类型，实际为 %T", name, value)
	}
}

// DeviceName 从通道描述符中提取设备名
// 例如 "Dev1/ao0, Dev1/ao1:3" -> "Dev1"
func DeviceName(channels string) string {
	first := channels
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	first = strings.TrimSpace(first)
	if i := strings.IndexByte(first, '/'); i >= 0 {
		return first[:i]
	}
	return first
}

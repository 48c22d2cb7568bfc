//go:build nidaqmx
// +build nidaqmx

package hardware

/*
#cgo LDFLAGS: -lnidaqmx
#include <stdlib.h>
#include <NIDAQmx.h>

extern int32 goTaskDoneBridge(TaskHandle task, int32 status, void *callbackData);

static int32 registerDoneEvent(TaskHandle task) {
	return DAQmxRegisterDoneEvent(task, 0, goTaskDoneBridge, NULL);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/wfunc/daq-ao/internal/logger"
	"go.uber.org/zap"
)

// doneHandlers 完成回调注册表
// 驱动回调携带的是C侧任务句柄，这里按句柄路由到Go侧处理函数
var (
	doneHandlersMu sync.Mutex
	doneHandlers   = make(map[uintptr]DoneHandler)
)

//export goTaskDoneBridge
func goTaskDoneBridge(task C.TaskHandle, status C.int32, callbackData unsafe.Pointer) C.int32 {
	key := uintptr(unsafe.Pointer(task))

	doneHandlersMu.Lock()
	handler := doneHandlers[key]
	delete(doneHandlers, key)
	doneHandlersMu.Unlock()

	if handler != nil {
		handler(TaskHandle(key), int32(status))
	}
	return 0
}

// NIDAQmx NI-DAQmx驱动绑定
type NIDAQmx struct {
	device string
	logger *zap.Logger
}

// OpenNIDAQmx 打开NI-DAQmx设备绑定
func OpenNIDAQmx(device string) (DAQ, error) {
	if device == "" {
		return nil, fmt.Errorf("empty device name")
	}
	return &NIDAQmx{
		device: device,
		logger: logger.GetModuleLogger("hardware"),
	}, nil
}

// daqError 把驱动状态码转换为带扩展信息的错误
func daqError(call string, status C.int32) error {
	if status == 0 {
		return nil
	}
	buf := make([]C.char, 2048)
	C.DAQmxGetExtendedErrorInfo(&buf[0], C.uInt32(len(buf)))
	return fmt.Errorf("%s: status %d: %s", call, int32(status), C.GoString(&buf[0]))
}

// SerialNumber 查询设备序列号
func (d *NIDAQmx) SerialNumber() (uint32, error) {
	var serial C.uInt32
	cdev := C.CString(d.device)
	defer C.free(unsafe.Pointer(cdev))

	if status := C.DAQmxGetDevSerialNum(cdev, &serial); status != 0 {
		return 0, daqError("DAQmxGetDevSerialNum", status)
	}
	return uint32(serial), nil
}

// CreateAOVoltageTask 创建模拟电压输出任务
func (d *NIDAQmx) CreateAOVoltageTask(channels string, minVolts, maxVolts float64) (TaskHandle, error) {
	var task C.TaskHandle
	if status := C.DAQmxCreateTask(nil, &task); status != 0 {
		return NoTask, daqError("DAQmxCreateTask", status)
	}

	cch := C.CString(channels)
	defer C.free(unsafe.Pointer(cch))

	status := C.DAQmxCreateAOVoltageChan(task, cch, nil,
		C.float64(minVolts), C.float64(maxVolts), C.DAQmx_Val_Volts, nil)
	if status != 0 {
		C.DAQmxClearTask(task)
		return NoTask, daqError("DAQmxCreateAOVoltageChan", status)
	}

	return TaskHandle(uintptr(unsafe.Pointer(task))), nil
}

// TaskChannelCount 查询任务解析出的通道数
func (d *NIDAQmx) TaskChannelCount(task TaskHandle) (int, error) {
	var count C.uInt32
	if status := C.DAQmxGetTaskNumChans(cTask(task), &count); status != 0 {
		return 0, daqError("DAQmxGetTaskNumChans", status)
	}
	return int(count), nil
}

// CfgSampleClockTiming 配置有限采样、上升沿触发的采样时钟
func (d *NIDAQmx) CfgSampleClockTiming(task TaskHandle, source string, rate float64, samplesPerChannel int) error {
	csrc := C.CString(source)
	defer C.free(unsafe.Pointer(csrc))

	status := C.DAQmxCfgSampClkTiming(cTask(task), csrc, C.float64(rate),
		C.DAQmx_Val_Rising, C.DAQmx_Val_FiniteSamps, C.uInt64(samplesPerChannel))
	return daqError("DAQmxCfgSampClkTiming", status)
}

// WriteAnalog 按通道分组阻塞写入采样缓冲区
func (d *NIDAQmx) WriteAnalog(task TaskHandle, samplesPerChannel int, values []float64) (int, int32, error) {
	if len(values) == 0 {
		return 0, 0, fmt.Errorf("empty sample buffer")
	}

	var written C.int32
	status := C.DAQmxWriteAnalogF64(cTask(task), C.int32(samplesPerChannel),
		C.bool32(0), C.float64(C.DAQmx_Val_WaitInfinitely), C.DAQmx_Val_GroupByChannel,
		(*C.float64)(unsafe.Pointer(&values[0])), &written, nil)

	// 短写和状态码由控制器分别判定，这里原样上报
	return int(written), int32(status), nil
}

// RegisterDoneEvent 注册任务完成回调
func (d *NIDAQmx) RegisterDoneEvent(task TaskHandle, handler DoneHandler) error {
	doneHandlersMu.Lock()
	doneHandlers[uintptr(task)] = handler
	doneHandlersMu.Unlock()

	if status := C.registerDoneEvent(cTask(task)); status != 0 {
		doneHandlersMu.Lock()
		delete(doneHandlers, uintptr(task))
		doneHandlersMu.Unlock()
		return daqError("DAQmxRegisterDoneEvent", status)
	}
	return nil
}

// StartTask 启动任务
func (d *NIDAQmx) StartTask(task TaskHandle) error {
	return daqError("DAQmxStartTask", C.DAQmxStartTask(cTask(task)))
}

// ClearTask 取消/销毁任务
func (d *NIDAQmx) ClearTask(task TaskHandle) error {
	doneHandlersMu.Lock()
	delete(doneHandlers, uintptr(task))
	doneHandlersMu.Unlock()

	return daqError("DAQmxClearTask", C.DAQmxClearTask(cTask(task)))
}

// Close 释放设备绑定
// DAQmx的设备级资源由驱动自身管理，这里没有需要显式释放的句柄
func (d *NIDAQmx) Close() error {
	return nil
}

// cTask 把Go侧句柄还原为C侧任务句柄
func cTask(task TaskHandle) C.TaskHandle {
	return C.TaskHandle(unsafe.Pointer(uintptr(task)))
}

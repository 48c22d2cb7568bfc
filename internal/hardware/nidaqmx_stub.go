//go:build !nidaqmx
// +build !nidaqmx

package hardware

import (
	"github.com/wfunc/daq-ao/internal/errors"
)

// OpenNIDAQmx 打开NI-DAQmx设备绑定
// 未启用nidaqmx构建标签时没有真实驱动可用，只能使用mock驱动或仿真控制器
func OpenNIDAQmx(device string) (DAQ, error) {
	return nil, errors.Newf(errors.ErrDeviceOffline,
		"当前构建不包含NI-DAQmx驱动支持（设备 %s），请使用nidaqmx构建标签或mock驱动", device)
}

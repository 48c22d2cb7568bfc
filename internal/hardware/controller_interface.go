package hardware

// OutputController 模拟输出控制器接口
// 对外只暴露三个方法，与远程调用面一一对应
type OutputController interface {
	// Ping 设备存活探测，任何失败都转换为false，从不返回错误
	Ping() bool

	// LoadSampleValues 装载采样值并启动时钟驱动的输出任务
	// 任何调用都会取消之前的任务，即使其尚未完成
	LoadSampleValues(samplingFreq float64, values []float64) error

	// Close 释放持有的硬件资源，可重复调用
	Close() error
}

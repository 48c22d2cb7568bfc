package hardware

import (
	"github.com/wfunc/daq-ao/internal/logger"
	"go.uber.org/zap"
)

// SimController 仿真输出控制器
// 未配置物理通道时使用的空操作实现，接口与真实控制器完全一致，
// 用于没有硬件的环境中跑通整个服务面
type SimController struct {
	logger *zap.Logger
}

// NewSimController 创建仿真控制器
func NewSimController() *SimController {
	return &SimController{
		logger: logger.GetModuleLogger("hardware"),
	}
}

// Ping 仿真探测，总是存活
func (s *SimController) Ping() bool {
	return true
}

// LoadSampleValues 仿真装载，不产生任何副作用
func (s *SimController) LoadSampleValues(samplingFreq float64, values []float64) error {
	s.logger.Debug("仿真装载采样值",
		zap.Float64("sampling_freq", samplingFreq),
		zap.Int("count", len(values)))
	return nil
}

// Close 仿真关闭，空操作
func (s *SimController) Close() error {
	return nil
}

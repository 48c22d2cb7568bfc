package models

import (
	"time"

	"gorm.io/gorm"
)

// TaskLogEvent 任务日志事件类型
type TaskLogEvent string

const (
	TaskLogEventStarted    TaskLogEvent = "TASK_STARTED"    // 任务装载并启动
	TaskLogEventDone       TaskLogEvent = "TASK_DONE"       // 任务自然完成
	TaskLogEventCleared    TaskLogEvent = "TASK_CLEARED"    // 任务被取消
	TaskLogEventSuperseded TaskLogEvent = "TASK_SUPERSEDED" // 任务被新请求替代
	TaskLogEventLoadFailed TaskLogEvent = "LOAD_FAILED"     // 装载失败
)

// TaskLogLevel 日志级别
type TaskLogLevel string

const (
	TaskLogLevelInfo  TaskLogLevel = "INFO"
	TaskLogLevelWarn  TaskLogLevel = "WARN"
	TaskLogLevelError TaskLogLevel = "ERROR"
)

// TaskLog 输出任务日志
type TaskLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 基础信息
	Event TaskLogEvent `gorm:"type:varchar(20);index;not null" json:"event"` // 事件类型
	Level TaskLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`   // 日志级别

	// 任务相关
	TaskID    uint64 `gorm:"index" json:"task_id,omitempty"`                      // 硬件任务句柄
	RequestID string `gorm:"type:varchar(100);index" json:"request_id,omitempty"` // 请求ID（关联同一任务的全部事件）
	DeviceID  string `gorm:"type:varchar(100);index" json:"device_id,omitempty"`  // 设备ID

	// 装载参数
	Channels          string  `gorm:"type:varchar(255)" json:"channels,omitempty"`       // 物理通道描述符
	ChannelCount      int     `gorm:"default:0" json:"channel_count,omitempty"`          // 通道数
	SamplesPerChannel int     `gorm:"default:0" json:"samples_per_channel,omitempty"`    // 每通道采样数
	SamplingFreq      float64 `gorm:"type:decimal(12,4)" json:"sampling_freq,omitempty"` // 采样频率 (Hz)
	MinVolts          float64 `gorm:"type:decimal(10,4)" json:"min_volts,omitempty"`     // 电压下界
	MaxVolts          float64 `gorm:"type:decimal(10,4)" json:"max_volts,omitempty"`     // 电压上界

	// 结果相关
	Status    int32  `gorm:"default:0" json:"status"`               // 驱动完成状态码
	ErrorCode int    `gorm:"index" json:"error_code,omitempty"`     // 应用错误码
	ErrorMsg  string `gorm:"type:text" json:"error_msg,omitempty"`  // 错误信息

	// 性能指标
	Duration  int64 `gorm:"default:0" json:"duration,omitempty"` // 处理时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`              // Unix时间戳（毫秒）

	// 额外信息
	Message string   `gorm:"type:text" json:"message,omitempty"` // 日志消息
	Extra   JSONData `gorm:"type:json" json:"extra,omitempty"`   // 额外信息
}

// TableName 指定表名
func (TaskLog) TableName() string {
	return "task_logs"
}

// BeforeCreate 创建前的钩子
func (t *TaskLog) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Timestamp == 0 {
		t.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// TaskLogQuery 查询参数
type TaskLogQuery struct {
	Event     TaskLogEvent `json:"event,omitempty"`
	Level     TaskLogLevel `json:"level,omitempty"`
	TaskID    uint64       `json:"task_id,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	DeviceID  string       `json:"device_id,omitempty"`
	StartTime *time.Time   `json:"start_time,omitempty"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	MinFreq   *float64     `json:"min_freq,omitempty"`
	MaxFreq   *float64     `json:"max_freq,omitempty"`
	HasError  *bool        `json:"has_error,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
	OrderBy   string       `json:"order_by,omitempty"`
}

// TaskLogStats 统计信息
type TaskLogStats struct {
	TotalCount      int64   `json:"total_count"`
	TotalStarted    int64   `json:"total_started"`
	TotalDone       int64   `json:"total_done"`
	TotalCleared    int64   `json:"total_cleared"`
	TotalSuperseded int64   `json:"total_superseded"`
	TotalErrors     int64   `json:"total_errors"`
	TotalSamples    int64   `json:"total_samples"`
	AvgDuration     float64 `json:"avg_duration"`
	MaxDuration     int64   `json:"max_duration"`
	MinDuration     int64   `json:"min_duration"`
}

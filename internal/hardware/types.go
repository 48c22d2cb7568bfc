package hardware

import (
	"time"
)

// TaskHandle 硬件任务句柄
// 由驱动层分配，0 表示无效句柄（无任务）
type TaskHandle uint64

// NoTask 空任务句柄
const NoTask TaskHandle = 0

// DoneHandler 任务完成通知回调
// 由驱动层在自己的执行上下文中异步调用，携带完成任务的句柄和状态码
type DoneHandler func(task TaskHandle, status int32)

// TaskEventType 任务事件类型
type TaskEventType string

const (
	TaskEventStarted    TaskEventType = "task_started"    // 任务已装载并启动
	TaskEventDone       TaskEventType = "task_done"       // 任务自然完成
	TaskEventCleared    TaskEventType = "task_cleared"    // 任务被取消/清除
	TaskEventSuperseded TaskEventType = "task_superseded" // 任务被新请求替代
)

// TaskEvent 任务生命周期事件
type TaskEvent struct {
	Type              TaskEventType `json:"type"`
	Task              TaskHandle    `json:"task"`
	RequestID         string        `json:"request_id,omitempty"`
	Status            int32         `json:"status"`
	Channels          string        `json:"channels,omitempty"`
	ChannelCount      int           `json:"channel_count,omitempty"`
	SamplesPerChannel int           `json:"samples_per_channel,omitempty"`
	SamplingFreq      float64       `json:"sampling_freq,omitempty"`
	MinVolts          float64       `json:"min_volts,omitempty"`
	MaxVolts          float64       `json:"max_volts,omitempty"`
	Timestamp         time.Time     `json:"timestamp"`
}

// TaskStatistics 任务统计
type TaskStatistics struct {
	TasksLoaded    uint64    // 装载成功次数
	TasksCompleted uint64    // 自然完成次数
	TasksCleared   uint64    // 被取消/替代次数
	LoadFailures   uint64    // 装载失败次数
	LastLoadTime   time.Time // 最后装载时间
	LastDoneTime   time.Time // 最后完成时间
}

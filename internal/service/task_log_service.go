package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/daq-ao/internal/errors"
	"github.com/wfunc/daq-ao/internal/hardware"
	"github.com/wfunc/daq-ao/internal/logger"
	"github.com/wfunc/daq-ao/internal/models"
	"github.com/wfunc/daq-ao/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TaskLogService 任务日志服务
// 任务事件通过缓冲通道异步批量落库，装载路径上不产生数据库等待
type TaskLogService struct {
	repo     *repository.TaskLogRepository
	logger   *zap.Logger
	deviceID string

	mu       sync.Mutex
	buffer   []*models.TaskLog
	bufferCh chan *models.TaskLog
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTaskLogService 创建任务日志服务
func NewTaskLogService(db *gorm.DB, deviceID string) *TaskLogService {
	service := &TaskLogService{
		repo:     repository.NewTaskLogRepository(db),
		logger:   logger.GetLogger(),
		deviceID: deviceID,
		buffer:   make([]*models.TaskLog, 0, 100),
		bufferCh: make(chan *models.TaskLog, 1000),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	// 启动后台写入协程
	go service.backgroundWriter()

	return service
}

// backgroundWriter 后台写入协程
func (s *TaskLogService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(5 * time.Second) // 每5秒批量写入一次
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.mu.Lock()
			s.buffer = append(s.buffer, log)
			// 如果缓冲区满了，立即写入
			if len(s.buffer) >= 100 {
				s.flushBuffer()
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()

		case <-s.stopCh:
			// 退出前排空通道并写入剩余的日志
			for {
				select {
				case log := <-s.bufferCh:
					s.mu.Lock()
					s.buffer = append(s.buffer, log)
					s.mu.Unlock()
					continue
				default:
				}
				break
			}
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *TaskLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入任务日志失败", zap.Error(err))
	} else {
		s.logger.Debug("批量写入任务日志成功", zap.Int("count", len(s.buffer)))
	}

	// 清空缓冲区
	s.buffer = s.buffer[:0]
}

// enqueue 异步写入
func (s *TaskLogService) enqueue(log *models.TaskLog) {
	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("任务日志缓冲区满，丢弃日志")
	}
}

// LogTaskEvent 记录任务生命周期事件
func (s *TaskLogService) LogTaskEvent(event *hardware.TaskEvent) {
	log := &models.TaskLog{
		Level:             models.TaskLogLevelInfo,
		TaskID:            uint64(event.Task),
		RequestID:         event.RequestID,
		DeviceID:          s.deviceID,
		Channels:          event.Channels,
		ChannelCount:      event.ChannelCount,
		SamplesPerChannel: event.SamplesPerChannel,
		SamplingFreq:      event.SamplingFreq,
		MinVolts:          event.MinVolts,
		MaxVolts:          event.MaxVolts,
		Status:            event.Status,
		CreatedAt:         event.Timestamp,
		Timestamp:         event.Timestamp.UnixMilli(),
	}

	switch event.Type {
	case hardware.TaskEventStarted:
		log.Event = models.TaskLogEventStarted
	case hardware.TaskEventDone:
		log.Event = models.TaskLogEventDone
	case hardware.TaskEventCleared:
		log.Event = models.TaskLogEventCleared
	case hardware.TaskEventSuperseded:
		log.Event = models.TaskLogEventSuperseded
		log.Level = models.TaskLogLevelWarn
	}

	s.enqueue(log)
}

// LogLoadFailure 记录装载失败
func (s *TaskLogService) LogLoadFailure(samplingFreq float64, sampleCount int, err error, duration time.Duration) {
	log := &models.TaskLog{
		Event:        models.TaskLogEventLoadFailed,
		Level:        models.TaskLogLevelError,
		DeviceID:     s.deviceID,
		SamplingFreq: samplingFreq,
		ErrorCode:    int(errors.GetCode(err)),
		ErrorMsg:     err.Error(),
		Duration:     duration.Milliseconds(),
		Extra: models.JSONData{
			"sample_count": sampleCount,
		},
		CreatedAt: time.Now(),
		Timestamp: time.Now().UnixMilli(),
	}

	if errors.IsCritical(err) {
		log.Message = "硬件状态不可靠，句柄已尽力清除"
	}

	s.enqueue(log)
}

// Query 查询日志
func (s *TaskLogService) Query(query *models.TaskLogQuery) ([]*models.TaskLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *TaskLogService) GetStats(startTime, endTime *time.Time) (*models.TaskLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *TaskLogService) GetLatestLogs(limit int, event models.TaskLogEvent) ([]*models.TaskLog, error) {
	return s.repo.GetLatest(limit, event)
}

// GetByRequestID 获取同一请求的全部事件
func (s *TaskLogService) GetByRequestID(requestID string) ([]*models.TaskLog, error) {
	return s.repo.GetByRequestID(requestID)
}

// CleanupOldLogs 清理旧日志
func (s *TaskLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *TaskLogService) ExportLogs(query *models.TaskLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// GenerateRequestID 生成请求ID
func (s *TaskLogService) GenerateRequestID() string {
	return uuid.New().String()
}

// Close 关闭服务，等待剩余日志写入完成
func (s *TaskLogService) Close() {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(3 * time.Second):
		s.logger.Warn("任务日志服务关闭超时")
	}
}

package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/daq-ao/internal/models"
	"gorm.io/gorm"
)

// TaskLogRepository 任务日志仓库
type TaskLogRepository struct {
	db *gorm.DB
}

// NewTaskLogRepository 创建任务日志仓库
func NewTaskLogRepository(db *gorm.DB) *TaskLogRepository {
	return &TaskLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *TaskLogRepository) Create(log *models.TaskLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *TaskLogRepository) CreateBatch(logs []*models.TaskLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *TaskLogRepository) GetByID(id uint) (*models.TaskLog, error) {
	var log models.TaskLog
	err := r.db.First(&log, id).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetByRequestID 根据请求ID获取日志（同一任务从装载到完成的全部事件）
func (r *TaskLogRepository) GetByRequestID(requestID string) ([]*models.TaskLog, error) {
	var logs []*models.TaskLog
	err := r.db.Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// GetByTaskID 根据硬件任务句柄获取日志
func (r *TaskLogRepository) GetByTaskID(taskID uint64) ([]*models.TaskLog, error) {
	var logs []*models.TaskLog
	err := r.db.Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// Query 查询日志
func (r *TaskLogRepository) Query(query *models.TaskLogQuery) ([]*models.TaskLog, int64, error) {
	db := r.db.Model(&models.TaskLog{})

	// 构建查询条件
	if query.Event != "" {
		db = db.Where("event = ?", query.Event)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.TaskID != 0 {
		db = db.Where("task_id = ?", query.TaskID)
	}
	if query.RequestID != "" {
		db = db.Where("request_id = ?", query.RequestID)
	}
	if query.DeviceID != "" {
		db = db.Where("device_id = ?", query.DeviceID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.MinFreq != nil {
		db = db.Where("sampling_freq >= ?", *query.MinFreq)
	}
	if query.MaxFreq != nil {
		db = db.Where("sampling_freq <= ?", *query.MaxFreq)
	}
	if query.HasError != nil && *query.HasError {
		db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var logs []*models.TaskLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// GetStats 获取统计信息
// 时间范围过滤作用于所有统计项，不只是总数
func (r *TaskLogRepository) GetStats(startTime, endTime *time.Time) (*models.TaskLogStats, error) {
	stats := &models.TaskLogStats{}

	// 每个统计项单独起一条链，时间范围统一套用
	scoped := func() *gorm.DB {
		db := r.db.Model(&models.TaskLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	// 总数统计
	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}

	// 事件类型统计
	eventCounts := []struct {
		event models.TaskLogEvent
		dest  *int64
	}{
		{models.TaskLogEventStarted, &stats.TotalStarted},
		{models.TaskLogEventDone, &stats.TotalDone},
		{models.TaskLogEventCleared, &stats.TotalCleared},
		{models.TaskLogEventSuperseded, &stats.TotalSuperseded},
	}
	for _, ec := range eventCounts {
		if err := scoped().
			Where("event = ?", ec.event).
			Count(ec.dest).Error; err != nil {
			return nil, err
		}
	}

	// 错误统计
	if err := scoped().
		Where("error_msg IS NOT NULL AND error_msg != ''").
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// 采样量统计（按装载事件累计）
	type SampleStats struct {
		TotalSamples int64
	}
	var sampleStats SampleStats
	if err := scoped().
		Select("SUM(samples_per_channel * channel_count) as total_samples").
		Where("event = ?", models.TaskLogEventStarted).
		Scan(&sampleStats).Error; err != nil {
		return nil, err
	}
	stats.TotalSamples = sampleStats.TotalSamples

	// 性能统计
	type DurationStats struct {
		AvgDuration float64
		MaxDuration int64
		MinDuration int64
	}
	var durationStats DurationStats
	if err := scoped().
		Select("AVG(duration) as avg_duration, MAX(duration) as max_duration, MIN(duration) as min_duration").
		Where("duration > 0").
		Scan(&durationStats).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = durationStats.AvgDuration
	stats.MaxDuration = durationStats.MaxDuration
	stats.MinDuration = durationStats.MinDuration

	return stats, nil
}

// GetLatest 获取最新的日志记录
func (r *TaskLogRepository) GetLatest(limit int, event models.TaskLogEvent) ([]*models.TaskLog, error) {
	var logs []*models.TaskLog
	db := r.db.Order("created_at DESC").Limit(limit)
	if event != "" {
		db = db.Where("event = ?", event)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// DeleteOldLogs 删除旧日志
func (r *TaskLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.TaskLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *TaskLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}

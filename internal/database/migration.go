package database

import (
	"fmt"

	"github.com/wfunc/daq-ao/internal/logger"
	"github.com/wfunc/daq-ao/internal/models"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	migrationModels := []interface{}{
		&models.TaskLog{},
		&models.DeviceStatus{},
	}

	logger.Info("开始数据库迁移...")

	for _, model := range migrationModels {
		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_task_logs_event ON task_logs(event)",
		"CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)",
		"CREATE INDEX IF NOT EXISTS idx_task_logs_request_id ON task_logs(request_id)",
		"CREATE INDEX IF NOT EXISTS idx_task_logs_device_id ON task_logs(device_id)",
		"CREATE INDEX IF NOT EXISTS idx_task_logs_created_at ON task_logs(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_task_logs_timestamp ON task_logs(timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_device_statuses_device_id ON device_statuses(device_id)",
		"CREATE INDEX IF NOT EXISTS idx_device_statuses_status ON device_statuses(status)",
	}

	for _, idx := range indexes {
		if err := DB.Exec(idx).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}

	logger.Info("数据库索引创建完成")
	return nil
}

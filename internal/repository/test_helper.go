package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/daq-ao/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置测试数据库
// 使用内存数据库，不依赖文件系统，在所有环境中都能工作
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&models.TaskLog{},
		&models.DeviceStatus{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// TestDB 创建测试数据库
func TestDB(t *testing.T) *gorm.DB {
	db := SetupTestDB()
	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// CreateTestTaskLog 创建测试任务日志
func CreateTestTaskLog(event models.TaskLogEvent, taskID uint64, requestID string) *models.TaskLog {
	return &models.TaskLog{
		Event:             event,
		Level:             models.TaskLogLevelInfo,
		TaskID:            taskID,
		RequestID:         requestID,
		DeviceID:          "pxi6733-test",
		Channels:          "Dev1/ao0:1",
		ChannelCount:      2,
		SamplesPerChannel: 4,
		SamplingFreq:      1000,
	}
}

// RequireTaskLogEqual 验证任务日志关键字段
func RequireTaskLogEqual(t *testing.T, expected, actual *models.TaskLog) {
	require.Equal(t, expected.Event, actual.Event)
	require.Equal(t, expected.TaskID, actual.TaskID)
	require.Equal(t, expected.RequestID, actual.RequestID)
	require.Equal(t, expected.DeviceID, actual.DeviceID)
}

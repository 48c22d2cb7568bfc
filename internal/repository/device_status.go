package repository

import (
	"context"
	"time"

	"github.com/wfunc/daq-ao/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceStatusRepository 设备状态仓储接口
type DeviceStatusRepository interface {
	RegisterDevice(ctx context.Context, device *models.DeviceStatus) error
	Update(ctx context.Context, device *models.DeviceStatus) error
	UpdateStatus(ctx context.Context, deviceID string, status string) error
	UpdatePing(ctx context.Context, deviceID string) error
	FindByDeviceID(ctx context.Context, deviceID string) (*models.DeviceStatus, error)
	FindByStatus(ctx context.Context, status string) ([]*models.DeviceStatus, error)
	GetOfflineDevices(ctx context.Context, offlineThreshold time.Duration) ([]*models.DeviceStatus, error)
}

// deviceStatusRepo 设备状态仓储实现
type deviceStatusRepo struct {
	db *gorm.DB
}

// NewDeviceStatusRepository 创建设备状态仓储
func NewDeviceStatusRepository(db *gorm.DB) DeviceStatusRepository {
	return &deviceStatusRepo{db: db}
}

// RegisterDevice 注册设备（已存在时按device_id更新）
func (r *deviceStatusRepo) RegisterDevice(ctx context.Context, device *models.DeviceStatus) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_name", "type", "status", "driver",
			"channels", "clock", "serial", "version", "last_ping_at", "updated_at",
		}),
	}).Create(device).Error
}

// Update 更新设备状态
func (r *deviceStatusRepo) Update(ctx context.Context, device *models.DeviceStatus) error {
	return r.db.WithContext(ctx).Save(device).Error
}

// UpdateStatus 更新设备在线状态
func (r *deviceStatusRepo) UpdateStatus(ctx context.Context, deviceID string, status string) error {
	return r.db.WithContext(ctx).Model(&models.DeviceStatus{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// UpdatePing 更新设备探测时间
func (r *deviceStatusRepo) UpdatePing(ctx context.Context, deviceID string) error {
	return r.db.WithContext(ctx).Model(&models.DeviceStatus{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"status":       "online",
			"last_ping_at": time.Now(),
		}).Error
}

// FindByDeviceID 根据设备ID查找
func (r *deviceStatusRepo) FindByDeviceID(ctx context.Context, deviceID string) (*models.DeviceStatus, error) {
	var device models.DeviceStatus
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// FindByStatus 根据状态查找设备
func (r *deviceStatusRepo) FindByStatus(ctx context.Context, status string) ([]*models.DeviceStatus, error) {
	var devices []*models.DeviceStatus
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Find(&devices).Error
	return devices, err
}

// GetOfflineDevices 获取超过阈值未探测到的设备
func (r *deviceStatusRepo) GetOfflineDevices(ctx context.Context, offlineThreshold time.Duration) ([]*models.DeviceStatus, error) {
	cutoff := time.Now().Add(-offlineThreshold)
	var devices []*models.DeviceStatus
	err := r.db.WithContext(ctx).
		Where("last_ping_at < ?", cutoff).
		Find(&devices).Error
	return devices, err
}

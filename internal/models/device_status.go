package models

import "time"

// DeviceStatus 设备状态表
type DeviceStatus struct {
	BaseModel
	DeviceID   string    `gorm:"uniqueIndex;size:100;not null" json:"device_id"`
	DeviceName string    `gorm:"size:100" json:"device_name"`
	Type       string    `gorm:"size:50" json:"type"`                    // daq_ao, simulation
	Status     string    `gorm:"size:20;default:'online'" json:"status"` // online, offline, error
	Driver     string    `gorm:"size:50" json:"driver"`                  // nidaqmx, mock
	Channels   string    `gorm:"size:255" json:"channels"`               // 物理通道描述符
	Clock      string    `gorm:"size:100" json:"clock"`                  // 采样时钟源端子
	Serial     uint32    `json:"serial"`                                 // 设备序列号
	Version    string    `gorm:"size:20" json:"version"`
	LastPingAt time.Time `json:"last_ping_at"`
	Extra      JSONData  `gorm:"type:json" json:"extra"`
}

// TableName 指定表名
func (DeviceStatus) TableName() string {
	return "device_statuses"
}

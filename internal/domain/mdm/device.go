package mdm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Device is an enrolled device. Push fields are opaque to reconciliation and only
// consumed by the push transport.
type Device struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UDID         string         `gorm:"column:udid;not null;uniqueIndex" json:"udid"`
	SerialNumber string         `gorm:"column:serial_number;index" json:"serial_number,omitempty"`
	Name         string         `gorm:"column:name" json:"name,omitempty"`
	PushToken    string         `gorm:"column:push_token" json:"-"`
	PushMagic    string         `gorm:"column:push_magic" json:"-"`
	Topic        string         `gorm:"column:topic" json:"topic,omitempty"`
	Info         datatypes.JSON `gorm:"column:info" json:"info,omitempty"`
	LastSeenAt   *time.Time     `gorm:"column:last_seen_at;index" json:"last_seen_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Device) TableName() string { return "device" }

// Pushable reports whether the device has enough push state to be woken up.
func (d *Device) Pushable() bool {
	return d != nil && d.PushToken != "" && d.PushMagic != ""
}

// DeviceGroup is the device↔group membership edge.
type DeviceGroup struct {
	DeviceID uuid.UUID `gorm:"type:uuid;primaryKey;autoIncrement:false" json:"device_id"`
	GroupID  uint      `gorm:"primaryKey;autoIncrement:false;index" json:"group_id"`
}

func (DeviceGroup) TableName() string { return "device_group" }

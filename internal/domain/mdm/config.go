package mdm

import "time"

// Config is the single server configuration row.
type Config struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"column:mdm_name;not null" json:"name"`
	Description *string   `gorm:"column:description" json:"description,omitempty"`
	Topic       string    `gorm:"column:topic;not null" json:"topic"`
	MDMURL      string    `gorm:"column:mdm_url;not null" json:"mdm_url"`
	CheckinURL  string    `gorm:"column:checkin_url;not null" json:"checkin_url"`
	Prefix      string    `gorm:"column:prefix;not null" json:"prefix"`
	CACertID    uint      `gorm:"column:ca_cert_id;not null" json:"ca_cert_id"`
	PushCertID  uint      `gorm:"column:push_cert_id;not null" json:"push_cert_id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Config) TableName() string { return "mdm_config" }

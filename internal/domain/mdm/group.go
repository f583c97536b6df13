package mdm

import "time"

type Group struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"column:group_name;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Group) TableName() string { return "mdm_group" }

// GroupProfile is the group↔profile assignment edge.
type GroupProfile struct {
	GroupID   uint `gorm:"primaryKey;autoIncrement:false" json:"group_id"`
	ProfileID uint `gorm:"primaryKey;autoIncrement:false;index" json:"profile_id"`
}

func (GroupProfile) TableName() string { return "group_profile" }

// GroupFlag pairs a group with whether some entity (device, profile) is a member of it.
type GroupFlag struct {
	Group  *Group `json:"group"`
	Member bool   `json:"member"`
}

package mdm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type CommandKind string

const (
	CommandInstallProfile CommandKind = "InstallProfile"
	CommandRemoveProfile  CommandKind = "RemoveProfile"
)

func (k CommandKind) Valid() bool {
	return k == CommandInstallProfile || k == CommandRemoveProfile
}

type CommandStatus string

const (
	CommandQueued       CommandStatus = "queued"
	CommandSent         CommandStatus = "sent"
	CommandAcknowledged CommandStatus = "acknowledged"
	CommandFailed       CommandStatus = "failed"
)

// CanTransitionTo enforces queued → sent → {acknowledged, failed}. Nothing moves backward.
func (s CommandStatus) CanTransitionTo(next CommandStatus) bool {
	switch s {
	case CommandQueued:
		return next == CommandSent
	case CommandSent:
		return next == CommandAcknowledged || next == CommandFailed
	default:
		return false
	}
}

func (s CommandStatus) Terminal() bool {
	return s == CommandAcknowledged || s == CommandFailed
}

// Command is one append-only instruction for a device. ID is assigned by the store at
// append time and is the issuance order: a device applies its commands by ascending ID.
type Command struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement;index:idx_command_device_seq,priority:2" json:"id"`
	UUID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"uuid"`
	DeviceID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_command_device_seq,priority:1" json:"device_id"`
	Kind       CommandKind    `gorm:"column:kind;not null" json:"kind"`
	Payload    datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	Status     CommandStatus  `gorm:"column:status;not null;index" json:"status"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	SentAt     *time.Time     `gorm:"column:sent_at" json:"sent_at,omitempty"`
	FinishedAt *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Command) TableName() string { return "command" }

// CommandPayload addresses the profile a command acts on. Installs carry the profile
// id (the body is rendered at dispatch time); removals carry the identifier, which is
// the only key a device needs and survives deletion of the profile row.
type CommandPayload struct {
	ProfileID  uint   `json:"profile_id,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

func InstallPayload(profileID uint) CommandPayload {
	return CommandPayload{ProfileID: profileID}
}

func RemovePayload(identifier string) CommandPayload {
	return CommandPayload{Identifier: identifier}
}

// Validate checks the payload carries the key kind requires.
func (p CommandPayload) Validate(kind CommandKind) error {
	switch kind {
	case CommandInstallProfile:
		if p.ProfileID == 0 {
			return fmt.Errorf("%s requires a profile id", kind)
		}
	case CommandRemoveProfile:
		if p.Identifier == "" {
			return fmt.Errorf("%s requires a profile identifier", kind)
		}
	default:
		return fmt.Errorf("unknown command kind %q", kind)
	}
	return nil
}

func (c *Command) DecodePayload() (CommandPayload, error) {
	var out CommandPayload
	if c == nil || len(c.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(c.Payload, &out); err != nil {
		return out, fmt.Errorf("decode payload of command %d: %w", c.ID, err)
	}
	return out, nil
}

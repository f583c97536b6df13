package domain

import (
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
)

type Device = mdm.Device
type DeviceGroup = mdm.DeviceGroup
type Group = mdm.Group
type GroupProfile = mdm.GroupProfile
type GroupFlag = mdm.GroupFlag

type Profile = mdm.Profile
type ProfileRef = mdm.ProfileRef
type Payload = mdm.Payload
type PayloadKind = mdm.PayloadKind
type RestrictionsPayload = mdm.RestrictionsPayload

type Command = mdm.Command
type CommandKind = mdm.CommandKind
type CommandStatus = mdm.CommandStatus
type CommandPayload = mdm.CommandPayload

type Certificate = mdm.Certificate
type CertificateKind = mdm.CertificateKind
type PrivateKey = mdm.PrivateKey
type Config = mdm.Config

const (
	CommandInstallProfile = mdm.CommandInstallProfile
	CommandRemoveProfile  = mdm.CommandRemoveProfile

	CommandQueued       = mdm.CommandQueued
	CommandSent         = mdm.CommandSent
	CommandAcknowledged = mdm.CommandAcknowledged
	CommandFailed       = mdm.CommandFailed
)

// Models lists every persisted model, in migration order.
func Models() []interface{} {
	return []interface{}{
		&mdm.Device{},
		&mdm.Group{},
		&mdm.Profile{},
		&mdm.DeviceGroup{},
		&mdm.GroupProfile{},
		&mdm.Command{},
		&mdm.PrivateKey{},
		&mdm.Certificate{},
		&mdm.Config{},
	}
}

package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos/mdm"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type DeviceRepo = mdm.DeviceRepo
type GroupRepo = mdm.GroupRepo
type ProfileRepo = mdm.ProfileRepo
type MembershipRepo = mdm.MembershipRepo
type CommandRepo = mdm.CommandRepo
type CertificateRepo = mdm.CertificateRepo
type ConfigRepo = mdm.ConfigRepo

func NewDeviceRepo(db *gorm.DB, baseLog *logger.Logger) DeviceRepo {
	return mdm.NewDeviceRepo(db, baseLog)
}
func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return mdm.NewGroupRepo(db, baseLog)
}
func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return mdm.NewProfileRepo(db, baseLog)
}
func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) MembershipRepo {
	return mdm.NewMembershipRepo(db, baseLog)
}
func NewCommandRepo(db *gorm.DB, baseLog *logger.Logger) CommandRepo {
	return mdm.NewCommandRepo(db, baseLog)
}
func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return mdm.NewCertificateRepo(db, baseLog)
}
func NewConfigRepo(db *gorm.DB, baseLog *logger.Logger) ConfigRepo {
	return mdm.NewConfigRepo(db, baseLog)
}

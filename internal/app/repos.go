package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type Repos struct {
	Device      repos.DeviceRepo
	Group       repos.GroupRepo
	Profile     repos.ProfileRepo
	Membership  repos.MembershipRepo
	Command     repos.CommandRepo
	Certificate repos.CertificateRepo
	Config      repos.ConfigRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Device:      repos.NewDeviceRepo(db, log),
		Group:       repos.NewGroupRepo(db, log),
		Profile:     repos.NewProfileRepo(db, log),
		Membership:  repos.NewMembershipRepo(db, log),
		Command:     repos.NewCommandRepo(db, log),
		Certificate: repos.NewCertificateRepo(db, log),
		Config:      repos.NewConfigRepo(db, log),
	}
}

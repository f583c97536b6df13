package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
	"github.com/yungbote/fleetmdm-backend/internal/push"
	"github.com/yungbote/fleetmdm-backend/internal/reconcile"
	"github.com/yungbote/fleetmdm-backend/internal/services"
)

type Services struct {
	Membership  services.MembershipService
	Device      services.DeviceService
	Group       services.GroupService
	Profile     services.ProfileService
	Certificate services.CertificateService
	Config      services.ConfigService

	Dispatcher *push.Dispatcher
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	kinds, err := mdm.LoadKindTables()
	if err != nil {
		return Services{}, fmt.Errorf("load kind tables: %w", err)
	}

	notifier := push.NewNotifier(log, clients.PushQueue)
	reconciler := reconcile.NewReconciler(log, reposet.Profile, reposet.Membership, reposet.Command, notifier)
	membership := services.NewMembershipService(db, log, reposet.Device, reposet.Group, reposet.Profile, reposet.Membership, reconciler)

	return Services{
		Membership:  membership,
		Device:      services.NewDeviceService(db, log, reposet.Device, reposet.Group, reposet.Membership, reposet.Command),
		Group:       services.NewGroupService(db, log, reposet.Group, reposet.Device, reposet.Profile, reposet.Membership, membership),
		Profile:     services.NewProfileService(db, log, reposet.Profile, reposet.Group, reposet.Membership, reposet.Config, kinds, membership),
		Certificate: services.NewCertificateService(db, log, reposet.Certificate, kinds),
		Config:      services.NewConfigService(db, log, reposet.Config, reposet.Certificate),
		Dispatcher:  push.NewDispatcher(log, clients.PushQueue, reposet.Device, clients.Transport, cfg.Dispatcher),
	}, nil
}

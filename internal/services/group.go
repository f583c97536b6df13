package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type GroupDetail struct {
	*types.Group
	Devices  []*types.Device  `json:"devices"`
	Profiles []*types.Profile `json:"profiles"`
}

type GroupService interface {
	Create(ctx context.Context, name, description string) (*types.Group, error)
	List(ctx context.Context) ([]*types.Group, error)
	Get(ctx context.Context, id uint) (*GroupDetail, error)
	Delete(ctx context.Context, id uint) (Outcome, error)
}

type groupService struct {
	db         *gorm.DB
	log        *logger.Logger
	groups     repos.GroupRepo
	devices    repos.DeviceRepo
	profiles   repos.ProfileRepo
	members    repos.MembershipRepo
	membership MembershipService
}

func NewGroupService(db *gorm.DB, baseLog *logger.Logger, groups repos.GroupRepo, devices repos.DeviceRepo, profiles repos.ProfileRepo, members repos.MembershipRepo, membership MembershipService) GroupService {
	return &groupService{
		db:         db,
		log:        baseLog.With("service", "GroupService"),
		groups:     groups,
		devices:    devices,
		profiles:   profiles,
		members:    members,
		membership: membership,
	}
}

func (s *groupService) Create(ctx context.Context, name, description string) (*types.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("group name is required: %w", mdmerrors.ErrInvalidArgument)
	}
	return s.groups.Create(dbctx.Context{Ctx: ctx}, &types.Group{
		Name:        name,
		Description: strings.TrimSpace(description),
	})
}

func (s *groupService) List(ctx context.Context) ([]*types.Group, error) {
	return s.groups.List(dbctx.Context{Ctx: ctx})
}

func (s *groupService) Get(ctx context.Context, id uint) (*GroupDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	g, err := s.groups.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	deviceIDs, err := s.members.DeviceIDsForGroup(dbc, id)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.GetByIDs(dbc, deviceIDs)
	if err != nil {
		return nil, err
	}
	profileIDs, err := s.members.ProfileIDsForGroup(dbc, id)
	if err != nil {
		return nil, err
	}
	profiles, err := s.profiles.GetByIDs(dbc, profileIDs)
	if err != nil {
		return nil, err
	}
	return &GroupDetail{Group: g, Devices: devices, Profiles: profiles}, nil
}

func (s *groupService) Delete(ctx context.Context, id uint) (Outcome, error) {
	out, err := s.membership.DeleteGroup(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	s.log.Info("Group deleted", "group_id", id, "commands", out.Commands)
	return out, nil
}

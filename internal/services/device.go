package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type EnrollInput struct {
	UDID         string          `json:"udid"`
	SerialNumber string          `json:"serial_number"`
	Name         string          `json:"name"`
	PushToken    string          `json:"push_token"`
	PushMagic    string          `json:"push_magic"`
	Topic        string          `json:"topic"`
	Info         json.RawMessage `json:"info"`
}

type DeviceDetail struct {
	*types.Device
	Groups []types.GroupFlag `json:"groups"`
}

type DeviceService interface {
	// Enroll creates or refreshes a device keyed by UDID. It stands in for the check-in
	// endpoint, which lives outside this service.
	Enroll(ctx context.Context, in EnrollInput) (*types.Device, error)
	List(ctx context.Context) ([]*types.Device, error)
	Get(ctx context.Context, id uuid.UUID) (*DeviceDetail, error)
	Commands(ctx context.Context, id uuid.UUID, statuses []types.CommandStatus, limit int) ([]*types.Command, error)
}

type deviceService struct {
	db       *gorm.DB
	log      *logger.Logger
	devices  repos.DeviceRepo
	groups   repos.GroupRepo
	members  repos.MembershipRepo
	commands repos.CommandRepo
}

func NewDeviceService(db *gorm.DB, baseLog *logger.Logger, devices repos.DeviceRepo, groups repos.GroupRepo, members repos.MembershipRepo, commands repos.CommandRepo) DeviceService {
	return &deviceService{
		db:       db,
		log:      baseLog.With("service", "DeviceService"),
		devices:  devices,
		groups:   groups,
		members:  members,
		commands: commands,
	}
}

func (s *deviceService) Enroll(ctx context.Context, in EnrollInput) (*types.Device, error) {
	udid := strings.TrimSpace(in.UDID)
	if udid == "" {
		return nil, fmt.Errorf("udid is required: %w", mdmerrors.ErrInvalidArgument)
	}
	d := &types.Device{
		UDID:         udid,
		SerialNumber: strings.TrimSpace(in.SerialNumber),
		Name:         strings.TrimSpace(in.Name),
		PushToken:    in.PushToken,
		PushMagic:    in.PushMagic,
		Topic:        in.Topic,
	}
	if len(in.Info) > 0 {
		if !json.Valid(in.Info) {
			return nil, fmt.Errorf("info is not valid JSON: %w", mdmerrors.ErrInvalidArgument)
		}
		d.Info = datatypes.JSON(in.Info)
	}
	out, err := s.devices.Upsert(dbctx.Context{Ctx: ctx}, d)
	if err != nil {
		return nil, err
	}
	s.log.Info("Device enrolled", "device_id", out.ID, "udid", out.UDID)
	return out, nil
}

func (s *deviceService) List(ctx context.Context) ([]*types.Device, error) {
	return s.devices.List(dbctx.Context{Ctx: ctx})
}

func (s *deviceService) Get(ctx context.Context, id uuid.UUID) (*DeviceDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	d, err := s.devices.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	memberOf, err := s.members.GroupIDsForDevice(dbc, id)
	if err != nil {
		return nil, err
	}
	all, err := s.groups.List(dbc)
	if err != nil {
		return nil, err
	}
	return &DeviceDetail{Device: d, Groups: groupFlags(all, memberOf)}, nil
}

func (s *deviceService) Commands(ctx context.Context, id uuid.UUID, statuses []types.CommandStatus, limit int) ([]*types.Command, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := s.devices.GetByID(dbc, id); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		switch st {
		case types.CommandQueued, types.CommandSent, types.CommandAcknowledged, types.CommandFailed:
		default:
			return nil, fmt.Errorf("unknown command status %q: %w", st, mdmerrors.ErrInvalidArgument)
		}
	}
	return s.commands.ListByDevice(dbc, id, statuses, limit)
}

// groupFlags marks which of all groups appear in memberOf.
func groupFlags(all []*types.Group, memberOf []uint) []types.GroupFlag {
	in := make(map[uint]struct{}, len(memberOf))
	for _, id := range memberOf {
		in[id] = struct{}{}
	}
	out := make([]types.GroupFlag, 0, len(all))
	for _, g := range all {
		_, ok := in[g.ID]
		out = append(out, types.GroupFlag{Group: g, Member: ok})
	}
	return out
}

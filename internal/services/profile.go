package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type ProfileDetail struct {
	*types.Profile
	Restrictions *mdm.RestrictionsPayload `json:"restrictions,omitempty"`
	Groups       []types.GroupFlag        `json:"groups"`
}

type ProfileService interface {
	Create(ctx context.Context, displayName string, restrictions mdm.RestrictionsPayload) (*types.Profile, error)
	List(ctx context.Context) ([]*types.Profile, error)
	Get(ctx context.Context, id uint) (*ProfileDetail, error)
	UpdateRestrictions(ctx context.Context, id uint, restrictions mdm.RestrictionsPayload) (*types.Profile, Outcome, error)
	Delete(ctx context.Context, id uint) (Outcome, error)
}

type profileService struct {
	db         *gorm.DB
	log        *logger.Logger
	profiles   repos.ProfileRepo
	groups     repos.GroupRepo
	members    repos.MembershipRepo
	config     repos.ConfigRepo
	kinds      *mdm.KindTables
	membership MembershipService
}

func NewProfileService(
	db *gorm.DB,
	baseLog *logger.Logger,
	profiles repos.ProfileRepo,
	groups repos.GroupRepo,
	members repos.MembershipRepo,
	config repos.ConfigRepo,
	kinds *mdm.KindTables,
	membership MembershipService,
) ProfileService {
	return &profileService{
		db:         db,
		log:        baseLog.With("service", "ProfileService"),
		profiles:   profiles,
		groups:     groups,
		members:    members,
		config:     config,
		kinds:      kinds,
		membership: membership,
	}
}

// Create builds a single-payload restrictions profile. The identifier is derived from
// the server prefix once and never changes afterwards.
func (s *profileService) Create(ctx context.Context, displayName string, restrictions mdm.RestrictionsPayload) (*types.Profile, error) {
	dbc := dbctx.Context{Ctx: ctx}
	cfg, err := s.config.Get(dbc)
	if errors.Is(err, mdmerrors.ErrNotFound) {
		return nil, fmt.Errorf("server config must exist before profiles: %w", mdmerrors.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	rules, err := s.kinds.Payload(mdm.PayloadKindRestrictions)
	if err != nil {
		return nil, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = rules.Title
	}

	p := &types.Profile{
		Identifier:  cfg.Prefix + ".profile." + uuid.NewString(),
		UUID:        uuid.NewString(),
		DisplayName: displayName,
	}
	r := restrictions
	payload := mdm.Payload{
		Kind:         mdm.PayloadKindRestrictions,
		UUID:         uuid.NewString(),
		Identifier:   cfg.Prefix + "." + rules.IdentifierSuffix,
		DisplayName:  rules.Title,
		Restrictions: &r,
	}
	if err := p.SetPayloads([]mdm.Payload{payload}); err != nil {
		return nil, fmt.Errorf("%v: %w", err, mdmerrors.ErrInvalidArgument)
	}
	out, err := s.profiles.Create(dbc, p)
	if err != nil {
		return nil, err
	}
	s.log.Info("Profile created", "profile_id", out.ID, "identifier", out.Identifier)
	return out, nil
}

func (s *profileService) List(ctx context.Context) ([]*types.Profile, error) {
	return s.profiles.List(dbctx.Context{Ctx: ctx})
}

func (s *profileService) Get(ctx context.Context, id uint) (*ProfileDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	p, err := s.profiles.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	memberOf, err := s.members.GroupIDsForProfile(dbc, id)
	if err != nil {
		return nil, err
	}
	all, err := s.groups.List(dbc)
	if err != nil {
		return nil, err
	}
	detail := &ProfileDetail{Profile: p, Groups: groupFlags(all, memberOf)}
	if _, payload, err := p.PayloadOfKind(mdm.PayloadKindRestrictions); err == nil {
		detail.Restrictions = payload.Restrictions
	} else if !errors.Is(err, mdm.ErrPayloadMissing) {
		return nil, err
	}
	return detail, nil
}

// UpdateRestrictions edits the profile's restrictions payload, selected by kind, and
// re-installs the profile wherever it is assigned.
func (s *profileService) UpdateRestrictions(ctx context.Context, id uint, restrictions mdm.RestrictionsPayload) (*types.Profile, Outcome, error) {
	return s.membership.ReviseProfile(ctx, id, func(p *types.Profile) error {
		idx, payload, err := p.PayloadOfKind(mdm.PayloadKindRestrictions)
		if err != nil {
			return fmt.Errorf("%v: %w", err, mdmerrors.ErrConflict)
		}
		r := restrictions
		payload.Restrictions = &r
		return p.ReplacePayload(idx, payload)
	})
}

func (s *profileService) Delete(ctx context.Context, id uint) (Outcome, error) {
	out, err := s.membership.DeleteProfile(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	s.log.Info("Profile deleted", "profile_id", id, "commands", out.Commands)
	return out, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
	"github.com/yungbote/fleetmdm-backend/internal/reconcile"
)

const tracerName = "fleetmdm/services"

// maxLockAttempts bounds how often a mutation re-reads its lock set when concurrent
// changes keep widening it.
const maxLockAttempts = 5

var errLockSetChanged = errors.New("lock set changed")

// Outcome is what a membership change queued and who was woken up.
type Outcome struct {
	NotifiedDevices []uuid.UUID `json:"notified_devices"`
	Commands        int         `json:"commands"`
}

func outcomeOf(res reconcile.Result) Outcome {
	out := Outcome{NotifiedDevices: res.Devices, Commands: res.Commands}
	if out.NotifiedDevices == nil {
		out.NotifiedDevices = []uuid.UUID{}
	}
	return out
}

// MembershipService is the only writer of device_group and group_profile edges. Every
// method reads the old edge set, writes the new one and appends the resulting commands
// in a single transaction, then notifies once per touched device after commit.
type MembershipService interface {
	SetDeviceGroups(ctx context.Context, deviceID uuid.UUID, groupIDs []uint) (Outcome, error)
	SetGroupDevices(ctx context.Context, groupID uint, deviceIDs []uuid.UUID) (Outcome, error)
	SetGroupProfiles(ctx context.Context, groupID uint, profileIDs []uint) (Outcome, error)
	SetProfileGroups(ctx context.Context, profileID uint, groupIDs []uint) (Outcome, error)

	// DeleteGroup empties the group (queuing removals) and deletes it.
	DeleteGroup(ctx context.Context, groupID uint) (Outcome, error)
	// DeleteProfile detaches the profile from every group (queuing removals) and deletes it.
	DeleteProfile(ctx context.Context, profileID uint) (Outcome, error)
	// ReviseProfile applies edit to the stored profile and re-installs it on every device
	// that currently receives it.
	ReviseProfile(ctx context.Context, profileID uint, edit func(p *types.Profile) error) (*types.Profile, Outcome, error)
}

type membershipService struct {
	db         *gorm.DB
	log        *logger.Logger
	devices    repos.DeviceRepo
	groups     repos.GroupRepo
	profiles   repos.ProfileRepo
	members    repos.MembershipRepo
	reconciler *reconcile.Reconciler
	locks      *entityLocks
}

func NewMembershipService(
	db *gorm.DB,
	baseLog *logger.Logger,
	devices repos.DeviceRepo,
	groups repos.GroupRepo,
	profiles repos.ProfileRepo,
	members repos.MembershipRepo,
	reconciler *reconcile.Reconciler,
) MembershipService {
	return &membershipService{
		db:         db,
		log:        baseLog.With("service", "MembershipService"),
		devices:    devices,
		groups:     groups,
		profiles:   profiles,
		members:    members,
		reconciler: reconciler,
		locks:      newEntityLocks(),
	}
}

type mutation struct {
	op string
	// keys computes the entities the mutation reads or writes. It runs once unlocked
	// to pick the lock set and once more under lock to confirm it.
	keys func(dbc dbctx.Context) (lockKeys, error)
	// lock takes the row lock on the mutated entity.
	lock func(dbc dbctx.Context) error
	run  func(dbc dbctx.Context) (reconcile.Result, error)
}

func (s *membershipService) execute(ctx context.Context, m mutation) (Outcome, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "membership."+m.op)
	defer span.End()
	metrics := observability.Current()
	start := time.Now()

	for attempt := 1; attempt <= maxLockAttempts; attempt++ {
		keys, err := m.keys(dbctx.Context{Ctx: ctx})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, fmt.Errorf("%s: %w", m.op, err)
		}

		var res reconcile.Result
		unlock := s.locks.LockAll(keys)
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inner := dbctx.Context{Ctx: ctx, Tx: tx}
			if err := m.lock(inner); err != nil {
				return err
			}
			current, err := m.keys(inner)
			if err != nil {
				return err
			}
			if !keys.covers(current) {
				return errLockSetChanged
			}
			res, err = m.run(inner)
			return err
		})
		unlock()

		if errors.Is(err, errLockSetChanged) {
			s.log.Debug("Lock set changed under us; retrying", "op", m.op, "attempt", attempt)
			metrics.IncLockRetry(m.op)
			continue
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			metrics.ObserveMembershipChange(m.op, "error", time.Since(start))
			var perr *reconcile.CommandPersistenceError
			if errors.As(err, &perr) {
				s.log.Error("Membership change rolled back", "op", m.op, "error", err)
			}
			return Outcome{}, err
		}

		span.SetAttributes(
			attribute.Int("commands", res.Commands),
			attribute.Int("devices", len(res.Devices)),
		)
		metrics.ObserveMembershipChange(m.op, "ok", time.Since(start))
		metrics.AddCommandsQueued(m.op, res.Commands)
		s.reconciler.NotifyDevices(ctx, res)
		return outcomeOf(res), nil
	}
	metrics.ObserveMembershipChange(m.op, "error", time.Since(start))
	return Outcome{}, fmt.Errorf("%s: membership kept changing concurrently: %w", m.op, mdmerrors.ErrConflict)
}

func (s *membershipService) SetDeviceGroups(ctx context.Context, deviceID uuid.UUID, groupIDs []uint) (Outcome, error) {
	desired := uniqueUints(groupIDs)
	return s.execute(ctx, mutation{
		op: "set_device_groups",
		keys: func(dbc dbctx.Context) (lockKeys, error) {
			old, err := s.members.GroupIDsForDevice(dbc, deviceID)
			if err != nil {
				return nil, err
			}
			var k lockKeys
			k.devices(deviceID)
			k.groups(old...)
			k.groups(desired...)
			return k, nil
		},
		lock: func(dbc dbctx.Context) error {
			_, err := s.devices.LockByID(dbc, deviceID)
			return err
		},
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.GroupIDsForDevice(dbc, deviceID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.requireGroups(dbc, desired); err != nil {
				return reconcile.Result{}, err
			}
			if reconcile.Diff(old, desired).Empty() {
				return reconcile.Result{}, nil
			}
			if err := s.members.ReplaceDeviceGroups(dbc, deviceID, desired); err != nil {
				return reconcile.Result{}, err
			}
			return s.reconciler.ReconcileDeviceMembershipChange(dbc, deviceID, old, desired)
		},
	})
}

func (s *membershipService) SetGroupDevices(ctx context.Context, groupID uint, deviceIDs []uuid.UUID) (Outcome, error) {
	desired := uniqueUUIDs(deviceIDs)
	return s.execute(ctx, mutation{
		op:   "set_group_devices",
		keys: s.groupDeviceKeys(groupID, desired),
		lock: s.lockGroup(groupID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.DeviceIDsForGroup(dbc, groupID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.requireDevices(dbc, desired); err != nil {
				return reconcile.Result{}, err
			}
			if reconcile.Diff(old, desired).Empty() {
				return reconcile.Result{}, nil
			}
			if err := s.members.ReplaceGroupDevices(dbc, groupID, desired); err != nil {
				return reconcile.Result{}, err
			}
			return s.reconciler.ReconcileGroupMembershipChange(dbc, groupID, old, desired)
		},
	})
}

func (s *membershipService) SetGroupProfiles(ctx context.Context, groupID uint, profileIDs []uint) (Outcome, error) {
	desired := uniqueUints(profileIDs)
	return s.execute(ctx, mutation{
		op: "set_group_profiles",
		keys: func(dbc dbctx.Context) (lockKeys, error) {
			devices, err := s.members.DeviceIDsForGroup(dbc, groupID)
			if err != nil {
				return nil, err
			}
			old, err := s.members.ProfileIDsForGroup(dbc, groupID)
			if err != nil {
				return nil, err
			}
			var k lockKeys
			k.groups(groupID)
			k.devices(devices...)
			k.profiles(old...)
			k.profiles(desired...)
			return k, nil
		},
		lock: s.lockGroup(groupID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.ProfileIDsForGroup(dbc, groupID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.requireProfiles(dbc, desired); err != nil {
				return reconcile.Result{}, err
			}
			if reconcile.Diff(old, desired).Empty() {
				return reconcile.Result{}, nil
			}
			if err := s.members.ReplaceGroupProfiles(dbc, groupID, desired); err != nil {
				return reconcile.Result{}, err
			}
			return s.reconciler.ReconcileGroupProfileChange(dbc, groupID, old, desired)
		},
	})
}

func (s *membershipService) SetProfileGroups(ctx context.Context, profileID uint, groupIDs []uint) (Outcome, error) {
	desired := uniqueUints(groupIDs)
	return s.execute(ctx, mutation{
		op:   "set_profile_groups",
		keys: s.profileGroupKeys(profileID, desired),
		lock: s.lockProfile(profileID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.GroupIDsForProfile(dbc, profileID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.requireGroups(dbc, desired); err != nil {
				return reconcile.Result{}, err
			}
			if reconcile.Diff(old, desired).Empty() {
				return reconcile.Result{}, nil
			}
			if err := s.members.ReplaceProfileGroups(dbc, profileID, desired); err != nil {
				return reconcile.Result{}, err
			}
			return s.reconciler.ReconcileProfileGroupChange(dbc, profileID, old, desired)
		},
	})
}

func (s *membershipService) DeleteGroup(ctx context.Context, groupID uint) (Outcome, error) {
	groupDevices := s.groupDeviceKeys(groupID, nil)
	return s.execute(ctx, mutation{
		op: "delete_group",
		keys: func(dbc dbctx.Context) (lockKeys, error) {
			k, err := groupDevices(dbc)
			if err != nil {
				return nil, err
			}
			profiles, err := s.members.ProfileIDsForGroup(dbc, groupID)
			if err != nil {
				return nil, err
			}
			k.profiles(profiles...)
			return k, nil
		},
		lock: s.lockGroup(groupID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.DeviceIDsForGroup(dbc, groupID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.members.ReplaceGroupDevices(dbc, groupID, nil); err != nil {
				return reconcile.Result{}, err
			}
			res, err := s.reconciler.ReconcileGroupMembershipChange(dbc, groupID, old, nil)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.members.ReplaceGroupProfiles(dbc, groupID, nil); err != nil {
				return reconcile.Result{}, err
			}
			if err := s.groups.Delete(dbc, groupID); err != nil {
				return reconcile.Result{}, err
			}
			return res, nil
		},
	})
}

func (s *membershipService) DeleteProfile(ctx context.Context, profileID uint) (Outcome, error) {
	return s.execute(ctx, mutation{
		op:   "delete_profile",
		keys: s.profileGroupKeys(profileID, nil),
		lock: s.lockProfile(profileID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			old, err := s.members.GroupIDsForProfile(dbc, profileID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.members.ReplaceProfileGroups(dbc, profileID, nil); err != nil {
				return reconcile.Result{}, err
			}
			res, err := s.reconciler.ReconcileProfileGroupChange(dbc, profileID, old, nil)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := s.profiles.Delete(dbc, profileID); err != nil {
				return reconcile.Result{}, err
			}
			return res, nil
		},
	})
}

func (s *membershipService) ReviseProfile(ctx context.Context, profileID uint, edit func(p *types.Profile) error) (*types.Profile, Outcome, error) {
	var revised *types.Profile
	outcome, err := s.execute(ctx, mutation{
		op:   "revise_profile",
		keys: s.profileGroupKeys(profileID, nil),
		lock: s.lockProfile(profileID),
		run: func(dbc dbctx.Context) (reconcile.Result, error) {
			p, err := s.profiles.GetByID(dbc, profileID)
			if err != nil {
				return reconcile.Result{}, err
			}
			if err := edit(p); err != nil {
				return reconcile.Result{}, err
			}
			if err := s.profiles.Save(dbc, p); err != nil {
				return reconcile.Result{}, err
			}
			revised = p
			groups, err := s.members.GroupIDsForProfile(dbc, profileID)
			if err != nil {
				return reconcile.Result{}, err
			}
			return s.reconciler.ReconcileProfileContentChange(dbc, profileID, groups)
		},
	})
	if err != nil {
		return nil, Outcome{}, err
	}
	return revised, outcome, nil
}

func (s *membershipService) groupDeviceKeys(groupID uint, desired []uuid.UUID) func(dbctx.Context) (lockKeys, error) {
	return func(dbc dbctx.Context) (lockKeys, error) {
		old, err := s.members.DeviceIDsForGroup(dbc, groupID)
		if err != nil {
			return nil, err
		}
		var k lockKeys
		k.groups(groupID)
		k.devices(old...)
		k.devices(desired...)
		return k, nil
	}
}

func (s *membershipService) profileGroupKeys(profileID uint, desired []uint) func(dbctx.Context) (lockKeys, error) {
	return func(dbc dbctx.Context) (lockKeys, error) {
		old, err := s.members.GroupIDsForProfile(dbc, profileID)
		if err != nil {
			return nil, err
		}
		var k lockKeys
		k.profiles(profileID)
		for _, gid := range uniqueUints(append(append([]uint{}, old...), desired...)) {
			k.groups(gid)
			devices, err := s.members.DeviceIDsForGroup(dbc, gid)
			if err != nil {
				return nil, err
			}
			k.devices(devices...)
		}
		return k, nil
	}
}

func (s *membershipService) lockGroup(groupID uint) func(dbctx.Context) error {
	return func(dbc dbctx.Context) error {
		_, err := s.groups.LockByID(dbc, groupID)
		return err
	}
}

func (s *membershipService) lockProfile(profileID uint) func(dbctx.Context) error {
	return func(dbc dbctx.Context) error {
		_, err := s.profiles.LockByID(dbc, profileID)
		return err
	}
}

func (s *membershipService) requireGroups(dbc dbctx.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.groups.GetByIDs(dbc, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return fmt.Errorf("unknown group in %v: %w", missingUints(ids, found, func(g *types.Group) uint { return g.ID }), mdmerrors.ErrNotFound)
	}
	return nil
}

func (s *membershipService) requireProfiles(dbc dbctx.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.profiles.GetByIDs(dbc, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return fmt.Errorf("unknown profile in %v: %w", missingUints(ids, found, func(p *types.Profile) uint { return p.ID }), mdmerrors.ErrNotFound)
	}
	return nil
}

func (s *membershipService) requireDevices(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.devices.GetByIDs(dbc, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		have := make(map[uuid.UUID]struct{}, len(found))
		for _, d := range found {
			have[d.ID] = struct{}{}
		}
		var missing []uuid.UUID
		for _, id := range ids {
			if _, ok := have[id]; !ok {
				missing = append(missing, id)
			}
		}
		return fmt.Errorf("unknown device in %v: %w", missing, mdmerrors.ErrNotFound)
	}
	return nil
}

func missingUints[T any](ids []uint, found []T, idOf func(T) uint) []uint {
	have := make(map[uint]struct{}, len(found))
	for _, f := range found {
		have[idOf(f)] = struct{}{}
	}
	var out []uint
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func uniqueUints(in []uint) []uint {
	seen := make(map[uint]struct{}, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func uniqueUUIDs(in []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(in))
	out := make([]uuid.UUID, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok || v == uuid.Nil {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

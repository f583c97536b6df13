package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/observability"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// ProfileDirectory resolves which profiles a group carries.
type ProfileDirectory interface {
	ProfilesOfGroup(dbc dbctx.Context, groupID uint) ([]types.ProfileRef, error)
	ProfilesByIDs(dbc dbctx.Context, ids []uint) ([]types.ProfileRef, error)
}

// MembershipReader reads the device↔group edges other than the ones being changed.
type MembershipReader interface {
	GroupIDsForDevices(dbc dbctx.Context, deviceIDs []uuid.UUID) (map[uuid.UUID][]uint, error)
	DeviceIDsForGroup(dbc dbctx.Context, groupID uint) ([]uuid.UUID, error)
}

type CommandStore interface {
	Append(dbc dbctx.Context, deviceID uuid.UUID, kind types.CommandKind, payload types.CommandPayload) (*types.Command, error)
}

type Notifier interface {
	Notify(ctx context.Context, deviceID uuid.UUID) error
}

// Result is what one or more reconciliation passes queued.
type Result struct {
	// Devices that received at least one command, ascending.
	Devices  []uuid.UUID
	Commands int
}

func (r Result) Empty() bool { return r.Commands == 0 }

// Merge folds other into r, keeping Devices sorted and unique.
func (r Result) Merge(other Result) Result {
	out := Result{Commands: r.Commands + other.Commands}
	seen := make(map[uuid.UUID]struct{}, len(r.Devices)+len(other.Devices))
	for _, list := range [][]uuid.UUID{r.Devices, other.Devices} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out.Devices = append(out.Devices, id)
		}
	}
	sortDevices(out.Devices)
	return out
}

// Reconciler turns membership deltas into Install/Remove commands. A profile a device
// still receives through another group is neither removed nor installed a second time.
// All reads and appends go through the caller's dbctx so they share its transaction.
type Reconciler struct {
	log      *logger.Logger
	profiles ProfileDirectory
	members  MembershipReader
	commands CommandStore
	notifier Notifier
}

func NewReconciler(log *logger.Logger, profiles ProfileDirectory, members MembershipReader, commands CommandStore, notifier Notifier) *Reconciler {
	return &Reconciler{
		log:      log.With("component", "Reconciler"),
		profiles: profiles,
		members:  members,
		commands: commands,
		notifier: notifier,
	}
}

// plan is the ordered command list for one device in one pass.
type plan struct {
	deviceID uuid.UUID
	installs []types.ProfileRef
	removes  []types.ProfileRef
}

func (p *plan) size() int { return len(p.installs) + len(p.removes) }

// ReconcileGroupMembershipChange handles devices joining or leaving groupID.
func (r *Reconciler) ReconcileGroupMembershipChange(dbc dbctx.Context, groupID uint, oldDevices, newDevices []uuid.UUID) (Result, error) {
	const op = "reconcile group membership"
	delta := Diff(oldDevices, newDevices)
	if delta.Empty() {
		return Result{}, nil
	}
	groupProfiles, err := r.profiles.ProfilesOfGroup(dbc, groupID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: profiles of group %d: %w", op, groupID, err)
	}
	if len(groupProfiles) == 0 {
		return Result{}, nil
	}

	affected := append(append([]uuid.UUID{}, delta.Added...), delta.Removed...)
	provided, err := r.providedElsewhere(dbc, affected, groupID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	added := toSet(delta.Added)
	plans := make([]*plan, 0, len(affected))
	for _, deviceID := range affected {
		p := &plan{deviceID: deviceID}
		for _, ref := range groupProfiles {
			if _, ok := provided[deviceID][ref.ID]; ok {
				continue
			}
			if _, ok := added[deviceID]; ok {
				p.installs = append(p.installs, ref)
			} else {
				p.removes = append(p.removes, ref)
			}
		}
		plans = append(plans, p)
	}
	return r.apply(dbc, op, plans)
}

// ReconcileDeviceMembershipChange handles deviceID moving between groups.
func (r *Reconciler) ReconcileDeviceMembershipChange(dbc dbctx.Context, deviceID uuid.UUID, oldGroups, newGroups []uint) (Result, error) {
	const op = "reconcile device membership"
	delta := Diff(oldGroups, newGroups)
	if delta.Empty() {
		return Result{}, nil
	}
	cache := map[uint][]types.ProfileRef{}
	before, err := r.unionOfGroups(dbc, oldGroups, cache)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	after, err := r.unionOfGroups(dbc, newGroups, cache)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	p := &plan{deviceID: deviceID}
	for id, ref := range after {
		if _, ok := before[id]; !ok {
			p.installs = append(p.installs, ref)
		}
	}
	for id, ref := range before {
		if _, ok := after[id]; !ok {
			p.removes = append(p.removes, ref)
		}
	}
	return r.apply(dbc, op, []*plan{p})
}

// ReconcileGroupProfileChange handles profiles being assigned to or withdrawn from
// groupID. Every current member of the group is affected.
func (r *Reconciler) ReconcileGroupProfileChange(dbc dbctx.Context, groupID uint, oldProfiles, newProfiles []uint) (Result, error) {
	const op = "reconcile group profiles"
	delta := Diff(oldProfiles, newProfiles)
	if delta.Empty() {
		return Result{}, nil
	}
	devices, err := r.members.DeviceIDsForGroup(dbc, groupID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: devices of group %d: %w", op, groupID, err)
	}
	if len(devices) == 0 {
		return Result{}, nil
	}
	addedRefs, err := r.profiles.ProfilesByIDs(dbc, delta.Added)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	removedRefs, err := r.profiles.ProfilesByIDs(dbc, delta.Removed)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	provided, err := r.providedElsewhere(dbc, devices, groupID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	plans := make([]*plan, 0, len(devices))
	for _, deviceID := range devices {
		p := &plan{deviceID: deviceID}
		for _, ref := range addedRefs {
			if _, ok := provided[deviceID][ref.ID]; !ok {
				p.installs = append(p.installs, ref)
			}
		}
		for _, ref := range removedRefs {
			if _, ok := provided[deviceID][ref.ID]; !ok {
				p.removes = append(p.removes, ref)
			}
		}
		plans = append(plans, p)
	}
	return r.apply(dbc, op, plans)
}

// ReconcileProfileGroupChange handles one profile's group set changing. Only that
// profile's edges move, so a device needs a command exactly when its reachability of
// the profile flips.
func (r *Reconciler) ReconcileProfileGroupChange(dbc dbctx.Context, profileID uint, oldGroups, newGroups []uint) (Result, error) {
	const op = "reconcile profile groups"
	delta := Diff(oldGroups, newGroups)
	if delta.Empty() {
		return Result{}, nil
	}
	refs, err := r.profiles.ProfilesByIDs(dbc, []uint{profileID})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(refs) == 0 {
		return Result{}, fmt.Errorf("%s: profile %d not in directory", op, profileID)
	}
	ref := refs[0]

	before, err := r.membersOfAny(dbc, oldGroups)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	after, err := r.membersOfAny(dbc, newGroups)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	var plans []*plan
	for deviceID := range after {
		if _, ok := before[deviceID]; !ok {
			plans = append(plans, &plan{deviceID: deviceID, installs: []types.ProfileRef{ref}})
		}
	}
	for deviceID := range before {
		if _, ok := after[deviceID]; !ok {
			plans = append(plans, &plan{deviceID: deviceID, removes: []types.ProfileRef{ref}})
		}
	}
	return r.apply(dbc, op, plans)
}

// ReconcileProfileContentChange re-installs profileID on every member of groupIDs
// after its payload content changed. The identifier is unchanged, so the device
// replaces the installed copy in place.
func (r *Reconciler) ReconcileProfileContentChange(dbc dbctx.Context, profileID uint, groupIDs []uint) (Result, error) {
	const op = "reconcile profile content"
	if len(groupIDs) == 0 {
		return Result{}, nil
	}
	refs, err := r.profiles.ProfilesByIDs(dbc, []uint{profileID})
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(refs) == 0 {
		return Result{}, fmt.Errorf("%s: profile %d not in directory", op, profileID)
	}
	devices, err := r.membersOfAny(dbc, groupIDs)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	plans := make([]*plan, 0, len(devices))
	for deviceID := range devices {
		plans = append(plans, &plan{deviceID: deviceID, installs: []types.ProfileRef{refs[0]}})
	}
	return r.apply(dbc, op, plans)
}

// NotifyDevices pushes each device in res once. Failures are logged and dropped; the
// commands stay queued for the next wake-up.
func (r *Reconciler) NotifyDevices(ctx context.Context, res Result) {
	if r.notifier == nil {
		return
	}
	for _, deviceID := range res.Devices {
		if err := r.notifier.Notify(ctx, deviceID); err != nil {
			r.log.Warn("Notify failed; commands remain queued", "device_id", deviceID, "error", err)
			observability.Current().IncNotifyFailure()
		}
	}
}

// apply appends every planned command in deterministic order: devices ascending, then
// installs by profile id, then removes by identifier. The first failure aborts.
func (r *Reconciler) apply(dbc dbctx.Context, op string, plans []*plan) (Result, error) {
	slices.SortFunc(plans, func(a, b *plan) int {
		return bytes.Compare(a.deviceID[:], b.deviceID[:])
	})
	var res Result
	for _, p := range plans {
		if p.size() == 0 {
			continue
		}
		slices.SortFunc(p.installs, func(a, b types.ProfileRef) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		})
		slices.SortFunc(p.removes, func(a, b types.ProfileRef) int {
			return strings.Compare(a.Identifier, b.Identifier)
		})
		for _, ref := range p.installs {
			if err := r.append(dbc, op, p.deviceID, types.CommandInstallProfile, types.CommandPayload{ProfileID: ref.ID}); err != nil {
				return Result{}, err
			}
		}
		for _, ref := range p.removes {
			if err := r.append(dbc, op, p.deviceID, types.CommandRemoveProfile, types.CommandPayload{Identifier: ref.Identifier}); err != nil {
				return Result{}, err
			}
		}
		res.Devices = append(res.Devices, p.deviceID)
		res.Commands += p.size()
	}
	if res.Commands > 0 {
		r.log.Debug("Queued commands", "op", op, "devices", len(res.Devices), "commands", res.Commands)
	}
	return res, nil
}

func (r *Reconciler) append(dbc dbctx.Context, op string, deviceID uuid.UUID, kind types.CommandKind, payload types.CommandPayload) error {
	if _, err := r.commands.Append(dbc, deviceID, kind, payload); err != nil {
		return &CommandPersistenceError{
			Op:  op,
			Err: &StoreWriteError{DeviceID: deviceID, Kind: kind, Err: err},
		}
	}
	return nil
}

// providedElsewhere maps each device to the profile ids it receives through groups
// other than exclude.
func (r *Reconciler) providedElsewhere(dbc dbctx.Context, devices []uuid.UUID, exclude uint) (map[uuid.UUID]map[uint]types.ProfileRef, error) {
	groupsByDevice, err := r.members.GroupIDsForDevices(dbc, devices)
	if err != nil {
		return nil, fmt.Errorf("groups of devices: %w", err)
	}
	cache := map[uint][]types.ProfileRef{}
	out := make(map[uuid.UUID]map[uint]types.ProfileRef, len(devices))
	for _, deviceID := range devices {
		others := make([]uint, 0, len(groupsByDevice[deviceID]))
		for _, gid := range groupsByDevice[deviceID] {
			if gid != exclude {
				others = append(others, gid)
			}
		}
		union, err := r.unionOfGroups(dbc, others, cache)
		if err != nil {
			return nil, err
		}
		out[deviceID] = union
	}
	return out, nil
}

func (r *Reconciler) unionOfGroups(dbc dbctx.Context, groupIDs []uint, cache map[uint][]types.ProfileRef) (map[uint]types.ProfileRef, error) {
	out := map[uint]types.ProfileRef{}
	for _, gid := range groupIDs {
		refs, ok := cache[gid]
		if !ok {
			var err error
			refs, err = r.profiles.ProfilesOfGroup(dbc, gid)
			if err != nil {
				return nil, fmt.Errorf("profiles of group %d: %w", gid, err)
			}
			cache[gid] = refs
		}
		for _, ref := range refs {
			out[ref.ID] = ref
		}
	}
	return out, nil
}

func (r *Reconciler) membersOfAny(dbc dbctx.Context, groupIDs []uint) (map[uuid.UUID]struct{}, error) {
	out := map[uuid.UUID]struct{}{}
	for gid := range toSet(groupIDs) {
		devices, err := r.members.DeviceIDsForGroup(dbc, gid)
		if err != nil {
			return nil, fmt.Errorf("devices of group %d: %w", gid, err)
		}
		for _, d := range devices {
			out[d] = struct{}{}
		}
	}
	return out, nil
}

func sortDevices(ids []uuid.UUID) {
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	"github.com/yungbote/fleetmdm-backend/internal/data/repos/testutil"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/reconcile"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (n *recordingNotifier) Notify(_ context.Context, deviceID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, deviceID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type harness struct {
	ctx        context.Context
	db         *gorm.DB
	notifier   *recordingNotifier
	devices    repos.DeviceRepo
	groups     repos.GroupRepo
	profiles   repos.ProfileRepo
	members    repos.MembershipRepo
	commands   repos.CommandRepo
	certs      repos.CertificateRepo
	config     repos.ConfigRepo
	kinds      *mdm.KindTables
	membership MembershipService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithCommands(t, nil)
}

// newHarnessWithCommands lets a test wrap the command store the reconciler appends to.
func newHarnessWithCommands(t *testing.T, wrap func(repos.CommandRepo) repos.CommandRepo) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	kinds, err := mdm.LoadKindTables()
	if err != nil {
		t.Fatalf("LoadKindTables: %v", err)
	}
	h := &harness{
		ctx:      context.Background(),
		db:       db,
		notifier: &recordingNotifier{},
		devices:  repos.NewDeviceRepo(db, log),
		groups:   repos.NewGroupRepo(db, log),
		profiles: repos.NewProfileRepo(db, log),
		members:  repos.NewMembershipRepo(db, log),
		commands: repos.NewCommandRepo(db, log),
		certs:    repos.NewCertificateRepo(db, log),
		config:   repos.NewConfigRepo(db, log),
		kinds:    kinds,
	}
	var store reconcile.CommandStore = h.commands
	if wrap != nil {
		store = wrap(h.commands)
	}
	reconciler := reconcile.NewReconciler(log, h.profiles, h.members, store, h.notifier)
	h.membership = NewMembershipService(db, log, h.devices, h.groups, h.profiles, h.members, reconciler)
	return h
}

// flakyCommands fails the failOn-th Append once, then passes everything through.
type flakyCommands struct {
	repos.CommandRepo
	mu     sync.Mutex
	calls  int
	failOn int
}

var errAppendFailed = errors.New("append failed")

func (f *flakyCommands) Append(dbc dbctx.Context, deviceID uuid.UUID, kind types.CommandKind, payload types.CommandPayload) (*types.Command, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return nil, errAppendFailed
	}
	return f.CommandRepo.Append(dbc, deviceID, kind, payload)
}

func (h *harness) commandsFor(t *testing.T, deviceID uuid.UUID) []*types.Command {
	t.Helper()
	cmds, err := h.commands.ListByDevice(dbctx.Context{Ctx: h.ctx}, deviceID, nil, 0)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	return cmds
}

func payloadOf(t *testing.T, c *types.Command) types.CommandPayload {
	t.Helper()
	p, err := c.DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	return p
}

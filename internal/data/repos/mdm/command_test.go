package mdm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos/testutil"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
)

func TestCommandRepoAppendOrdersByIssuance(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	d := testutil.SeedDevice(t, ctx, db, "udid-1")

	repo := NewCommandRepo(db, testutil.Logger(t))
	first, err := repo.Append(dbc, d.ID, types.CommandInstallProfile, types.CommandPayload{ProfileID: 7})
	if err != nil {
		t.Fatalf("Append install: %v", err)
	}
	second, err := repo.Append(dbc, d.ID, types.CommandRemoveProfile, types.CommandPayload{Identifier: "com.example.p"})
	if err != nil {
		t.Fatalf("Append remove: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}
	if first.Status != types.CommandQueued || first.UUID == uuid.Nil {
		t.Fatalf("expected queued command with uuid, got %+v", first)
	}

	list, err := repo.ListByDevice(dbc, d.ID, nil, 0)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("ListByDevice: unexpected order %+v", list)
	}
	payload, err := list[1].DecodePayload()
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Identifier != "com.example.p" {
		t.Fatalf("DecodePayload: expected identifier, got %+v", payload)
	}

	next, err := repo.NextQueued(dbc, d.ID)
	if err != nil {
		t.Fatalf("NextQueued: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("NextQueued: expected %d, got %+v", first.ID, next)
	}
}

func TestCommandRepoAppendRejectsBadPayload(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	d := testutil.SeedDevice(t, ctx, db, "udid-1")

	repo := NewCommandRepo(db, testutil.Logger(t))
	_, err := repo.Append(dbctx.Context{Ctx: ctx}, d.ID, types.CommandRemoveProfile, types.CommandPayload{ProfileID: 1})
	if !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	_, err = repo.Append(dbctx.Context{Ctx: ctx}, uuid.Nil, types.CommandInstallProfile, types.CommandPayload{ProfileID: 1})
	if !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for nil device, got %v", err)
	}
}

func TestCommandRepoTransitionIsForwardOnly(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	d := testutil.SeedDevice(t, ctx, db, "udid-1")

	repo := NewCommandRepo(db, testutil.Logger(t))
	cmd, err := repo.Append(dbc, d.ID, types.CommandInstallProfile, types.CommandPayload{ProfileID: 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := repo.Transition(dbc, cmd.ID, types.CommandAcknowledged, ""); !errors.Is(err, mdmerrors.ErrConflict) {
		t.Fatalf("queued -> acknowledged: expected ErrConflict, got %v", err)
	}
	sent, err := repo.Transition(dbc, cmd.ID, types.CommandSent, "")
	if err != nil {
		t.Fatalf("queued -> sent: %v", err)
	}
	if sent.Status != types.CommandSent || sent.SentAt == nil {
		t.Fatalf("expected sent with timestamp, got %+v", sent)
	}
	failed, err := repo.Transition(dbc, cmd.ID, types.CommandFailed, "device rejected")
	if err != nil {
		t.Fatalf("sent -> failed: %v", err)
	}
	if failed.Error != "device rejected" || failed.FinishedAt == nil {
		t.Fatalf("expected failure detail, got %+v", failed)
	}
	if _, err := repo.Transition(dbc, cmd.ID, types.CommandSent, ""); !errors.Is(err, mdmerrors.ErrConflict) {
		t.Fatalf("failed -> sent: expected ErrConflict, got %v", err)
	}
	if _, err := repo.Transition(dbc, 9999, types.CommandSent, ""); !errors.Is(err, mdmerrors.ErrNotFound) {
		t.Fatalf("missing command: expected ErrNotFound, got %v", err)
	}
}

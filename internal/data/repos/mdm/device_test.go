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

func TestDeviceRepoUpsertKeyedByUDID(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewDeviceRepo(db, testutil.Logger(t))

	first, err := repo.Upsert(dbc, &types.Device{UDID: "udid-1", Name: "first", PushToken: "t1", PushMagic: "m1"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	second, err := repo.Upsert(dbc, &types.Device{UDID: "udid-1", Name: "renamed", PushToken: "t2", PushMagic: "m2"})
	if err != nil {
		t.Fatalf("Upsert (again): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected stable id %s, got %s", first.ID, second.ID)
	}
	if second.Name != "renamed" || second.PushToken != "t2" {
		t.Fatalf("expected refreshed fields, got %+v", second)
	}

	all, err := repo.List(dbc)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("List: expected 1 device, got %d", len(all))
	}

	if _, err := repo.GetByID(dbc, uuid.New()); !errors.Is(err, mdmerrors.ErrNotFound) {
		t.Fatalf("GetByID missing: expected ErrNotFound, got %v", err)
	}
}

func TestGroupRepoCreateConflictAndDelete(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewGroupRepo(db, testutil.Logger(t))

	g, err := repo.Create(dbc, &types.Group{Name: "sales"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Create(dbc, &types.Group{Name: "sales"}); !errors.Is(err, mdmerrors.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}
	if err := repo.Delete(dbc, g.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(dbc, g.ID); !errors.Is(err, mdmerrors.ErrNotFound) {
		t.Fatalf("Delete twice: expected ErrNotFound, got %v", err)
	}
}

func TestProfileRepoSaveKeepsIdentifier(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	seeded := testutil.SeedProfile(t, ctx, db, "com.example.p1")

	repo := NewProfileRepo(db, testutil.Logger(t))
	p, err := repo.GetByID(dbc, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	oldUUID := p.UUID
	p.Identifier = "com.example.other"
	p.UUID = uuid.NewString()
	p.DisplayName = "Renamed"
	if err := repo.Save(dbc, p); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.GetByID(dbc, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID (after save): %v", err)
	}
	if got.Identifier != "com.example.p1" {
		t.Fatalf("identifier changed to %q", got.Identifier)
	}
	if got.UUID == oldUUID || got.DisplayName != "Renamed" {
		t.Fatalf("expected content update, got %+v", got)
	}
}

func TestCertificateRepoCreateWithKey(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewCertificateRepo(db, testutil.Logger(t))

	cert, err := repo.Create(dbc,
		&types.Certificate{Kind: "mdm.webcrt", PEMCertificate: "cert-pem", Subject: "CN=mdm"},
		&types.PrivateKey{PEMKey: "key-pem"},
	)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cert.PrivateKeyID == nil {
		t.Fatalf("expected private key link")
	}
	key, err := repo.PrivateKey(dbc, *cert.PrivateKeyID)
	if err != nil {
		t.Fatalf("PrivateKey: %v", err)
	}
	if key.PEMKey != "key-pem" {
		t.Fatalf("unexpected key %q", key.PEMKey)
	}
	latest, err := repo.LatestOfKind(dbc, "mdm.webcrt")
	if err != nil || latest.ID != cert.ID {
		t.Fatalf("LatestOfKind: got %+v, %v", latest, err)
	}
	if err := repo.Delete(dbc, cert.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.PrivateKey(dbc, *cert.PrivateKeyID); !errors.Is(err, mdmerrors.ErrNotFound) {
		t.Fatalf("expected key deleted with certificate, got %v", err)
	}
}

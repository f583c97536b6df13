package services

import (
	"crypto/x509/pkix"
	"errors"
	"testing"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos/testutil"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
)

func seedConfigCerts(t *testing.T, h *harness) (*types.Certificate, *types.Certificate) {
	t.Helper()
	certs := NewCertificateService(h.db, testutil.Logger(t), h.certs, h.kinds)
	caPEM, caKey := testCertPEM(t, pkix.Name{CommonName: "Test CA"})
	ca, err := certs.Add(h.ctx, mdm.CertKindCA, caPEM, caKey)
	if err != nil {
		t.Fatalf("add ca: %v", err)
	}
	pushPEM, pushKey := testCertPEM(t, pkix.Name{
		CommonName: "APSP:test",
		ExtraNames: []pkix.AttributeTypeAndValue{{Type: oidUserID, Value: "com.apple.mgmt.External.test"}},
	})
	push, err := certs.Add(h.ctx, mdm.CertKindPush, pushPEM, pushKey)
	if err != nil {
		t.Fatalf("add push: %v", err)
	}
	return ca, push
}

func TestConfigCreate(t *testing.T) {
	h := newHarness(t)
	ca, push := seedConfigCerts(t, h)
	svc := NewConfigService(h.db, testutil.Logger(t), h.config, h.certs)

	cfg, err := svc.Create(h.ctx, ConfigInput{
		Name:       "Fleet",
		Hostname:   "mdm.example.com",
		Port:       8443,
		Prefix:     "com.example.mdm..",
		CACertID:   ca.ID,
		PushCertID: push.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if cfg.Topic != "com.apple.mgmt.External.test" {
		t.Fatalf("topic: %q", cfg.Topic)
	}
	if cfg.MDMURL != "https://mdm.example.com:8443/mdm" || cfg.CheckinURL != "https://mdm.example.com:8443/checkin" {
		t.Fatalf("urls: %q %q", cfg.MDMURL, cfg.CheckinURL)
	}
	if cfg.Prefix != "com.example.mdm" {
		t.Fatalf("prefix: %q", cfg.Prefix)
	}
	if cfg.Description != nil {
		t.Fatalf("empty description stored as %q", *cfg.Description)
	}

	if _, err := svc.Create(h.ctx, ConfigInput{Name: "Again", Hostname: "h", Prefix: "p", CACertID: ca.ID, PushCertID: push.ID}); !errors.Is(err, mdmerrors.ErrConflict) {
		t.Fatalf("second create: want ErrConflict, got %v", err)
	}
}

func TestConfigCreateValidates(t *testing.T) {
	h := newHarness(t)
	ca, push := seedConfigCerts(t, h)
	svc := NewConfigService(h.db, testutil.Logger(t), h.config, h.certs)

	cases := []struct {
		name string
		in   ConfigInput
		want error
	}{
		{"port too high", ConfigInput{Name: "n", Hostname: "h", Port: 70000, Prefix: "p", CACertID: ca.ID, PushCertID: push.ID}, mdmerrors.ErrInvalidArgument},
		{"no hostname", ConfigInput{Name: "n", Prefix: "p", CACertID: ca.ID, PushCertID: push.ID}, mdmerrors.ErrInvalidArgument},
		{"swapped certs", ConfigInput{Name: "n", Hostname: "h", Prefix: "p", CACertID: push.ID, PushCertID: ca.ID}, mdmerrors.ErrInvalidArgument},
		{"unknown cert", ConfigInput{Name: "n", Hostname: "h", Prefix: "p", CACertID: 999, PushCertID: push.ID}, mdmerrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(h.ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigUpdateAndProfileCreate(t *testing.T) {
	h := newHarness(t)
	ca, push := seedConfigCerts(t, h)
	svc := NewConfigService(h.db, testutil.Logger(t), h.config, h.certs)
	profiles := NewProfileService(h.db, testutil.Logger(t), h.profiles, h.groups, h.members, h.config, h.kinds, h.membership)

	if _, err := profiles.Create(h.ctx, "Restrict", mdm.DefaultRestrictions()); !errors.Is(err, mdmerrors.ErrConflict) {
		t.Fatalf("profile before config: want ErrConflict, got %v", err)
	}
	if _, err := svc.Create(h.ctx, ConfigInput{Name: "Fleet", Hostname: "mdm.example.com", Prefix: "com.example", CACertID: ca.ID, PushCertID: push.ID}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cfg, err := svc.Update(h.ctx, ConfigUpdate{Name: "Fleet 2", Description: "lab devices"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cfg.Name != "Fleet 2" || cfg.Description == nil || *cfg.Description != "lab devices" {
		t.Fatalf("updated config: %+v", cfg)
	}
	if cfg.MDMURL != "https://mdm.example.com/mdm" {
		t.Fatalf("update touched urls: %q", cfg.MDMURL)
	}

	p, err := profiles.Create(h.ctx, "Restrict", mdm.DefaultRestrictions())
	if err != nil {
		t.Fatalf("profile Create: %v", err)
	}
	if len(p.Identifier) <= len("com.example.profile.") || p.Identifier[:len("com.example.profile.")] != "com.example.profile." {
		t.Fatalf("identifier: %q", p.Identifier)
	}
	_, payload, err := p.PayloadOfKind(mdm.PayloadKindRestrictions)
	if err != nil {
		t.Fatalf("PayloadOfKind: %v", err)
	}
	if payload.Identifier != "com.example.restrictions" {
		t.Fatalf("payload identifier: %q", payload.Identifier)
	}
}

package services

import (
	"crypto/x509/pkix"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos/testutil"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
)

func testCertPEM(t *testing.T, name pkix.Name) (string, string) {
	t.Helper()
	certPEM, keyPEM, err := selfSign(name, time.Now())
	if err != nil {
		t.Fatalf("selfSign: %v", err)
	}
	return certPEM, keyPEM
}

func TestCertificateAddEnforcesKeyRule(t *testing.T) {
	h := newHarness(t)
	svc := NewCertificateService(h.db, testutil.Logger(t), h.certs, h.kinds)
	certPEM, keyPEM := testCertPEM(t, pkix.Name{CommonName: "Test CA"})

	if _, err := svc.Add(h.ctx, mdm.CertKindCA, certPEM, ""); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("missing key: want ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Add(h.ctx, mdm.CertKindCA, "", keyPEM); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("missing cert: want ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Add(h.ctx, mdm.CertKindCA, "not a pem", keyPEM); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("garbage cert: want ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.Add(h.ctx, "mdm.bogus", certPEM, keyPEM); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("unknown kind: want ErrInvalidArgument, got %v", err)
	}

	cert, err := svc.Add(h.ctx, mdm.CertKindCA, certPEM, keyPEM)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if cert.PrivateKeyID == nil {
		t.Fatalf("private key not linked")
	}
	if cert.Subject != "CN=Test CA" {
		t.Fatalf("subject: want=%q got=%q", "CN=Test CA", cert.Subject)
	}

	// device certificates carry no key requirement
	if _, err := svc.Add(h.ctx, mdm.CertKindDevice, certPEM, ""); err != nil {
		t.Fatalf("Add device cert: %v", err)
	}
}

func TestCertificateListReportsMissingKinds(t *testing.T) {
	h := newHarness(t)
	svc := NewCertificateService(h.db, testutil.Logger(t), h.certs, h.kinds)
	certPEM, keyPEM := testCertPEM(t, pkix.Name{CommonName: "Test CA"})
	if _, err := svc.Add(h.ctx, mdm.CertKindCA, certPEM, keyPEM); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := svc.Add(h.ctx, mdm.CertKindDevice, certPEM, ""); err != nil {
		t.Fatalf("Add device: %v", err)
	}

	listing, err := svc.List(h.ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Installed) != 1 || listing.Installed[0].Kind != mdm.CertKindCA {
		t.Fatalf("installed: %+v", listing.Installed)
	}
	if listing.Installed[0].Title == "" || !listing.Installed[0].Required {
		t.Fatalf("installed metadata missing: %+v", listing.Installed[0])
	}
	missing := map[mdm.CertificateKind]MissingCertificate{}
	for _, m := range listing.Missing {
		missing[m.Kind] = m
	}
	if len(missing) != 2 {
		t.Fatalf("missing kinds: %+v", listing.Missing)
	}
	if !missing[mdm.CertKindWeb].Creatable || missing[mdm.CertKindPush].Creatable {
		t.Fatalf("creatable flags: %+v", listing.Missing)
	}
}

func TestGenerateRequest(t *testing.T) {
	h := newHarness(t)
	svc := NewCertificateService(h.db, testutil.Logger(t), h.certs, h.kinds)

	if _, err := svc.GenerateRequest(h.ctx, mdm.CertKindCA, map[string]string{"CN": "x"}); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("non-creatable kind: want ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.GenerateRequest(h.ctx, mdm.CertKindWeb, map[string]string{"O": "Example"}); !errors.Is(err, mdmerrors.ErrInvalidArgument) {
		t.Fatalf("missing CN: want ErrInvalidArgument, got %v", err)
	}

	cert, err := svc.GenerateRequest(h.ctx, mdm.CertKindWeb, map[string]string{
		"CN":           "mdm.example.com",
		"O":            "Example",
		"emailAddress": "ignored@example.com",
	})
	if err != nil {
		t.Fatalf("GenerateRequest: %v", err)
	}
	if cert.Subject != "CN=mdm.example.com,O=Example" {
		t.Fatalf("subject: %q", cert.Subject)
	}
	parsed, err := parseCertificatePEM(cert.PEMCertificate)
	if err != nil {
		t.Fatalf("generated cert does not parse: %v", err)
	}
	if len(parsed.DNSNames) != 1 || parsed.DNSNames[0] != "mdm.example.com" {
		t.Fatalf("dns names: %v", parsed.DNSNames)
	}
	if cert.PrivateKeyID == nil {
		t.Fatalf("generated key not stored")
	}
}

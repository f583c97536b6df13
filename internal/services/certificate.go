package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type CertificateView struct {
	*types.Certificate
	Title       string `json:"title"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

type MissingCertificate struct {
	Kind        types.CertificateKind `json:"kind"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Required    bool                  `json:"required"`
	Creatable   bool                  `json:"creatable"`
}

type CertificateListing struct {
	Installed []CertificateView    `json:"installed"`
	Missing   []MissingCertificate `json:"missing"`
}

type CertificateService interface {
	List(ctx context.Context) (*CertificateListing, error)
	Add(ctx context.Context, kind types.CertificateKind, certPEM, keyPEM string) (*types.Certificate, error)
	// GenerateRequest creates a key and a self-signed certificate for a creatable kind.
	GenerateRequest(ctx context.Context, kind types.CertificateKind, subject map[string]string) (*types.Certificate, error)
	Delete(ctx context.Context, id uint) error
}

type certificateService struct {
	db    *gorm.DB
	log   *logger.Logger
	certs repos.CertificateRepo
	kinds *mdm.KindTables
	now   func() time.Time
}

func NewCertificateService(db *gorm.DB, baseLog *logger.Logger, certs repos.CertificateRepo, kinds *mdm.KindTables) CertificateService {
	return &certificateService{
		db:    db,
		log:   baseLog.With("service", "CertificateService"),
		certs: certs,
		kinds: kinds,
		now:   time.Now,
	}
}

func (s *certificateService) rules(kind types.CertificateKind) (mdm.CertificateRules, error) {
	if !kind.Valid() {
		return mdm.CertificateRules{}, fmt.Errorf("unknown certificate kind %q: %w", kind, mdmerrors.ErrInvalidArgument)
	}
	return s.kinds.Certificate(kind)
}

func (s *certificateService) List(ctx context.Context) (*CertificateListing, error) {
	var listed []types.CertificateKind
	for _, kind := range mdm.CertificateKinds {
		if rules, err := s.kinds.Certificate(kind); err == nil && rules.Listed {
			listed = append(listed, kind)
		}
	}
	rows, err := s.certs.List(dbctx.Context{Ctx: ctx}, listed)
	if err != nil {
		return nil, err
	}

	out := &CertificateListing{Installed: []CertificateView{}, Missing: []MissingCertificate{}}
	installed := map[types.CertificateKind]bool{}
	for _, row := range rows {
		rules, _ := s.kinds.Certificate(row.Kind)
		installed[row.Kind] = true
		out.Installed = append(out.Installed, CertificateView{
			Certificate: row,
			Title:       rules.Title,
			Description: rules.Description,
			Required:    rules.Required,
		})
	}
	for _, kind := range listed {
		if installed[kind] {
			continue
		}
		rules, _ := s.kinds.Certificate(kind)
		out.Missing = append(out.Missing, MissingCertificate{
			Kind:        kind,
			Title:       rules.Title,
			Description: rules.Description,
			Required:    rules.Required,
			Creatable:   rules.Creatable,
		})
	}
	return out, nil
}

func (s *certificateService) Add(ctx context.Context, kind types.CertificateKind, certPEM, keyPEM string) (*types.Certificate, error) {
	rules, err := s.rules(kind)
	if err != nil {
		return nil, err
	}
	certPEM = strings.TrimSpace(certPEM)
	keyPEM = strings.TrimSpace(keyPEM)
	if certPEM == "" {
		return nil, fmt.Errorf("no certificate supplied: %w", mdmerrors.ErrInvalidArgument)
	}
	cert, err := parseCertificatePEM(certPEM)
	if err != nil {
		return nil, err
	}
	if rules.RequiresPrivateKey && keyPEM == "" {
		return nil, fmt.Errorf("%s requires a private key: %w", kind, mdmerrors.ErrInvalidArgument)
	}

	var key *types.PrivateKey
	if keyPEM != "" {
		block, _ := pem.Decode([]byte(keyPEM))
		if block == nil || !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			return nil, fmt.Errorf("private key is not a PEM private key: %w", mdmerrors.ErrInvalidArgument)
		}
		key = &types.PrivateKey{PEMKey: keyPEM}
	}

	out, err := s.certs.Create(dbctx.Context{Ctx: ctx}, &types.Certificate{
		Kind:           kind,
		PEMCertificate: certPEM,
		Subject:        cert.Subject.String(),
	}, key)
	if err != nil {
		return nil, err
	}
	s.log.Info("Certificate added", "certificate_id", out.ID, "kind", kind, "subject", out.Subject)
	return out, nil
}

func (s *certificateService) GenerateRequest(ctx context.Context, kind types.CertificateKind, subject map[string]string) (*types.Certificate, error) {
	rules, err := s.rules(kind)
	if err != nil {
		return nil, err
	}
	if !rules.Creatable {
		return nil, fmt.Errorf("%s cannot be generated: %w", kind, mdmerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(subject["CN"]) == "" {
		return nil, fmt.Errorf("no common name: %w", mdmerrors.ErrInvalidArgument)
	}
	name := pkix.Name{}
	var ignored []string
	for field, value := range subject {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !rules.AllowsSubjectField(field) {
			ignored = append(ignored, field)
			continue
		}
		switch field {
		case "CN":
			name.CommonName = value
		case "C":
			name.Country = []string{value}
		case "O":
			name.Organization = []string{value}
		case "OU":
			name.OrganizationalUnit = []string{value}
		case "L":
			name.Locality = []string{value}
		case "ST":
			name.Province = []string{value}
		}
	}
	if len(ignored) > 0 {
		sort.Strings(ignored)
		s.log.Debug("Ignoring subject fields", "kind", kind, "fields", ignored)
	}

	certPEM, keyPEM, err := selfSign(name, s.now())
	if err != nil {
		return nil, err
	}
	out, err := s.certs.Create(dbctx.Context{Ctx: ctx}, &types.Certificate{
		Kind:           kind,
		PEMCertificate: certPEM,
		Subject:        name.String(),
	}, &types.PrivateKey{PEMKey: keyPEM})
	if err != nil {
		return nil, err
	}
	s.log.Info("Certificate generated", "certificate_id", out.ID, "kind", kind, "subject", out.Subject)
	return out, nil
}

func (s *certificateService) Delete(ctx context.Context, id uint) error {
	return s.certs.Delete(dbctx.Context{Ctx: ctx}, id)
}

func parseCertificatePEM(certPEM string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(certPEM))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("not a PEM certificate: %w", mdmerrors.ErrInvalidArgument)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid X.509 certificate: %v: %w", err, mdmerrors.ErrInvalidArgument)
	}
	return cert, nil
}

// selfSign issues a one-year RSA certificate for name, signed by its own key.
func selfSign(name pkix.Name, now time.Time) (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", fmt.Errorf("generate serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               name,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if name.CommonName != "" {
		tmpl.DNSNames = []string{name.CommonName}
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("sign certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("encode key: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	return string(certPEM), string(keyPEM), nil
}

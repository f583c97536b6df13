package services

import (
	"context"
	"encoding/asn1"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/fleetmdm-backend/internal/data/repos"
	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/domain/mdm"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// oidUserID carries the push topic in APNs MDM certificates.
var oidUserID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

type ConfigInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Hostname    string `json:"hostname"`
	Port        int    `json:"port"`
	Prefix      string `json:"prefix"`
	CACertID    uint   `json:"ca_cert_id"`
	PushCertID  uint   `json:"push_cert_id"`
	// Topic overrides the topic read from the push certificate.
	Topic string `json:"topic"`
}

type ConfigUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CACertID    uint   `json:"ca_cert_id"`
}

type ConfigService interface {
	Get(ctx context.Context) (*types.Config, error)
	Create(ctx context.Context, in ConfigInput) (*types.Config, error)
	Update(ctx context.Context, in ConfigUpdate) (*types.Config, error)
}

type configService struct {
	db     *gorm.DB
	log    *logger.Logger
	config repos.ConfigRepo
	certs  repos.CertificateRepo
}

func NewConfigService(db *gorm.DB, baseLog *logger.Logger, config repos.ConfigRepo, certs repos.CertificateRepo) ConfigService {
	return &configService{
		db:     db,
		log:    baseLog.With("service", "ConfigService"),
		config: config,
		certs:  certs,
	}
}

func (s *configService) Get(ctx context.Context) (*types.Config, error) {
	return s.config.Get(dbctx.Context{Ctx: ctx})
}

func (s *configService) Create(ctx context.Context, in ConfigInput) (*types.Config, error) {
	var out *types.Config
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.config.Get(dbc); err == nil {
			return fmt.Errorf("server config already exists: %w", mdmerrors.ErrConflict)
		} else if !errors.Is(err, mdmerrors.ErrNotFound) {
			return err
		}

		name := strings.TrimSpace(in.Name)
		host := strings.TrimSpace(in.Hostname)
		prefix := strings.TrimRight(strings.TrimSpace(in.Prefix), ".")
		if name == "" || host == "" || prefix == "" {
			return fmt.Errorf("name, hostname and prefix are required: %w", mdmerrors.ErrInvalidArgument)
		}
		if in.Port != 0 && (in.Port < 1 || in.Port > 65535) {
			return fmt.Errorf("invalid port number %d: %w", in.Port, mdmerrors.ErrInvalidArgument)
		}
		if _, err := s.certOfKind(dbc, in.CACertID, mdm.CertKindCA); err != nil {
			return err
		}
		push, err := s.certOfKind(dbc, in.PushCertID, mdm.CertKindPush)
		if err != nil {
			return err
		}
		topic := strings.TrimSpace(in.Topic)
		if topic == "" {
			topic, err = pushTopic(push.PEMCertificate)
			if err != nil {
				return err
			}
		}

		baseURL := "https://" + host
		if in.Port != 0 {
			baseURL += fmt.Sprintf(":%d", in.Port)
		}
		cfg := &types.Config{
			Name:        name,
			Description: optionalString(in.Description),
			Topic:       topic,
			MDMURL:      baseURL + "/mdm",
			CheckinURL:  baseURL + "/checkin",
			Prefix:      prefix,
			CACertID:    in.CACertID,
			PushCertID:  in.PushCertID,
		}
		created, err := s.config.Create(dbc, cfg)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Server config created", "name", out.Name, "topic", out.Topic)
	return out, nil
}

func (s *configService) Update(ctx context.Context, in ConfigUpdate) (*types.Config, error) {
	var out *types.Config
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		cfg, err := s.config.Get(dbc)
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(in.Name); name != "" {
			cfg.Name = name
		}
		cfg.Description = optionalString(in.Description)
		if in.CACertID != 0 {
			if _, err := s.certOfKind(dbc, in.CACertID, mdm.CertKindCA); err != nil {
				return err
			}
			cfg.CACertID = in.CACertID
		}
		out, err = s.config.Update(dbc, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *configService) certOfKind(dbc dbctx.Context, id uint, kind types.CertificateKind) (*types.Certificate, error) {
	if id == 0 {
		return nil, fmt.Errorf("%s certificate id is required: %w", kind, mdmerrors.ErrInvalidArgument)
	}
	cert, err := s.certs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if cert.Kind != kind {
		return nil, fmt.Errorf("certificate %d is %s, want %s: %w", id, cert.Kind, kind, mdmerrors.ErrInvalidArgument)
	}
	return cert, nil
}

func pushTopic(certPEM string) (string, error) {
	cert, err := parseCertificatePEM(certPEM)
	if err != nil {
		return "", err
	}
	for _, atv := range cert.Subject.Names {
		if atv.Type.Equal(oidUserID) {
			if v, ok := atv.Value.(string); ok && v != "" {
				return v, nil
			}
		}
	}
	return "", fmt.Errorf("push certificate has no topic (UID): %w", mdmerrors.ErrInvalidArgument)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

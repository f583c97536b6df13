package mdm

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type CertificateRepo interface {
	// Create stores the certificate and, when key is non-nil, its private key in the same
	// transaction, linking the two.
	Create(dbc dbctx.Context, cert *types.Certificate, key *types.PrivateKey) (*types.Certificate, error)
	GetByID(dbc dbctx.Context, id uint) (*types.Certificate, error)
	List(dbc dbctx.Context, kinds []types.CertificateKind) ([]*types.Certificate, error)
	LatestOfKind(dbc dbctx.Context, kind types.CertificateKind) (*types.Certificate, error)
	PrivateKey(dbc dbctx.Context, id uint) (*types.PrivateKey, error)
	Delete(dbc dbctx.Context, id uint) error
}

type certificateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCertificateRepo(db *gorm.DB, baseLog *logger.Logger) CertificateRepo {
	return &certificateRepo{
		db:  db,
		log: baseLog.With("repo", "CertificateRepo"),
	}
}

func (r *certificateRepo) Create(dbc dbctx.Context, cert *types.Certificate, key *types.PrivateKey) (*types.Certificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		if key != nil {
			if err := tx.Create(key).Error; err != nil {
				return err
			}
			id := key.ID
			cert.PrivateKeyID = &id
		}
		return tx.Create(cert).Error
	})
	if err != nil {
		return nil, translateErr(err, "create certificate "+string(cert.Kind))
	}
	return cert, nil
}

func (r *certificateRepo) GetByID(dbc dbctx.Context, id uint) (*types.Certificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Certificate
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("certificate %d", id))
	}
	return &out, nil
}

func (r *certificateRepo) List(dbc dbctx.Context, kinds []types.CertificateKind) ([]*types.Certificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Context())
	if len(kinds) > 0 {
		q = q.Where("cert_type IN ?", kinds)
	}
	var out []*types.Certificate
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *certificateRepo) LatestOfKind(dbc dbctx.Context, kind types.CertificateKind) (*types.Certificate, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Certificate
	if err := transaction.WithContext(dbc.Context()).
		Where("cert_type = ?", kind).
		Order("id DESC").
		First(&out).Error; err != nil {
		return nil, translateErr(err, "certificate of kind "+string(kind))
	}
	return &out, nil
}

func (r *certificateRepo) PrivateKey(dbc dbctx.Context, id uint) (*types.PrivateKey, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.PrivateKey
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("private key %d", id))
	}
	return &out, nil
}

// Delete removes the certificate and its private key, if any.
func (r *certificateRepo) Delete(dbc dbctx.Context, id uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		var cert types.Certificate
		if err := tx.Where("id = ?", id).First(&cert).Error; err != nil {
			return translateErr(err, fmt.Sprintf("certificate %d", id))
		}
		if err := tx.Delete(&types.Certificate{}, cert.ID).Error; err != nil {
			return err
		}
		if cert.PrivateKeyID != nil {
			if err := tx.Delete(&types.PrivateKey{}, *cert.PrivateKeyID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

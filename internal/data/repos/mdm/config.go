package mdm

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// ConfigRepo stores the single server configuration row.
type ConfigRepo interface {
	Get(dbc dbctx.Context) (*types.Config, error)
	Create(dbc dbctx.Context, cfg *types.Config) (*types.Config, error)
	Update(dbc dbctx.Context, cfg *types.Config) (*types.Config, error)
}

type configRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConfigRepo(db *gorm.DB, baseLog *logger.Logger) ConfigRepo {
	return &configRepo{
		db:  db,
		log: baseLog.With("repo", "ConfigRepo"),
	}
}

func (r *configRepo) Get(dbc dbctx.Context) (*types.Config, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Config
	if err := transaction.WithContext(dbc.Context()).
		Order("id ASC").
		First(&out).Error; err != nil {
		return nil, translateErr(err, "mdm config")
	}
	return &out, nil
}

func (r *configRepo) Create(dbc dbctx.Context, cfg *types.Config) (*types.Config, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Context()).Create(cfg).Error; err != nil {
		return nil, translateErr(err, "create mdm config")
	}
	return cfg, nil
}

func (r *configRepo) Update(dbc dbctx.Context, cfg *types.Config) (*types.Config, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Context()).
		Model(&types.Config{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]interface{}{
			"mdm_name":     cfg.Name,
			"description":  cfg.Description,
			"topic":        cfg.Topic,
			"mdm_url":      cfg.MDMURL,
			"checkin_url":  cfg.CheckinURL,
			"prefix":       cfg.Prefix,
			"ca_cert_id":   cfg.CACertID,
			"push_cert_id": cfg.PushCertID,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, translateErr(gorm.ErrRecordNotFound, "mdm config")
	}
	return r.Get(dbc)
}

package mdm

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type DeviceRepo interface {
	Upsert(dbc dbctx.Context, device *types.Device) (*types.Device, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Device, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Device, error)
	List(dbc dbctx.Context) ([]*types.Device, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Device, error)
}

type deviceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDeviceRepo(db *gorm.DB, baseLog *logger.Logger) DeviceRepo {
	return &deviceRepo{
		db:  db,
		log: baseLog.With("repo", "DeviceRepo"),
	}
}

// Upsert enrols a device or refreshes its identity and push fields, keyed by UDID.
func (r *deviceRepo) Upsert(dbc dbctx.Context, device *types.Device) (*types.Device, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	now := time.Now().UTC()
	device.LastSeenAt = &now
	err := transaction.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "udid"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"serial_number", "name", "push_token", "push_magic", "topic", "info", "last_seen_at", "updated_at",
			}),
		}).
		Create(device).Error
	if err != nil {
		return nil, translateErr(err, "upsert device")
	}
	var out types.Device
	if err := transaction.WithContext(dbc.Context()).
		Where("udid = ?", device.UDID).
		First(&out).Error; err != nil {
		return nil, translateErr(err, "reload device")
	}
	return &out, nil
}

func (r *deviceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Device, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Device
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, "device "+id.String())
	}
	return &out, nil
}

func (r *deviceRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Device, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Device
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Context()).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *deviceRepo) List(dbc dbctx.Context) ([]*types.Device, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Device
	if err := transaction.WithContext(dbc.Context()).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LockByID loads the device row FOR UPDATE. Must run inside a transaction for the
// lock to outlive the statement.
func (r *deviceRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Device, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Device
	if err := transaction.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, "lock device "+id.String())
	}
	return &out, nil
}

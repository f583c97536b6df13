package mdm

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

type GroupRepo interface {
	Create(dbc dbctx.Context, group *types.Group) (*types.Group, error)
	GetByID(dbc dbctx.Context, id uint) (*types.Group, error)
	GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Group, error)
	List(dbc dbctx.Context) ([]*types.Group, error)
	LockByID(dbc dbctx.Context, id uint) (*types.Group, error)
	Delete(dbc dbctx.Context, id uint) error
}

type groupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGroupRepo(db *gorm.DB, baseLog *logger.Logger) GroupRepo {
	return &groupRepo{
		db:  db,
		log: baseLog.With("repo", "GroupRepo"),
	}
}

func (r *groupRepo) Create(dbc dbctx.Context, group *types.Group) (*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Context()).Create(group).Error; err != nil {
		return nil, translateErr(err, "create group "+group.Name)
	}
	return group, nil
}

func (r *groupRepo) GetByID(dbc dbctx.Context, id uint) (*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Group
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("group %d", id))
	}
	return &out, nil
}

func (r *groupRepo) GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Group
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

func (r *groupRepo) List(dbc dbctx.Context) ([]*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Group
	if err := transaction.WithContext(dbc.Context()).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *groupRepo) LockByID(dbc dbctx.Context, id uint) (*types.Group, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Group
	if err := transaction.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("lock group %d", id))
	}
	return &out, nil
}

func (r *groupRepo) Delete(dbc dbctx.Context, id uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		Delete(&types.Group{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translateErr(gorm.ErrRecordNotFound, fmt.Sprintf("group %d", id))
	}
	return nil
}

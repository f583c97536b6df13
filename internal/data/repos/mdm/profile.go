package mdm

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// ProfileRepo is the profile table plus the read-only directory view reconciliation
// uses to expand a group into its profiles.
type ProfileRepo interface {
	Create(dbc dbctx.Context, profile *types.Profile) (*types.Profile, error)
	Save(dbc dbctx.Context, profile *types.Profile) error
	GetByID(dbc dbctx.Context, id uint) (*types.Profile, error)
	GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Profile, error)
	List(dbc dbctx.Context) ([]*types.Profile, error)
	LockByID(dbc dbctx.Context, id uint) (*types.Profile, error)
	Delete(dbc dbctx.Context, id uint) error

	ProfilesOfGroup(dbc dbctx.Context, groupID uint) ([]types.ProfileRef, error)
	ProfilesByIDs(dbc dbctx.Context, ids []uint) ([]types.ProfileRef, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{
		db:  db,
		log: baseLog.With("repo", "ProfileRepo"),
	}
}

func (r *profileRepo) Create(dbc dbctx.Context, profile *types.Profile) (*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Context()).Create(profile).Error; err != nil {
		return nil, translateErr(err, "create profile "+profile.Identifier)
	}
	return profile, nil
}

// Save writes content fields. The identifier column is never updated.
func (r *profileRepo) Save(dbc dbctx.Context, profile *types.Profile) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Context()).
		Model(&types.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"uuid":         profile.UUID,
			"display_name": profile.DisplayName,
			"payloads":     profile.Payloads,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translateErr(gorm.ErrRecordNotFound, fmt.Sprintf("profile %d", profile.ID))
	}
	return nil
}

func (r *profileRepo) GetByID(dbc dbctx.Context, id uint) (*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Profile
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("profile %d", id))
	}
	return &out, nil
}

func (r *profileRepo) GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Profile
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

func (r *profileRepo) List(dbc dbctx.Context) ([]*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Profile
	if err := transaction.WithContext(dbc.Context()).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profileRepo) LockByID(dbc dbctx.Context, id uint) (*types.Profile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Profile
	if err := transaction.WithContext(dbc.Context()).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("lock profile %d", id))
	}
	return &out, nil
}

func (r *profileRepo) Delete(dbc dbctx.Context, id uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		Delete(&types.Profile{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return translateErr(gorm.ErrRecordNotFound, fmt.Sprintf("profile %d", id))
	}
	return nil
}

// ProfilesOfGroup returns the group's profiles ordered by id.
func (r *profileRepo) ProfilesOfGroup(dbc dbctx.Context, groupID uint) ([]types.ProfileRef, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.ProfileRef
	if err := transaction.WithContext(dbc.Context()).
		Table("profile").
		Select("profile.id AS id, profile.identifier AS identifier").
		Joins("JOIN group_profile ON group_profile.profile_id = profile.id").
		Where("group_profile.group_id = ?", groupID).
		Order("profile.id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *profileRepo) ProfilesByIDs(dbc dbctx.Context, ids []uint) ([]types.ProfileRef, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.ProfileRef
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Context()).
		Table("profile").
		Select("id, identifier").
		Where("id IN ?", ids).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

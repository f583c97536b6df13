package mdm

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// MembershipRepo owns the device_group and group_profile edge tables. Edges carry no
// attributes, so every Replace* is delete-then-insert of one entity's edge set. Call
// Replace* inside the transaction that locked the entity row.
type MembershipRepo interface {
	GroupIDsForDevice(dbc dbctx.Context, deviceID uuid.UUID) ([]uint, error)
	GroupIDsForDevices(dbc dbctx.Context, deviceIDs []uuid.UUID) (map[uuid.UUID][]uint, error)
	DeviceIDsForGroup(dbc dbctx.Context, groupID uint) ([]uuid.UUID, error)
	ProfileIDsForGroup(dbc dbctx.Context, groupID uint) ([]uint, error)
	GroupIDsForProfile(dbc dbctx.Context, profileID uint) ([]uint, error)

	ReplaceDeviceGroups(dbc dbctx.Context, deviceID uuid.UUID, groupIDs []uint) error
	ReplaceGroupDevices(dbc dbctx.Context, groupID uint, deviceIDs []uuid.UUID) error
	ReplaceGroupProfiles(dbc dbctx.Context, groupID uint, profileIDs []uint) error
	ReplaceProfileGroups(dbc dbctx.Context, profileID uint, groupIDs []uint) error
}

type membershipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) MembershipRepo {
	return &membershipRepo{
		db:  db,
		log: baseLog.With("repo", "MembershipRepo"),
	}
}

func (r *membershipRepo) GroupIDsForDevice(dbc dbctx.Context, deviceID uuid.UUID) ([]uint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uint
	if err := transaction.WithContext(dbc.Context()).
		Model(&types.DeviceGroup{}).
		Where("device_id = ?", deviceID).
		Order("group_id ASC").
		Pluck("group_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) GroupIDsForDevices(dbc dbctx.Context, deviceIDs []uuid.UUID) (map[uuid.UUID][]uint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[uuid.UUID][]uint, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return out, nil
	}
	var rows []types.DeviceGroup
	if err := transaction.WithContext(dbc.Context()).
		Where("device_id IN ?", deviceIDs).
		Order("group_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DeviceID] = append(out[row.DeviceID], row.GroupID)
	}
	return out, nil
}

func (r *membershipRepo) DeviceIDsForGroup(dbc dbctx.Context, groupID uint) ([]uuid.UUID, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []types.DeviceGroup
	if err := transaction.WithContext(dbc.Context()).
		Where("group_id = ?", groupID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.DeviceID)
	}
	return out, nil
}

func (r *membershipRepo) ProfileIDsForGroup(dbc dbctx.Context, groupID uint) ([]uint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uint
	if err := transaction.WithContext(dbc.Context()).
		Model(&types.GroupProfile{}).
		Where("group_id = ?", groupID).
		Order("profile_id ASC").
		Pluck("profile_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) GroupIDsForProfile(dbc dbctx.Context, profileID uint) ([]uint, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []uint
	if err := transaction.WithContext(dbc.Context()).
		Model(&types.GroupProfile{}).
		Where("profile_id = ?", profileID).
		Order("group_id ASC").
		Pluck("group_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *membershipRepo) ReplaceDeviceGroups(dbc dbctx.Context, deviceID uuid.UUID, groupIDs []uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	tx := transaction.WithContext(dbc.Context())
	if err := tx.Where("device_id = ?", deviceID).Delete(&types.DeviceGroup{}).Error; err != nil {
		return err
	}
	if len(groupIDs) == 0 {
		return nil
	}
	rows := make([]types.DeviceGroup, 0, len(groupIDs))
	for _, gid := range groupIDs {
		rows = append(rows, types.DeviceGroup{DeviceID: deviceID, GroupID: gid})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *membershipRepo) ReplaceGroupDevices(dbc dbctx.Context, groupID uint, deviceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	tx := transaction.WithContext(dbc.Context())
	if err := tx.Where("group_id = ?", groupID).Delete(&types.DeviceGroup{}).Error; err != nil {
		return err
	}
	if len(deviceIDs) == 0 {
		return nil
	}
	rows := make([]types.DeviceGroup, 0, len(deviceIDs))
	for _, did := range deviceIDs {
		rows = append(rows, types.DeviceGroup{DeviceID: did, GroupID: groupID})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *membershipRepo) ReplaceGroupProfiles(dbc dbctx.Context, groupID uint, profileIDs []uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	tx := transaction.WithContext(dbc.Context())
	if err := tx.Where("group_id = ?", groupID).Delete(&types.GroupProfile{}).Error; err != nil {
		return err
	}
	if len(profileIDs) == 0 {
		return nil
	}
	rows := make([]types.GroupProfile, 0, len(profileIDs))
	for _, pid := range profileIDs {
		rows = append(rows, types.GroupProfile{GroupID: groupID, ProfileID: pid})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *membershipRepo) ReplaceProfileGroups(dbc dbctx.Context, profileID uint, groupIDs []uint) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	tx := transaction.WithContext(dbc.Context())
	if err := tx.Where("profile_id = ?", profileID).Delete(&types.GroupProfile{}).Error; err != nil {
		return err
	}
	if len(groupIDs) == 0 {
		return nil
	}
	rows := make([]types.GroupProfile, 0, len(groupIDs))
	for _, gid := range groupIDs {
		rows = append(rows, types.GroupProfile{GroupID: gid, ProfileID: profileID})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

package mdm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
	"github.com/yungbote/fleetmdm-backend/internal/platform/dbctx"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// CommandRepo is the append-only per-device command store. Append assigns the row id,
// which is the issuance sequence: a device's commands apply in ascending id order.
type CommandRepo interface {
	Append(dbc dbctx.Context, deviceID uuid.UUID, kind types.CommandKind, payload types.CommandPayload) (*types.Command, error)
	GetByID(dbc dbctx.Context, id uint64) (*types.Command, error)
	ListByDevice(dbc dbctx.Context, deviceID uuid.UUID, statuses []types.CommandStatus, limit int) ([]*types.Command, error)
	NextQueued(dbc dbctx.Context, deviceID uuid.UUID) (*types.Command, error)
	Transition(dbc dbctx.Context, id uint64, to types.CommandStatus, errMsg string) (*types.Command, error)
}

type commandRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCommandRepo(db *gorm.DB, baseLog *logger.Logger) CommandRepo {
	return &commandRepo{
		db:  db,
		log: baseLog.With("repo", "CommandRepo"),
	}
}

func (r *commandRepo) Append(dbc dbctx.Context, deviceID uuid.UUID, kind types.CommandKind, payload types.CommandPayload) (*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if deviceID == uuid.Nil {
		return nil, fmt.Errorf("append command: missing device id: %w", mdmerrors.ErrInvalidArgument)
	}
	if err := payload.Validate(kind); err != nil {
		return nil, fmt.Errorf("append command: %v: %w", err, mdmerrors.ErrInvalidArgument)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("append command: encode payload: %w", err)
	}
	cmd := &types.Command{
		UUID:     uuid.New(),
		DeviceID: deviceID,
		Kind:     kind,
		Payload:  datatypes.JSON(raw),
		Status:   types.CommandQueued,
	}
	if err := transaction.WithContext(dbc.Context()).Create(cmd).Error; err != nil {
		return nil, translateErr(err, "append command")
	}
	return cmd, nil
}

func (r *commandRepo) GetByID(dbc dbctx.Context, id uint64) (*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Command
	if err := transaction.WithContext(dbc.Context()).
		Where("id = ?", id).
		First(&out).Error; err != nil {
		return nil, translateErr(err, fmt.Sprintf("command %d", id))
	}
	return &out, nil
}

// ListByDevice returns commands in issuance order. Empty statuses means all; limit <= 0
// means unbounded.
func (r *commandRepo) ListByDevice(dbc dbctx.Context, deviceID uuid.UUID, statuses []types.CommandStatus, limit int) ([]*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Context()).
		Where("device_id = ?", deviceID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*types.Command
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// NextQueued returns the oldest queued command for the device, or nil when none.
func (r *commandRepo) NextQueued(dbc dbctx.Context, deviceID uuid.UUID) (*types.Command, error) {
	out, err := r.ListByDevice(dbc, deviceID, []types.CommandStatus{types.CommandQueued}, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Transition moves a command forward one status. The update is guarded on the current
// status, so a concurrent writer that got there first turns this call into a conflict.
func (r *commandRepo) Transition(dbc dbctx.Context, id uint64, to types.CommandStatus, errMsg string) (*types.Command, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	cur, err := r.GetByID(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("command %d: %s -> %s: %w", id, cur.Status, to, mdmerrors.ErrConflict)
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	switch to {
	case types.CommandSent:
		updates["sent_at"] = now
	case types.CommandAcknowledged, types.CommandFailed:
		updates["finished_at"] = now
		if errMsg != "" {
			updates["error"] = errMsg
		}
	}
	res := transaction.WithContext(dbc.Context()).
		Model(&types.Command{}).
		Where("id = ? AND status = ?", id, cur.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("command %d changed concurrently: %w", id, mdmerrors.ErrConflict)
	}
	return r.GetByID(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, id)
}

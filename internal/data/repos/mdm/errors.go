package mdm

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	mdmerrors "github.com/yungbote/fleetmdm-backend/internal/pkg/errors"
)

const pgUniqueViolation = "23505"

// translateErr maps driver errors onto the package sentinels.
func translateErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, mdmerrors.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, mdmerrors.ErrConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s (%s): %w", what, pgErr.ConstraintName, mdmerrors.ErrConflict)
	}
	return err
}

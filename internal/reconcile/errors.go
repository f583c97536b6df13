package reconcile

import (
	"fmt"

	"github.com/google/uuid"

	types "github.com/yungbote/fleetmdm-backend/internal/domain"
)

// StoreWriteError is a single failed command append.
type StoreWriteError struct {
	DeviceID uuid.UUID
	Kind     types.CommandKind
	Err      error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("append %s for device %s: %v", e.Kind, e.DeviceID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// CommandPersistenceError aborts a reconciliation pass. Nothing from the pass has been
// notified; the caller rolls back and may retry the whole membership change.
type CommandPersistenceError struct {
	Op  string
	Err *StoreWriteError
}

func (e *CommandPersistenceError) Error() string {
	return fmt.Sprintf("%s: command persistence failed: %v", e.Op, e.Err)
}

func (e *CommandPersistenceError) Unwrap() error { return e.Err }

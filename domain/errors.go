package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared between the engine and its storage adapters.
var (
	// ErrConcurrencyConflict is returned by a store when a conditional
	// update was rejected because the guarded entity changed underneath it.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrEntityExists is returned by a store when an insert collided with
	// an existing row under the same key.
	ErrEntityExists = errors.New("entity already exists")

	ErrNilTask             = errors.New("nil task")
	ErrTaskNotFound        = errors.New("task not found")
	ErrApplicationNotFound = errors.New("application not found")
)

// Business-rule violations are typed so callers can map them to responses
// without matching on message text. Their messages are safe to surface
// verbatim to the actor that triggered them.

// TaskNotOpenError rejects a transition because the task is not in a state
// that admits it.
type TaskNotOpenError struct {
	TaskID string
	Status TaskStatus
}

func (e TaskNotOpenError) Error() string {
	return fmt.Sprintf("task %s is %s", e.TaskID, e.Status)
}

// SelfApplicationError rejects an author's application to their own task.
type SelfApplicationError struct {
	TaskID string
}

func (e SelfApplicationError) Error() string {
	return fmt.Sprintf("cannot apply to own task %s", e.TaskID)
}

// AlreadyAssignedError rejects an accept because the task's helper slot is
// already held by another application.
type AlreadyAssignedError struct {
	TaskID   string
	HelperID string
}

func (e AlreadyAssignedError) Error() string {
	return fmt.Sprintf("task %s is already assigned to helper %s", e.TaskID, e.HelperID)
}

// DuplicateApplicationError rejects a second application by the same helper
// on the same task.
type DuplicateApplicationError struct {
	TaskID   string
	HelperID string
}

func (e DuplicateApplicationError) Error() string {
	return fmt.Sprintf("helper %s already applied to task %s", e.HelperID, e.TaskID)
}

// InvalidApplicationStateError rejects a decision on an application that is
// no longer pending.
type InvalidApplicationStateError struct {
	TaskID   string
	HelperID string
	Status   ApplicationStatus
}

func (e InvalidApplicationStateError) Error() string {
	return fmt.Sprintf("application by %s on task %s is %s, not pending", e.HelperID, e.TaskID, e.Status)
}

// UnauthorizedActionError rejects an action the actor's role does not allow.
type UnauthorizedActionError struct {
	ActorID string
	Action  Action
}

func (e UnauthorizedActionError) Error() string {
	return fmt.Sprintf("actor %s may not %s", e.ActorID, e.Action)
}

// IntegrityError reports an invariant violation observed in stored data,
// such as two accepted applications on one task. It indicates a
// concurrency-control bug upstream and is never repaired by the engine.
type IntegrityError struct {
	TaskID string
	Detail string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation on task %s: %s", e.TaskID, e.Detail)
}

// IsBusinessError reports whether err is an expected business-rule violation
// whose message may be shown to the acting user as-is.
func IsBusinessError(err error) bool {
	switch err.(type) {
	case TaskNotOpenError, SelfApplicationError, AlreadyAssignedError,
		DuplicateApplicationError, InvalidApplicationStateError, UnauthorizedActionError:
		return true
	}
	return false
}

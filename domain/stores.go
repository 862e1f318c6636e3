package domain

import (
	"context"
	"time"
)

// TaskStore is the durable task table. A nil task with a nil error means the
// row does not exist. UpdateTask must apply the change only if the stored
// entity still carries etag, returning ErrConcurrencyConflict otherwise;
// every single-status-transition invariant in the engine rests on that.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*Task, error)
	InsertTask(ctx context.Context, t Task) error
	UpdateTask(ctx context.Context, upd TaskUpdate, etag string) error
}

// TaskUpdate carries a partial task update. Nil fields are left untouched.
type TaskUpdate struct {
	ID          string
	Status      *TaskStatus
	HelperID    *string
	Address     *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// ApplicationStore is the durable application table, keyed by
// (task id, helper id). InsertApplication returns ErrEntityExists when that
// key is already taken, which is what enforces one application per helper
// per task.
type ApplicationStore interface {
	GetApplication(ctx context.Context, taskID, helperID string) (*Application, error)
	InsertApplication(ctx context.Context, a Application) error
	UpdateApplication(ctx context.Context, upd ApplicationUpdate, etag string) error
	ListApplications(ctx context.Context, taskID string) ([]Application, error)
}

// ApplicationUpdate carries a partial application update.
type ApplicationUpdate struct {
	TaskID   string
	HelperID string
	Status   *ApplicationStatus
}

// ProfileLocationStore persists a user's saved location. A nil location with
// a nil error means the user has no saved location.
type ProfileLocationStore interface {
	GetLocation(ctx context.Context, userID string) (*Location, error)
	UpsertLocation(ctx context.Context, userID string, loc Location) error
}

// ReverseGeocoder resolves coordinates to a free-text address. Network
// collaborator; may fail or time out.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// DeviceLocator obtains a fresh device position. Implementations return
// *LocateError for permission and availability failures.
type DeviceLocator interface {
	CurrentPosition(ctx context.Context, highAccuracy bool) (Coordinates, error)
}

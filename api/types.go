package api

import (
	"context"
	"time"

	"taskmarket-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	ListOpenTasks(ctx context.Context) ([]domain.Task, error)
	EnqueueExpiry(ctx context.Context, taskID string, deadline, now time.Time) error
}

// Lifecycle is the task state machine surface exposed to handlers.
type Lifecycle interface {
	Propose(ctx context.Context, taskID, actorID, message string) (domain.Application, error)
	Accept(ctx context.Context, taskID, helperID, actorID string) (domain.Task, error)
	Reject(ctx context.Context, taskID, helperID, actorID string) (domain.Application, error)
	Start(ctx context.Context, taskID, actorID string) (domain.Task, error)
	Complete(ctx context.Context, taskID, actorID string) (domain.Task, error)
	Cancel(ctx context.Context, taskID, actorID string) (domain.Task, error)
}

// Ledger is the application query surface exposed to handlers.
type Ledger interface {
	ListFor(ctx context.Context, taskID string) ([]domain.Application, error)
	Get(ctx context.Context, taskID, helperID string) (domain.Application, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of retried submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}

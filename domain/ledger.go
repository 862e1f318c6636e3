package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Ledger tracks applications submitted against tasks. It owns the
// per-application state transitions; whether a transition is admissible for
// the parent task is the Lifecycle's concern.
type Ledger struct {
	apps  ApplicationStore
	now   func() time.Time
	newID func() string
}

func NewLedger(apps ApplicationStore) *Ledger {
	return &Ledger{apps: apps, now: time.Now, newID: uuid.NewString}
}

// Submit records a pending application. A second submission by the same
// helper on the same task fails with DuplicateApplicationError; the store's
// key conflict is what makes this race-safe.
func (l *Ledger) Submit(ctx context.Context, taskID, helperID, message string) (Application, error) {
	app := Application{
		ID:        l.newID(),
		TaskID:    taskID,
		HelperID:  helperID,
		Message:   message,
		Status:    ApplicationPending,
		CreatedAt: l.now().UTC(),
	}
	if err := l.apps.InsertApplication(ctx, app); err != nil {
		if errors.Is(err, ErrEntityExists) {
			return Application{}, DuplicateApplicationError{TaskID: taskID, HelperID: helperID}
		}
		return Application{}, err
	}
	return app, nil
}

// Get returns the application identified by (taskID, helperID), or
// ErrApplicationNotFound.
func (l *Ledger) Get(ctx context.Context, taskID, helperID string) (Application, error) {
	app, err := l.apps.GetApplication(ctx, taskID, helperID)
	if err != nil {
		return Application{}, err
	}
	if app == nil {
		return Application{}, ErrApplicationNotFound
	}
	return *app, nil
}

// ListFor returns all applications for a task ordered by submission time
// ascending, helper id breaking ties.
func (l *Ledger) ListFor(ctx context.Context, taskID string) ([]Application, error) {
	apps, err := l.apps.ListApplications(ctx, taskID)
	if err != nil {
		return nil, err
	}
	sort.Slice(apps, func(i, j int) bool {
		if !apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].CreatedAt.Before(apps[j].CreatedAt)
		}
		return apps[i].HelperID < apps[j].HelperID
	})
	return apps, nil
}

// Accept moves a pending application to accepted. Accepting an already
// accepted application is a no-op returning the current snapshot.
func (l *Ledger) Accept(ctx context.Context, taskID, helperID string) (Application, error) {
	return l.decide(ctx, taskID, helperID, ApplicationAccepted)
}

// Reject moves a pending application to rejected. Rejecting an already
// rejected application is a no-op.
func (l *Ledger) Reject(ctx context.Context, taskID, helperID string) (Application, error) {
	return l.decide(ctx, taskID, helperID, ApplicationRejected)
}

func (l *Ledger) decide(ctx context.Context, taskID, helperID string, target ApplicationStatus) (Application, error) {
	app, err := l.Get(ctx, taskID, helperID)
	if err != nil {
		return Application{}, err
	}
	for {
		if app.Status == target {
			return app, nil
		}
		if app.Status != ApplicationPending {
			return Application{}, InvalidApplicationStateError{TaskID: taskID, HelperID: helperID, Status: app.Status}
		}
		upd := ApplicationUpdate{TaskID: taskID, HelperID: helperID, Status: &target}
		err := l.apps.UpdateApplication(ctx, upd, app.ETag)
		if err == nil {
			app.Status = target
			return app, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return Application{}, err
		}
		// Lost a race against another decision; reload and re-judge.
		app, err = l.Get(ctx, taskID, helperID)
		if err != nil {
			return Application{}, err
		}
	}
}

// HasAccepted reports whether any application on the task is accepted.
// Observing more than one is a fatal data-integrity defect: it is logged and
// surfaced, never silently repaired.
func (l *Ledger) HasAccepted(ctx context.Context, taskID string) (bool, error) {
	apps, err := l.apps.ListApplications(ctx, taskID)
	if err != nil {
		return false, err
	}
	accepted := 0
	for _, a := range apps {
		if a.Status == ApplicationAccepted {
			accepted++
		}
	}
	if accepted > 1 {
		log.WithFields(log.Fields{"task": taskID, "accepted": accepted}).Error("multiple accepted applications on one task")
		return true, IntegrityError{TaskID: taskID, Detail: fmt.Sprintf("%d accepted applications", accepted)}
	}
	return accepted == 1, nil
}

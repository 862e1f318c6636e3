package domain

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// Lifecycle applies task state transitions. Every operation is total: given
// any (task, actor, action) it returns either the updated task snapshot or a
// typed business failure. Transitions that carry the single-assignment
// invariant are expressed as one conditional write guarded by the snapshot's
// concurrency token, so exactly one of two racing writers wins.
type Lifecycle struct {
	tasks  TaskStore
	ledger *Ledger
	now    func() time.Time
}

func NewLifecycle(tasks TaskStore, ledger *Ledger) *Lifecycle {
	return &Lifecycle{tasks: tasks, ledger: ledger, now: time.Now}
}

func (l *Lifecycle) load(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, ErrTaskNotFound
	}
	t, err := l.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// Propose submits actor's application to the task. Authors cannot apply to
// their own tasks. Applying is allowed while the task is open or assigned;
// an application submitted after assignment simply stays pending unless the
// author rejects it.
func (l *Lifecycle) Propose(ctx context.Context, taskID, actorID, message string) (Application, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Application{}, err
	}
	if actorID == t.AuthorID {
		return Application{}, SelfApplicationError{TaskID: t.ID}
	}
	if t.Status != TaskOpen && t.Status != TaskAssigned {
		return Application{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	return l.ledger.Submit(ctx, taskID, actorID, message)
}

// Accept assigns the task to the application's helper. Only the author may
// accept, only pending applications qualify, and at most one application per
// task ever wins: the open → assigned flip is a conditional write keyed on
// the snapshot's concurrency token, so of two racing accepts exactly one
// succeeds and the other observes AlreadyAssignedError. Re-accepting the
// winning application is a no-op.
func (l *Lifecycle) Accept(ctx context.Context, taskID, helperID, actorID string) (Task, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if actorID != t.AuthorID {
		return Task{}, UnauthorizedActionError{ActorID: actorID, Action: ActionAccept}
	}
	app, err := l.ledger.Get(ctx, taskID, helperID)
	if err != nil {
		return Task{}, err
	}

	// Idempotent re-accept of the winner.
	if app.Status == ApplicationAccepted && t.HelperID == app.HelperID && !t.Status.Terminal() {
		return *t, nil
	}

	switch t.Status {
	case TaskOpen:
	case TaskAssigned:
		if t.HelperID == app.HelperID && app.Status == ApplicationPending {
			// The task flip landed on an earlier attempt but the ledger
			// write did not. Finish it now.
			return l.finishAccept(ctx, t)
		}
		return Task{}, AlreadyAssignedError{TaskID: t.ID, HelperID: t.HelperID}
	default:
		return Task{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	if app.Status != ApplicationPending {
		return Task{}, InvalidApplicationStateError{TaskID: taskID, HelperID: helperID, Status: app.Status}
	}

	// An accepted application on a still-open task means an upstream
	// concurrency-control bug; refuse to pile on.
	if accepted, err := l.ledger.HasAccepted(ctx, taskID); err != nil {
		return Task{}, err
	} else if accepted {
		log.WithField("task", taskID).Error("open task already has an accepted application")
		return Task{}, IntegrityError{TaskID: taskID, Detail: "accepted application on open task"}
	}

	status := TaskAssigned
	upd := TaskUpdate{ID: t.ID, Status: &status, HelperID: &app.HelperID}
	if err := l.tasks.UpdateTask(ctx, upd, t.ETag); err != nil {
		if !errors.Is(err, ErrConcurrencyConflict) {
			return Task{}, err
		}
		// Lost the race. Reload to report precisely.
		cur, err := l.load(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if cur.Status == TaskAssigned && cur.HelperID == app.HelperID {
			// A concurrent accept of the same application won the flip;
			// make sure its ledger write landed too.
			return l.finishAccept(ctx, cur)
		}
		if cur.Status == TaskAssigned || cur.HelperID != "" {
			return Task{}, AlreadyAssignedError{TaskID: cur.ID, HelperID: cur.HelperID}
		}
		return Task{}, TaskNotOpenError{TaskID: cur.ID, Status: cur.Status}
	}

	t.Status = TaskAssigned
	t.HelperID = app.HelperID
	t.ETag = ""
	return l.finishAccept(ctx, t)
}

// finishAccept completes the ledger side of an assignment whose task flip
// already landed. Accepting an accepted application is a no-op, so repeating
// this after a partial earlier attempt converges instead of erroring.
func (l *Lifecycle) finishAccept(ctx context.Context, t *Task) (Task, error) {
	if _, err := l.ledger.Accept(ctx, t.ID, t.HelperID); err != nil {
		// The task flip already won; the ledger row is the follower. The
		// next accept of the same application picks this write back up.
		log.WithError(err).WithFields(log.Fields{"task": t.ID, "helper": t.HelperID}).Error("application accept after task assignment failed")
		return Task{}, err
	}
	return *t, nil
}

// Reject lets the author explicitly reject a pending application. Accepting
// one application never auto-rejects the others, so this is the only path a
// losing application takes out of pending. Allowed while the task is open or
// assigned; afterwards applications are immutable.
func (l *Lifecycle) Reject(ctx context.Context, taskID, helperID, actorID string) (Application, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Application{}, err
	}
	if actorID != t.AuthorID {
		return Application{}, UnauthorizedActionError{ActorID: actorID, Action: ActionReject}
	}
	if t.Status != TaskOpen && t.Status != TaskAssigned {
		return Application{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	return l.ledger.Reject(ctx, taskID, helperID)
}

// Start moves an assigned task into execution. Only the assigned helper may
// start.
func (l *Lifecycle) Start(ctx context.Context, taskID, actorID string) (Task, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if t.HelperID == "" || actorID != t.HelperID {
		return Task{}, UnauthorizedActionError{ActorID: actorID, Action: ActionStart}
	}
	if t.Status != TaskAssigned {
		return Task{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	status := TaskInProgress
	startedAt := l.now().UTC()
	upd := TaskUpdate{ID: t.ID, Status: &status, StartedAt: &startedAt}
	if err := l.conditionalTransition(ctx, t, upd); err != nil {
		return Task{}, err
	}
	t.Status = status
	t.StartedAt = &startedAt
	return *t, nil
}

// Complete finishes an in-progress task. Either side of the match may
// complete.
func (l *Lifecycle) Complete(ctx context.Context, taskID, actorID string) (Task, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if actorID != t.AuthorID && (t.HelperID == "" || actorID != t.HelperID) {
		return Task{}, UnauthorizedActionError{ActorID: actorID, Action: ActionComplete}
	}
	if t.Status != TaskInProgress {
		return Task{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	status := TaskCompleted
	completedAt := l.now().UTC()
	upd := TaskUpdate{ID: t.ID, Status: &status, CompletedAt: &completedAt}
	if err := l.conditionalTransition(ctx, t, upd); err != nil {
		return Task{}, err
	}
	t.Status = status
	t.CompletedAt = &completedAt
	return *t, nil
}

// Cancel aborts a not-yet-completed task. Either side of the match may
// cancel; for an open task only the author can, since no helper is matched
// yet. Existing started_at/completed_at stamps are left untouched.
func (l *Lifecycle) Cancel(ctx context.Context, taskID, actorID string) (Task, error) {
	t, err := l.load(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if actorID != t.AuthorID && (t.HelperID == "" || actorID != t.HelperID) {
		return Task{}, UnauthorizedActionError{ActorID: actorID, Action: ActionCancel}
	}
	switch t.Status {
	case TaskOpen, TaskAssigned, TaskInProgress:
	default:
		return Task{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
	}
	status := TaskCancelled
	upd := TaskUpdate{ID: t.ID, Status: &status}
	if err := l.conditionalTransition(ctx, t, upd); err != nil {
		return Task{}, err
	}
	t.Status = status
	return *t, nil
}

// Expire is the system-driven deadline transition, invoked by an external
// scheduler. A task whose deadline has not elapsed, or that has no deadline,
// is returned unchanged. Never applied to non-open tasks.
func (l *Lifecycle) Expire(ctx context.Context, taskID string, now time.Time) (Task, error) {
	for {
		t, err := l.load(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if t.Status != TaskOpen {
			return Task{}, TaskNotOpenError{TaskID: t.ID, Status: t.Status}
		}
		if t.Deadline == nil || t.Deadline.After(now) {
			return *t, nil
		}
		status := TaskExpired
		upd := TaskUpdate{ID: t.ID, Status: &status}
		err = l.tasks.UpdateTask(ctx, upd, t.ETag)
		if err == nil {
			t.Status = status
			t.ETag = ""
			return *t, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return Task{}, err
		}
		// Something else transitioned the task meanwhile; re-check the
		// precondition from a fresh snapshot.
	}
}

// conditionalTransition applies upd guarded by the snapshot's token. A
// conflict means the precondition the caller just checked no longer holds,
// so it is reported against the fresh state rather than retried.
func (l *Lifecycle) conditionalTransition(ctx context.Context, t *Task, upd TaskUpdate) error {
	err := l.tasks.UpdateTask(ctx, upd, t.ETag)
	if err == nil {
		// The write invalidated the snapshot's token.
		t.ETag = ""
		return nil
	}
	if !errors.Is(err, ErrConcurrencyConflict) {
		return err
	}
	cur, loadErr := l.load(ctx, t.ID)
	if loadErr != nil {
		return loadErr
	}
	if upd.Status != nil && cur.Status == *upd.Status {
		// A concurrent identical transition already landed; adopt it.
		*t = *cur
		return nil
	}
	return TaskNotOpenError{TaskID: cur.ID, Status: cur.Status}
}

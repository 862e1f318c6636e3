package domain

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

type fakeTaskStore struct {
	tasks map[string]Task
	seq   int

	// beforeUpdate runs ahead of each UpdateTask, letting tests interleave a
	// competing write.
	beforeUpdate func()
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]Task{}}
}

func (s *fakeTaskStore) GetTask(ctx context.Context, id string) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := t
	return &cp, nil
}

func (s *fakeTaskStore) InsertTask(ctx context.Context, t Task) error {
	if _, ok := s.tasks[t.ID]; ok {
		return ErrEntityExists
	}
	s.seq++
	t.ETag = strconv.Itoa(s.seq)
	s.tasks[t.ID] = t
	return nil
}

func (s *fakeTaskStore) UpdateTask(ctx context.Context, upd TaskUpdate, etag string) error {
	if hook := s.beforeUpdate; hook != nil {
		s.beforeUpdate = nil
		hook()
	}
	t, ok := s.tasks[upd.ID]
	if !ok {
		return ErrTaskNotFound
	}
	if t.ETag != etag {
		return ErrConcurrencyConflict
	}
	s.apply(&t, upd)
	s.seq++
	t.ETag = strconv.Itoa(s.seq)
	s.tasks[upd.ID] = t
	return nil
}

func (s *fakeTaskStore) apply(t *Task, upd TaskUpdate) {
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.HelperID != nil {
		t.HelperID = *upd.HelperID
	}
	if upd.Address != nil {
		t.Address = *upd.Address
	}
	if upd.StartedAt != nil {
		t.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		t.CompletedAt = upd.CompletedAt
	}
}

// force mutates a stored task outside the optimistic protocol, standing in
// for a concurrent writer.
func (s *fakeTaskStore) force(id string, mutate func(*Task)) {
	t := s.tasks[id]
	mutate(&t)
	s.seq++
	t.ETag = strconv.Itoa(s.seq)
	s.tasks[id] = t
}

type fakeApplicationStore struct {
	apps map[string]Application
	seq  int

	// updateErr fails the next UpdateApplication once, standing in for a
	// transient store outage.
	updateErr error
}

func newFakeApplicationStore() *fakeApplicationStore {
	return &fakeApplicationStore{apps: map[string]Application{}}
}

func appKey(taskID, helperID string) string { return taskID + "/" + helperID }

func (s *fakeApplicationStore) GetApplication(ctx context.Context, taskID, helperID string) (*Application, error) {
	a, ok := s.apps[appKey(taskID, helperID)]
	if !ok {
		return nil, nil
	}
	cp := a
	return &cp, nil
}

func (s *fakeApplicationStore) InsertApplication(ctx context.Context, a Application) error {
	key := appKey(a.TaskID, a.HelperID)
	if _, ok := s.apps[key]; ok {
		return ErrEntityExists
	}
	s.seq++
	a.ETag = strconv.Itoa(s.seq)
	s.apps[key] = a
	return nil
}

func (s *fakeApplicationStore) UpdateApplication(ctx context.Context, upd ApplicationUpdate, etag string) error {
	if err := s.updateErr; err != nil {
		s.updateErr = nil
		return err
	}
	key := appKey(upd.TaskID, upd.HelperID)
	a, ok := s.apps[key]
	if !ok {
		return ErrApplicationNotFound
	}
	if a.ETag != etag {
		return ErrConcurrencyConflict
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	s.seq++
	a.ETag = strconv.Itoa(s.seq)
	s.apps[key] = a
	return nil
}

func (s *fakeApplicationStore) ListApplications(ctx context.Context, taskID string) ([]Application, error) {
	var out []Application
	for _, a := range s.apps {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

var testTime = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

func newTestLifecycle() (*Lifecycle, *fakeTaskStore, *fakeApplicationStore) {
	tasks := newFakeTaskStore()
	apps := newFakeApplicationStore()
	ledger := NewLedger(apps)
	ledger.now = func() time.Time { return testTime }
	lc := NewLifecycle(tasks, ledger)
	lc.now = func() time.Time { return testTime }
	return lc, tasks, apps
}

func seedTask(t *testing.T, tasks *fakeTaskStore, task Task) Task {
	t.Helper()
	if task.Status == "" {
		task.Status = TaskOpen
	}
	if task.AuthorID == "" {
		task.AuthorID = "author"
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = testTime
	}
	if err := tasks.InsertTask(context.Background(), task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tasks.tasks[task.ID]
}

func TestProposeSelfApplication(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})

	_, err := lc.Propose(context.Background(), "t1", "author", "me please")
	var selfErr SelfApplicationError
	if !errors.As(err, &selfErr) {
		t.Fatalf("expected SelfApplicationError, got %v", err)
	}
}

func TestProposeOnFinishedTask(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskCompleted})

	_, err := lc.Propose(context.Background(), "t1", "helper", "")
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError, got %v", err)
	}
	if notOpen.Status != TaskCompleted {
		t.Fatalf("expected status in error, got %q", notOpen.Status)
	}
}

func TestProposeMissingTask(t *testing.T) {
	lc, _, _ := newTestLifecycle()
	if _, err := lc.Propose(context.Background(), "nope", "helper", ""); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestProposeWhileAssignedStaysPending(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskAssigned, HelperID: "winner"})

	app, err := lc.Propose(context.Background(), "t1", "late", "still interested")
	if err != nil {
		t.Fatalf("propose on assigned task: %v", err)
	}
	if app.Status != ApplicationPending {
		t.Fatalf("expected pending application, got %q", app.Status)
	}
}

func TestProposeDuplicate(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})

	if _, err := lc.Propose(context.Background(), "t1", "helper", "first"); err != nil {
		t.Fatalf("first propose: %v", err)
	}
	_, err := lc.Propose(context.Background(), "t1", "helper", "second")
	var dup DuplicateApplicationError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateApplicationError, got %v", err)
	}
}

func TestAcceptAssignsTask(t *testing.T) {
	lc, tasks, apps := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	got, err := lc.Accept(context.Background(), "t1", "helper", "author")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != TaskAssigned || got.HelperID != "helper" {
		t.Fatalf("unexpected task after accept: %+v", got)
	}
	app, _ := apps.GetApplication(context.Background(), "t1", "helper")
	if app.Status != ApplicationAccepted {
		t.Fatalf("expected accepted application, got %q", app.Status)
	}
}

func TestAcceptIdempotent(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := lc.Accept(context.Background(), "t1", "helper", "author"); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	got, err := lc.Accept(context.Background(), "t1", "helper", "author")
	if err != nil {
		t.Fatalf("repeat accept: %v", err)
	}
	if got.Status != TaskAssigned || got.HelperID != "helper" {
		t.Fatalf("unexpected task after repeat accept: %+v", got)
	}
}

func TestAcceptByNonAuthor(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	_, err := lc.Accept(context.Background(), "t1", "helper", "helper")
	var unauth UnauthorizedActionError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected UnauthorizedActionError, got %v", err)
	}
}

func TestAcceptSecondApplication(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	for _, h := range []string{"h1", "h2"} {
		if _, err := lc.Propose(context.Background(), "t1", h, ""); err != nil {
			t.Fatalf("propose %s: %v", h, err)
		}
	}
	if _, err := lc.Accept(context.Background(), "t1", "h1", "author"); err != nil {
		t.Fatalf("accept h1: %v", err)
	}

	_, err := lc.Accept(context.Background(), "t1", "h2", "author")
	var already AlreadyAssignedError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyAssignedError, got %v", err)
	}
	if already.HelperID != "h1" {
		t.Fatalf("expected winning helper in error, got %q", already.HelperID)
	}
}

func TestAcceptRaceLoserGetsAlreadyAssigned(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	for _, h := range []string{"h1", "h2"} {
		if _, err := lc.Propose(context.Background(), "t1", h, ""); err != nil {
			t.Fatalf("propose %s: %v", h, err)
		}
	}

	// A competing accept lands between this caller's read and its write.
	tasks.beforeUpdate = func() {
		tasks.force("t1", func(task *Task) {
			task.Status = TaskAssigned
			task.HelperID = "h1"
		})
	}

	_, err := lc.Accept(context.Background(), "t1", "h2", "author")
	var already AlreadyAssignedError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyAssignedError, got %v", err)
	}
	if already.HelperID != "h1" {
		t.Fatalf("expected race winner in error, got %q", already.HelperID)
	}
}

func TestAcceptRaceSameHelperAdopted(t *testing.T) {
	lc, tasks, apps := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	// A retried accept of the same application raced ahead.
	tasks.beforeUpdate = func() {
		tasks.force("t1", func(task *Task) {
			task.Status = TaskAssigned
			task.HelperID = "helper"
		})
	}

	got, err := lc.Accept(context.Background(), "t1", "helper", "author")
	if err != nil {
		t.Fatalf("accept after identical race: %v", err)
	}
	if got.Status != TaskAssigned || got.HelperID != "helper" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if app := apps.apps[appKey("t1", "helper")]; app.Status != ApplicationAccepted {
		t.Fatalf("expected adopted accept to settle the application, got %s", app.Status)
	}
}

func TestAcceptRetryAfterLedgerWriteFailure(t *testing.T) {
	lc, tasks, apps := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	// The task flips to assigned but the application write times out.
	apps.updateErr = errors.New("write timeout")
	if _, err := lc.Accept(context.Background(), "t1", "helper", "author"); err == nil {
		t.Fatal("expected first accept to surface the store error")
	}
	if task := tasks.tasks["t1"]; task.Status != TaskAssigned || task.HelperID != "helper" {
		t.Fatalf("expected task flip to have landed, got %+v", task)
	}
	if app := apps.apps[appKey("t1", "helper")]; app.Status != ApplicationPending {
		t.Fatalf("expected application left pending, got %s", app.Status)
	}

	got, err := lc.Accept(context.Background(), "t1", "helper", "author")
	if err != nil {
		t.Fatalf("retried accept: %v", err)
	}
	if got.Status != TaskAssigned || got.HelperID != "helper" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if app := apps.apps[appKey("t1", "helper")]; app.Status != ApplicationAccepted {
		t.Fatalf("expected retry to settle the application, got %s", app.Status)
	}
}

func TestTransitionClearsConcurrencyToken(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	got, err := lc.Accept(context.Background(), "t1", "helper", "author")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.ETag != "" {
		t.Fatalf("expected accept to drop the stale token, got %q", got.ETag)
	}
	got, err = lc.Start(context.Background(), "t1", "helper")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.ETag != "" {
		t.Fatalf("expected start to drop the stale token, got %q", got.ETag)
	}
}

func TestAcceptNonPendingApplication(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := lc.Reject(context.Background(), "t1", "helper", "author"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	_, err := lc.Accept(context.Background(), "t1", "helper", "author")
	var invalid InvalidApplicationStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidApplicationStateError, got %v", err)
	}
}

func TestAcceptAfterExpiry(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	deadline := testTime.Add(-time.Hour)
	seedTask(t, tasks, Task{ID: "t1", Deadline: &deadline})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := lc.Expire(context.Background(), "t1", testTime); err != nil {
		t.Fatalf("expire: %v", err)
	}

	_, err := lc.Accept(context.Background(), "t1", "helper", "author")
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError, got %v", err)
	}
	if notOpen.Status != TaskExpired {
		t.Fatalf("expected expired status in error, got %q", notOpen.Status)
	}
}

func TestRejectOnlyAuthor(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	if _, err := lc.Propose(context.Background(), "t1", "helper", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}

	_, err := lc.Reject(context.Background(), "t1", "helper", "stranger")
	var unauth UnauthorizedActionError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected UnauthorizedActionError, got %v", err)
	}
}

func TestRejectLoserAfterAssignment(t *testing.T) {
	lc, tasks, apps := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})
	for _, h := range []string{"h1", "h2"} {
		if _, err := lc.Propose(context.Background(), "t1", h, ""); err != nil {
			t.Fatalf("propose %s: %v", h, err)
		}
	}
	if _, err := lc.Accept(context.Background(), "t1", "h1", "author"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Accepting one application never auto-rejects the rest.
	loser, _ := apps.GetApplication(context.Background(), "t1", "h2")
	if loser.Status != ApplicationPending {
		t.Fatalf("expected loser to remain pending, got %q", loser.Status)
	}

	app, err := lc.Reject(context.Background(), "t1", "h2", "author")
	if err != nil {
		t.Fatalf("reject loser: %v", err)
	}
	if app.Status != ApplicationRejected {
		t.Fatalf("expected rejected, got %q", app.Status)
	}
}

func TestStartOnlyAssignedHelper(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskAssigned, HelperID: "helper"})

	if _, err := lc.Start(context.Background(), "t1", "author"); err == nil {
		t.Fatal("expected author start to fail")
	}

	got, err := lc.Start(context.Background(), "t1", "helper")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.Status != TaskInProgress {
		t.Fatalf("expected in_progress, got %q", got.Status)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(testTime) {
		t.Fatalf("expected started_at stamp, got %v", got.StartedAt)
	}
}

func TestStartRequiresAssignedStatus(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskInProgress, HelperID: "helper"})

	_, err := lc.Start(context.Background(), "t1", "helper")
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError, got %v", err)
	}
}

func TestCompleteByEitherParty(t *testing.T) {
	for _, actor := range []string{"author", "helper"} {
		t.Run(actor, func(t *testing.T) {
			lc, tasks, _ := newTestLifecycle()
			seedTask(t, tasks, Task{ID: "t1", Status: TaskInProgress, HelperID: "helper"})

			got, err := lc.Complete(context.Background(), "t1", actor)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if got.Status != TaskCompleted {
				t.Fatalf("expected completed, got %q", got.Status)
			}
			if got.CompletedAt == nil || !got.CompletedAt.Equal(testTime) {
				t.Fatalf("expected completed_at stamp, got %v", got.CompletedAt)
			}
		})
	}
}

func TestCompleteByStranger(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskInProgress, HelperID: "helper"})

	_, err := lc.Complete(context.Background(), "t1", "stranger")
	var unauth UnauthorizedActionError
	if !errors.As(err, &unauth) {
		t.Fatalf("expected UnauthorizedActionError, got %v", err)
	}
}

func TestCancelKeepsTimestamps(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	started := testTime.Add(-time.Hour)
	seedTask(t, tasks, Task{ID: "t1", Status: TaskInProgress, HelperID: "helper", StartedAt: &started})

	got, err := lc.Cancel(context.Background(), "t1", "helper")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != TaskCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	stored := tasks.tasks["t1"]
	if stored.StartedAt == nil || !stored.StartedAt.Equal(started) {
		t.Fatalf("expected started_at untouched, got %v", stored.StartedAt)
	}
}

func TestCancelTerminalTask(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1", Status: TaskCompleted, HelperID: "helper"})

	_, err := lc.Cancel(context.Background(), "t1", "author")
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError, got %v", err)
	}
}

func TestExpire(t *testing.T) {
	past := testTime.Add(-time.Minute)
	future := testTime.Add(time.Hour)
	testCases := map[string]struct {
		deadline   *time.Time
		wantStatus TaskStatus
	}{
		"past_deadline":   {deadline: &past, wantStatus: TaskExpired},
		"future_deadline": {deadline: &future, wantStatus: TaskOpen},
		"no_deadline":     {deadline: nil, wantStatus: TaskOpen},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			lc, tasks, _ := newTestLifecycle()
			seedTask(t, tasks, Task{ID: "t1", Deadline: tc.deadline})

			got, err := lc.Expire(context.Background(), "t1", testTime)
			if err != nil {
				t.Fatalf("expire: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("expected %q, got %q", tc.wantStatus, got.Status)
			}
		})
	}
}

func TestExpireNonOpenTask(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	past := testTime.Add(-time.Minute)
	seedTask(t, tasks, Task{ID: "t1", Status: TaskAssigned, HelperID: "helper", Deadline: &past})

	_, err := lc.Expire(context.Background(), "t1", testTime)
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError, got %v", err)
	}
}

func TestExpireRaceRechecksPrecondition(t *testing.T) {
	lc, tasks, _ := newTestLifecycle()
	past := testTime.Add(-time.Minute)
	seedTask(t, tasks, Task{ID: "t1", Deadline: &past})

	// An accept wins between the expiry's read and write; expiry must not
	// clobber the assignment.
	tasks.beforeUpdate = func() {
		tasks.force("t1", func(task *Task) {
			task.Status = TaskAssigned
			task.HelperID = "helper"
		})
	}

	_, err := lc.Expire(context.Background(), "t1", testTime)
	var notOpen TaskNotOpenError
	if !errors.As(err, &notOpen) {
		t.Fatalf("expected TaskNotOpenError after losing race, got %v", err)
	}
	if tasks.tasks["t1"].Status != TaskAssigned {
		t.Fatalf("expected assignment preserved, got %q", tasks.tasks["t1"].Status)
	}
}

func TestFullMatchFlow(t *testing.T) {
	lc, tasks, apps := newTestLifecycle()
	seedTask(t, tasks, Task{ID: "t1"})

	for _, h := range []string{"h1", "h2"} {
		if _, err := lc.Propose(context.Background(), "t1", h, "hi"); err != nil {
			t.Fatalf("propose %s: %v", h, err)
		}
	}
	if _, err := lc.Accept(context.Background(), "t1", "h1", "author"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A latecomer can still apply while the task is assigned.
	if _, err := lc.Propose(context.Background(), "t1", "h3", "late"); err != nil {
		t.Fatalf("late propose: %v", err)
	}
	if _, err := lc.Reject(context.Background(), "t1", "h2", "author"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := lc.Start(context.Background(), "t1", "h1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := lc.Complete(context.Background(), "t1", "author")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != TaskCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}

	winner, _ := apps.GetApplication(context.Background(), "t1", "h1")
	loser, _ := apps.GetApplication(context.Background(), "t1", "h2")
	late, _ := apps.GetApplication(context.Background(), "t1", "h3")
	if winner.Status != ApplicationAccepted || loser.Status != ApplicationRejected || late.Status != ApplicationPending {
		t.Fatalf("unexpected application states: winner=%q loser=%q late=%q", winner.Status, loser.Status, late.Status)
	}
}

package domain

import (
	"testing"
	"time"
)

func TestCanAct(t *testing.T) {
	open := &Task{ID: "t1", Status: TaskOpen, AuthorID: "author"}
	assigned := &Task{ID: "t1", Status: TaskAssigned, AuthorID: "author", HelperID: "helper"}
	inProgress := &Task{ID: "t1", Status: TaskInProgress, AuthorID: "author", HelperID: "helper"}
	completed := &Task{ID: "t1", Status: TaskCompleted, AuthorID: "author", HelperID: "helper"}
	pending := &Application{TaskID: "t1", HelperID: "helper", Status: ApplicationPending}
	accepted := &Application{TaskID: "t1", HelperID: "helper", Status: ApplicationAccepted}
	rejected := &Application{TaskID: "t1", HelperID: "helper", Status: ApplicationRejected}

	var m Matcher
	testCases := map[string]struct {
		task   *Task
		app    *Application
		actor  string
		action Action
		want   bool
	}{
		"propose_open":            {task: open, actor: "helper", action: ActionPropose, want: true},
		"propose_assigned":        {task: assigned, actor: "late", action: ActionPropose, want: true},
		"propose_own_task":        {task: open, actor: "author", action: ActionPropose},
		"propose_completed":       {task: completed, actor: "helper", action: ActionPropose},
		"accept_pending":          {task: open, app: pending, actor: "author", action: ActionAccept, want: true},
		"accept_not_author":       {task: open, app: pending, actor: "helper", action: ActionAccept},
		"accept_no_application":   {task: open, actor: "author", action: ActionAccept},
		"accept_rejected_app":     {task: open, app: rejected, actor: "author", action: ActionAccept},
		"accept_assigned_task":    {task: assigned, app: pending, actor: "author", action: ActionAccept},
		"reaccept_winner":         {task: assigned, app: accepted, actor: "author", action: ActionAccept, want: true},
		"reject_pending":          {task: open, app: pending, actor: "author", action: ActionReject, want: true},
		"reject_while_assigned":   {task: assigned, app: pending, actor: "author", action: ActionReject, want: true},
		"reject_completed_task":   {task: completed, app: pending, actor: "author", action: ActionReject},
		"reject_not_author":       {task: open, app: pending, actor: "helper", action: ActionReject},
		"start_assigned_helper":   {task: assigned, actor: "helper", action: ActionStart, want: true},
		"start_author":            {task: assigned, actor: "author", action: ActionStart},
		"start_open":              {task: open, actor: "helper", action: ActionStart},
		"complete_in_progress":    {task: inProgress, actor: "author", action: ActionComplete, want: true},
		"complete_helper":         {task: inProgress, actor: "helper", action: ActionComplete, want: true},
		"complete_stranger":       {task: inProgress, actor: "stranger", action: ActionComplete},
		"complete_assigned":       {task: assigned, actor: "author", action: ActionComplete},
		"cancel_open_author":      {task: open, actor: "author", action: ActionCancel, want: true},
		"cancel_open_stranger":    {task: open, actor: "stranger", action: ActionCancel},
		"cancel_in_progress":      {task: inProgress, actor: "helper", action: ActionCancel, want: true},
		"cancel_completed":        {task: completed, actor: "author", action: ActionCancel},
		"nil_task":                {actor: "author", action: ActionCancel},
		"empty_actor":             {task: open, action: ActionPropose},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			if got := m.CanAct(tc.task, tc.app, tc.actor, tc.action); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func nearbyFixture() ([]Task, Coordinates) {
	origin := Coordinates{Lat: 52.52, Lng: 13.405}
	base := time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "far", Status: TaskOpen, Coords: Coordinates{Lat: 53.5511, Lng: 9.9937}, CreatedAt: base},
		{ID: "near", Status: TaskOpen, Coords: Coordinates{Lat: 52.53, Lng: 13.41}, CreatedAt: base},
		{ID: "here_late", Status: TaskOpen, Coords: origin, CreatedAt: base.Add(time.Minute)},
		{ID: "here_early", Status: TaskOpen, Coords: origin, CreatedAt: base},
		{ID: "assigned", Status: TaskAssigned, Coords: origin, CreatedAt: base},
	}
	return tasks, origin
}

func collect(seq func(yield func(Task) bool)) []string {
	var ids []string
	for t := range seq {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestNearbyOpenTasksOrdering(t *testing.T) {
	tasks, origin := nearbyFixture()

	got := collect(NearbyOpenTasks(tasks, origin, 10))
	want := []string{"here_early", "here_late", "near"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNearbyOpenTasksZeroRadius(t *testing.T) {
	tasks, origin := nearbyFixture()

	got := collect(NearbyOpenTasks(tasks, origin, 0))
	want := []string{"here_early", "here_late"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNearbyOpenTasksRestartable(t *testing.T) {
	tasks, origin := nearbyFixture()
	seq := NearbyOpenTasks(tasks, origin, 10)

	first := collect(seq)
	second := collect(seq)
	if len(first) != len(second) {
		t.Fatalf("expected identical runs, got %v then %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical runs, got %v then %v", first, second)
		}
	}
}

func TestNearbyOpenTasksEarlyStop(t *testing.T) {
	tasks, origin := nearbyFixture()

	var got []string
	for task := range NearbyOpenTasks(tasks, origin, 10) {
		got = append(got, task.ID)
		break
	}
	if len(got) != 1 || got[0] != "here_early" {
		t.Fatalf("expected single closest task, got %v", got)
	}
}

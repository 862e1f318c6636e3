package domain

import (
	"iter"
	"sort"
)

// Action names a lifecycle operation for authorization checks.
type Action string

const (
	ActionPropose  Action = "propose"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Actions lists every authorizable lifecycle action.
var Actions = []Action{ActionPropose, ActionAccept, ActionReject, ActionStart, ActionComplete, ActionCancel}

// coincidentKm treats distances below a micrometre as zero, so a radius of 0
// matches exactly coincident coordinates despite float rounding.
const coincidentKm = 1e-9

// Matcher answers authorization and proximity questions for the
// presentation layer without mutating anything.
type Matcher struct{}

// CanAct mirrors the per-action preconditions of the Lifecycle as a pure
// predicate. app may be nil for actions that do not involve one; for accept
// and reject it is the application under decision.
func (Matcher) CanAct(t *Task, app *Application, actorID string, action Action) bool {
	if t == nil || actorID == "" {
		return false
	}
	switch action {
	case ActionPropose:
		return actorID != t.AuthorID && (t.Status == TaskOpen || t.Status == TaskAssigned)
	case ActionAccept:
		if app == nil || app.TaskID != t.ID || actorID != t.AuthorID {
			return false
		}
		if app.Status == ApplicationAccepted && t.HelperID == app.HelperID && !t.Status.Terminal() {
			return true
		}
		return t.Status == TaskOpen && app.Status == ApplicationPending
	case ActionReject:
		if app == nil || app.TaskID != t.ID || actorID != t.AuthorID {
			return false
		}
		return (t.Status == TaskOpen || t.Status == TaskAssigned) && app.Status == ApplicationPending
	case ActionStart:
		return t.Status == TaskAssigned && t.HelperID != "" && actorID == t.HelperID
	case ActionComplete:
		if t.Status != TaskInProgress {
			return false
		}
		return actorID == t.AuthorID || (t.HelperID != "" && actorID == t.HelperID)
	case ActionCancel:
		switch t.Status {
		case TaskOpen, TaskAssigned, TaskInProgress:
		default:
			return false
		}
		return actorID == t.AuthorID || (t.HelperID != "" && actorID == t.HelperID)
	}
	return false
}

// NearbyOpenTasks yields the open tasks within radiusKm of origin, closest
// first, earlier creation time breaking distance ties. The sequence is
// lazy and restartable: filtering and ordering run when iteration starts,
// and ranging again re-runs them over the same input.
func NearbyOpenTasks(tasks []Task, origin Coordinates, radiusKm float64) iter.Seq[Task] {
	return func(yield func(Task) bool) {
		type scored struct {
			task Task
			dist float64
		}
		matched := make([]scored, 0, len(tasks))
		for _, t := range tasks {
			if t.Status != TaskOpen {
				continue
			}
			d := DistanceKm(origin, t.Coords)
			if d > radiusKm+coincidentKm {
				continue
			}
			matched = append(matched, scored{task: t, dist: d})
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].dist != matched[j].dist {
				return matched[i].dist < matched[j].dist
			}
			return matched[i].task.CreatedAt.Before(matched[j].task.CreatedAt)
		})
		for _, m := range matched {
			if !yield(m.task) {
				return
			}
		}
	}
}

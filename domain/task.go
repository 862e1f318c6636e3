package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskExpired    TaskStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
// Terminal tasks are kept for history, never deleted.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskExpired:
		return true
	}
	return false
}

// TaskPriority orders tasks by urgency on listings.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// TaskCategory is the fixed set of marketplace categories.
type TaskCategory string

const (
	CategoryCleaning  TaskCategory = "cleaning"
	CategoryMoving    TaskCategory = "moving"
	CategoryDelivery  TaskCategory = "delivery"
	CategoryAssembly  TaskCategory = "assembly"
	CategoryGardening TaskCategory = "gardening"
	CategoryRepairs   TaskCategory = "repairs"
	CategoryPetCare   TaskCategory = "petcare"
	CategoryTutoring  TaskCategory = "tutoring"
	CategoryErrands   TaskCategory = "errands"
	CategoryOther     TaskCategory = "other"
)

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryCleaning, CategoryMoving, CategoryDelivery, CategoryAssembly,
		CategoryGardening, CategoryRepairs, CategoryPetCare, CategoryTutoring,
		CategoryErrands, CategoryOther:
		return true
	}
	return false
}

// Money is a positive amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) Validate() error {
	if !m.Amount.IsPositive() {
		return errors.New("budget amount must be positive")
	}
	if len(m.Currency) != 3 {
		return fmt.Errorf("invalid currency code %q", m.Currency)
	}
	return nil
}

// Task is a unit of work offered by an author. The helper slot is filled by
// exactly one accepted application and stays filled for the rest of the
// task's life.
type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    TaskCategory `json:"category"`
	Tags        []string     `json:"tags,omitempty"`
	Priority    TaskPriority `json:"priority"`
	Budget      Money        `json:"budget"`
	Status      TaskStatus   `json:"status"`

	Coords     Coordinates `json:"coords"`
	Address    string      `json:"address,omitempty"`
	City       string      `json:"city,omitempty"`
	PostalCode string      `json:"postalCode,omitempty"`
	Country    string      `json:"country,omitempty"`

	Deadline         *time.Time     `json:"deadline,omitempty"`
	EstimatedMinutes int            `json:"estimatedMinutes,omitempty"`
	Urgent           bool           `json:"urgent,omitempty"`
	Featured         bool           `json:"featured,omitempty"`

	AuthorID string `json:"authorId"`
	HelperID string `json:"helperId,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// ETag is the storage concurrency token of the snapshot this value was
	// read from. Empty for tasks that were never persisted.
	ETag string `json:"-"`
}

// Validate checks the fields an author must supply at creation time. The
// resolved address is deliberately not part of this: address lookup is
// best-effort and must never block creation.
func (t *Task) Validate() error {
	if t == nil {
		return ErrNilTask
	}
	if t.Title == "" {
		return errors.New("title is required")
	}
	if !t.Category.Valid() {
		return fmt.Errorf("unknown category %q", t.Category)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if err := t.Budget.Validate(); err != nil {
		return err
	}
	if err := t.Coords.Validate(); err != nil {
		return err
	}
	if t.AuthorID == "" {
		return errors.New("author id is required")
	}
	if t.EstimatedMinutes < 0 {
		return errors.New("estimated duration must not be negative")
	}
	return nil
}

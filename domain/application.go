package domain

import "time"

// ApplicationStatus is the decision state of a helper's bid.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationAccepted ApplicationStatus = "accepted"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a helper's bid on a task. An application is uniquely
// identified by its (TaskID, HelperID) pair; a helper never holds two
// applications for the same task.
type Application struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"taskId"`
	HelperID  string            `json:"helperId"`
	Message   string            `json:"message,omitempty"`
	Status    ApplicationStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`

	// ETag is the storage concurrency token of this snapshot.
	ETag string `json:"-"`
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func validTask() Task {
	return Task{
		ID:       "t1",
		Title:    "Assemble wardrobe",
		Category: CategoryAssembly,
		Priority: PriorityMedium,
		Budget:   Money{Amount: decimal.NewFromInt(45), Currency: "EUR"},
		Status:   TaskOpen,
		Coords:   Coordinates{Lat: 52.52, Lng: 13.405},
		AuthorID: "author",
	}
}

func TestTaskValidate(t *testing.T) {
	testCases := map[string]func(*Task){
		"missing_title":     func(t *Task) { t.Title = "" },
		"unknown_category":  func(t *Task) { t.Category = "plumbing" },
		"unknown_priority":  func(t *Task) { t.Priority = "asap" },
		"zero_budget":       func(t *Task) { t.Budget.Amount = decimal.Zero },
		"negative_budget":   func(t *Task) { t.Budget.Amount = decimal.NewFromInt(-5) },
		"bad_currency":      func(t *Task) { t.Budget.Currency = "EURO" },
		"latitude_range":    func(t *Task) { t.Coords.Lat = 91 },
		"longitude_range":   func(t *Task) { t.Coords.Lng = -181 },
		"missing_author":    func(t *Task) { t.AuthorID = "" },
		"negative_duration": func(t *Task) { t.EstimatedMinutes = -30 },
	}
	for name, corrupt := range testCases {
		t.Run(name, func(t *testing.T) {
			task := validTask()
			corrupt(&task)
			if err := task.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	task := validTask()
	if err := task.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	for status, want := range map[TaskStatus]bool{
		TaskOpen:       false,
		TaskAssigned:   false,
		TaskInProgress: false,
		TaskCompleted:  true,
		TaskCancelled:  true,
		TaskExpired:    true,
	} {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s: expected %v, got %v", status, want, got)
		}
	}
}

package storage

import (
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/shopspring/decimal"

	"taskmarket-api/domain"
)

// Tasks live in a single partition; arbitration correctness only needs
// entity-level conditional writes, not partition transactions.
const taskPartition = "tasks"

// profileRowKey is the single location row per user partition.
const profileRowKey = "location"

const (
	edmInt32   = "Edm.Int32"
	edmInt64   = "Edm.Int64"
	edmBoolean = "Edm.Boolean"
)

type taskEntity struct {
	aztables.Entity
	ETag                 string  `json:"odata.etag,omitempty"`
	Title                string  `json:"Title"`
	Description          string  `json:"Description,omitempty"`
	Category             string  `json:"Category"`
	Tags                 string  `json:"Tags,omitempty"`
	Priority             string  `json:"Priority"`
	BudgetAmount         string  `json:"BudgetAmount"`
	BudgetCurrency       string  `json:"BudgetCurrency"`
	Status               string  `json:"Status"`
	Lat                  float64 `json:"Lat"`
	Lng                  float64 `json:"Lng"`
	Address              string  `json:"Address,omitempty"`
	City                 string  `json:"City,omitempty"`
	PostalCode           string  `json:"PostalCode,omitempty"`
	Country              string  `json:"Country,omitempty"`
	Deadline             int64   `json:"Deadline,string"`
	DeadlineType         string  `json:"Deadline@odata.type"`
	EstimatedMinutes     int32   `json:"EstimatedMinutes"`
	EstimatedMinutesType string  `json:"EstimatedMinutes@odata.type"`
	Urgent               bool    `json:"Urgent"`
	Featured             bool    `json:"Featured"`
	AuthorID             string  `json:"AuthorID"`
	HelperID             string  `json:"HelperID,omitempty"`
	CreatedAt            int64   `json:"CreatedAt,string"`
	CreatedAtType        string  `json:"CreatedAt@odata.type"`
	StartedAt            int64   `json:"StartedAt,string"`
	StartedAtType        string  `json:"StartedAt@odata.type"`
	CompletedAt          int64   `json:"CompletedAt,string"`
	CompletedAtType      string  `json:"CompletedAt@odata.type"`
}

// taskUpdateEntity carries a partial merge; nil fields stay untouched.
type taskUpdateEntity struct {
	aztables.Entity
	Status          *string `json:"Status,omitempty"`
	HelperID        *string `json:"HelperID,omitempty"`
	Address         *string `json:"Address,omitempty"`
	StartedAt       *int64  `json:"StartedAt,omitempty,string"`
	StartedAtType   *string `json:"StartedAt@odata.type,omitempty"`
	CompletedAt     *int64  `json:"CompletedAt,omitempty,string"`
	CompletedAtType *string `json:"CompletedAt@odata.type,omitempty"`
}

type applicationEntity struct {
	aztables.Entity
	ETag          string `json:"odata.etag,omitempty"`
	ID            string `json:"ID"`
	Message       string `json:"Message,omitempty"`
	Status        string `json:"Status"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

type applicationUpdateEntity struct {
	aztables.Entity
	Status *string `json:"Status,omitempty"`
}

type locationEntity struct {
	aztables.Entity
	ETag           string  `json:"odata.etag,omitempty"`
	Lat            float64 `json:"Lat"`
	Lng            float64 `json:"Lng"`
	Address        string  `json:"Address,omitempty"`
	City           string  `json:"City,omitempty"`
	PostalCode     string  `json:"PostalCode,omitempty"`
	Country        string  `json:"Country,omitempty"`
	CapturedAt     int64   `json:"CapturedAt,string"`
	CapturedAtType string  `json:"CapturedAt@odata.type"`
}

func fromTask(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:               aztables.Entity{PartitionKey: taskPartition, RowKey: t.ID},
		Title:                t.Title,
		Description:          t.Description,
		Category:             string(t.Category),
		Tags:                 strings.Join(t.Tags, ","),
		Priority:             string(t.Priority),
		BudgetAmount:         t.Budget.Amount.String(),
		BudgetCurrency:       t.Budget.Currency,
		Status:               string(t.Status),
		Lat:                  t.Coords.Lat,
		Lng:                  t.Coords.Lng,
		Address:              t.Address,
		City:                 t.City,
		PostalCode:           t.PostalCode,
		Country:              t.Country,
		DeadlineType:         edmInt64,
		EstimatedMinutes:     int32(t.EstimatedMinutes),
		EstimatedMinutesType: edmInt32,
		Urgent:               t.Urgent,
		Featured:             t.Featured,
		AuthorID:             t.AuthorID,
		HelperID:             t.HelperID,
		CreatedAt:            t.CreatedAt.UnixMilli(),
		CreatedAtType:        edmInt64,
		StartedAtType:        edmInt64,
		CompletedAtType:      edmInt64,
	}
	if t.Deadline != nil {
		ent.Deadline = t.Deadline.UnixMilli()
	}
	if t.StartedAt != nil {
		ent.StartedAt = t.StartedAt.UnixMilli()
	}
	if t.CompletedAt != nil {
		ent.CompletedAt = t.CompletedAt.UnixMilli()
	}
	return ent
}

func toTask(ent taskEntity) (domain.Task, error) {
	amount, err := decimal.NewFromString(ent.BudgetAmount)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:               ent.RowKey,
		Title:            ent.Title,
		Description:      ent.Description,
		Category:         domain.TaskCategory(ent.Category),
		Priority:         domain.TaskPriority(ent.Priority),
		Budget:           domain.Money{Amount: amount, Currency: ent.BudgetCurrency},
		Status:           domain.TaskStatus(ent.Status),
		Coords:           domain.Coordinates{Lat: ent.Lat, Lng: ent.Lng},
		Address:          ent.Address,
		City:             ent.City,
		PostalCode:       ent.PostalCode,
		Country:          ent.Country,
		EstimatedMinutes: int(ent.EstimatedMinutes),
		Urgent:           ent.Urgent,
		Featured:         ent.Featured,
		AuthorID:         ent.AuthorID,
		HelperID:         ent.HelperID,
		CreatedAt:        time.UnixMilli(ent.CreatedAt).UTC(),
		ETag:             ent.ETag,
	}
	if ent.Tags != "" {
		t.Tags = strings.Split(ent.Tags, ",")
	}
	if ent.Deadline != 0 {
		d := time.UnixMilli(ent.Deadline).UTC()
		t.Deadline = &d
	}
	if ent.StartedAt != 0 {
		s := time.UnixMilli(ent.StartedAt).UTC()
		t.StartedAt = &s
	}
	if ent.CompletedAt != 0 {
		c := time.UnixMilli(ent.CompletedAt).UTC()
		t.CompletedAt = &c
	}
	return t, nil
}

func fromApplication(a domain.Application) applicationEntity {
	return applicationEntity{
		Entity:        aztables.Entity{PartitionKey: a.TaskID, RowKey: a.HelperID},
		ID:            a.ID,
		Message:       a.Message,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt.UnixMilli(),
		CreatedAtType: edmInt64,
	}
}

func toApplication(ent applicationEntity) domain.Application {
	return domain.Application{
		ID:        ent.ID,
		TaskID:    ent.PartitionKey,
		HelperID:  ent.RowKey,
		Message:   ent.Message,
		Status:    domain.ApplicationStatus(ent.Status),
		CreatedAt: time.UnixMilli(ent.CreatedAt).UTC(),
		ETag:      ent.ETag,
	}
}

func fromLocation(userID string, loc domain.Location) locationEntity {
	return locationEntity{
		Entity:         aztables.Entity{PartitionKey: userID, RowKey: profileRowKey},
		Lat:            loc.Coords.Lat,
		Lng:            loc.Coords.Lng,
		Address:        loc.Address,
		City:           loc.City,
		PostalCode:     loc.PostalCode,
		Country:        loc.Country,
		CapturedAt:     loc.CapturedAt.UnixMilli(),
		CapturedAtType: edmInt64,
	}
}

func toLocation(ent locationEntity) domain.Location {
	return domain.Location{
		Coords:     domain.Coordinates{Lat: ent.Lat, Lng: ent.Lng},
		Address:    ent.Address,
		City:       ent.City,
		PostalCode: ent.PostalCode,
		Country:    ent.Country,
		CapturedAt: time.UnixMilli(ent.CapturedAt).UTC(),
	}
}

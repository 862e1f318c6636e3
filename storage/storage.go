package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"taskmarket-api/domain"
)

// maxVisibilityDelay caps the visibility timeout of a deadline message; the
// queue service rejects anything above seven days, so deadlines further out
// are re-enqueued by the sweeper when they surface early.
const maxVisibilityDelay = 6 * 24 * time.Hour

// Storage provides access to the task, application and location tables plus
// the deadline-expiry queue.
type Storage struct {
	taskTable     *aztables.Client
	appTable      *aztables.Client
	locationTable *aztables.Client
	expiryQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, applicationsTable, locationsTable, expiryQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, expiryQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(tasksTable),
		appTable:      svc.NewClient(applicationsTable),
		locationTable: svc.NewClient(locationsTable),
		expiryQueue:   eq,
	}, nil
}

// GetTask retrieves a task snapshot, nil when absent.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	t, err := toTask(ent)
	if err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &t, nil
}

// InsertTask adds a new task row. A key collision yields ErrEntityExists.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(fromTask(t))
	if err != nil {
		return err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return domain.ErrEntityExists
		}
		return err
	}
	return nil
}

// UpdateTask merges upd into the stored task only if the row still carries
// etag. A mismatch yields ErrConcurrencyConflict.
func (s *Storage) UpdateTask(ctx context.Context, upd domain.TaskUpdate, etag string) error {
	ent := taskUpdateEntity{
		Entity:   aztables.Entity{PartitionKey: taskPartition, RowKey: upd.ID},
		HelperID: upd.HelperID,
		Address:  upd.Address,
	}
	if upd.Status != nil {
		st := string(*upd.Status)
		ent.Status = &st
	}
	if upd.StartedAt != nil {
		ms := upd.StartedAt.UnixMilli()
		typ := edmInt64
		ent.StartedAt = &ms
		ent.StartedAtType = &typ
	}
	if upd.CompletedAt != nil {
		ms := upd.CompletedAt.UnixMilli()
		typ := edmInt64
		ent.CompletedAt = &ms
		ent.CompletedAtType = &typ
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETag(etag)
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case 404:
				return domain.ErrTaskNotFound
			case 412:
				return domain.ErrConcurrencyConflict
			}
		}
		return err
	}
	return nil
}

// ListOpenTasks scans every open task.
func (s *Storage) ListOpenTasks(ctx context.Context) ([]domain.Task, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and Status eq '%s'", taskPartition, domain.TaskOpen)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			t, err := toTask(ent)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// GetApplication retrieves a single application, nil when absent.
func (s *Storage) GetApplication(ctx context.Context, taskID, helperID string) (*domain.Application, error) {
	resp, err := s.appTable.GetEntity(ctx, taskID, helperID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var ent applicationEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	app := toApplication(ent)
	return &app, nil
}

// InsertApplication adds an application row keyed (taskID, helperID); the
// key collision on a duplicate is what enforces one application per helper
// per task under concurrency.
func (s *Storage) InsertApplication(ctx context.Context, a domain.Application) error {
	payload, err := json.Marshal(fromApplication(a))
	if err != nil {
		return err
	}
	if _, err := s.appTable.AddEntity(ctx, payload, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 409 {
			return domain.ErrEntityExists
		}
		return err
	}
	return nil
}

// UpdateApplication merges upd guarded by etag.
func (s *Storage) UpdateApplication(ctx context.Context, upd domain.ApplicationUpdate, etag string) error {
	ent := applicationUpdateEntity{
		Entity: aztables.Entity{PartitionKey: upd.TaskID, RowKey: upd.HelperID},
	}
	if upd.Status != nil {
		st := string(*upd.Status)
		ent.Status = &st
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETag(etag)
	_, err = s.appTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case 404:
				return domain.ErrApplicationNotFound
			case 412:
				return domain.ErrConcurrencyConflict
			}
		}
		return err
	}
	return nil
}

// ListApplications returns all applications on a task, storage order.
func (s *Storage) ListApplications(ctx context.Context, taskID string) ([]domain.Application, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", taskID)
	pager := s.appTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	apps := []domain.Application{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent applicationEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			apps = append(apps, toApplication(ent))
		}
	}
	return apps, nil
}

// GetLocation reads a user's saved profile location, nil when absent.
func (s *Storage) GetLocation(ctx context.Context, userID string) (*domain.Location, error) {
	resp, err := s.locationTable.GetEntity(ctx, userID, profileRowKey, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var ent locationEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	loc := toLocation(ent)
	return &loc, nil
}

// UpsertLocation writes a user's saved profile location.
func (s *Storage) UpsertLocation(ctx context.Context, userID string, loc domain.Location) error {
	payload, err := json.Marshal(fromLocation(userID, loc))
	if err != nil {
		return err
	}
	_, err = s.locationTable.UpsertEntity(ctx, payload, nil)
	return err
}

// ExpiryMessage is a queued deadline check for one task.
type ExpiryMessage struct {
	TaskID   string `json:"taskId"`
	Deadline int64  `json:"deadline"`

	// Queue receipt, populated on dequeue.
	MessageID  string `json:"-"`
	PopReceipt string `json:"-"`
}

// EnqueueExpiry schedules a deadline check, invisible until the deadline
// elapses (capped by the service's visibility limit).
func (s *Storage) EnqueueExpiry(ctx context.Context, taskID string, deadline, now time.Time) error {
	msg := ExpiryMessage{TaskID: taskID, Deadline: deadline.UnixMilli()}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	delay := deadline.Sub(now)
	if delay < 0 {
		delay = 0
	}
	if delay > maxVisibilityDelay {
		delay = maxVisibilityDelay
	}
	visibility := int32(delay / time.Second)
	ttl := int32(-1) // deadline messages never expire on their own
	opts := &azqueue.EnqueueMessageOptions{VisibilityTimeout: &visibility, TimeToLive: &ttl}
	_, err = s.expiryQueue.EnqueueMessage(ctx, string(data), opts)
	return err
}

// DequeueExpiry retrieves a single due deadline check, nil when the queue is
// empty.
func (s *Storage) DequeueExpiry(ctx context.Context) (*ExpiryMessage, error) {
	resp, err := s.expiryQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	raw := resp.Messages[0]
	if raw.MessageText == nil || raw.MessageID == nil || raw.PopReceipt == nil {
		return nil, errors.New("malformed expiry message")
	}
	var msg ExpiryMessage
	if err := json.Unmarshal([]byte(*raw.MessageText), &msg); err != nil {
		return nil, err
	}
	msg.MessageID = *raw.MessageID
	msg.PopReceipt = *raw.PopReceipt
	return &msg, nil
}

// DeleteExpiry removes a processed deadline check from the queue.
func (s *Storage) DeleteExpiry(ctx context.Context, msg *ExpiryMessage) error {
	_, err := s.expiryQueue.DeleteMessage(ctx, msg.MessageID, msg.PopReceipt, nil)
	return err
}

package main

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"taskmarket-api/domain"
	"taskmarket-api/storage"
)

const sweepIdleDelay = time.Second

// runExpirySweeper drains the scheduled deadline checks and applies the
// expiry transition to tasks whose deadline has elapsed. Messages become
// visible roughly when the deadline does; deadlines beyond the queue's
// visibility cap come back early and are rescheduled for the remainder.
func runExpirySweeper(ctx context.Context, store *storage.Storage, lifecycle *domain.Lifecycle) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msg, err := store.DequeueExpiry(ctx)
		if err != nil {
			log.WithError(err).Error("expiry dequeue failed")
			time.Sleep(sweepIdleDelay)
			continue
		}
		if msg == nil {
			time.Sleep(sweepIdleDelay)
			continue
		}
		sweepOne(ctx, store, lifecycle, msg)
	}
}

func sweepOne(ctx context.Context, store *storage.Storage, lifecycle *domain.Lifecycle, msg *storage.ExpiryMessage) {
	now := time.Now().UTC()
	t, err := lifecycle.Expire(ctx, msg.TaskID, now)
	switch {
	case err == nil:
		if t.Status == domain.TaskOpen && t.Deadline != nil {
			// Deadline still ahead of us, so the message surfaced early off
			// the capped visibility delay. Push a fresh check for the rest.
			if err := store.EnqueueExpiry(ctx, msg.TaskID, *t.Deadline, now); err != nil {
				log.WithError(err).WithField("task", msg.TaskID).Error("failed to reschedule deadline check")
				// Leave the message to redeliver so the deadline is not lost.
				return
			}
		}
	case isSettled(err):
		// Already off the open state or gone entirely; nothing to expire.
	default:
		log.WithError(err).WithField("task", msg.TaskID).Error("expiry sweep failed")
		// Redeliver after the visibility timeout.
		return
	}
	if err := store.DeleteExpiry(ctx, msg); err != nil {
		log.WithError(err).WithField("task", msg.TaskID).Error("failed to delete expiry message")
	}
}

func isSettled(err error) bool {
	var notOpen domain.TaskNotOpenError
	return errors.As(err, &notOpen) || errors.Is(err, domain.ErrTaskNotFound)
}

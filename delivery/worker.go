package delivery

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

const (
	workerInterval = 30 * time.Second
	maxAttempts    = 8
)

// Worker drains the queued deliveries on an interval, retrying failures
// with exponential backoff and dropping items after maxAttempts.
type Worker struct {
	Service  *Service
	Interval time.Duration
}

func NewWorker(service *Service) *Worker {
	return &Worker{Service: service, Interval: workerInterval}
}

// Run blocks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				log.Printf("Delivery: worker pass failed: %v", err)
			}
		}
	}
}

// ProcessPending attempts every queued item whose retry time has passed.
func (w *Worker) ProcessPending(ctx context.Context) error {
	items, err := w.Service.Store.Query(ctx, store.Criteria{
		"@prefix": "urn:",
		"type":    resource.TypeDelivery,
	})
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, item := range items {
		retryAt, err := time.Parse(time.RFC3339, resource.GetString(item, "nextRetryAt"))
		if err == nil && retryAt.After(now) {
			continue
		}
		w.attempt(ctx, item)
	}
	return nil
}

func (w *Worker) attempt(ctx context.Context, item resource.Resource) {
	inbox := resource.GetString(item, "inbox")
	actorURI := resource.GetString(item, "actor")
	activity, _ := item["activity"].(map[string]any)
	if activity == nil || inbox == "" {
		log.Printf("Delivery: dropping malformed queue item %s", resource.ID(item))
		w.remove(ctx, item)
		return
	}
	err := w.Service.send(ctx, actorURI, inbox, activity)
	if err == nil {
		w.remove(ctx, item)
		return
	}
	attempts, _ := item["attempts"].(float64)
	attempts++
	if attempts >= maxAttempts {
		log.Printf("Delivery: giving up on %s after %d attempts", inbox, int(attempts))
		w.remove(ctx, item)
		return
	}
	backoff := time.Duration(math.Pow(2, attempts)) * time.Minute
	log.Printf("Delivery: attempt %d to %s failed, retrying in %s: %v", int(attempts), inbox, backoff, err)
	item["attempts"] = attempts
	item["nextRetryAt"] = time.Now().UTC().Add(backoff).Format(time.RFC3339)
	if err := w.Service.Store.Put(ctx, item); err != nil {
		log.Printf("Delivery: failed to update queue item %s: %v", resource.ID(item), err)
	}
}

func (w *Worker) remove(ctx context.Context, item resource.Resource) {
	if err := w.Service.Store.Remove(ctx, resource.ID(item)); err != nil {
		log.Printf("Delivery: failed to remove queue item %s: %v", resource.ID(item), err)
	}
}

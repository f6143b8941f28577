package ap

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/firmsocial/firm/resource"
)

// processOutbox normalizes a client-posted activity, persists it and its
// side effects, and hands it to delivery.
func (t *Tenant) processOutbox(ctx context.Context, r *Request, owner resource.Resource) (*Response, error) {
	activity := r.Activity
	activityType := resource.GetString(activity, "type")
	if activityType == "" {
		return nil, statusError(http.StatusBadRequest, "activity has no type")
	}
	actorURI := resource.GetString(owner, "id")
	activity["id"] = fmt.Sprintf("%s/%s-%s", actorURI, strings.ToLower(activityType), uuid.New())
	if _, ok := activity["actor"]; !ok {
		activity["actor"] = actorURI
	}
	if _, ok := activity["@context"]; !ok {
		// Mastodon rejects activities without a context.
		activity["@context"] = "https://www.w3.org/ns/activitystreams"
	}
	log.Printf("Outbox: activity_type=%s", activityType)
	if err := t.processOutboxInternal(ctx, resource.GetString(owner, "outbox"), activity); err != nil {
		return nil, err
	}
	return &Response{
		Status:   http.StatusOK,
		Text:     "Processed",
		Location: resource.ID(activity),
	}, nil
}

// processOutboxInternal persists the activity (hoisting an embedded Create
// object into its own document first), prepends it to the outbox and
// queues delivery. Server-generated activities such as Accept enter here
// directly with a preassigned id.
func (t *Tenant) processOutboxInternal(ctx context.Context, outboxURI string, activity resource.Resource) error {
	if resource.IsType(activity, "Create") {
		if object, ok := activity["object"].(map[string]any); ok {
			actorURI := resource.ID(activity["actor"])
			objectType := resource.GetString(object, "type")
			if objectType == "" {
				objectType = "object"
			}
			object["id"] = fmt.Sprintf("%s/%s/%s", actorURI, strings.ToLower(objectType), uuid.New())
			object["attributedTo"] = actorURI
			activity["object"] = object["id"]
			if err := t.Store.Put(ctx, object); err != nil {
				return err
			}
		}
	}
	if err := t.Store.Put(ctx, activity); err != nil {
		return err
	}
	activityURI, err := resource.MustID(activity)
	if err != nil {
		return err
	}
	if err := t.putCollectionItem(ctx, outboxURI, activityURI); err != nil {
		return err
	}
	return t.Delivery.Deliver(ctx, activity)
}

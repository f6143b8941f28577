package ap

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/firmsocial/firm/resource"
)

func (t *Tenant) processInbox(ctx context.Context, r *Request, owner resource.Resource) (*Response, error) {
	activity := r.Activity
	log.Printf("Inbox: box=%s activity_type=%s", r.URL, resource.GetString(activity, "type"))
	activityURI := resource.ID(activity)
	if activityURI == "" {
		return nil, statusError(http.StatusBadRequest, "activity has no id")
	}
	if err := t.Store.Put(ctx, activity); err != nil {
		return nil, err
	}
	if err := t.putCollectionItem(ctx, resource.GetString(owner, "inbox"), activityURI); err != nil {
		return nil, err
	}
	switch {
	case resource.IsType(activity, "Follow"):
		return t.processInboxFollow(ctx, r, owner, activity)
	case resource.IsType(activity, "Like"):
		return t.processInboxLike(ctx, r, activity)
	case resource.IsType(activity, "Create"):
		return t.processInboxCreate(ctx, activity)
	case resource.IsType(activity, "Undo"):
		return t.processInboxUndo(ctx, activity)
	}
	return nil, statusError(http.StatusNotImplemented, "")
}

// processInboxFollow records the follower and answers with an Accept from
// the followed actor's outbox. Auto-accept is the only follow policy.
func (t *Tenant) processInboxFollow(ctx context.Context, r *Request, owner, activity resource.Resource) (*Response, error) {
	actorURI := resource.ID(activity["actor"])
	if err := assertAuthorizedActor(r, actorURI); err != nil {
		return nil, err
	}
	ownerURI := resource.GetString(owner, "id")
	if resource.ID(activity["object"]) != ownerURI {
		return nil, statusError(http.StatusBadRequest, "mismatch between object and box owner")
	}
	if actorURI == ownerURI {
		return nil, statusError(http.StatusBadRequest, "cannot follow self")
	}
	followersURI := resource.GetString(owner, "followers")
	if followersURI == "" {
		return nil, statusError(http.StatusNotImplemented, "following not supported")
	}
	if err := t.putCollectionItem(ctx, followersURI, actorURI); err != nil {
		return nil, err
	}
	log.Printf("Inbox: sending Accept to %s", actorURI)
	accept := resource.Resource{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprintf("%s/accept/%s", ownerURI, uuid.New()),
		"type":     "Accept",
		"to":       actorURI,
		"actor":    ownerURI,
		"object":   activity,
	}
	if err := t.processOutboxInternal(ctx, resource.GetString(owner, "outbox"), accept); err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK}, nil
}

func (t *Tenant) processInboxLike(ctx context.Context, r *Request, activity resource.Resource) (*Response, error) {
	actorURI := resource.ID(activity["actor"])
	if err := assertAuthorizedActor(r, actorURI); err != nil {
		return nil, err
	}
	liked, err := t.Store.Get(ctx, resource.ID(activity["object"]))
	if err != nil {
		return nil, err
	}
	if liked == nil {
		return nil, statusError(http.StatusBadRequest, "unknown liked object")
	}
	if err := t.putCollectionItem(ctx, resource.GetString(liked, "likes"), actorURI); err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK}, nil
}

// processInboxCreate hoists an embedded object into its own document and
// re-stores the activity with a URI reference.
func (t *Tenant) processInboxCreate(ctx context.Context, activity resource.Resource) (*Response, error) {
	if object, ok := activity["object"].(map[string]any); ok {
		objectURI, err := resource.MustID(object)
		if err != nil {
			return nil, err
		}
		activity["object"] = objectURI
		if err := t.Store.Put(ctx, object); err != nil {
			return nil, err
		}
		if err := t.Store.Put(ctx, activity); err != nil {
			return nil, err
		}
	}
	return &Response{Status: http.StatusOK}, nil
}

// processInboxUndo reverses the collection mutation of an embedded Follow
// or Like. An Undo with no embedded activity succeeds without effect;
// rejecting it would only cause the peer to redeliver.
func (t *Tenant) processInboxUndo(ctx context.Context, activity resource.Resource) (*Response, error) {
	undone, ok := activity["object"].(map[string]any)
	if !ok {
		return &Response{Status: http.StatusOK, Text: "missing activity"}, nil
	}
	switch {
	case resource.IsType(undone, "Follow"):
		return t.processInboxUndoFollow(ctx, activity, undone)
	case resource.IsType(undone, "Like"):
		return t.processInboxUndoLike(ctx, activity, undone)
	}
	return nil, statusError(http.StatusNotImplemented, "")
}

func (t *Tenant) processInboxUndoFollow(ctx context.Context, activity, undone resource.Resource) (*Response, error) {
	ownerURI := resource.ID(undone["object"])
	if ownerURI == "" {
		return &Response{Status: http.StatusOK, Text: "missing activity"}, nil
	}
	owner, err := t.Store.Get(ctx, ownerURI)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, statusError(http.StatusBadRequest, "unknown box owner")
	}
	followersURI := resource.GetString(owner, "followers")
	if followersURI == "" {
		return nil, statusError(http.StatusBadRequest, "no followers collection")
	}
	if err := t.removeCollectionItem(ctx, followersURI, resource.ID(activity["actor"])); err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK}, nil
}

func (t *Tenant) processInboxUndoLike(ctx context.Context, activity, undone resource.Resource) (*Response, error) {
	liked, err := t.Store.Get(ctx, resource.ID(undone["object"]))
	if err != nil {
		return nil, err
	}
	if liked != nil {
		if likesURI := resource.GetString(liked, "likes"); likesURI != "" {
			if err := t.removeCollectionItem(ctx, likesURI, resource.ID(activity["actor"])); err != nil {
				return nil, err
			}
			return &Response{Status: http.StatusOK}, nil
		}
	}
	return nil, statusError(http.StatusBadRequest, "unable to undo like")
}

// assertAuthorizedActor requires the activity's actor to be the
// authenticated principal.
func assertAuthorizedActor(r *Request, actorURI string) error {
	if r.Principal == nil || actorURI != r.Principal.URI() {
		return statusError(http.StatusForbidden, "not authorized")
	}
	return nil
}

package auth

import (
	"context"
	"log"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// Decision is an authorization verdict. Status overrides the default HTTP
// status for a denial (e.g. 401 when authentication would have helped,
// 404 to avoid leaking existence).
type Decision struct {
	Authorized bool
	Reason     string
	Status     int
}

func allow(reason string) Decision { return Decision{Authorized: true, Reason: reason} }

func deny(reason string, status ...int) Decision {
	d := Decision{Reason: reason}
	if len(status) > 0 {
		d.Status = status[0]
	}
	return d
}

// Authorizer decides resource reads, box posts and activity side effects.
type Authorizer interface {
	GetAuthorized(ctx context.Context, principal *Principal, res resource.Resource) (Decision, error)
	PostAuthorized(ctx context.Context, principal *Principal, boxType, boxURI string) (Decision, error)
	ActivityAuthorized(ctx context.Context, principal *Principal, activity resource.Resource) (Decision, error)
}

// CoreAuthorizer implements the server's base policy for one tenant.
// Compose it with others through AuthorizerChain.
type CoreAuthorizer struct {
	Prefix string
	Store  store.Store
}

func NewCoreAuthorizer(prefix string, s store.Store) *CoreAuthorizer {
	return &CoreAuthorizer{Prefix: prefix, Store: s}
}

// GetAuthorized decides read access: public objects and actor documents are
// open, outboxes are world-readable, inboxes owner-only, everything else
// requires the principal to be a recipient, the attributed author, or the
// activity's actor.
func (a *CoreAuthorizer) GetAuthorized(ctx context.Context, principal *Principal, res resource.Resource) (Decision, error) {
	principalURI := ""
	if principal != nil {
		principalURI = principal.URI()
	}
	log.Printf("Authz: GET obj=%s principal=%s", resource.ID(res), principalURI)

	if principalURI != "" {
		blocked, err := a.isBlocked(ctx, principalURI)
		if err != nil {
			return Decision{}, err
		}
		if !blocked.Authorized {
			return blocked, nil
		}
	}

	if resource.IsPublic(res) {
		return allow("public object"), nil
	}
	if resource.IsActorObject(res) {
		return allow("allow actor access"), nil
	}

	uri := resource.ID(res)
	outboxOwner, err := a.Store.QueryOne(ctx, store.Criteria{"@prefix": a.Prefix, "outbox": uri})
	if err != nil {
		return Decision{}, err
	}
	if outboxOwner != nil {
		return allow("public outbox read is allowed"), nil
	}
	inboxOwner, err := a.Store.QueryOne(ctx, store.Criteria{"@prefix": a.Prefix, "inbox": uri})
	if err != nil {
		return Decision{}, err
	}
	if inboxOwner != nil {
		if resource.ID(inboxOwner) == principalURI && principalURI != "" {
			return allow("inbox access allowed for owner"), nil
		}
		if principalURI == "" {
			return deny("anonymous inbox read not allowed", 401), nil
		}
		return deny("inbox read allowed only for owner"), nil
	}

	if principalURI != "" && resource.IsRecipient(res, principalURI) {
		return allow("object recipient access is allowed"), nil
	}
	if principal != nil {
		if isAttributedUser(principal, res) {
			return allow("object attributed to user"), nil
		}
		if isActivityActor(principal, res) {
			return allow("activity actor is user"), nil
		}
	} else {
		return deny("authentication required", 401), nil
	}
	return deny("no authorization"), nil
}

// PostAuthorized decides box posts: any authenticated, non-blocked actor
// may post to an inbox; only the owner may post to an outbox.
func (a *CoreAuthorizer) PostAuthorized(ctx context.Context, principal *Principal, boxType, boxURI string) (Decision, error) {
	if principal == nil {
		return deny("authentication required", 401), nil
	}
	switch boxType {
	case "inbox":
		blocked, err := a.isBlocked(ctx, principal.URI())
		if err != nil {
			return Decision{}, err
		}
		if !blocked.Authorized {
			return blocked, nil
		}
		return allow("authenticated users can post to inbox"), nil
	case "outbox":
		if resource.GetString(principal.Actor, "outbox") == boxURI {
			return allow("outbox owner can post to it"), nil
		}
		return deny("only outbox owner can post to it"), nil
	}
	return deny("authentication required", 401), nil
}

// ActivityAuthorized applies per-type activity policy. Unknown types are
// retried once as an implicit Create wrapping the object.
func (a *CoreAuthorizer) ActivityAuthorized(ctx context.Context, principal *Principal, activity resource.Resource) (Decision, error) {
	switch {
	case resource.IsTypeAny(activity, "Add", "Remove"):
		return a.collectionChangeAuthorized(ctx, principal, activity)

	case resource.IsTypeAny(activity, "Announce", "Like", "Follow", "Accept", "Reject", "Create", "Block"):
		return allow("authorized"), nil

	case resource.IsType(activity, "Undo"):
		return a.undoAuthorized(ctx, principal, activity)

	case resource.IsTypeAny(activity, "Update", "Delete"):
		obj, ok := activity["object"]
		if !ok {
			return allow("missing activity object"), nil
		}
		uri, err := resource.MustID(obj)
		if err != nil {
			return Decision{}, err
		}
		stored, err := a.Store.Get(ctx, uri)
		if err != nil {
			return Decision{}, err
		}
		if stored == nil {
			return deny("object not found", 404), nil
		}
		if principal != nil && isAttributedUser(principal, stored) {
			return allow("attributed change allowed"), nil
		}

	default:
		// An object posted bare is treated as an implicit Create.
		wrapped, err := a.ActivityAuthorized(ctx, principal, resource.Resource{
			"type":   "Create",
			"object": activity,
		})
		if err != nil {
			return Decision{}, err
		}
		if wrapped.Authorized {
			return allow("implicit create is allowed"), nil
		}
	}
	return deny("not authorized"), nil
}

func (a *CoreAuthorizer) collectionChangeAuthorized(ctx context.Context, principal *Principal, activity resource.Resource) (Decision, error) {
	if _, ok := activity["object"]; !ok {
		return deny("missing activity object", 400), nil
	}
	targetRef, ok := activity["target"]
	if !ok {
		return deny("missing activity target", 400), nil
	}
	uri, err := resource.MustID(targetRef)
	if err != nil {
		return Decision{}, err
	}
	target, err := a.Store.Get(ctx, uri)
	if err != nil {
		return Decision{}, err
	}
	if principal != nil && target != nil &&
		(resource.IsPublic(target) ||
			isAttributedUser(principal, target) ||
			resource.IsActorCollection(principal.Actor, resource.ID(target))) {
		return allow("public/owned collection changes allowed"), nil
	}
	return deny("not authorized"), nil
}

// undoAuthorized is permissive where the referenced activity cannot be
// checked: an Undo of something this server never stored is a no-op later
// in the pipeline, so rejecting it here would only cause redelivery.
func (a *CoreAuthorizer) undoAuthorized(ctx context.Context, principal *Principal, activity resource.Resource) (Decision, error) {
	obj, ok := activity["object"]
	if !ok {
		return allow("missing activity"), nil
	}
	uri, err := resource.MustID(obj)
	if err != nil {
		return Decision{}, err
	}
	undone, err := a.Store.Get(ctx, uri)
	if err != nil {
		return Decision{}, err
	}
	if undone == nil || !resource.IsTypeAny(undone, "Follow", "Announce", "Like") {
		return deny("not authorized"), nil
	}
	actorRef, ok := undone["actor"]
	if !ok {
		return allow("missing actor"), nil
	}
	if principal != nil && principal.URI() == resource.ID(actorRef) {
		return allow("same origin/actor"), nil
	}
	return deny("not authorized"), nil
}

// isBlocked consults the tenant's block list for the requesting actor's
// URI and domain.
func (a *CoreAuthorizer) isBlocked(ctx context.Context, actorURI string) (Decision, error) {
	blocks, err := a.Store.QueryOne(ctx, store.Criteria{
		"@prefix":      "urn:",
		"type":         resource.TypeBlocks,
		"attributedTo": a.Prefix,
	})
	if err != nil {
		return Decision{}, err
	}
	if blocks == nil {
		return allow("not blocked"), nil
	}
	if resource.HasValue(blocks, resource.PropBlockedDomain, resource.Hostname(actorURI)) {
		return deny("blocked domain"), nil
	}
	if resource.HasValue(blocks, resource.PropBlockedActor, actorURI) {
		return deny("blocked actor"), nil
	}
	return allow("not blocked"), nil
}

// AuthorizerChain tries authorizers in order; the first allow wins, and
// the last denial is returned otherwise.
type AuthorizerChain []Authorizer

func (c AuthorizerChain) GetAuthorized(ctx context.Context, principal *Principal, res resource.Resource) (Decision, error) {
	return c.each(func(a Authorizer) (Decision, error) {
		return a.GetAuthorized(ctx, principal, res)
	})
}

func (c AuthorizerChain) PostAuthorized(ctx context.Context, principal *Principal, boxType, boxURI string) (Decision, error) {
	return c.each(func(a Authorizer) (Decision, error) {
		return a.PostAuthorized(ctx, principal, boxType, boxURI)
	})
}

func (c AuthorizerChain) ActivityAuthorized(ctx context.Context, principal *Principal, activity resource.Resource) (Decision, error) {
	return c.each(func(a Authorizer) (Decision, error) {
		return a.ActivityAuthorized(ctx, principal, activity)
	})
}

func (c AuthorizerChain) each(decide func(Authorizer) (Decision, error)) (Decision, error) {
	last := deny("no authorizers configured")
	for _, a := range c {
		decision, err := decide(a)
		if err != nil {
			return Decision{}, err
		}
		if decision.Authorized {
			return decision, nil
		}
		last = decision
	}
	return last, nil
}

func isAttributedUser(principal *Principal, res resource.Resource) bool {
	return resource.HasValue(res, "attributedTo", principal.URI())
}

// isActivityActor checks the actor field (string, object, or list), then
// falls back to attribution.
func isActivityActor(principal *Principal, res resource.Resource) bool {
	switch actors := res["actor"].(type) {
	case string:
		return actors == principal.URI()
	case map[string]any:
		return resource.ID(actors) == principal.URI()
	case []any:
		for _, actor := range actors {
			if resource.ID(actor) == principal.URI() {
				return true
			}
		}
		return false
	}
	return isAttributedUser(principal, res)
}

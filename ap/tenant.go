package ap

import (
	"context"
	"net/http"
	"sync"

	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// Tenant serves one hosted prefix: it dereferences reads, validates box
// posts and applies the tenant's authorization policy.
type Tenant struct {
	Prefix     string
	Store      store.Store
	Delivery   Deliverer
	Authorizer auth.Authorizer

	// collections guards the get-modify-put cycle on collection documents.
	collections sync.Mutex
}

func NewTenant(prefix string, s store.Store, delivery Deliverer, authorizer auth.Authorizer) *Tenant {
	return &Tenant{Prefix: prefix, Store: s, Delivery: delivery, Authorizer: authorizer}
}

func (t *Tenant) ProcessRequest(ctx context.Context, r *Request) (*Response, error) {
	switch r.Method {
	case http.MethodGet:
		return t.processGet(ctx, r)
	case http.MethodPost:
		return t.processPost(ctx, r)
	}
	return nil, statusError(http.StatusMethodNotAllowed, "")
}

func (t *Tenant) processGet(ctx context.Context, r *Request) (*Response, error) {
	res, err := t.Store.Get(ctx, r.URL)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, statusError(http.StatusNotFound, "")
	}
	decision, err := t.Authorizer.GetAuthorized(ctx, r.Principal, res)
	if err != nil {
		return nil, err
	}
	if !decision.Authorized {
		return nil, denialError(decision)
	}
	return &Response{Status: http.StatusOK, Resource: res}, nil
}

func (t *Tenant) processPost(ctx context.Context, r *Request) (*Response, error) {
	if r.Principal == nil {
		return nil, statusError(http.StatusForbidden, "")
	}
	target, err := t.Store.Get(ctx, r.URL)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, statusError(http.StatusBadRequest, "unknown target resource")
	}
	if !resource.IsType(target, "OrderedCollection") {
		return nil, statusError(http.StatusBadRequest, "invalid target resource type")
	}
	ownerURI, ok := target["attributedTo"].(string)
	if !ok || ownerURI == "" {
		return nil, statusError(http.StatusBadRequest, "no owner for box")
	}
	owner, err := t.Store.Get(ctx, ownerURI)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, statusError(http.StatusBadRequest, "unknown box owner")
	}

	var boxType string
	switch r.URL {
	case resource.GetString(owner, "inbox"):
		boxType = "inbox"
	case resource.GetString(owner, "outbox"):
		boxType = "outbox"
	default:
		return nil, statusError(http.StatusBadRequest, "unsupported box type")
	}

	decision, err := t.Authorizer.PostAuthorized(ctx, r.Principal, boxType, r.URL)
	if err != nil {
		return nil, err
	}
	if !decision.Authorized {
		return nil, denialError(decision)
	}
	decision, err = t.Authorizer.ActivityAuthorized(ctx, r.Principal, r.Activity)
	if err != nil {
		return nil, err
	}
	if !decision.Authorized {
		return nil, denialError(decision)
	}

	if boxType == "inbox" {
		return t.processInbox(ctx, r, owner)
	}
	return t.processOutbox(ctx, r, owner)
}

func denialError(decision auth.Decision) *StatusError {
	status := decision.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	return statusError(status, decision.Reason)
}

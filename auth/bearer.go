package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// BearerAuthenticator resolves opaque bearer tokens through stored
// credential documents.
type BearerAuthenticator struct {
	Store store.Store
}

func (a *BearerAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, nil
	}
	credentials, err := a.Store.QueryOne(ctx, store.Criteria{
		"@prefix":          "urn:",
		"type":             resource.TypeCredentials,
		resource.PropToken: token,
	})
	if err != nil {
		return nil, err
	}
	if credentials == nil {
		return nil, nil
	}
	actor, err := a.Store.Get(ctx, resource.GetString(credentials, "attributedTo"))
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, nil
	}
	return &Principal{Actor: actor}, nil
}

// Package auth resolves requests to identities and decides whether
// identities may read resources or post activities.
package auth

import (
	"context"
	"net/http"

	"github.com/firmsocial/firm/resource"
)

// Principal is an authenticated identity backed by its actor document.
type Principal struct {
	Actor resource.Resource
}

// URI returns the actor identifier of the principal.
func (p *Principal) URI() string {
	return resource.GetString(p.Actor, "id")
}

// AuthenticationError marks malformed credentials, as opposed to a request
// that simply carries none. It surfaces as a 400-class response.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// Authenticator inspects a request and returns the identity it proves, or
// nil when the request carries no usable credentials for this scheme.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// Chain tries each authenticator in order; the first identity wins.
type Chain []Authenticator

func (c Chain) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	for _, a := range c {
		principal, err := a.Authenticate(ctx, r)
		if err != nil {
			return nil, err
		}
		if principal != nil {
			return principal, nil
		}
	}
	return nil, nil
}

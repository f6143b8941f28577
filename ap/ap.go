// Package ap translates authenticated requests against actor boxes into
// state transitions on the resource store.
package ap

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
)

// StatusError carries the HTTP status a failed operation maps to.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%d %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
}

func statusError(code int, reason string) *StatusError {
	return &StatusError{Code: code, Reason: reason}
}

// Deliverer hands a fully-formed outbound activity to the delivery
// pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, activity resource.Resource) error
}

// Request is an ActivityPub request after authentication has run.
type Request struct {
	Method    string
	URL       string
	Principal *auth.Principal
	Activity  resource.Resource
}

// Response is the dispatch result the transport layer renders.
type Response struct {
	Status   int
	Resource resource.Resource
	Text     string
	Location string
}

// Service routes requests to tenants by the request URL's scheme+host
// prefix.
type Service struct {
	tenants map[string]*Tenant
}

func NewService(tenants ...*Tenant) *Service {
	byPrefix := make(map[string]*Tenant, len(tenants))
	for _, t := range tenants {
		byPrefix[t.Prefix] = t
	}
	return &Service{tenants: byPrefix}
}

// Tenant returns the tenant serving the prefix, or nil.
func (s *Service) Tenant(prefix string) *Tenant {
	return s.tenants[prefix]
}

func (s *Service) ProcessRequest(ctx context.Context, r *Request) (*Response, error) {
	tenant := s.Tenant(resource.Prefix(r.URL))
	if tenant == nil {
		return nil, statusError(http.StatusBadRequest, "unknown tenant")
	}
	principalURI := "none"
	if r.Principal != nil {
		principalURI = r.Principal.URI()
	}
	log.Printf("AP: %s %s principal=%s", r.Method, r.URL, principalURI)
	return tenant.ProcessRequest(ctx, r)
}

package ap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

const tenantURL = "http://t1.test"

type stubDeliverer struct {
	delivered []resource.Resource
}

func (d *stubDeliverer) Deliver(ctx context.Context, activity resource.Resource) error {
	d.delivered = append(d.delivered, activity)
	return nil
}

// newTestTenant builds a tenant with two local actors, alice and bob, each
// with empty inbox, outbox and followers collections.
func newTestTenant(t *testing.T) (*Tenant, *stubDeliverer) {
	t.Helper()
	ctx := context.Background()
	s := store.NewPrefixStore(
		[]string{tenantURL},
		map[string]store.Store{tenantURL: store.NewMemoryStore()},
		store.NewMemoryStore(), store.NewMemoryStore(),
	)
	for _, name := range []string{"alice", "bob"} {
		actorURI := tenantURL + "/users/" + name
		if err := s.Put(ctx, resource.Resource{
			"id":        actorURI,
			"type":      "Person",
			"inbox":     actorURI + "/inbox",
			"outbox":    actorURI + "/outbox",
			"followers": actorURI + "/followers",
		}); err != nil {
			t.Fatalf("Failed to store actor: %v", err)
		}
		for _, box := range []string{"inbox", "outbox", "followers"} {
			if err := s.Put(ctx, resource.Resource{
				"id":           actorURI + "/" + box,
				"type":         "OrderedCollection",
				"attributedTo": actorURI,
				"orderedItems": []any{},
			}); err != nil {
				t.Fatalf("Failed to store %s: %v", box, err)
			}
		}
	}
	deliverer := &stubDeliverer{}
	return NewTenant(tenantURL, s, deliverer, auth.NewCoreAuthorizer(tenantURL, s)), deliverer
}

func principalFor(uri string) *auth.Principal {
	return &auth.Principal{Actor: resource.Resource{
		"id":     uri,
		"type":   "Person",
		"inbox":  uri + "/inbox",
		"outbox": uri + "/outbox",
	}}
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if se.Code != code {
		t.Fatalf("Expected status %d, got %d (%s)", code, se.Code, se.Reason)
	}
}

func collectionItems(t *testing.T, tenant *Tenant, uri string) []any {
	t.Helper()
	collection, err := tenant.Store.Get(context.Background(), uri)
	if err != nil {
		t.Fatalf("Failed to read collection %s: %v", uri, err)
	}
	if collection == nil {
		t.Fatalf("Missing collection %s", uri)
	}
	items, _ := collection["orderedItems"].([]any)
	return items
}

func TestServiceUnknownTenant(t *testing.T) {
	tenant, _ := newTestTenant(t)
	service := NewService(tenant)

	_, err := service.ProcessRequest(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    "http://other.test/users/alice",
	})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestServiceRoutesToTenant(t *testing.T) {
	tenant, _ := newTestTenant(t)
	service := NewService(tenant)

	resp, err := service.ProcessRequest(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    tenantURL + "/users/alice",
	})
	if err != nil {
		t.Fatalf("ProcessRequest failed: %v", err)
	}
	if resp.Status != http.StatusOK || resp.Resource["id"] != tenantURL+"/users/alice" {
		t.Errorf("Expected actor document, got %+v", resp)
	}
}

func TestGetUnknownResource(t *testing.T) {
	tenant, _ := newTestTenant(t)
	_, err := tenant.ProcessRequest(context.Background(), &Request{
		Method: http.MethodGet,
		URL:    tenantURL + "/notes/404",
	})
	assertStatus(t, err, http.StatusNotFound)
}

func TestPostWithoutPrincipal(t *testing.T) {
	tenant, _ := newTestTenant(t)
	_, err := tenant.ProcessRequest(context.Background(), &Request{
		Method:   http.MethodPost,
		URL:      tenantURL + "/users/alice/inbox",
		Activity: resource.Resource{"type": "Follow"},
	})
	assertStatus(t, err, http.StatusForbidden)
}

func TestConcurrentCollectionInserts(t *testing.T) {
	ctx := context.Background()
	tenant, _ := newTestTenant(t)
	followersURI := tenantURL + "/users/alice/followers"

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			member := fmt.Sprintf("https://remote.test/users/u%d", n)
			if err := tenant.putCollectionItem(ctx, followersURI, member); err != nil {
				t.Errorf("putCollectionItem failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	followers := collectionItems(t, tenant, followersURI)
	if len(followers) != 100 {
		t.Errorf("Expected all 100 concurrent inserts to land, got %d", len(followers))
	}
}

func TestPostToNonBoxResource(t *testing.T) {
	tenant, _ := newTestTenant(t)
	_, err := tenant.ProcessRequest(context.Background(), &Request{
		Method:    http.MethodPost,
		URL:       tenantURL + "/users/alice",
		Principal: principalFor("https://remote.test/users/carol"),
		Activity:  resource.Resource{"type": "Follow"},
	})
	assertStatus(t, err, http.StatusBadRequest)
}

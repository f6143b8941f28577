package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/firmsocial/firm/ap"
	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

const webTenant = "http://t1.test"

type noopDeliverer struct{}

func (noopDeliverer) Deliver(ctx context.Context, activity resource.Resource) error {
	return nil
}

// newWebFixture wires a router over a single tenant with one stored actor.
func newWebFixture(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	s := store.NewPrefixStore(
		[]string{webTenant},
		map[string]store.Store{webTenant: store.NewMemoryStore()},
		store.NewMemoryStore(), store.NewMemoryStore(),
	)
	actorURI := webTenant + "/users/alice"
	s.Put(ctx, resource.Resource{
		"id":          actorURI,
		"type":        "Person",
		"inbox":       actorURI + "/inbox",
		"outbox":      actorURI + "/outbox",
		"alsoKnownAs": "acct:alice@t1.test",
	})
	s.Put(ctx, resource.Resource{
		"id":           actorURI + "/inbox",
		"type":         "OrderedCollection",
		"attributedTo": actorURI,
		"orderedItems": []any{},
	})

	tenant := ap.NewTenant(webTenant, s, noopDeliverer{}, auth.NewCoreAuthorizer(webTenant, s))
	deps := &Deps{
		Service:       ap.NewService(tenant),
		Store:         s,
		Authenticator: auth.Chain{},
		Version:       "0.1.0",
	}
	return Router(deps), s
}

func doRequest(t *testing.T, router *gin.Engine, method, url string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetActorDocument(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, "http://t1.test/users/alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, resource.ContentTypeActivityJSON) {
		t.Errorf("Expected activity content type, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), `"id":"http://t1.test/users/alice"`) {
		t.Errorf("Expected actor document, got %s", w.Body.String())
	}
}

func TestGetUnknownResourceIs404(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, "http://t1.test/notes/404", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestGetUnknownTenantIs400(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, "http://other.test/users/alice", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown tenant, got %d", w.Code)
	}
}

func TestPostWithInvalidJSON(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodPost, "http://t1.test/users/alice/inbox", "{{{")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid json, got %d", w.Code)
	}
}

func TestPostWithoutCredentialsIs403(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodPost, "http://t1.test/users/alice/inbox", `{"type":"Follow"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestUnsupportedMethodIs405(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodPut, "http://t1.test/users/alice", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestRequestURLHonorsForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://t1.test/users/alice", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := requestURL(req); got != "https://t1.test/users/alice" {
		t.Errorf("Expected forwarded scheme, got %s", got)
	}
}

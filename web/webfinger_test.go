package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/firmsocial/firm/resource"
)

func webfingerURL(resourceParam string) string {
	return "http://t1.test/.well-known/webfinger?resource=" + url.QueryEscape(resourceParam)
}

func TestWebfingerMissingResourceParam(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, "http://t1.test/.well-known/webfinger", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing param, got %d", w.Code)
	}
}

func TestWebfingerMultipleResourceParams(t *testing.T) {
	router, _ := newWebFixture(t)
	target := "http://t1.test/.well-known/webfinger?resource=acct:a@t1.test&resource=acct:b@t1.test"
	w := doRequest(t, router, http.MethodGet, target, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for multiple params, got %d", w.Code)
	}
}

func TestWebfingerInvalidResourceFormat(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, webfingerURL("nonsense"), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unparseable resource, got %d", w.Code)
	}
}

func TestWebfingerInvalidUsername(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, webfingerURL("acct:al ice@t1.test"), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid username, got %d", w.Code)
	}
}

func TestWebfingerUnknownAccountIs404(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, webfingerURL("acct:nobody@t1.test"), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestWebfingerResolvesAlias(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, webfingerURL("acct:alice@t1.test"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, resource.ContentTypeJRD) {
		t.Errorf("Expected jrd content type, got %s", ct)
	}

	var doc struct {
		Subject string `json:"subject"`
		Links   []struct {
			Rel  string `json:"rel"`
			Type string `json:"type"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("Failed to parse JRD: %v", err)
	}
	if doc.Subject != "acct:alice@t1.test" {
		t.Errorf("Expected subject to echo the query, got %s", doc.Subject)
	}
	if len(doc.Links) != 1 {
		t.Fatalf("Expected one link, got %d", len(doc.Links))
	}
	if doc.Links[0].Rel != "self" || doc.Links[0].Type != resource.ContentTypeActivityJSON {
		t.Errorf("Expected self link with activity type, got %+v", doc.Links[0])
	}
	if doc.Links[0].Href != webTenant+"/users/alice" {
		t.Errorf("Expected href to be the actor URI, got %s", doc.Links[0].Href)
	}
}

func TestWebfingerResolvesDirectURI(t *testing.T) {
	router, _ := newWebFixture(t)
	w := doRequest(t, router, http.MethodGet, webfingerURL(webTenant+"/users/alice"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"href":"http://t1.test/users/alice"`) {
		t.Errorf("Expected actor href, got %s", w.Body.String())
	}
}

package store

import (
	"context"
	"testing"

	"github.com/firmsocial/firm/resource"
)

func newTestPrefixStore() (*PrefixStore, *MemoryStore, *MemoryStore, *MemoryStore) {
	tenant := NewMemoryStore()
	remote := NewMemoryStore()
	private := NewMemoryStore()
	ps := NewPrefixStore(
		[]string{"http://t1.test"},
		map[string]Store{"http://t1.test": tenant},
		remote, private,
	)
	return ps, tenant, remote, private
}

func TestPrefixRouting(t *testing.T) {
	ctx := context.Background()
	ps, tenant, remote, private := newTestPrefixStore()

	docs := []resource.Resource{
		{"id": "http://t1.test/users/alice", "type": "Person"},
		{"id": "https://remote.test/users/bob", "type": "Person"},
		{"id": "urn:uuid:cred-1", "type": "firm:Credentials"},
	}
	for _, doc := range docs {
		if err := ps.Put(ctx, doc); err != nil {
			t.Fatalf("Put %v failed: %v", doc["id"], err)
		}
	}

	if got, _ := tenant.Get(ctx, "http://t1.test/users/alice"); got == nil {
		t.Error("Expected tenant document in tenant partition")
	}
	if got, _ := remote.Get(ctx, "https://remote.test/users/bob"); got == nil {
		t.Error("Expected remote document in remote partition")
	}
	if got, _ := private.Get(ctx, "urn:uuid:cred-1"); got == nil {
		t.Error("Expected urn document in private partition")
	}

	// Reads route the same way.
	for _, id := range []string{
		"http://t1.test/users/alice",
		"https://remote.test/users/bob",
		"urn:uuid:cred-1",
	} {
		got, err := ps.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s failed: %v", id, err)
		}
		if got == nil {
			t.Errorf("Expected to read back %s through the router", id)
		}
	}
}

func TestPrefixQueryRequiresPrefix(t *testing.T) {
	ps, _, _, _ := newTestPrefixStore()
	if _, err := ps.Query(context.Background(), Criteria{"type": "Note"}); err == nil {
		t.Error("Expected error for query without @prefix")
	}
	if _, err := ps.QueryOne(context.Background(), Criteria{"type": "Note"}); err == nil {
		t.Error("Expected error for query_one without @prefix")
	}
}

func TestPrefixQueryRoutesByPrefix(t *testing.T) {
	ctx := context.Background()
	ps, _, _, _ := newTestPrefixStore()

	ps.Put(ctx, resource.Resource{"id": "http://t1.test/notes/1", "type": "Note"})
	ps.Put(ctx, resource.Resource{"id": "https://remote.test/notes/2", "type": "Note"})
	ps.Put(ctx, resource.Resource{"id": "urn:uuid:3", "type": "Note"})

	for _, tc := range []struct {
		prefix string
		want   string
	}{
		{"http://t1.test", "http://t1.test/notes/1"},
		{"https://remote.test", "https://remote.test/notes/2"},
		{"urn:", "urn:uuid:3"},
	} {
		got, err := ps.QueryOne(ctx, Criteria{"@prefix": tc.prefix, "type": "Note"})
		if err != nil {
			t.Fatalf("QueryOne @prefix=%s failed: %v", tc.prefix, err)
		}
		if got == nil || got["id"] != tc.want {
			t.Errorf("@prefix=%s: expected %s, got %v", tc.prefix, tc.want, got)
		}
	}
}

func TestPrefixWildcardTenant(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryStore()
	ps := NewPrefixStore(
		[]string{"http://t1.test", "http://t2.test"},
		map[string]Store{"*": shared},
		NewMemoryStore(), NewMemoryStore(),
	)

	if err := ps.Put(ctx, resource.Resource{"id": "http://t2.test/users/x", "type": "Person"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if got, _ := shared.Get(ctx, "http://t2.test/users/x"); got == nil {
		t.Error("Expected wildcard partition to serve any configured tenant")
	}
}

func TestPrefixIsTenant(t *testing.T) {
	ps, _, _, _ := newTestPrefixStore()
	if !ps.IsTenant("http://t1.test") {
		t.Error("Expected configured prefix to be a tenant")
	}
	if ps.IsTenant("https://remote.test") {
		t.Error("Expected unknown prefix not to be a tenant")
	}
}

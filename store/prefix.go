package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/firmsocial/firm/resource"
)

// PrefixStore routes operations across partitions by URI prefix: urn: URIs
// go to the private partition, URIs under a configured tenant prefix to that
// tenant's partition, everything else to the remote partition. The store map
// may carry a "*" entry serving any configured tenant without a dedicated
// partition.
type PrefixStore struct {
	prefixes []string
	tenants  map[string]Store
	remote   Store
	private  Store
}

// NewPrefixStore builds the router. prefixes lists the hosted tenant
// scheme+host(+port) prefixes; tenants maps a prefix (or "*") to its
// partition.
func NewPrefixStore(prefixes []string, tenants map[string]Store, remote, private Store) *PrefixStore {
	return &PrefixStore{prefixes: prefixes, tenants: tenants, remote: remote, private: private}
}

// IsTenant reports whether the prefix belongs to a configured tenant.
func (s *PrefixStore) IsTenant(prefix string) bool {
	for _, p := range s.prefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

func (s *PrefixStore) storeForPrefix(prefix string) (Store, error) {
	if strings.HasPrefix(prefix, "urn:") {
		return s.private, nil
	}
	prefix = resource.Prefix(prefix)
	if !s.IsTenant(prefix) {
		return s.remote, nil
	}
	if store, ok := s.tenants[prefix]; ok {
		return store, nil
	}
	if store, ok := s.tenants["*"]; ok {
		return store, nil
	}
	return nil, fmt.Errorf("no store for prefix %s", prefix)
}

func (s *PrefixStore) storeForURI(uri string) (Store, error) {
	if strings.HasPrefix(uri, "urn:") {
		return s.private, nil
	}
	prefix := resource.Prefix(uri)
	if prefix == "" {
		return nil, fmt.Errorf("cannot determine prefix for uri: %s", uri)
	}
	return s.storeForPrefix(prefix)
}

// criteriaPrefix extracts and strips the synthetic @prefix routing field.
func criteriaPrefix(criteria Criteria) (string, Criteria, error) {
	prefix, ok := criteria["@prefix"].(string)
	if !ok || prefix == "" {
		return "", nil, fmt.Errorf("query criteria has no @prefix: %v", criteria)
	}
	stripped := make(Criteria, len(criteria))
	for key, value := range criteria {
		if key == "@prefix" {
			continue
		}
		stripped[key] = value
	}
	return prefix, stripped, nil
}

func (s *PrefixStore) Get(ctx context.Context, uri string) (resource.Resource, error) {
	store, err := s.storeForURI(uri)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, uri)
}

func (s *PrefixStore) IsStored(ctx context.Context, uri string) (bool, error) {
	store, err := s.storeForURI(uri)
	if err != nil {
		return false, err
	}
	return store.IsStored(ctx, uri)
}

func (s *PrefixStore) Put(ctx context.Context, res resource.Resource) error {
	id, ok := res["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("resource has no id")
	}
	store, err := s.storeForURI(id)
	if err != nil {
		return err
	}
	return store.Put(ctx, res)
}

func (s *PrefixStore) Remove(ctx context.Context, uri string) error {
	store, err := s.storeForURI(uri)
	if err != nil {
		return err
	}
	return store.Remove(ctx, uri)
}

func (s *PrefixStore) Query(ctx context.Context, criteria Criteria) ([]resource.Resource, error) {
	prefix, stripped, err := criteriaPrefix(criteria)
	if err != nil {
		return nil, err
	}
	store, err := s.storeForPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return store.Query(ctx, stripped)
}

func (s *PrefixStore) QueryOne(ctx context.Context, criteria Criteria) (resource.Resource, error) {
	prefix, stripped, err := criteriaPrefix(criteria)
	if err != nil {
		return nil, err
	}
	store, err := s.storeForPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return store.QueryOne(ctx, stripped)
}

func (s *PrefixStore) Update(ctx context.Context, uri string, updates resource.Resource) error {
	store, err := s.storeForURI(uri)
	if err != nil {
		return err
	}
	return store.Update(ctx, uri, updates)
}

func (s *PrefixStore) Upsert(ctx context.Context, criteria Criteria, updates resource.Resource) error {
	prefix, stripped, err := criteriaPrefix(criteria)
	if err != nil {
		return err
	}
	store, err := s.storeForPrefix(prefix)
	if err != nil {
		return err
	}
	return store.Upsert(ctx, stripped, updates)
}

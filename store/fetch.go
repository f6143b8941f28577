package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	"github.com/firmsocial/firm/resource"
)

// DefaultFetchTimeout bounds outbound resource fetches.
const DefaultFetchTimeout = 5 * time.Second

// failureCacheTTL is how long a failed fetch suppresses retries for the
// same URI.
const failureCacheTTL = time.Minute

// HTTPClient is the outbound HTTP surface, injectable for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchingStore decorates a PrefixStore with transparent dereferencing of
// unknown remote identifiers: a Get miss for a non-tenant http(s) URI is
// fetched from the origin with an ActivityPub Accept header, persisted into
// the remote partition and returned. Recently failed URIs are remembered so
// a burst of lookups does not hammer an unreachable origin.
type FetchingStore struct {
	*PrefixStore
	client   HTTPClient
	failures gcache.Cache
}

func NewFetchingStore(inner *PrefixStore, client HTTPClient) *FetchingStore {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &FetchingStore{
		PrefixStore: inner,
		client:      client,
		failures:    gcache.New(512).LRU().Build(),
	}
}

func (s *FetchingStore) Get(ctx context.Context, uri string) (resource.Resource, error) {
	res, err := s.PrefixStore.Get(ctx, uri)
	if err != nil || res != nil {
		return res, err
	}
	if s.IsTenant(resource.Prefix(uri)) || !resource.IsHTTPURI(uri) {
		return nil, nil
	}
	if _, err := s.failures.Get(uri); err == nil {
		return nil, nil
	}
	res, err = s.fetch(ctx, uri)
	if err != nil {
		log.Printf("Store: failed to fetch %s: %v", uri, err)
		s.failures.SetWithExpire(uri, struct{}{}, failureCacheTTL)
		return nil, nil
	}
	if err := s.PrefixStore.Put(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to cache fetched resource %s: %w", uri, err)
	}
	return res, nil
}

func (s *FetchingStore) fetch(ctx context.Context, uri string) (resource.Resource, error) {
	log.Printf("Store: fetching %s", uri)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", resource.ContentTypeActivityJSON)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("remote server returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var res resource.Resource
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if id, ok := res["id"].(string); !ok || id == "" {
		// Without an id the document cannot be stored or re-addressed.
		res["id"] = uri
	} else if resource.Prefix(id) != resource.Prefix(uri) {
		// A document claiming an id on another origin would be persisted
		// under that id, letting a hostile server overwrite local state.
		return nil, fmt.Errorf("document id %s does not match request origin %s", id, uri)
	}
	return res, nil
}

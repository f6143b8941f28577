package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firmsocial/firm/resource"
)

// Criteria selects resources by exact field match. A criteria key starting
// with "@" is routing metadata (e.g. "@prefix") and is never matched against
// documents.
type Criteria = map[string]any

// ErrMultipleMatches is returned by QueryOne when the criteria select more
// than one document.
var ErrMultipleMatches = errors.New("multiple matches for query_one")

// Store is the resource store contract. All partitions implement it, as does
// the prefix router and the fetch decorator, so stores compose.
type Store interface {
	Get(ctx context.Context, uri string) (resource.Resource, error)
	IsStored(ctx context.Context, uri string) (bool, error)
	Put(ctx context.Context, res resource.Resource) error
	Remove(ctx context.Context, uri string) error
	Query(ctx context.Context, criteria Criteria) ([]resource.Resource, error)
	QueryOne(ctx context.Context, criteria Criteria) (resource.Resource, error)
	Update(ctx context.Context, uri string, updates resource.Resource) error
	Upsert(ctx context.Context, criteria Criteria, updates resource.Resource) error
}

// IsMatch reports whether the document satisfies every criteria field:
// either doc[k] == v, or doc[k] is a list containing v. "@"-prefixed keys
// are skipped.
func IsMatch(res resource.Resource, criteria Criteria) bool {
	for key, want := range criteria {
		if strings.HasPrefix(key, "@") {
			continue
		}
		got, ok := res[key]
		if !ok {
			return false
		}
		if list, isList := got.([]any); isList {
			found := false
			for _, item := range list {
				if item == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		} else if got != want {
			return false
		}
	}
	return true
}

// queryOne implements QueryOne in terms of Query; shared by the partitions.
func queryOne(ctx context.Context, s Store, criteria Criteria) (resource.Resource, error) {
	matches, err := s.Query(ctx, criteria)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrMultipleMatches, criteria)
	}
}

// update implements Update in terms of Get and Put; shared by the
// partitions. The resource identifier is never overwritten.
func update(ctx context.Context, s Store, uri string, updates resource.Resource) error {
	res, err := s.Get(ctx, uri)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("unknown resource: %s", uri)
	}
	for key, value := range updates {
		if key == "id" {
			continue
		}
		res[key] = value
	}
	return s.Put(ctx, res)
}

// upsert implements Upsert in terms of QueryOne and Put; shared by the
// partitions. Criteria must carry an id so a created document is
// addressable.
func upsert(ctx context.Context, s Store, criteria Criteria, updates resource.Resource) error {
	if _, ok := criteria["id"]; !ok {
		return fmt.Errorf("id must be in criteria for upsert: %v", criteria)
	}
	res, err := s.QueryOne(ctx, criteria)
	if err != nil {
		return err
	}
	if res == nil {
		res = resource.Resource{}
		for key, value := range criteria {
			if strings.HasPrefix(key, "@") {
				continue
			}
			res[key] = value
		}
	}
	for key, value := range updates {
		if key == "id" {
			continue
		}
		res[key] = value
	}
	return s.Put(ctx, res)
}

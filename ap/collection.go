package ap

import (
	"context"
	"fmt"

	"github.com/firmsocial/firm/resource"
)

// itemsKey selects the member field by the collection's declared type.
func itemsKey(collection resource.Resource) string {
	if resource.IsType(collection, "OrderedCollection") {
		return "orderedItems"
	}
	return "items"
}

// putCollectionItem prepends an item URI to a stored collection. Inserting
// a URI that is already a member is a no-op. Insertions are serialized so
// concurrent handlers cannot lose members.
func (t *Tenant) putCollectionItem(ctx context.Context, collectionURI, itemURI string) error {
	t.collections.Lock()
	defer t.collections.Unlock()
	collection, err := t.Store.Get(ctx, collectionURI)
	if err != nil {
		return err
	}
	if collection == nil {
		return fmt.Errorf("unknown collection: %s", collectionURI)
	}
	key := itemsKey(collection)
	items, _ := collection[key].([]any)
	for _, item := range items {
		if item == itemURI {
			return nil
		}
	}
	collection[key] = append([]any{itemURI}, items...)
	return t.Store.Put(ctx, collection)
}

// removeCollectionItem drops an item URI from a stored collection; absent
// members are ignored.
func (t *Tenant) removeCollectionItem(ctx context.Context, collectionURI, itemURI string) error {
	t.collections.Lock()
	defer t.collections.Unlock()
	collection, err := t.Store.Get(ctx, collectionURI)
	if err != nil {
		return err
	}
	if collection == nil {
		return fmt.Errorf("unknown collection: %s", collectionURI)
	}
	key := itemsKey(collection)
	if items, ok := collection[key].([]any); ok {
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if item != itemURI {
				kept = append(kept, item)
			}
		}
		collection[key] = kept
	}
	return t.Store.Put(ctx, collection)
}

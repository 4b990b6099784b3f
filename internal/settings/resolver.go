package settings

import (
	"context"

	"listbridge/internal/types"
)

// Resolver answers "which mailing-list group does this product feed". A
// product with no row in the mapping table resolves to types.GroupNone, the
// same value an operator stores to unmap a product explicitly, so callers
// only ever need one skip check.
type Resolver struct {
	store MappingStore
}

// NewResolver creates a mapping resolver backed by the given store.
func NewResolver(store MappingStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the group ID mapped to productID, or types.GroupNone when
// the product is unmapped. Store failures propagate so the caller can decide
// whether a delivery is retryable.
func (r *Resolver) Resolve(ctx context.Context, productID string) (string, error) {
	mappings, err := r.store.GetMappings(ctx)
	if err != nil {
		return "", err
	}
	groupID, ok := mappings[productID]
	if !ok || groupID == "" {
		return types.GroupNone, nil
	}
	return groupID, nil
}

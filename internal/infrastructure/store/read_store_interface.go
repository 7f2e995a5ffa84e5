package store

// ReadStoreInterface defines the interface for read model storage.
// Read models are owned by the saga event handlers; the command pipeline
// never writes them.
type ReadStoreInterface interface {
	// Set stores a read model
	Set(collection, id string, data any)

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool)

	// GetAll retrieves all items in a collection
	GetAll(collection string) []any

	// GetFiltered retrieves items in a collection matching the predicate
	GetFiltered(collection string, match func(any) bool) []any

	// Delete removes a read model
	Delete(collection, id string)

	// Update modifies a read model using an update function
	Update(collection, id string, updateFn func(current any) any) bool
}

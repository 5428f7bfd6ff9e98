package store

// ReadStoreInterface defines the interface for read model stores
type ReadStoreInterface interface {
	Set(collection, id string, data any)
	Get(collection, id string) (any, bool, error)
	GetAll(collection string) ([]any, error)
	Delete(collection, id string)
	Update(collection, id string, updateFn func(current any) any) bool
}

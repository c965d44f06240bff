package dbProviders

import (
	"fmt"

	"github.com/grcorsair/flagship/internal/providers/dbProviders/mem_provider"
	"github.com/grcorsair/flagship/internal/providers/dbProviders/mongo_provider"
)

const (
	ModeMemory    = "memory"
	ModePersisted = "persisted"
)

/*
NewStreamRegistry selects a registry backend by mode flag. ModePersisted
requires a live store handle; constructing without one fails fast with
ErrConfiguration rather than deferring the failure to the first operation.
*/
func NewStreamRegistry(mode string, store *mongo_provider.MongoProvider) (StreamRegistry, error) {
	switch mode {
	case ModeMemory:
		return mem_provider.Open(), nil
	case ModePersisted:
		if store == nil {
			return nil, fmt.Errorf("%w: persisted registry requires a store handle", ErrConfiguration)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown registry mode %q", ErrConfiguration, mode)
	}
}

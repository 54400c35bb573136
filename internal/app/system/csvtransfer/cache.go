package csvtransfer

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratatrack/internal/domain/models"
)

// Cache is the key/value cache whose other keys travel with an export.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Keys(ctx context.Context) ([]string, error)
}

// CollectOthers returns every cache entry except the reserved ones.
func CollectOthers(ctx context.Context, cache Cache) (map[string]string, error) {
	keys, err := cache.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if models.Reserved(k) {
			continue
		}
		v, ok, err := cache.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", k, err)
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// RestoreOthers writes each entry back into the cache. Reserved keys are
// never overwritten this way.
func RestoreOthers(ctx context.Context, cache Cache, others map[string]string) error {
	for k, v := range others {
		if models.Reserved(k) {
			continue
		}
		if err := cache.Set(ctx, k, v); err != nil {
			return fmt.Errorf("set %q: %w", k, err)
		}
	}
	return nil
}

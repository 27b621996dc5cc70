package cart

import (
	"fmt"

	"github.com/casadeele/storefront/pkg/config"
	"github.com/casadeele/storefront/pkg/db"
	"github.com/casadeele/storefront/pkg/redis"
)

// NewSlotStore picks the slot backend named by CASADEELE_CART_STORAGE. The
// redis and db clients may be nil when that backend is not selected.
func NewSlotStore(cfg config.CartConfig, redisClient *redis.Client, dbClient *db.Client) (SlotStore, error) {
	switch cfg.Storage {
	case config.CartStorageMemory, "":
		return NewMemorySlots(cfg.SlotKey, cfg.TTL), nil
	case config.CartStorageFile:
		return NewFileSlots(cfg.FileDir, cfg.SlotKey)
	case config.CartStorageRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("cart storage %q requires redis", cfg.Storage)
		}
		return NewRedisSlots(redisClient, cfg.SlotKey, cfg.TTL), nil
	case config.CartStorageSQL:
		if dbClient == nil {
			return nil, fmt.Errorf("cart storage %q requires a database", cfg.Storage)
		}
		return NewSQLSlots(dbClient.DB(), cfg.SlotKey, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cart storage %q", cfg.Storage)
	}
}

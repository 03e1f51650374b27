package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/psn/internal/domain/models"
	"github.com/turtacn/psn/internal/domain/service"
	"github.com/turtacn/psn/pkg/errors"
	"github.com/turtacn/psn/pkg/logger"
)

const domainKeyPrefix = "psn:domain:"

// DomainCache keeps resolved domains in Redis so that several service
// instances share one view of the configuration.
type DomainCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    logger.Logger
}

// NewDomainCache creates a DomainConfigCache on client. A non-positive ttl keeps entries until deleted.
func NewDomainCache(client redis.UniversalClient, ttl time.Duration, log logger.Logger) service.DomainConfigCache {
	return &DomainCache{client: client, ttl: ttl, log: log.WithComponent("DomainCache")}
}

func domainKey(name string) string {
	return fmt.Sprintf("%s%s", domainKeyPrefix, name)
}

// Get returns the cached domain or (nil, nil) on a miss.
func (c *DomainCache) Get(ctx context.Context, name string) (*models.Domain, error) {
	val, err := c.client.Get(ctx, domainKey(name)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		c.log.Warn(ctx, "Domain cache read failed", logger.String("domain", name), logger.Error(err))
		return nil, errors.ErrInternal("domain cache read failed").WithCause(err)
	}

	// Salt is excluded from JSON, so it travels in a wrapper.
	var entry cachedDomain
	if err := json.Unmarshal(val, &entry); err != nil {
		c.log.Warn(ctx, "Dropping undecodable domain cache entry", logger.String("domain", name))
		_ = c.client.Del(ctx, domainKey(name)).Err()
		return nil, nil
	}
	entry.Domain.Salt = entry.Salt
	return entry.Domain, nil
}

// Set stores domain under its name.
func (c *DomainCache) Set(ctx context.Context, domain *models.Domain) error {
	data, err := json.Marshal(cachedDomain{Domain: domain, Salt: domain.Salt})
	if err != nil {
		return errors.ErrInternal("domain cache encode failed").WithCause(err)
	}
	ttl := c.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, domainKey(domain.Name), data, ttl).Err(); err != nil {
		c.log.Warn(ctx, "Domain cache write failed", logger.String("domain", domain.Name), logger.Error(err))
		return errors.ErrInternal("domain cache write failed").WithCause(err)
	}
	return nil
}

// Delete drops the entries of names.
func (c *DomainCache) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	// One DEL per key: cluster nodes reject multi-key commands across slots.
	pipe := c.client.Pipeline()
	for _, n := range names {
		pipe.Del(ctx, domainKey(n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn(ctx, "Domain cache delete failed", logger.Int("count", len(names)), logger.Error(err))
		return errors.ErrInternal("domain cache delete failed").WithCause(err)
	}
	return nil
}

type cachedDomain struct {
	Domain *models.Domain `json:"domain"`
	Salt   string         `json:"salt"`
}

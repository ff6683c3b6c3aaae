package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/rewind/pkg/domain"
	"github.com/aretw0/rewind/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a checkout lasts without being refreshed.
const DefaultTTL = 5 * time.Minute

var _ ports.CheckoutService = (*Checkout)(nil)

// Acquires the lease when free, refreshes it when already ours.
var acquireScript = backend.NewScript(`
	local holder = redis.call("get", KEYS[1])
	if not holder then
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	end
	if holder == ARGV[1] then
		redis.call("pexpire", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// Deletes the lease only if we still hold it.
var releaseScript = backend.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Checkout implements ports.CheckoutService with expiring Redis leases, so several editor
// processes can share one document.
type Checkout struct {
	client *backend.Client
	owner  string
	prefix string
	ttl    time.Duration
}

// Option configures the Checkout.
type Option func(*Checkout)

// WithTTL sets the lease duration.
func WithTTL(ttl time.Duration) Option {
	return func(c *Checkout) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix for leases.
func WithPrefix(prefix string) Option {
	return func(c *Checkout) {
		c.prefix = prefix
	}
}

// New creates a checkout service for owner connected to address.
func New(address, owner string, opts ...Option) *Checkout {
	return NewFromClient(backend.NewClient(&backend.Options{Addr: address}), owner, opts...)
}

// NewFromClient creates a checkout service for owner from an existing client.
func NewFromClient(client *backend.Client, owner string, opts ...Option) *Checkout {
	c := &Checkout{
		client: client,
		owner:  owner,
		prefix: "rewind:checkout:",
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Checkout) key(document string) string {
	return c.prefix + document
}

// Checkout acquires or refreshes the owner's lease on document.
func (c *Checkout) Checkout(ctx context.Context, document string) error {
	ok, err := acquireScript.Run(ctx, c.client, []string{c.key(document)}, c.owner, c.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis error acquiring checkout: %w", err)
	}
	if ok != 1 {
		return fmt.Errorf("%w: %s", domain.ErrCheckoutDenied, document)
	}
	return nil
}

// Release gives the lease back if the owner still holds it.
func (c *Checkout) Release(ctx context.Context, document string) error {
	if err := releaseScript.Run(ctx, c.client, []string{c.key(document)}, c.owner).Err(); err != nil {
		return fmt.Errorf("redis error releasing checkout: %w", err)
	}
	return nil
}

// Holder returns the current lease owner of document, or "" when it is free.
func (c *Checkout) Holder(ctx context.Context, document string) (string, error) {
	owner, err := c.client.Get(ctx, c.key(document)).Result()
	if errors.Is(err, backend.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis error reading checkout: %w", err)
	}
	return owner, nil
}

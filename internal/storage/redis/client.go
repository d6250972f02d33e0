package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// unreadKeyPrefix namespaces counters: unread:{owner}:{convoID}.
const unreadKeyPrefix = "unread:"

// Client keeps unread counters in Redis. INCR is atomic on the server, so
// concurrent senders never lose increments. Counters have no TTL: they live
// until the reader resets them.
type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Raw exposes the underlying client for features that need Redis commands
// beyond the unread contract (push subscriptions).
func (c *Client) Raw() *redis.Client {
	return c.cli
}

func unreadKey(owner, convoID string) string {
	return unreadKeyPrefix + owner + ":" + convoID
}

func (c *Client) Incr(ctx context.Context, owner, convoID string) error {
	return c.cli.Incr(ctx, unreadKey(owner, convoID)).Err()
}

// Reset deletes the counter and reports whether one existed. A missing key
// already reads as zero, so DEL is equivalent to setting it to 0.
func (c *Client) Reset(ctx context.Context, owner, convoID string) (bool, error) {
	n, err := c.cli.Del(ctx, unreadKey(owner, convoID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Client) Get(ctx context.Context, owner, convoID string) (int, error) {
	n, err := c.cli.Get(ctx, unreadKey(owner, convoID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

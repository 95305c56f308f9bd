package realtime

import (
	"context"
	"time"

	"golang.org/x/net/websocket"

	"github.com/girderhq/girder/pkg/observability"
)

// ResolveFunc fetches the caller's current permission tokens for a
// tenant, typically by calling the resolve endpoint.
type ResolveFunc func(ctx context.Context, tenantID int64) ([]string, error)

// Client maintains a session against the realtime endpoint for one
// user following one tenant. It re-resolves permissions on every
// rbac_updated signal and, because signals may have been missed while
// disconnected, unconditionally on every (re)connect.
type Client struct {
	url      string
	origin   string
	userID   int64
	tenantID int64
	resolve  ResolveFunc
	cache    *PermissionCache
	interval time.Duration
	logger   *observability.Logger
}

// NewClient creates a client. interval is the fixed retry delay
// between connection attempts; cache and logger may be nil.
func NewClient(url, origin string, userID, tenantID int64, resolve ResolveFunc, cache *PermissionCache, interval time.Duration, logger *observability.Logger) *Client {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Client{
		url:      url,
		origin:   origin,
		userID:   userID,
		tenantID: tenantID,
		resolve:  resolve,
		cache:    cache,
		interval: interval,
		logger:   logger,
	}
}

// Run connects and serves until ctx is cancelled, reconnecting after
// every failure with a fixed delay.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && c.logger != nil {
			c.logger.WithError(err).Debug("realtime session ended, will reconnect")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, err := websocket.Dial(c.url, "", c.origin)
	if err != nil {
		return err
	}
	defer conn.Close()

	// The server only signals changes; anything that happened while
	// disconnected is invisible, so start every session from a fresh
	// resolve.
	c.refresh(ctx)

	if err := websocket.JSON.Send(conn, Message{Type: TypeJoinTenant, TenantID: c.tenantID}); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg Message
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return err
		}
		if msg.Type == TypeRBACUpdated {
			c.refresh(ctx)
		}
	}
}

func (c *Client) refresh(ctx context.Context) {
	if c.cache != nil {
		c.cache.Invalidate(c.userID, c.tenantID)
	}
	if c.resolve == nil {
		return
	}
	tokens, err := c.resolve(ctx, c.tenantID)
	if err != nil {
		if c.logger != nil {
			c.logger.WithError(err).Warn("failed to re-resolve permissions")
		}
		return
	}
	if c.cache != nil {
		c.cache.Put(c.userID, c.tenantID, tokens)
	}
}

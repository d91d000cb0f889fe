package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsstream "github.com/sourcegraph/jsonrpc2/websocket"
	"go.uber.org/zap"

	"github.com/tejassgg/teamlabs-calls/internal/config"
)

// ErrNotConnected is returned by Send while no signaling connection is up.
// The reconnect loop keeps dialing in the background.
var ErrNotConnected = errors.New("signaling connection not established")

// Client is the websocket signaling transport. Events ride as JSON-RPC
// notifications over a gorilla websocket; a lost connection is redialed with
// exponential backoff until Close.
type Client struct {
	cfg    config.SignalingConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *jsonrpc2.Conn
	subs   map[string]map[int]chan Event
	nextID int
	closed bool
}

// NewClient creates a disconnected client; Connect establishes the link.
func NewClient(cfg config.SignalingConfig, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:    cfg,
		logger: logger.Named("signaling"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]map[int]chan Event),
	}
}

// Connect dials the signaling server, retrying with exponential backoff
// until ctx expires, then keeps the connection alive in the background.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("signaling client closed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("signaling connected", zap.String("url", c.cfg.URL))
	go c.maintain(conn)
	return nil
}

// Send transmits an event as a notification named after the event.
func (c *Client) Send(ctx context.Context, ev Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Notify(ctx, ev.Name, ev); err != nil {
		return fmt.Errorf("send %s: %w", ev.Name, err)
	}
	return nil
}

// Subscribe registers a consumer for one conversation's inbound events.
func (c *Client) Subscribe(conversationID string) (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	if c.subs[conversationID] == nil {
		c.subs[conversationID] = make(map[int]chan Event)
	}
	c.subs[conversationID][id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.subs[conversationID]; ok {
			if sub, ok := set[id]; ok {
				delete(set, id)
				close(sub)
			}
		}
	}
	return ch, cancel
}

// Close stops the reconnect loop, drops the connection and closes all
// subscription channels.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	for _, set := range c.subs {
		for id, ch := range set {
			delete(set, id)
			close(ch)
		}
	}
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*jsonrpc2.Conn, error) {
	var conn *jsonrpc2.Conn
	operation := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()

		ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
		if err != nil {
			c.logger.Warn("signaling dial failed", zap.String("url", c.cfg.URL), zap.Error(err))
			return err
		}
		conn = jsonrpc2.NewConn(
			c.ctx,
			wsstream.NewObjectStream(ws),
			jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(c.handle)),
		)
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// maintain redials whenever the connection drops, until Close.
func (c *Client) maintain(conn *jsonrpc2.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-conn.DisconnectNotify():
		}

		c.mu.Lock()
		closed := c.closed
		c.conn = nil
		c.mu.Unlock()
		if closed {
			return
		}

		c.logger.Warn("signaling connection lost, reconnecting")
		next, err := c.dial(c.ctx)
		if err != nil {
			c.logger.Error("signaling reconnect abandoned", zap.Error(err))
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = next.Close()
			return
		}
		c.conn = next
		c.mu.Unlock()

		c.logger.Info("signaling reconnected", zap.String("url", c.cfg.URL))
		conn = next
	}
}

// handle decodes an inbound notification and fans it out to the matching
// conversation's subscribers. Unknown methods are ignored.
func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	if !strings.HasPrefix(req.Method, "call.") || req.Params == nil {
		return nil, nil
	}

	var ev Event
	if err := json.Unmarshal(*req.Params, &ev); err != nil {
		c.logger.Warn("malformed signaling payload",
			zap.String("method", req.Method), zap.Error(err))
		return nil, nil
	}
	ev.Name = req.Method

	if ev.ConversationID == "" {
		c.logger.Warn("signaling event without conversation id",
			zap.String("method", req.Method))
		return nil, nil
	}

	c.mu.Lock()
	for _, ch := range c.subs[ev.ConversationID] {
		select {
		case ch <- ev:
		default:
			c.logger.Warn("dropping signaling event for slow subscriber",
				zap.String("method", ev.Name))
		}
	}
	c.mu.Unlock()
	return nil, nil
}

// Package transport is the bidirectional named-event channel: a websocket
// client exchanging {"event": name, "data": {...}} text frames with the
// authority. It owns connect/reconnect/backoff; the session only sees
// lifecycle hooks and decoded events.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"balance-scale-client/pkg/protocol"
)

var ErrNotConnected = errors.New("transport: not connected")
var ErrSendBufferFull = errors.New("transport: send buffer full")

// Handler receives lifecycle transitions and decoded authority events.
// Calls are made from the transport's read loop, one at a time, in
// delivery order.
type Handler interface {
	HandleEvent(ev protocol.ServerEvent)
	HandleConnected(socketID string)
	HandleDisconnected(reason string)
	HandleConnectError(err error)
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Options struct {
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	SendBufferSize int
}

func (o *Options) fillDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 15 * time.Second
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = 64
	}
}

// Client dials the authority and keeps redialing until its context ends.
type Client struct {
	url     string
	opts    Options
	handler Handler
	log     *zap.Logger

	mu   sync.Mutex
	send chan []byte // nil while disconnected
}

func New(url string, log *zap.Logger, opts Options) *Client {
	opts.fillDefaults()
	return &Client{url: url, opts: opts, log: log}
}

// SetHandler must be called before Run.
func (c *Client) SetHandler(h Handler) { c.handler = h }

// Emit marshals one named event and queues it for the current connection.
// It fails fast while disconnected: the engine re-emits what matters on
// the next connected transition.
func (c *Client) Emit(event string, payload any) error {
	f := frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		f.Data = data
	}
	msg, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}
	select {
	case send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Run dials, serves one connection to completion, and redials with capped
// exponential backoff until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.opts.MinBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("dial failed", zap.String("url", c.url), zap.Error(err))
			c.handler.HandleConnectError(err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.opts.MaxBackoff)
			continue
		}

		backoff = c.opts.MinBackoff
		reason := c.serve(ctx, conn)
		c.handler.HandleDisconnected(reason)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	return conn, err
}

// serve pumps one connection until it drops and returns the close reason.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) string {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := make(chan []byte, c.opts.SendBufferSize)
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
	}()

	// Writer goroutine; the read loop below owns the connection lifetime.
	go func() {
		for {
			select {
			case msg := <-send:
				writeCtx, cancelWrite := context.WithTimeout(connCtx, c.opts.WriteTimeout)
				err := conn.Write(writeCtx, websocket.MessageText, msg)
				cancelWrite()
				if err != nil {
					c.log.Warn("write failed", zap.Error(err))
					cancel()
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(connCtx)
		if err != nil {
			return closeReason(err)
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.log.Warn("bad frame", zap.Error(err))
		return
	}

	if f.Event == protocol.InConnected {
		// The sid assigned here is valid only for this connection; host
		// identity is recomputed against it downstream.
		sid := gjson.GetBytes(f.Data, "sid").String()
		c.handler.HandleConnected(sid)
		return
	}

	ev, err := protocol.Decode(f.Event, f.Data)
	if err != nil {
		c.log.Debug("ignoring event", zap.String("event", f.Event), zap.Error(err))
		return
	}
	c.handler.HandleEvent(ev)
}

func closeReason(err error) string {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure:
		return "closed"
	case websocket.StatusGoingAway:
		return "server going away"
	case -1:
		if errors.Is(err, context.Canceled) {
			return "shutting down"
		}
		return "transport error"
	default:
		return websocket.CloseStatus(err).String()
	}
}

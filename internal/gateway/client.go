// Package gateway owns the persistent websocket session to mirai-api-http.
//
// One Client exists per process. Concurrent sends are multiplexed over the
// single socket and matched to replies purely by correlation id (syncId);
// the pending registry is the only shared mutable state. On socket close,
// every outstanding send resolves with a synthetic failure and the connect
// loop retries after a fixed delay, indefinitely.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yige233/mirai-webhook/internal/config"
	"github.com/yige233/mirai-webhook/internal/eventbus"
	"github.com/yige233/mirai-webhook/internal/message"
	logx "github.com/yige233/mirai-webhook/pkg/logx"
)

// ReconnectDelay is the fixed pause between connection attempts. The very
// first attempt at process start is immediate.
const ReconnectDelay = 10 * time.Second

const (
	commandSendFriend = "sendFriendMessage"
	commandSendGroup  = "sendGroupMessage"
)

var errIncompleteConfig = errors.New("gateway: addr, key and qq are all required")

// Result is the gateway's answer to one command. Code 0 means success; any
// other code carries a reason in Msg. Synthetic local failures use code 500.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func closedResult() Result {
	return Result{Code: 500, Msg: "websocket connection closed"}
}

// Sender is the outbound surface the dispatcher depends on; it exists so
// tests can substitute a fake gateway.
type Sender interface {
	SendMessage(ctx context.Context, kind string, target int64, chain message.Chain) Result
}

type Client struct {
	endpoint string
	log      logx.Logger
	bus      eventbus.Bus

	mu      sync.Mutex
	conn    *websocket.Conn
	session string
	pending map[string]chan Result

	// writeMu serializes writes; gorilla/websocket allows one writer at a time.
	writeMu sync.Mutex
}

// New validates the connection config and builds the client. Missing
// configuration is a construction error: the process must not start without
// a complete gateway triple.
func New(cfg config.GatewayConfig, log logx.Logger, bus eventbus.Bus) (*Client, error) {
	if cfg.Addr == "" || cfg.VerifyKey == "" || cfg.QQ == 0 {
		return nil, errIncompleteConfig
	}
	u, err := url.Parse(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("gateway: bad addr %q: %w", cfg.Addr, err)
	}
	u = u.JoinPath("message")
	q := u.Query()
	q.Set("verifyKey", cfg.VerifyKey)
	q.Set("qq", fmt.Sprint(cfg.QQ))
	u.RawQuery = q.Encode()

	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		endpoint: u.String(),
		log:      log,
		bus:      bus,
		pending:  map[string]chan Result{},
	}, nil
}

// Endpoint returns the resolved websocket URL (used by status output).
func (c *Client) Endpoint() string { return c.endpoint }

// Ready reports whether a session handshake has completed on the live socket.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.session != ""
}

// Run drives the connect/reconnect loop until ctx is canceled. The first
// attempt is immediate; each subsequent attempt waits ReconnectDelay.
// Reconnection is unconditional and indefinite.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for {
		if !first {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(ReconnectDelay):
			}
		}
		first = false

		c.log.Info("connecting to bot gateway")
		if err := c.runConn(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("gateway connection lost", logx.Err(err))
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runConn dials once and services the connection until it closes.
func (c *Client) runConn(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info("connected to bot gateway")

	// Close the socket gracefully when ctx is canceled so pending sends
	// resolve before process exit.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			_ = conn.Close()
		case <-done:
		}
	}()

	readErr := c.readLoop(conn)
	c.teardown(conn)
	return readErr
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn("malformed gateway frame", logx.Err(err))
			continue
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f inboundFrame) {
	id := string(f.SyncID)

	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if ok {
		ch <- parseResult(f.Data)
		return
	}

	// Unsolicited frame: the session-open handshake, or a pushed event we
	// don't consume.
	var open struct {
		Code    *int   `json:"code"`
		Session string `json:"session"`
		Msg     string `json:"msg"`
	}
	// A late reply for an abandoned send also lands here; only a frame that
	// carries a session (or a nonzero handshake code) is the handshake.
	if err := json.Unmarshal(f.Data, &open); err == nil && open.Code != nil && (open.Session != "" || *open.Code != 0) {
		if *open.Code != 0 {
			c.log.Warn("gateway refused session", logx.Int("code", *open.Code), logx.String("msg", open.Msg))
			return
		}
		c.mu.Lock()
		c.session = open.Session
		c.mu.Unlock()
		c.log.Info("gateway session established")
		if c.bus != nil {
			c.bus.Publish(eventbus.Event{Type: eventbus.GatewayUp})
		}
		return
	}
	c.log.Debug("unsolicited gateway frame", logx.String("syncId", id))
}

// teardown invalidates the session and resolves every outstanding send with
// the synthetic close failure, so stale correlation ids can never be matched
// by a later connection.
func (c *Client) teardown(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	hadSession := c.session != ""
	c.session = ""
	waiters := c.pending
	c.pending = map[string]chan Result{}
	c.mu.Unlock()

	for _, ch := range waiters {
		ch <- closedResult()
	}
	if hadSession && c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.GatewayDown})
	}
}

// Send issues one command and blocks until the matching reply arrives, the
// socket closes, or ctx is canceled. While disconnected it fails immediately
// with the synthetic close result; nothing is queued across reconnects.
func (c *Client) Send(ctx context.Context, command string, content any) Result {
	id := uuid.NewString()
	ch := make(chan Result, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return closedResult()
	}
	c.pending[id] = ch
	c.mu.Unlock()

	payload, err := json.Marshal(outboundFrame{SyncID: id, Command: command, Content: content})
	if err != nil {
		c.unregister(id)
		return Result{Code: 500, Msg: "encode command: " + err.Error()}
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.unregister(id)
		return Result{Code: 500, Msg: "websocket write failed: " + err.Error()}
	}

	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		c.unregister(id)
		return Result{Code: 500, Msg: "request canceled: " + ctx.Err().Error()}
	}
}

// SendMessage delivers a message chain to one friend or group. Validation
// failures resolve locally without touching the socket.
func (c *Client) SendMessage(ctx context.Context, kind string, target int64, chain message.Chain) Result {
	var command string
	switch kind {
	case config.TargetFriend:
		command = commandSendFriend
	case config.TargetGroup:
		command = commandSendGroup
	default:
		return Result{Code: 500, Msg: "unknown message type: " + kind}
	}
	if target <= 0 {
		return Result{Code: 500, Msg: fmt.Sprintf("invalid message target (a QQ or group number is required): %d", target)}
	}
	if len(chain) == 0 {
		return Result{Code: 500, Msg: "empty message chain"}
	}

	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	return c.Send(ctx, command, struct {
		SessionKey   string        `json:"sessionKey"`
		Target       int64         `json:"target"`
		MessageChain message.Chain `json:"messageChain"`
	}{session, target, chain})
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func parseResult(data json.RawMessage) Result {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{Code: 500, Msg: "malformed gateway reply: " + err.Error()}
	}
	return r
}

// ---- wire frames ----

type outboundFrame struct {
	SyncID  string `json:"syncId"`
	Command string `json:"command"`
	Content any    `json:"content"`
}

type inboundFrame struct {
	SyncID syncID          `json:"syncId"`
	Data   json.RawMessage `json:"data"`
}

// syncID tolerates both string and numeric syncId values on the wire.
type syncID string

func (s *syncID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = syncID(str)
		return nil
	}
	*s = syncID(string(b))
	return nil
}

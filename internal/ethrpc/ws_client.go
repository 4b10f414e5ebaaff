package ethrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSConfig configures WSClient.
type WSConfig struct {
	ReconnectDelay    time.Duration // first wait after a dropped session
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration // silence longer than this ends the session
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration
	HeadBuffer        int
}

// DefaultWSConfig returns the settings used when NewWSClient gets nil.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  15 * time.Second,
		HeadBuffer:        64,
	}
}

var (
	errClientClosed      = errors.New("websocket client closed")
	errAlreadySubscribed = errors.New("already subscribed to newHeads")
)

// WSClient follows newHeads over a JSON-RPC WebSocket. Each connection is
// a session: dial, eth_subscribe, then read notifications until the
// connection fails. A failed session is replaced with capped exponential
// backoff and the head channel stays open across sessions.
type WSClient struct {
	endpoint string
	config   WSConfig
	log      zerolog.Logger
	dialer   websocket.Dialer

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	conn   *websocket.Conn // live session, replaced on reconnect
	heads  chan Head
	nextID uint64
	closed bool
}

// NewWSClient dials endpoint. config may be nil.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig, log zerolog.Logger) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.HeadBuffer <= 0 {
		cfg.HeadBuffer = DefaultWSConfig().HeadBuffer
	}

	lifetime, stop := context.WithCancel(context.Background())
	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		log:      log,
		dialer:   websocket.Dialer{HandshakeTimeout: cfg.WriteTimeout},
		lifetime: lifetime,
		stop:     stop,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		stop()
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})
	return conn, nil
}

// SubscribeNewHeads starts the newHeads subscription. One subscription per
// client; the channel is closed by Close.
func (c *WSClient) SubscribeNewHeads(ctx context.Context) (<-chan Head, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errClientClosed
	}
	if c.heads != nil {
		c.mu.Unlock()
		return nil, errAlreadySubscribed
	}
	heads := make(chan Head, c.config.HeadBuffer)
	c.heads = heads
	conn := c.conn
	c.mu.Unlock()

	subID, err := c.subscribe(ctx, conn)
	if err == nil {
		c.mu.Lock()
		if c.closed {
			err = errClientClosed
		} else {
			c.wg.Add(1)
		}
		c.mu.Unlock()
	}
	if err != nil {
		c.mu.Lock()
		if c.heads == heads {
			c.heads = nil
		}
		c.mu.Unlock()
		return nil, err
	}

	go c.run(conn, subID, heads)
	return heads, nil
}

// subscribe sends eth_subscribe on conn and reads until its answer arrives.
// conn is closed if ctx ends first.
func (c *WSClient) subscribe(ctx context.Context, conn *websocket.Conn) (string, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	release := context.AfterFunc(ctx, func() { conn.Close() })
	defer release()

	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := conn.WriteJSON(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "eth_subscribe",
		Params:  []interface{}{"newHeads"},
	})
	if err != nil {
		return "", fmt.Errorf("write eth_subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.config.SubscribeTimeout))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("await subscription id: %w", err)
		}
		if msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return "", msg.Error
		}
		var subID string
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return "", fmt.Errorf("decode subscription id: %w", err)
		}
		return subID, nil
	}
}

// run reads the current session and replaces it when it fails, until Close.
func (c *WSClient) run(conn *websocket.Conn, subID string, heads chan<- Head) {
	defer c.wg.Done()

	delay := c.config.ReconnectDelay
	for {
		err := c.readHeads(conn, subID, heads)
		conn.Close()
		if c.lifetime.Err() != nil {
			return
		}
		c.log.Warn().Err(err).Dur("delay", delay).Msg("websocket session ended, reconnecting")

		for {
			select {
			case <-c.lifetime.Done():
				return
			case <-time.After(delay):
			}
			conn, subID, err = c.resume()
			if err == nil {
				break
			}
			delay = min(2*delay, c.config.MaxReconnectDelay)
			c.log.Warn().Err(err).Dur("delay", delay).Msg("websocket reconnect failed")
		}
		delay = c.config.ReconnectDelay
		c.log.Info().Str("subscription", subID).Msg("newHeads resubscribed")
	}
}

// resume opens a new session and renews the subscription on it.
func (c *WSClient) resume() (*websocket.Conn, string, error) {
	conn, err := c.dial(c.lifetime)
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.conn = conn
	}
	c.mu.Unlock()
	if closed {
		conn.Close()
		return nil, "", errClientClosed
	}

	subID, err := c.subscribe(c.lifetime, conn)
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	return conn, subID, nil
}

// readHeads forwards notifications for subID until conn fails.
func (c *WSClient) readHeads(conn *websocket.Conn, subID string, heads chan<- Head) error {
	session := make(chan struct{})
	defer close(session)
	go c.keepAlive(conn, session)

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("unparseable websocket message")
			continue
		}
		switch {
		case msg.Error != nil:
			c.log.Warn().Int("code", msg.Error.Code).Str("message", msg.Error.Message).Msg("websocket error response")
		case msg.Method == "eth_subscription" && msg.Params != nil && msg.Params.Subscription == subID:
			h := msg.Params.Result.head()
			select {
			case heads <- h:
			default:
				c.log.Debug().Uint64("block", h.Number).Msg("head channel full, dropping head")
			}
		}
	}
}

// keepAlive pings conn until the session ends. A missing pong shows up
// as a read timeout in readHeads.
func (c *WSClient) keepAlive(conn *websocket.Conn, session <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// Close ends the current session and closes the head channel. Safe to call twice.
func (c *WSClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.stop()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.config.WriteTimeout))
		conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	heads := c.heads
	c.heads = nil
	c.mu.Unlock()
	if heads != nil {
		close(heads)
	}
	return nil
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Result  json.RawMessage       `json:"result"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
	Error   *RPCError             `json:"error"`
}

type wsNotificationParams struct {
	Subscription string   `json:"subscription"`
	Result       wsHeader `json:"result"`
}

type wsHeader struct {
	Number    hexutil.Uint64 `json:"number"`
	Hash      string         `json:"hash"`
	Timestamp hexutil.Uint64 `json:"timestamp"`
}

func (h wsHeader) head() Head {
	return Head{Number: uint64(h.Number), Hash: h.Hash, Timestamp: uint64(h.Timestamp)}
}

var _ HeadSubscriber = (*WSClient)(nil)

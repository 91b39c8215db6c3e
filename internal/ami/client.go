package ami

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Config holds AMI session configuration.
type Config struct {
	Host           string
	Port           int
	Username       string
	Secret         string
	ConnectTimeout time.Duration
	ActionTimeout  time.Duration
}

// Addr returns the host:port of the manager interface.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is a single authenticated AMI session. Sessions are cheap and are
// opened per origination or per transfer operation, never shared.
type Client struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Event
	seq     uint64

	events chan Event
	done   chan struct{}

	closeOnce sync.Once
}

// Dial connects to the manager interface, consumes the banner and logs in.
func Dial(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to dial AMI: %w", err)
	}

	reader := bufio.NewReader(conn)

	// The banner is a single line before the first frame.
	conn.SetReadDeadline(time.Now().Add(timeout))
	banner, err := reader.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read AMI banner: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan Event),
		events:  make(chan Event, 128),
		done:    make(chan struct{}),
	}

	go c.readLoop(reader)

	login := NewAction("Login").
		Field("Username", cfg.Username).
		Field("Secret", cfg.Secret)

	loginCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.Send(loginCtx, login)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to send AMI login: %w", err)
	}
	if !resp.Success() {
		c.Close()
		return nil, fmt.Errorf("AMI login rejected: %s", resp.Get("Message"))
	}

	logger.Debug("AMI session established",
		slog.String("addr", cfg.Addr()),
		slog.String("banner", banner),
	)

	return c, nil
}

// Send writes an action and waits for its response, correlated by ActionID.
func (c *Client) Send(ctx context.Context, action Action) (Event, error) {
	c.mu.Lock()
	c.seq++
	actionID := strconv.FormatUint(c.seq, 10)
	respChan := make(chan Event, 1)
	c.pending[actionID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, actionID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	_, err := c.conn.Write(action.encode(actionID))
	c.writeMu.Unlock()
	if err != nil {
		return Event{}, fmt.Errorf("failed to write action %s: %w", action.Name, err)
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-c.done:
		return Event{}, fmt.Errorf("AMI session closed while waiting for %s response", action.Name)
	case <-ctx.Done():
		return Event{}, fmt.Errorf("waiting for %s response: %w", action.Name, ctx.Err())
	}
}

// Events returns the stream of unsolicited events for this session.
// The channel is closed when the session ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// readLoop parses frames off the wire, routing responses to their waiting
// senders and everything else to the events channel.
func (c *Client) readLoop(reader *bufio.Reader) {
	parser := NewParser(reader)

	for {
		evt, ok := parser.Next()
		if !ok {
			break
		}

		if evt.IsResponse() {
			c.mu.Lock()
			respChan := c.pending[evt.ActionID()]
			c.mu.Unlock()

			if respChan != nil {
				respChan <- evt
				continue
			}
			// Unmatched response falls through to the event stream.
		}

		select {
		case c.events <- evt:
		default:
			c.logger.Debug("AMI event dropped, subscriber not keeping up",
				slog.String("event", evt.Type()),
			)
		}
	}

	close(c.done)
	close(c.events)
}

// CollectEvents reads events until one of the given terminal types arrives or
// the context expires, returning everything seen including the terminal event.
// Used for multi-event responses such as Status enumeration.
func (c *Client) CollectEvents(ctx context.Context, terminal string) ([]Event, error) {
	var collected []Event
	for {
		select {
		case evt, ok := <-c.events:
			if !ok {
				return collected, fmt.Errorf("AMI session closed during %s collection", terminal)
			}
			collected = append(collected, evt)
			if evt.Type() == terminal {
				return collected, nil
			}
		case <-ctx.Done():
			return collected, fmt.Errorf("collecting AMI events until %s: %w", terminal, ctx.Err())
		}
	}
}

// Close logs off best-effort and tears down the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		// Logoff is courtesy; the read loop ends when the peer closes.
		_, _ = c.conn.Write(NewAction("Logoff").encode(""))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

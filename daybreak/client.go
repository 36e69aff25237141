package daybreak

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xRadioAc7iv/go-daybreak/internal"
	"github.com/0xRadioAc7iv/go-daybreak/internal/protocol"
)

// ErrNotFound is returned by Get and Delete for a missing key.
var ErrNotFound = errors.New("daybreak: key not found")

// ServerError carries an error message sent by the server.
type ServerError struct {
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("daybreak: %s: %s", e.Command, e.Message)
}

// Client is a connection to a daybreak server. It is safe for concurrent
// use; requests are sent one at a time.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func Connect(opts ...Option) (*Client, error) {
	cfg := internal.DefaultConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn, timeout: cfg.Timeout}, nil
}

func (c *Client) Ping() error {
	_, err := c.call("ping", "", "")
	return err
}

func (c *Client) Get(key string) (string, error) {
	return c.call("get", key, "")
}

func (c *Client) Set(key, value string) error {
	_, err := c.call("set", key, value)
	return err
}

func (c *Client) Delete(key string) error {
	_, err := c.call("delete", key, "")
	return err
}

func (c *Client) Exists(key string) (bool, error) {
	res, err := c.call("exists", key, "")
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(res)
}

func (c *Client) Count() (int, error) {
	res, err := c.call("count", "", "")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(res)
}

// List returns every key on the server in insertion order.
func (c *Client) List() ([]string, error) {
	res, err := c.call("list", "", "")
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(res, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("daybreak: malformed key list %q", res)
	}
	return lines[1 : len(lines)-1], nil
}

func (c *Client) Flush() error {
	_, err := c.call("flush", "", "")
	return err
}

// Compact returns the server's "before -> after" size summary.
func (c *Client) Compact() (string, error) {
	return c.call("compact", "", "")
}

func (c *Client) Clear() error {
	_, err := c.call("clear", "", "")
	return err
}

func (c *Client) Info() (string, error) {
	return c.call("info", "", "")
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute sends a raw command and renders the response as text: nil for a
// missing key, the message for a server error.
func (c *Client) Execute(cmd, key, value string) (string, error) {
	resp, err := c.sendCommand(cmd, key, value)
	if err != nil {
		return "", err
	}

	switch resp.Status {
	case protocol.StatusNil:
		return "nil", nil
	case protocol.StatusErr:
		return "(error) " + resp.Body, nil
	default:
		return resp.Body, nil
	}
}

func (c *Client) call(cmd, key, value string) (string, error) {
	resp, err := c.sendCommand(cmd, key, value)
	if err != nil {
		return "", err
	}

	switch resp.Status {
	case protocol.StatusNil:
		return "", ErrNotFound
	case protocol.StatusErr:
		return "", &ServerError{Command: cmd, Message: resp.Body}
	default:
		return resp.Body, nil
	}
}

func (c *Client) sendCommand(cmd, key, value string) (*protocol.Response, error) {
	payload, err := protocol.EncodeCommand(cmd, key, value)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, err
		}
	}

	if _, err := c.conn.Write(payload); err != nil {
		return nil, err
	}

	return protocol.DecodeResponse(c.conn)
}

package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Client speaks the control protocol to a running agent. It is not safe for
// concurrent use.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to the agent socket.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to agent at %s: %w", socketPath, err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends one command and returns the raw response lines.
func (c *Client) Do(cmd Command) ([]string, error) {
	if strings.ContainsAny(cmd.Arg, "\r\n") {
		return nil, fmt.Errorf("control: argument contains a line break")
	}
	c.conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := c.conn.Write([]byte(cmd.String() + "\n")); err != nil {
		return nil, fmt.Errorf("send %s: %w", cmd.Op, err)
	}

	var lines []string
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return lines, fmt.Errorf("read %s response: %w", cmd.Op, err)
		}
		line = strings.TrimRight(line, "\r\n")
		lines = append(lines, line)
		if cmd.Op != OpList || line == LineEnd || strings.HasPrefix(line, "ERR ") {
			return lines, nil
		}
	}
}

// expect runs a single-line command and maps the reply to an error.
func (c *Client) expect(cmd Command, want string) error {
	lines, err := c.Do(cmd)
	if err != nil {
		return err
	}
	return replyError(lines[0], want)
}

func replyError(line, want string) error {
	if line == want {
		return nil
	}
	if reason, ok := strings.CutPrefix(line, "ERR "); ok {
		return &ResponseError{Reason: reason}
	}
	return fmt.Errorf("control: unexpected reply %q", line)
}

// Bind authorizes a fingerprint.
func (c *Client) Bind(fp string) error {
	return c.expect(Command{Op: OpBind, Arg: fp}, LineOK)
}

// Unbind revokes a fingerprint.
func (c *Client) Unbind(fp string) error {
	return c.expect(Command{Op: OpUnbind, Arg: fp}, LineOK)
}

// BindAddr asks the agent to fingerprint and bind an address.
func (c *Client) BindAddr(addr string) error {
	return c.expect(Command{Op: OpBindAddr, Arg: addr}, LineOK)
}

// UnbindAddr asks the agent to fingerprint and unbind an address.
func (c *Client) UnbindAddr(addr string) error {
	return c.expect(Command{Op: OpUnbindAddr, Arg: addr}, LineOK)
}

// Ping checks that the agent is alive.
func (c *Client) Ping() error {
	return c.expect(Command{Op: OpPing}, LinePong)
}

// List returns the bound fingerprints.
func (c *Client) List() ([]ListEntry, error) {
	lines, err := c.Do(Command{Op: OpList})
	if err != nil {
		return nil, err
	}
	entries := make([]ListEntry, 0, len(lines)-1)
	for _, line := range lines {
		if line == LineEnd {
			return entries, nil
		}
		if reason, ok := strings.CutPrefix(line, "ERR "); ok {
			return nil, &ResponseError{Reason: reason}
		}
		e, err := ParseListLine(line)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return nil, fmt.Errorf("control: list response missing %s", LineEnd)
}

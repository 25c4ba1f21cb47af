package tor

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strings"
	"time"
)

// Controller talks the Tor control-port line protocol. Only the two
// commands the engine needs are implemented: AUTHENTICATE and
// SIGNAL NEWNYM (request a fresh circuit identity).
type Controller struct {
	addr     string
	password string
}

func NewController(addr, password string) *Controller {
	return &Controller{addr: addr, password: password}
}

// NewIdentity authenticates against the control port and requests new
// circuits. Each call opens a fresh connection; the control port is a
// low-traffic administrative channel, not a pooled resource.
func (c *Controller) NewIdentity(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("control port dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	tp := textproto.NewConn(conn)
	defer tp.Close()

	auth := "AUTHENTICATE"
	if c.password != "" {
		auth = fmt.Sprintf("AUTHENTICATE %q", c.password)
	}
	if err := c.roundTrip(tp, auth); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := c.roundTrip(tp, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("signal newnym: %w", err)
	}
	_ = tp.PrintfLine("QUIT")

	log.Printf("[Tor] NEWNYM accepted, circuits rotating")
	return nil
}

func (c *Controller) roundTrip(tp *textproto.Conn, cmd string) error {
	if err := tp.PrintfLine("%s", cmd); err != nil {
		return err
	}
	line, err := tp.ReadLine()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "250") {
		return fmt.Errorf("control port replied %q", line)
	}
	return nil
}

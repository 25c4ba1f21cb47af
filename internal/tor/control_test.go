package tor

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commandLog records protocol lines the fake server received.
type commandLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *commandLog) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *commandLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// fakeControlPort speaks just enough of the control protocol to accept
// AUTHENTICATE and SIGNAL NEWNYM.
func fakeControlPort(t *testing.T, authReply string) (addr string, log *commandLog) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	log = &commandLog{}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := scanner.Text()
			log.add(line)
			switch {
			case strings.HasPrefix(line, "AUTHENTICATE"):
				conn.Write([]byte(authReply + "\r\n"))
			case line == "SIGNAL NEWNYM":
				conn.Write([]byte("250 OK\r\n"))
			case line == "QUIT":
				conn.Write([]byte("250 closing connection\r\n"))
				return
			}
		}
	}()
	return ln.Addr().String(), log
}

func TestNewIdentity(t *testing.T) {
	addr, log := fakeControlPort(t, "250 OK")

	ctrl := NewController(addr, "hunter2")
	err := ctrl.NewIdentity(context.Background())

	assert.NoError(t, err)
	assert.Contains(t, log.all(), `AUTHENTICATE "hunter2"`)
	assert.Contains(t, log.all(), "SIGNAL NEWNYM")
}

func TestNewIdentityNoPassword(t *testing.T) {
	addr, log := fakeControlPort(t, "250 OK")

	err := NewController(addr, "").NewIdentity(context.Background())

	assert.NoError(t, err)
	assert.Contains(t, log.all(), "AUTHENTICATE")
}

func TestNewIdentityAuthRejected(t *testing.T) {
	addr, _ := fakeControlPort(t, "515 Authentication failed")

	err := NewController(addr, "wrong").NewIdentity(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "authenticate")
}

func TestNewIdentityUnreachable(t *testing.T) {
	err := NewController("127.0.0.1:1", "").NewIdentity(context.Background())
	assert.Error(t, err)
}

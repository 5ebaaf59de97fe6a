package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/protocol"
	"github.com/relaychat/relay-server/internal/router"
)

// Sentinel errors returned by conn.Send.
var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// conn is a single client connection. Each conn runs two goroutines (readLoop and writeLoop) and hands decoded
// commands to the router inline, which preserves the arrival order of frames on one connection.
type conn struct {
	id   uuid.UUID
	sock net.Conn
	send chan []byte
	log  zerolog.Logger

	maxFrameBytes int
	writeTimeout  time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(sock net.Conn, maxFrameBytes, sendBufferSize int, writeTimeout time.Duration, logger zerolog.Logger) *conn {
	id := uuid.New()
	return &conn{
		id:            id,
		sock:          sock,
		send:          make(chan []byte, sendBufferSize),
		log:           logger.With().Str("conn_id", id.String()).Str("remote", sock.RemoteAddr().String()).Logger(),
		maxFrameBytes: maxFrameBytes,
		writeTimeout:  writeTimeout,
		closed:        make(chan struct{}),
	}
}

// ID returns the connection's stable identity, used by the registry's reverse lookup on disconnect.
func (c *conn) ID() uuid.UUID {
	return c.id
}

// Send queues a frame for the write loop. If the buffer is full the peer is not draining; the frame is dropped and
// the connection is severed so backpressure cannot stall the router.
func (c *conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn().Msg("Send buffer full, closing connection")
		c.close()
		return ErrSendBufferFull
	}
}

// close severs the socket. Idempotent; both pumps and Send may race into it.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.sock.Close()
	})
}

// readLoop reads newline-delimited frames, decodes them, and dispatches inline. It owns connection teardown: when the
// read side ends for any reason the router is told the connection is gone.
func (c *conn) readLoop(ctx context.Context, rt *router.Router) {
	defer func() {
		c.close()
		rt.HandleDisconnect(c)
	}()

	scanner := bufio.NewScanner(c.sock)
	scanner.Buffer(make([]byte, 4096), c.maxFrameBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		cmd, err := protocol.Decode(line)
		if err != nil {
			// Bad frames get no reply; the connection survives.
			c.log.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}

		rt.Dispatch(ctx, c, cmd)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.log.Debug().Err(err).Msg("Read loop ended")
	}
}

// writeLoop drains the send channel onto the socket, one newline-terminated frame per queued payload.
func (c *conn) writeLoop() {
	defer c.close()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.writeFrame(msg); err != nil {
				c.log.Debug().Err(err).Msg("Write error")
				return
			}
		}
	}
}

func (c *conn) writeFrame(msg []byte) error {
	_ = c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout))

	buf := make([]byte, len(msg)+1)
	copy(buf, msg)
	buf[len(msg)] = '\n'

	_, err := c.sock.Write(buf)
	return err
}

// Package transport implements the local stream-socket listener: one
// reader goroutine per accepted connection, and a single dedicated
// writer goroutine that serializes every outbound broadcast so
// newline-framed writes from concurrent handlers never interleave.
package transport

import (
	"bufio"
	"net"
	"os"
	"sync"
	"time"

	"github.com/solpbc/hopper/internal/hlog"
)

// BroadcastQueueCapacity bounds the outbound fan-out queue. Beyond this
// Broadcast drops the newest message rather than block a handler.
const BroadcastQueueCapacity = 10000

const acceptTimeout = 500 * time.Millisecond
const readTimeout = 2 * time.Second
const writeTimeout = 2 * time.Second

// Conn wraps one accepted client connection with the framing and
// bookkeeping the coordinator needs.
type Conn struct {
	ID  uint64
	raw net.Conn
	mu  sync.Mutex // guards raw writes performed outside the writer goroutine (handshake replies)
}

// Write sends one already-framed (newline-terminated) message directly
// to this connection, used for request/response replies which must
// reach the requester before any later broadcast.
func (c *Conn) Write(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.raw.Write(line)
	return err
}

func (c *Conn) Close() error {
	return c.raw.Close()
}

// Handlers are the coordinator callbacks the transport invokes.
type Handlers struct {
	// OnMessage is called once per parsed line from a client.
	OnMessage func(c *Conn, line []byte)
	// OnDisconnect is called exactly once when a client's reader loop
	// ends, regardless of cause.
	OnDisconnect func(c *Conn)
}

// Server owns the listening socket, the registry of live connections,
// and the single writer goroutine.
type Server struct {
	SocketPath string
	Handlers   Handlers
	Log        *hlog.Logger

	listener net.Listener
	stopCh   chan struct{}
	wg       sync.WaitGroup

	connMu  sync.Mutex
	conns   map[uint64]*Conn
	nextID  uint64

	broadcastCh chan []byte
}

// NewServer builds a Server bound to socketPath. Call Start to bind and
// begin accepting.
func NewServer(socketPath string, handlers Handlers, log *hlog.Logger) *Server {
	return &Server{
		SocketPath:  socketPath,
		Handlers:    handlers,
		Log:         log,
		stopCh:      make(chan struct{}),
		conns:       make(map[uint64]*Conn),
		broadcastCh: make(chan []byte, BroadcastQueueCapacity),
	}
}

// Start removes any stale socket file, binds, and launches the accept
// loop and writer goroutine. It returns once the listener is bound.
func (s *Server) Start() error {
	os.Remove(s.SocketPath)
	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return err
	}
	s.listener = ln

	s.wg.Add(2)
	go s.acceptLoop()
	go s.writerLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	ul, ok := s.listener.(*net.UnixListener)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if ok {
			ul.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		s.connMu.Lock()
		s.nextID++
		id := s.nextID
		c := &Conn{ID: id, raw: conn}
		s.conns[id] = c
		s.connMu.Unlock()

		s.wg.Add(1)
		go s.readLoop(c)
	}
}

func (s *Server) readLoop(c *Conn) {
	defer s.wg.Done()
	defer s.removeConn(c)
	defer c.raw.Close()

	r := bufio.NewReaderSize(c.raw, 64*1024)
	for {
		if tc, ok := c.raw.(interface {
			SetReadDeadline(time.Time) error
		}); ok {
			tc.SetReadDeadline(time.Now().Add(readTimeout))
		}
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			if len(trimmed) > 0 {
				if s.Handlers.OnMessage != nil {
					s.Handlers.OnMessage(c, trimmed)
				}
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-s.stopCh:
					return
				default:
					continue
				}
			}
			return
		}
	}
}

func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

func (s *Server) removeConn(c *Conn) {
	s.connMu.Lock()
	delete(s.conns, c.ID)
	s.connMu.Unlock()
	if s.Handlers.OnDisconnect != nil {
		s.Handlers.OnDisconnect(c)
	}
}

// Broadcast enqueues msg for delivery to every live client. On a full
// queue the newest message is dropped and logged; Broadcast never
// blocks.
func (s *Server) Broadcast(msg []byte) {
	select {
	case s.broadcastCh <- msg:
	default:
		if s.Log != nil {
			s.Log.Line("transport: broadcast queue full, dropping message")
		}
	}
}

func (s *Server) writerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			s.drainBroadcasts()
			return
		case msg := <-s.broadcastCh:
			s.writeToAll(msg)
		}
	}
}

func (s *Server) drainBroadcasts() {
	for {
		select {
		case msg := <-s.broadcastCh:
			s.writeToAll(msg)
		default:
			return
		}
	}
}

func (s *Server) writeToAll(msg []byte) {
	s.connMu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.connMu.Unlock()

	var dead []*Conn
	for _, c := range targets {
		if err := c.Write(msg); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		c.raw.Close()
	}
}

// CloseConn closes a specific connection, used by the coordinator to
// evict a prior owner on ownership takeover.
func (s *Server) CloseConn(c *Conn) {
	c.raw.Close()
}

// Stop sends a final broadcast (if non-nil), closes every connection,
// closes the listener, and unlinks the socket file.
func (s *Server) Stop(final []byte) {
	if final != nil {
		s.writeToAll(final)
	}
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}
	s.connMu.Lock()
	for _, c := range s.conns {
		c.raw.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	os.Remove(s.SocketPath)
}

package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"

	"chairgate/pkg/codec"
	"chairgate/pkg/engine"
	"chairgate/pkg/output"
)

// DefaultReadBufferSize is the largest chunk read from a socket per call.
const DefaultReadBufferSize = 1024

// Framing selects how the stream server splits a connection into records.
type Framing string

const (
	// FramingRead treats every successful read as exactly one record.
	// A record larger than the read buffer, or several records coalesced by
	// the network, is seen as malformed.
	FramingRead Framing = "read"
	// FramingNewline splits the stream on '\n'. Lines longer than the read
	// buffer end the connection.
	FramingNewline Framing = "newline"
)

// StreamConfig configures a StreamServer.
type StreamConfig struct {
	Addr           string
	ReadBufferSize int
	Framing        Framing
	// MaxConnections caps concurrent connections; 0 means unbounded.
	MaxConnections int
	Sink           output.Sink
	Gate           *engine.Gate
	Logger         *log.Logger
}

// StreamServer accepts TCP connections and decodes chair records from each
// of them in its own goroutine. Connections share nothing but counters.
type StreamServer struct {
	cfg      StreamConfig
	logger   *log.Logger
	sem      *semaphore.Weighted
	stats    StreamStats
	mu       sync.Mutex
	listener net.Listener
}

func NewStreamServer(cfg StreamConfig) *StreamServer {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Framing == "" {
		cfg.Framing = FramingRead
	}
	if cfg.Sink == nil {
		cfg.Sink = output.NewConsoleSink(nil)
	}
	s := &StreamServer{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return s
}

// Listen binds the configured address. Bind failures are returned as is.
func (s *StreamServer) Listen() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcp listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Printf("tcp: server is listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *StreamServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stats exposes the server counters.
func (s *StreamServer) Stats() *StreamStats {
	return &s.stats
}

// Run binds and serves until ctx is cancelled.
func (s *StreamServer) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop. It returns nil once ctx is cancelled; open
// connections are closed without draining.
func (s *StreamServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("tcp: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Printf("tcp: server on %s shutting down", listener.Addr())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("tcp: listener closed: %w", err)
			}
			s.logger.Printf("tcp: error accepting connection: %v", err)
			continue
		}

		if s.sem != nil && !s.sem.TryAcquire(1) {
			s.stats.ConnectionsRejected.Add(1)
			s.logger.Printf("tcp: rejected connection from %s: %d connections open", conn.RemoteAddr(), s.cfg.MaxConnections)
			_ = conn.Close()
			continue
		}

		s.stats.ConnectionsAccepted.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *StreamServer) handleConnection(ctx context.Context, conn net.Conn) {
	sess := newSession(conn)
	s.stats.ConnectionsActive.Add(1)
	s.logger.Printf("tcp: new connection from %s (session %s)", sess.peer, sess.id)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	outcome, cause := OutcomeFailed, error(nil)
	defer func() {
		if r := recover(); r != nil {
			s.stats.Panics.Add(1)
			outcome, cause = OutcomeFailed, fmt.Errorf("panic: %v", r)
		}
		stop()
		sess.close()
		if s.sem != nil {
			s.sem.Release(1)
		}
		s.stats.ConnectionsActive.Add(-1)
		s.stats.recordOutcome(outcome)
		s.logOutcome(sess, outcome, cause)
	}()

	switch s.cfg.Framing {
	case FramingNewline:
		outcome, cause = s.readLines(ctx, sess)
	default:
		outcome, cause = s.readChunks(ctx, sess)
	}
}

func (s *StreamServer) logOutcome(sess *session, outcome Outcome, cause error) {
	switch outcome {
	case OutcomeClosed:
		s.logger.Printf("tcp: connection closed by %s (session %s)", sess.peer, sess.id)
	case OutcomeReset:
		s.logger.Printf("tcp: connection reset by %s (session %s)", sess.peer, sess.id)
	case OutcomeShutdown:
		s.logger.Printf("tcp: connection to %s closed for shutdown (session %s)", sess.peer, sess.id)
	default:
		s.logger.Printf("tcp: error handling client %s (session %s): %v", sess.peer, sess.id, cause)
	}
}

// readChunks treats each read as one encoded record.
func (s *StreamServer) readChunks(ctx context.Context, sess *session) (Outcome, error) {
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := sess.conn.Read(buf)
		if n > 0 {
			s.handleMessage(ctx, sess, buf[:n])
		}
		if err != nil {
			return classifyReadError(ctx, err)
		}
	}
}

// readLines treats each newline-terminated line as one encoded record.
func (s *StreamServer) readLines(ctx context.Context, sess *session) (Outcome, error) {
	scanner := bufio.NewScanner(sess.conn)
	scanner.Buffer(make([]byte, 0, s.cfg.ReadBufferSize), s.cfg.ReadBufferSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.handleMessage(ctx, sess, line)
	}
	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		return OutcomeFailed, fmt.Errorf("line exceeds %d bytes", s.cfg.ReadBufferSize)
	}
	return classifyReadError(ctx, err)
}

func (s *StreamServer) handleMessage(ctx context.Context, sess *session, payload []byte) {
	s.stats.MessagesReceived.Add(1)
	s.logger.Printf("tcp: received from %s: %s", sess.peer, payload)

	rec, err := codec.Decode(payload)
	if err != nil {
		s.stats.MessagesMalformed.Add(1)
		s.logger.Printf("tcp: invalid record from %s: %v", sess.peer, err)
		return
	}

	drop, err := s.cfg.Gate.Drop(&engine.ProcessingContext{Context: ctx, Source: "tcp", Record: rec}, payload)
	if err != nil {
		s.stats.MessagesFiltered.Add(1)
		s.logger.Printf("tcp: processor error for record from %s: %v", sess.peer, err)
		return
	}
	if drop {
		s.stats.MessagesFiltered.Add(1)
		return
	}

	if err := s.cfg.Sink.Write(ctx, rec); err != nil {
		s.stats.SinkFailures.Add(1)
		s.logger.Printf("tcp: sink error for record from %s: %v", sess.peer, err)
		return
	}
	s.stats.MessagesDelivered.Add(1)
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"chairgate/pkg/codec"
	"chairgate/pkg/engine"
	"chairgate/pkg/output"
)

// DatagramConfig configures a DatagramListener.
type DatagramConfig struct {
	Addr           string
	ReadBufferSize int
	// Forwarder receives every decoded record before the next packet is read.
	Forwarder output.Sink
	Gate      *engine.Gate
	Logger    *log.Logger
}

// DatagramListener reads one chair record per UDP packet and forwards it
// synchronously. It is deliberately single-goroutine: a slow forward delays
// the next receive and the kernel buffer absorbs the burst.
type DatagramListener struct {
	cfg    DatagramConfig
	logger *log.Logger
	stats  DatagramStats
	mu     sync.Mutex
	conn   *net.UDPConn
}

func NewDatagramListener(cfg DatagramConfig) *DatagramListener {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	l := &DatagramListener{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	if l.logger == nil {
		l.logger = log.Default()
	}
	return l
}

// Listen binds the UDP socket.
func (l *DatagramListener) Listen() error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("udp resolve %s: %w", l.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("udp listen on %s: %w", l.cfg.Addr, err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.logger.Printf("udp: listener bound to %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (l *DatagramListener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.LocalAddr().String()
	}
	return l.cfg.Addr
}

// Stats exposes the listener counters.
func (l *DatagramListener) Stats() *DatagramStats {
	return &l.stats
}

// Run binds and serves until ctx is cancelled.
func (l *DatagramListener) Run(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Serve runs the receive loop until ctx is cancelled.
func (l *DatagramListener) Serve(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.New("udp: Serve called before Listen")
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// One buffer, reused. Decoding copies everything a record keeps.
	buf := make([]byte, l.cfg.ReadBufferSize)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Printf("udp: listener on %s shutting down", conn.LocalAddr())
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("udp: socket closed: %w", err)
			}
			l.stats.ReadErrors.Add(1)
			l.logger.Printf("udp: read error: %v", err)
			continue
		}
		l.handlePacket(ctx, addr, buf[:n])
	}
}

// handlePacket decodes and forwards one datagram. Panics stop here so the
// receive loop keeps running.
func (l *DatagramListener) handlePacket(ctx context.Context, addr *net.UDPAddr, packet []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.Panics.Add(1)
			l.logger.Printf("udp: recovered panic handling packet from %s: %v", addr, r)
		}
	}()

	l.stats.PacketsReceived.Add(1)
	l.logger.Printf("udp: received message from %s: %s", addr, packet)

	rec, err := codec.Decode(packet)
	if err != nil {
		l.stats.PacketsMalformed.Add(1)
		l.logger.Printf("udp: invalid record from %s: %v", addr, err)
		return
	}
	l.logger.Printf("udp: parsed chair: %s", rec)

	drop, err := l.cfg.Gate.Drop(&engine.ProcessingContext{Context: ctx, Source: "udp", Record: rec}, packet)
	if err != nil {
		l.stats.PacketsFiltered.Add(1)
		l.logger.Printf("udp: processor error for record from %s: %v", addr, err)
		return
	}
	if drop {
		l.stats.PacketsFiltered.Add(1)
		return
	}

	if l.cfg.Forwarder == nil {
		return
	}
	if err := l.cfg.Forwarder.Write(ctx, rec); err != nil {
		l.stats.ForwardFailures.Add(1)
		var fe *output.ForwardError
		if errors.As(err, &fe) {
			l.logger.Printf("udp: failed to forward to API. Status: %d, Response: %s", fe.StatusCode, fe.Body)
		} else {
			l.logger.Printf("udp: error forwarding record to API: %v", err)
		}
		return
	}
	l.stats.Forwarded.Add(1)
	l.logger.Printf("udp: successfully forwarded record to API")
}

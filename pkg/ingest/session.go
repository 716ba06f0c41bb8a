package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/google/uuid"
)

// Outcome is how a stream connection ended.
type Outcome int

const (
	// OutcomeClosed is an orderly close by the peer (zero-length read).
	OutcomeClosed Outcome = iota
	// OutcomeReset is an abortive close by the peer.
	OutcomeReset
	// OutcomeFailed is any other transport or worker fault.
	OutcomeFailed
	// OutcomeShutdown means the server closed the connection while stopping.
	OutcomeShutdown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeReset:
		return "reset"
	case OutcomeFailed:
		return "failed"
	case OutcomeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// classifyReadError maps the error that ended a read loop to an Outcome.
// The returned error is nil for orderly closes and shutdowns.
func classifyReadError(ctx context.Context, err error) (Outcome, error) {
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return OutcomeClosed, nil
	case ctx.Err() != nil:
		return OutcomeShutdown, nil
	case isReset(err):
		return OutcomeReset, err
	default:
		return OutcomeFailed, err
	}
}

func isReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED)
}

// session is one accepted stream connection. It is owned by a single worker.
type session struct {
	id     string
	conn   net.Conn
	peer   string
	closed bool
}

func newSession(conn net.Conn) *session {
	return &session{
		id:   uuid.NewString(),
		conn: conn,
		peer: conn.RemoteAddr().String(),
	}
}

func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
}

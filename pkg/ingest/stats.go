package ingest

import "sync/atomic"

// StreamStats counts stream server activity. All fields are updated
// atomically; read them through Snapshot.
type StreamStats struct {
	ConnectionsAccepted atomic.Int64
	ConnectionsActive   atomic.Int64
	ConnectionsRejected atomic.Int64

	ClosedOrderly  atomic.Int64
	ClosedReset    atomic.Int64
	ClosedFailed   atomic.Int64
	ClosedShutdown atomic.Int64

	MessagesReceived  atomic.Int64
	MessagesMalformed atomic.Int64
	MessagesFiltered  atomic.Int64
	MessagesDelivered atomic.Int64
	SinkFailures      atomic.Int64
	Panics            atomic.Int64
}

// StreamSnapshot is a point-in-time copy of StreamStats.
type StreamSnapshot struct {
	ConnectionsAccepted int64 `json:"connections_accepted"`
	ConnectionsActive   int64 `json:"connections_active"`
	ConnectionsRejected int64 `json:"connections_rejected"`
	ClosedOrderly       int64 `json:"closed_orderly"`
	ClosedReset         int64 `json:"closed_reset"`
	ClosedFailed        int64 `json:"closed_failed"`
	ClosedShutdown      int64 `json:"closed_shutdown"`
	MessagesReceived    int64 `json:"messages_received"`
	MessagesMalformed   int64 `json:"messages_malformed"`
	MessagesFiltered    int64 `json:"messages_filtered"`
	MessagesDelivered   int64 `json:"messages_delivered"`
	SinkFailures        int64 `json:"sink_failures"`
	Panics              int64 `json:"panics"`
}

func (s *StreamStats) Snapshot() StreamSnapshot {
	return StreamSnapshot{
		ConnectionsAccepted: s.ConnectionsAccepted.Load(),
		ConnectionsActive:   s.ConnectionsActive.Load(),
		ConnectionsRejected: s.ConnectionsRejected.Load(),
		ClosedOrderly:       s.ClosedOrderly.Load(),
		ClosedReset:         s.ClosedReset.Load(),
		ClosedFailed:        s.ClosedFailed.Load(),
		ClosedShutdown:      s.ClosedShutdown.Load(),
		MessagesReceived:    s.MessagesReceived.Load(),
		MessagesMalformed:   s.MessagesMalformed.Load(),
		MessagesFiltered:    s.MessagesFiltered.Load(),
		MessagesDelivered:   s.MessagesDelivered.Load(),
		SinkFailures:        s.SinkFailures.Load(),
		Panics:              s.Panics.Load(),
	}
}

func (s *StreamStats) recordOutcome(o Outcome) {
	switch o {
	case OutcomeClosed:
		s.ClosedOrderly.Add(1)
	case OutcomeReset:
		s.ClosedReset.Add(1)
	case OutcomeShutdown:
		s.ClosedShutdown.Add(1)
	default:
		s.ClosedFailed.Add(1)
	}
}

// DatagramStats counts datagram listener activity.
type DatagramStats struct {
	PacketsReceived  atomic.Int64
	PacketsMalformed atomic.Int64
	PacketsFiltered  atomic.Int64
	ReadErrors       atomic.Int64
	Forwarded        atomic.Int64
	ForwardFailures  atomic.Int64
	Panics           atomic.Int64
}

// DatagramSnapshot is a point-in-time copy of DatagramStats.
type DatagramSnapshot struct {
	PacketsReceived  int64 `json:"packets_received"`
	PacketsMalformed int64 `json:"packets_malformed"`
	PacketsFiltered  int64 `json:"packets_filtered"`
	ReadErrors       int64 `json:"read_errors"`
	Forwarded        int64 `json:"forwarded"`
	ForwardFailures  int64 `json:"forward_failures"`
	Panics           int64 `json:"panics"`
}

func (s *DatagramStats) Snapshot() DatagramSnapshot {
	return DatagramSnapshot{
		PacketsReceived:  s.PacketsReceived.Load(),
		PacketsMalformed: s.PacketsMalformed.Load(),
		PacketsFiltered:  s.PacketsFiltered.Load(),
		ReadErrors:       s.ReadErrors.Load(),
		Forwarded:        s.Forwarded.Load(),
		ForwardFailures:  s.ForwardFailures.Load(),
		Panics:           s.Panics.Load(),
	}
}

package engine

import (
	"context"

	"chairgate/pkg/model"
)

// ProcessingContext holds per-record state.
type ProcessingContext struct {
	context.Context

	// Source is the transport the record arrived on ("tcp" or "udp").
	Source string
	Record model.Record
}

package engine

// Processor decides whether a decoded record continues to its sink.
type Processor interface {
	// Process inspects the validated wire payload of a record.
	// It returns drop=true when the record must not reach the sink.
	Process(ctx *ProcessingContext, payload []byte) (bool, error)

	// Name returns the identifier of the processor (for logging).
	Name() string
}

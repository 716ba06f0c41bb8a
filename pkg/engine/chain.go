package engine

// ProcessorChain manages a sequential list of processors.
type ProcessorChain struct {
	processors []Processor
}

// NewProcessorChain creates a chain with the given list of processors.
func NewProcessorChain(processors ...Processor) *ProcessorChain {
	return &ProcessorChain{
		processors: processors,
	}
}

// Len reports the number of processors in the chain.
func (c *ProcessorChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.processors)
}

// Names lists processor names in execution order.
func (c *ProcessorChain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.processors))
	for i, p := range c.processors {
		names[i] = p.Name()
	}
	return names
}

// Process runs the payload through all processors in the chain.
// It stops at the first processor that drops or errors.
func (c *ProcessorChain) Process(ctx *ProcessingContext, payload []byte) (bool, error) {
	if c == nil {
		return false, nil
	}
	for _, p := range c.processors {
		drop, err := p.Process(ctx, payload)
		if err != nil {
			return false, err
		}
		if drop {
			return true, nil
		}
	}
	return false, nil
}

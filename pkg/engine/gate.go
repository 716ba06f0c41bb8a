package engine

import (
	"log"
	"sync/atomic"
)

// Gate holds the active processor chain. Ingestion goroutines read it
// concurrently while the control watcher swaps it.
type Gate struct {
	chain atomic.Pointer[ProcessorChain]
}

// NewGate returns a gate running chain. A nil chain admits everything.
func NewGate(chain *ProcessorChain) *Gate {
	g := &Gate{}
	if chain == nil {
		chain = NewProcessorChain()
	}
	g.chain.Store(chain)
	return g
}

// UpdateChain hot-swaps the processor chain.
func (g *Gate) UpdateChain(chain *ProcessorChain) {
	if chain == nil {
		chain = NewProcessorChain()
	}
	g.chain.Store(chain)
	log.Printf("engine: processor chain swapped (%d processors)", chain.Len())
}

// Chain returns the chain currently in effect.
func (g *Gate) Chain() *ProcessorChain {
	if g == nil {
		return nil
	}
	return g.chain.Load()
}

// Drop reports whether the record behind payload should be filtered out.
// A nil gate drops nothing.
func (g *Gate) Drop(ctx *ProcessingContext, payload []byte) (bool, error) {
	if g == nil {
		return false, nil
	}
	return g.chain.Load().Process(ctx, payload)
}

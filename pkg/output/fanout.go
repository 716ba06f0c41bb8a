package output

import (
	"context"
	"sync"

	"chairgate/pkg/model"
)

// FanOutSink writes to multiple sinks in parallel.
type FanOutSink struct {
	sinks []Sink
}

func NewFanOutSink(sinks ...Sink) *FanOutSink {
	return &FanOutSink{
		sinks: sinks,
	}
}

// Write returns the first error reported by any sink, in sink order.
func (f *FanOutSink) Write(ctx context.Context, rec model.Record) error {
	if len(f.sinks) == 1 {
		return f.sinks[0].Write(ctx, rec)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(f.sinks))

	for i, s := range f.sinks {
		wg.Add(1)
		go func(idx int, s Sink) {
			defer wg.Done()
			errs[idx] = s.Write(ctx, rec)
		}(i, s)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

package rmsagc

import (
	"context"
	"iter"
)

// Samples lazily scales seq. Each output is computed when it is pulled, so
// the controller state advances only as far as the consumer iterates.
func (r *RMSAGC) Samples(seq iter.Seq[float32]) iter.Seq[float32] {
	return func(yield func(float32) bool) {
		for s := range seq {
			if !yield(r.Process(s)) {
				return
			}
		}
	}
}

// Stream scales every segment received on in and forwards it on out. It
// returns nil once in is closed and ctx.Err() if ctx ends first.
func (r *RMSAGC) Stream(ctx context.Context, in <-chan []float32, out chan<- []float32) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg, ok := <-in:
			if !ok {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- r.Work(seg):
			}
		}
	}
}

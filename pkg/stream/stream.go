// Package stream defines the contracts between the database drain and the
// destination sink: the unit of transfer and the two capabilities that move
// it. Implementations are not expected to be safe for concurrent use; every
// producer/sink pair is owned by exactly one worker.
package stream

import "context"

// SourceElement is the unit of transfer: an opaque identifier plus an opaque
// byte payload. Values are immutable after construction.
type SourceElement struct {
	// ID identifies the element and is used as the partition key downstream.
	ID string

	// Payload is the message content, transmitted unmodified.
	Payload []byte
}

// Sink is a buffered, batched consumer of source elements.
type Sink interface {
	// Write appends element to the pending batch. When the batch reaches the
	// sink's capacity the sink flushes synchronously before returning.
	Write(ctx context.Context, element SourceElement) error

	// Flush publishes every buffered element as a single batch, preserving
	// write order, then clears the batch. Flushing an empty batch is a no-op.
	// On failure the batch is left intact.
	Flush(ctx context.Context) error
}

// Producer reads source elements from their origin and hands them to a sink.
type Producer interface {
	// Produce runs until a fatal error occurs; it never returns nil in normal
	// operation.
	Produce(ctx context.Context, sink Sink) error
}

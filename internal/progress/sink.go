package progress

import "context"

// Sink consumes batches of job events. Consume is called from the hub's
// single goroutine and should honour ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts individual events. *Hub implements it; NopEmitter discards.
type Emitter interface {
	Emit(evt Event)
}

// NopEmitter drops every event.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}

package events

// Callback receives events synchronously on the emitting goroutine.
type Callback func(Event)

// Emitter delivers events to an optional callback. A nil *Emitter or a
// nil callback discards events, so callers never need to guard Emit.
// The callback is fixed at construction, which makes concurrent Emit
// calls safe as long as the callback itself is.
type Emitter struct {
	cb Callback
}

// NewEmitter creates an emitter for the given callback (may be nil).
func NewEmitter(cb Callback) *Emitter {
	return &Emitter{cb: cb}
}

// Emit invokes the callback with the event, or discards it.
func (e *Emitter) Emit(ev Event) {
	if e == nil || e.cb == nil {
		return
	}
	e.cb(ev)
}

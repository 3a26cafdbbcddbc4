package stream

import "fmt"

// emitter is the per-component dispatch table. Observers see every
// notification before handlers and never count as handlers.
type emitter struct {
	component string
	allowed   [kindCount]bool
	handlers  [kindCount][]Handler
	observers []Handler
	done      bool
}

func newEmitter(component string, kinds []Kind) *emitter {
	e := &emitter{component: component}
	for _, k := range kinds {
		e.allowed[k] = true
	}
	return e
}

func (e *emitter) on(k Kind, h Handler) error {
	if k >= kindCount || !e.allowed[k] {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedKind, k, e.component)
	}
	if h != nil {
		e.handlers[k] = append(e.handlers[k], h)
	}
	return nil
}

func (e *emitter) observe(h Handler) {
	if h != nil {
		e.observers = append(e.observers, h)
	}
}

// emit dispatches ev. Nothing is dispatched after a terminal notification. An
// error notification with no handler yields *UnhandledError.
func (e *emitter) emit(ev Event) error {
	if e.done {
		return nil
	}
	k := ev.Kind()
	if k.Terminal() {
		e.done = true
	}
	for _, obs := range e.observers {
		obs(ev)
	}
	hs := e.handlers[k]
	for _, h := range hs {
		h(ev)
	}
	if errEv, ok := ev.(ErrorEvent); ok && len(hs) == 0 {
		return &UnhandledError{Component: e.component, Err: errEv.Err}
	}
	return nil
}

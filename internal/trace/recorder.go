package trace

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/streamtrace/internal/stream"
)

// ErrDuplicateComponent is returned when two attached components share a name.
var ErrDuplicateComponent = errors.New("component already attached")

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the clock used to timestamp records.
func WithClock(c Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithEmitter forwards every captured record to e.
func WithEmitter(e Emitter) Option {
	return func(r *Recorder) {
		r.emitter = e
	}
}

// Recorder captures notifications from attached components in arrival order.
//
// Recorder is safe for concurrent reads while a run appends.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	seqs    map[string]uint64
	clock   Clock
	emitter Emitter
}

// NewRecorder constructs an empty Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		seqs:  make(map[string]uint64),
		clock: utcClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Attach observes every notification kind o supports. The recorder is a
// passive observer: it does not count as a handler for error notifications.
func (r *Recorder) Attach(o stream.Observable) error {
	name := o.Name()
	r.mu.Lock()
	if _, ok := r.seqs[name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
	}
	r.seqs[name] = 0
	r.mu.Unlock()

	o.Observe(func(ev stream.Event) {
		r.append(name, ev)
	})
	return nil
}

func (r *Recorder) append(component string, ev stream.Event) {
	r.mu.Lock()
	r.seqs[component]++
	rec := Record{
		Component: component,
		Kind:      ev.Kind(),
		Payload:   ev,
		Seq:       r.seqs[component],
		Index:     uint64(len(r.records)) + 1,
		At:        r.clock.Now(),
	}
	r.records = append(r.records, rec)
	emitter := r.emitter
	r.mu.Unlock()

	if emitter != nil {
		emitter.Emit(rec)
	}
}

// Records returns a snapshot of every record in arrival order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Component returns the trace of a single component.
func (r *Recorder) Component(name string) []Record {
	return Filter(r.Records(), name)
}

// Count returns how many notifications of kind k the named component emitted.
func (r *Recorder) Count(name string, k stream.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Component == name && rec.Kind == k {
			n++
		}
	}
	return n
}

// Last returns the most recent record of the named component.
func (r *Recorder) Last(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Component == name {
			return r.records[i], true
		}
	}
	return Record{}, false
}

// Reset clears captured records. Attached components stay attached and their
// sequence numbers restart.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.records = nil
	for name := range r.seqs {
		r.seqs[name] = 0
	}
	r.mu.Unlock()
}

// Filter returns the records of the named component, preserving order.
func Filter(records []Record, name string) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Component == name {
			out = append(out, rec)
		}
	}
	return out
}

type utcClock struct{}

func (utcClock) Now() time.Time {
	return time.Now().UTC()
}

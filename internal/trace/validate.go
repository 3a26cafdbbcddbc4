package trace

import (
	"errors"
	"fmt"
)

var (
	// ErrSequence reports a component whose sequence numbers do not strictly increase.
	ErrSequence = errors.New("sequence not strictly increasing")
	// ErrAfterTerminal reports a record following its component's terminal notification.
	ErrAfterTerminal = errors.New("record after terminal notification")
)

// Validate checks the per-component trace invariants: sequence numbers
// strictly increase and nothing follows end, close, or finish.
func Validate(records []Record) error {
	lastSeq := make(map[string]uint64)
	terminal := make(map[string]Record)
	for _, rec := range records {
		if prev, ok := lastSeq[rec.Component]; ok && rec.Seq <= prev {
			return fmt.Errorf("%w: %s seq %d after %d", ErrSequence, rec.Component, rec.Seq, prev)
		}
		lastSeq[rec.Component] = rec.Seq
		if term, ok := terminal[rec.Component]; ok {
			return fmt.Errorf(
				"%w: %s %s (seq %d) after %s (seq %d)",
				ErrAfterTerminal, rec.Component, rec.Kind, rec.Seq, term.Kind, term.Seq,
			)
		}
		if rec.Kind.Terminal() {
			terminal[rec.Component] = rec
		}
	}
	return nil
}

package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streamtrace/internal/loop"
)

type capture struct {
	kinds []string
}

func (c *capture) handler(ev Event) {
	c.kinds = append(c.kinds, ev.Kind().String())
}

func newPair(t *testing.T, mode Mode, srcHWM, sinkHWM int) (*loop.Loop, *Source, *Sink, *capture, *capture) {
	t.Helper()
	l := loop.New(nil)
	src := NewSource(l, SourceConfig{HighWaterMark: srcHWM, Mode: mode})
	dst := NewSink(l, SinkConfig{HighWaterMark: sinkHWM})
	srcEvents, sinkEvents := &capture{}, &capture{}
	src.Observe(srcEvents.handler)
	dst.Observe(sinkEvents.handler)
	return l, src, dst, srcEvents, sinkEvents
}

func chunks(n int) []string {
	out := make([]string, n)
	for k := range n {
		out[k] = fmt.Sprintf("<< Data chunk # %d >>", k)
	}
	return out
}

// TestPipeDeliversInOrderDataMode verifies the flowing pipe preserves order, drains, and finishes last.
func TestPipeDeliversInOrderDataMode(t *testing.T) {
	t.Parallel()

	l, src, dst, srcEvents, sinkEvents := newPair(t, ModeData, 16, 16)
	_, err := Connect(src, dst)
	require.NoError(t, err)

	want := chunks(30)
	accepted := 0
	for _, c := range want {
		ok, err := src.Enqueue(String(c))
		require.NoError(t, err)
		if ok {
			accepted++
		}
	}
	require.Equal(t, 15, accepted)
	src.SignalEnd()

	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, want, dst.Buffer())

	require.Len(t, srcEvents.kinds, 31)
	require.Equal(t, "end", srcEvents.kinds[30])
	require.NotContains(t, srcEvents.kinds, "readable")

	require.Equal(t, "pipe", sinkEvents.kinds[0])
	require.Equal(t, "finish", sinkEvents.kinds[len(sinkEvents.kinds)-1])
	require.Equal(t, 30, countKind(sinkEvents.kinds, "update"))
	require.Equal(t, 1, countKind(sinkEvents.kinds, "drain"))
	require.Equal(t, 1, countKind(sinkEvents.kinds, "unpipe"))
}

// TestPipeDeliversInOrderReadableMode verifies pull consumption fires readable and never data.
func TestPipeDeliversInOrderReadableMode(t *testing.T) {
	t.Parallel()

	l, src, dst, srcEvents, sinkEvents := newPair(t, ModeReadable, 16, 4)
	_, err := Connect(src, dst)
	require.NoError(t, err)

	want := chunks(10)
	for _, c := range want {
		_, err := src.Enqueue(String(c))
		require.NoError(t, err)
	}
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))

	require.Equal(t, want, dst.Buffer())
	require.Equal(t, []string{"readable", "end"}, srcEvents.kinds)
	require.Equal(t, 10, countKind(sinkEvents.kinds, "update"))
	require.Equal(t, 2, countKind(sinkEvents.kinds, "drain"))
	require.Equal(t, "finish", sinkEvents.kinds[len(sinkEvents.kinds)-1])
}

// TestReadableFiresOnEachEmptyToNonEmptyTransition enqueues across loop runs.
func TestReadableFiresOnEachEmptyToNonEmptyTransition(t *testing.T) {
	t.Parallel()

	l, src, dst, srcEvents, _ := newPair(t, ModeReadable, 4, 4)
	_, err := Connect(src, dst)
	require.NoError(t, err)

	for round := range 3 {
		_, err := src.Enqueue(String(fmt.Sprint(round)))
		require.NoError(t, err)
		_, err = src.Enqueue(String(fmt.Sprint(round)))
		require.NoError(t, err)
		require.NoError(t, l.Run(context.Background()))
	}
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))

	require.Equal(t, []string{"readable", "readable", "readable", "end"}, srcEvents.kinds)
	require.Equal(t, []string{"0", "0", "1", "1", "2", "2"}, dst.Buffer())
}

// TestSignalEndIsIdempotent checks a second SignalEnd produces no extra terminal notification.
func TestSignalEndIsIdempotent(t *testing.T) {
	t.Parallel()

	l, src, dst, srcEvents, sinkEvents := newPair(t, ModeData, 0, 0)
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(String("only"))
	require.NoError(t, err)
	src.SignalEnd()
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))

	require.Equal(t, 1, countKind(srcEvents.kinds, "end"))
	require.Equal(t, 1, countKind(sinkEvents.kinds, "finish"))
}

// TestEnqueueAfterEndFails ensures late units are rejected and never reach the sink.
func TestEnqueueAfterEndFails(t *testing.T) {
	t.Parallel()

	l, src, dst, _, _ := newPair(t, ModeData, 0, 0)
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(String("first"))
	require.NoError(t, err)
	src.SignalEnd()

	ok, err := src.Enqueue(String("late"))
	require.ErrorIs(t, err, ErrInvalidState)
	require.False(t, ok)

	require.NoError(t, l.Run(context.Background()))
	_, err = src.Enqueue(String("later"))
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, []string{"first"}, dst.Buffer())
}

// TestZeroUnitsFinishOnce covers an immediate end with nothing enqueued.
func TestZeroUnitsFinishOnce(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeData, ModeReadable} {
		l, src, dst, srcEvents, sinkEvents := newPair(t, mode, 0, 0)
		_, err := Connect(src, dst)
		require.NoError(t, err)
		src.SignalEnd()
		require.NoError(t, l.Run(context.Background()))

		require.Equal(t, []string{}, dst.Buffer(), mode.String())
		require.Equal(t, []string{"end"}, srcEvents.kinds, mode.String())
		require.Equal(t, []string{"pipe", "unpipe", "finish"}, sinkEvents.kinds, mode.String())
	}
}

// TestDecodeFailureDropsUnit verifies a malformed hint emits error and the run continues.
func TestDecodeFailureDropsUnit(t *testing.T) {
	t.Parallel()

	l, src, dst, _, sinkEvents := newPair(t, ModeData, 0, 0)
	var handled []error
	require.NoError(t, dst.On(KindError, func(ev Event) {
		handled = append(handled, ev.(ErrorEvent).Err)
	}))
	_, err := Connect(src, dst)
	require.NoError(t, err)

	_, err = src.Enqueue(String("a"))
	require.NoError(t, err)
	_, err = src.Enqueue(Encoded([]byte("b"), "no-such-encoding"))
	require.NoError(t, err)
	_, err = src.Enqueue(String("c"))
	require.NoError(t, err)
	src.SignalEnd()

	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []string{"a", "c"}, dst.Buffer())
	require.Len(t, handled, 1)
	var decodeErr *DecodeError
	require.ErrorAs(t, handled[0], &decodeErr)
	require.Equal(t, "no-such-encoding", decodeErr.Encoding)
	require.Equal(t, 1, countKind(sinkEvents.kinds, "error"))
	require.Equal(t, "finish", sinkEvents.kinds[len(sinkEvents.kinds)-1])
}

// TestUnhandledErrorIsFatal asserts an error with no handler stops the loop.
func TestUnhandledErrorIsFatal(t *testing.T) {
	t.Parallel()

	l, src, dst, _, sinkEvents := newPair(t, ModeData, 0, 0)
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(Encoded([]byte("x"), "bogus"))
	require.NoError(t, err)
	_, err = src.Enqueue(String("never"))
	require.NoError(t, err)
	src.SignalEnd()

	err = l.Run(context.Background())
	var unhandled *UnhandledError
	require.ErrorAs(t, err, &unhandled)
	require.Equal(t, "sink", unhandled.Component)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Empty(t, dst.Buffer())
	require.Contains(t, sinkEvents.kinds, "error")
}

// TestResumeWithoutPipe lets data handlers alone consume a source.
func TestResumeWithoutPipe(t *testing.T) {
	t.Parallel()

	l := loop.New(nil)
	src := NewSource(l, SourceConfig{})
	var got []string
	require.NoError(t, src.On(KindData, func(ev Event) {
		got = append(got, ev.(DataEvent).Unit.String())
	}))
	ended := false
	require.NoError(t, src.On(KindEnd, func(Event) { ended = true }))

	_, err := src.Enqueue(String("x"))
	require.NoError(t, err)
	require.NoError(t, l.Run(context.Background()))
	require.Empty(t, got, "no consumer yet")

	require.NoError(t, src.Resume())
	_, err = src.Enqueue(String("y"))
	require.NoError(t, err)
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []string{"x", "y"}, got)
	require.True(t, ended)

	readable := NewSource(l, SourceConfig{Mode: ModeReadable})
	require.ErrorIs(t, readable.Resume(), ErrInvalidState)
}

// TestRequestNextManualPull drives a readable source from its readable handler.
func TestRequestNextManualPull(t *testing.T) {
	t.Parallel()

	l := loop.New(nil)
	src := NewSource(l, SourceConfig{Mode: ModeReadable})
	var got []string
	require.NoError(t, src.On(KindReadable, func(Event) {
		for {
			u, ok, err := src.RequestNext()
			require.NoError(t, err)
			if !ok {
				return
			}
			got = append(got, u.String())
		}
	}))
	for _, c := range []string{"a", "b"} {
		_, err := src.Enqueue(String(c))
		require.NoError(t, err)
	}
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []string{"a", "b"}, got)
	require.Zero(t, src.Buffered())
}

// TestRequestNextWhilePipedFails keeps a manual pull from stealing units the
// pipe owes the sink.
func TestRequestNextWhilePipedFails(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeData, ModeReadable} {
		l, src, dst, srcEvents, _ := newPair(t, mode, 0, 0)
		_, err := Connect(src, dst)
		require.NoError(t, err)
		for _, c := range []string{"a", "b"} {
			_, err := src.Enqueue(String(c))
			require.NoError(t, err)
		}

		_, ok, err := src.RequestNext()
		require.ErrorIs(t, err, ErrInvalidState, mode.String())
		require.False(t, ok)
		require.Equal(t, 2, src.Buffered())
		require.Empty(t, srcEvents.kinds, mode.String())

		src.SignalEnd()
		require.NoError(t, l.Run(context.Background()))
		require.Equal(t, []string{"a", "b"}, dst.Buffer(), mode.String())

		// After the pipe is gone the source is free to be pulled again.
		_, ok, err = src.RequestNext()
		require.NoError(t, err, mode.String())
		require.False(t, ok)
	}
}

// TestConnectRejectsSecondPipe keeps pipelines single-stage.
func TestConnectRejectsSecondPipe(t *testing.T) {
	t.Parallel()

	l := loop.New(nil)
	src := NewSource(l, SourceConfig{})
	dst := NewSink(l, SinkConfig{})
	got, err := Connect(src, dst)
	require.NoError(t, err)
	require.Same(t, dst, got)

	_, err = Connect(src, NewSink(l, SinkConfig{Name: "other"}))
	require.ErrorIs(t, err, ErrAlreadyPiped)
	_, err = Connect(NewSource(l, SourceConfig{Name: "other"}), dst)
	require.ErrorIs(t, err, ErrAlreadyPiped)
}

// TestUnpipeStopsDelivery detaches the sink before the loop runs.
func TestUnpipeStopsDelivery(t *testing.T) {
	t.Parallel()

	l, src, dst, _, sinkEvents := newPair(t, ModeData, 0, 0)
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(String("held"))
	require.NoError(t, err)
	require.NoError(t, src.Unpipe())
	require.NoError(t, l.Run(context.Background()))

	require.Empty(t, dst.Buffer())
	require.Equal(t, 1, src.Buffered())
	require.Equal(t, []string{"pipe", "unpipe"}, sinkEvents.kinds)
	require.NoError(t, src.Unpipe())
}

// TestDestroyEmitsCloseLast verifies destroy ordering and that nothing follows close.
func TestDestroyEmitsCloseLast(t *testing.T) {
	t.Parallel()

	l, src, dst, srcEvents, sinkEvents := newPair(t, ModeData, 0, 0)
	require.NoError(t, src.On(KindError, func(Event) {}))
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(String("dropped"))
	require.NoError(t, err)

	require.NoError(t, src.Destroy(errors.New("aborted")))
	require.NoError(t, src.Destroy(nil))
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))

	require.Equal(t, []string{"error", "close"}, srcEvents.kinds)
	require.Equal(t, []string{"pipe", "unpipe"}, sinkEvents.kinds)
	_, err = src.Enqueue(String("late"))
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, dst.Destroy(nil))
	require.Equal(t, []string{"pipe", "unpipe", "close"}, sinkEvents.kinds)
	_, err = dst.Write(String("late"))
	require.ErrorIs(t, err, ErrInvalidState)
}

// TestDestroyUnhandledError reports an unhandled destroy error to the caller.
func TestDestroyUnhandledError(t *testing.T) {
	t.Parallel()

	l := loop.New(nil)
	dst := NewSink(l, SinkConfig{})
	var unhandled *UnhandledError
	require.ErrorAs(t, dst.Destroy(errors.New("boom")), &unhandled)
}

// TestOnRejectsForeignKinds checks the dispatch table only accepts component kinds.
func TestOnRejectsForeignKinds(t *testing.T) {
	t.Parallel()

	l := loop.New(nil)
	src := NewSource(l, SourceConfig{})
	dst := NewSink(l, SinkConfig{})
	require.ErrorIs(t, src.On(KindUpdate, func(Event) {}), ErrUnsupportedKind)
	require.ErrorIs(t, dst.On(KindData, func(Event) {}), ErrUnsupportedKind)
	require.ErrorIs(t, dst.On(Kind(99), func(Event) {}), ErrUnsupportedKind)
	require.NoError(t, dst.On(KindUpdate, nil))
	require.ElementsMatch(t, SourceKinds, src.Kinds())
	require.ElementsMatch(t, SinkKinds, dst.Kinds())
}

// TestUpdateHandlersSeeDecodedData checks the update payload carries the decoded form.
func TestUpdateHandlersSeeDecodedData(t *testing.T) {
	t.Parallel()

	l, src, dst, _, _ := newPair(t, ModeData, 0, 0)
	var updates []string
	require.NoError(t, dst.On(KindUpdate, func(ev Event) {
		updates = append(updates, ev.(UpdateEvent).Data)
	}))
	_, err := Connect(src, dst)
	require.NoError(t, err)
	_, err = src.Enqueue(Encoded([]byte{0xde, 0xad}, "hex"))
	require.NoError(t, err)
	src.SignalEnd()
	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []string{"dead"}, updates)
	require.Equal(t, updates, dst.Buffer())
}

func countKind(kinds []string, kind string) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/deferlink/internal/errs"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer { return &fakeTimer{c: make(chan time.Time, 1)} }

func (f *fakeTimer) Start(d time.Duration) {
	f.waits = append(f.waits, d)
	f.c <- time.Now()
}
func (f *fakeTimer) Stop()               {}
func (f *fakeTimer) C() <-chan time.Time { return f.c }

func newTestController(t *testing.T, ft *fakeTimer, opts ...Option) *Controller {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithTimer(func() backoff.Timer { return ft }),
	}
	return New(append(base, opts...)...)
}

// scripted returns the i-th response on the i-th call.
type scripted struct {
	calls int
	errs  []error
	body  []byte
}

func (s *scripted) op(ctx context.Context) ([]byte, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.body, nil
}

func TestDo_TerminalNotFound_SingleCall(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft)
	s := &scripted{errs: []error{&errs.StatusError{Code: 404}}}

	body, err := c.Do(context.Background(), s.op)
	require.Nil(t, body)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.True(t, errs.IsTerminal(err))
	require.NotErrorIs(t, err, errs.ErrExhausted)
	require.Equal(t, 1, s.calls)
	require.Empty(t, ft.waits)
}

func TestDo_ServerErrorThenOK_TwoCalls(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft)
	s := &scripted{errs: []error{&errs.StatusError{Code: 500}}, body: []byte(`{"ok":true}`)}

	body, err := c.Do(context.Background(), s.op)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(body))
	require.Equal(t, 2, s.calls)
	require.Len(t, ft.waits, 1)
	require.GreaterOrEqual(t, ft.waits[0], 2*time.Second)
	require.Less(t, ft.waits[0], 2*time.Second+time.Millisecond)
}

func TestDo_ThreeTimeouts_Exhausted(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft, WithTimeout(5*time.Millisecond))
	calls := 0
	op := func(ctx context.Context) ([]byte, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := c.Do(context.Background(), op)
	require.ErrorIs(t, err, errs.ErrExhausted)
	require.ErrorIs(t, err, errs.ErrTimeout)
	require.Equal(t, 3, calls)
	require.Len(t, ft.waits, 2)
	require.GreaterOrEqual(t, ft.waits[0], 2*time.Second)
	require.GreaterOrEqual(t, ft.waits[1], 4*time.Second)
}

func TestDo_TransportErrors_Exhausted(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft)
	boom := errors.New("dial tcp: connection refused")
	s := &scripted{errs: []error{boom, &errs.StatusError{Code: 503}, boom}}

	_, err := c.Do(context.Background(), s.op)
	require.ErrorIs(t, err, errs.ErrExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, s.calls)
}

func TestDo_TerminalAfterRetryable_Stops(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft)
	s := &scripted{errs: []error{&errs.StatusError{Code: 502}, &errs.StatusError{Code: 400}}}

	_, err := c.Do(context.Background(), s.op)
	require.True(t, errs.IsTerminal(err))
	require.Equal(t, 2, s.calls)
}

func TestDo_CancelAbandonsAttempts(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	op := func(context.Context) ([]byte, error) {
		calls++
		cancel()
		return nil, &errs.StatusError{Code: 500}
	}

	_, err := c.Do(ctx, op)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, errs.ErrExhausted)
	require.Equal(t, 1, calls)
	require.Empty(t, ft.waits)
}

func TestDo_AlreadyCanceled_NoCall(t *testing.T) {
	t.Parallel()

	c := newTestController(t, newFakeTimer())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scripted{}

	_, err := c.Do(ctx, s.op)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, s.calls)
}

func TestDo_MaxAttemptsOption(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft, WithMaxAttempts(1))
	s := &scripted{errs: []error{&errs.StatusError{Code: 500}}}

	_, err := c.Do(context.Background(), s.op)
	require.ErrorIs(t, err, errs.ErrExhausted)
	require.Equal(t, 1, s.calls)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c := New(WithTimeout(-1), WithMaxAttempts(0), WithJitter(3))
	require.Equal(t, DefaultMaxAttempts, c.maxAttempts)
	require.Equal(t, DefaultMaxAttempts, New(WithMaxAttempts(40)).maxAttempts)
	require.Equal(t, DefaultTimeout, c.timeout)
	require.Equal(t, DefaultInitialBackoff, c.initial)
	require.Zero(t, c.jitter)
}

func TestDo_WaitsCappedAtFourSeconds(t *testing.T) {
	t.Parallel()

	ft := newFakeTimer()
	c := newTestController(t, ft, WithMaxAttempts(40))
	s := &scripted{errs: []error{
		&errs.StatusError{Code: 503}, &errs.StatusError{Code: 503}, &errs.StatusError{Code: 503},
		&errs.StatusError{Code: 503}, &errs.StatusError{Code: 503},
	}}

	_, err := c.Do(context.Background(), s.op)
	require.ErrorIs(t, err, errs.ErrExhausted)
	require.Equal(t, DefaultMaxAttempts, s.calls)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, ft.waits)
}

func TestLastWait(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2*time.Second, lastWait(2*time.Second, 1))
	require.Equal(t, 2*time.Second, lastWait(2*time.Second, 2))
	require.Equal(t, 4*time.Second, lastWait(2*time.Second, 3))
}

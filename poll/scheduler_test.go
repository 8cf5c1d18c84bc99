package poll_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/detect"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/poll"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu  sync.Mutex
	err error
}

func (f *fakeTokens) GetAccessToken(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "A1", nil
}

func (f *fakeTokens) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeDetector struct {
	ticks    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration
	release  chan struct{} // when set, the first tick blocks until closed
	panicOn  int32
	err      error
	attrs    chan attribution.Attrs
}

func (f *fakeDetector) Tick(ctx context.Context, userID, accessToken string, attrs attribution.Attrs) (detect.Result, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.inFlight.Add(-1)

	n := f.ticks.Add(1)
	if f.attrs != nil {
		select {
		case f.attrs <- attrs:
		default:
		}
	}
	if f.release != nil && n == 1 {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn == n {
		panic("boom")
	}
	return detect.Result{CreatedID: "60", CreationWritten: true}, f.err
}

type staticAttrs attribution.Attrs

func (s staticAttrs) Attribution(userID string) attribution.Attrs {
	return attribution.Attrs(s)
}

func shutdown(t *testing.T, s *poll.Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	det := &fakeDetector{}
	s := poll.New(&fakeTokens{}, det, nil, poll.WithInterval(time.Hour))
	defer shutdown(t, s)

	require.True(t, s.Start("s1"))
	require.False(t, s.Start("s1"))
	require.True(t, s.Running("s1"))

	require.Eventually(t, func() bool { return det.ticks.Load() == 1 }, time.Second, 5*time.Millisecond)

	st, ok := s.Status("s1")
	require.True(t, ok)
	require.Equal(t, 1, st.Ticks)
	require.NotNil(t, st.LastResult)
	require.Equal(t, "60", st.LastResult.CreatedID)
}

func TestScheduler_TicksDoNotOverlap(t *testing.T) {
	det := &fakeDetector{delay: 20 * time.Millisecond}
	s := poll.New(&fakeTokens{}, det, nil, poll.WithInterval(time.Millisecond))
	defer shutdown(t, s)

	s.Start("s1")
	s.Start("s1")
	require.Eventually(t, func() bool { return det.ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, det.overlap.Load())
}

func TestScheduler_RestartWaitsForInFlightTick(t *testing.T) {
	tests := []struct {
		name string
		halt func(s *poll.Scheduler)
	}{
		{"stop", func(s *poll.Scheduler) { s.Stop("s1") }},
		{"forget", func(s *poll.Scheduler) { s.Forget("s1") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{release: make(chan struct{})}
			s := poll.New(&fakeTokens{}, det, nil, poll.WithInterval(time.Millisecond))
			defer shutdown(t, s)

			require.True(t, s.Start("s1"))
			require.Eventually(t, func() bool { return det.inFlight.Load() == 1 }, time.Second, time.Millisecond)

			tt.halt(s)
			require.True(t, s.Start("s1"))
			// A loop stopped before its first tick must not release the next one.
			tt.halt(s)
			require.True(t, s.Start("s1"))
			time.Sleep(30 * time.Millisecond)
			require.Equal(t, int32(1), det.ticks.Load())

			close(det.release)
			require.Eventually(t, func() bool { return det.ticks.Load() >= 3 }, time.Second, time.Millisecond)
			require.False(t, det.overlap.Load())
			require.True(t, s.Running("s1"))
		})
	}
}

func TestScheduler_StopEndsLoop(t *testing.T) {
	det := &fakeDetector{}
	s := poll.New(&fakeTokens{}, det, nil, poll.WithInterval(5*time.Millisecond))
	defer shutdown(t, s)

	s.Start("s1")
	require.Eventually(t, func() bool { return det.ticks.Load() >= 2 }, time.Second, time.Millisecond)

	s.Stop("s1")
	require.False(t, s.Running("s1"))
	settled := det.ticks.Load()
	time.Sleep(30 * time.Millisecond)
	require.LessOrEqual(t, det.ticks.Load(), settled+1)

	st, ok := s.Status("s1")
	require.True(t, ok)
	require.False(t, st.Running)

	t.Run("restart after stop", func(t *testing.T) {
		require.True(t, s.Start("s1"))
		require.True(t, s.Running("s1"))
	})

	t.Run("forget drops status", func(t *testing.T) {
		s.Forget("s1")
		_, ok := s.Status("s1")
		require.False(t, ok)
	})
}

func TestScheduler_AuthErrorStopsLoop(t *testing.T) {
	tokens := &fakeTokens{}
	tokens.fail(apperrors.ErrRefreshFailed)
	det := &fakeDetector{}
	s := poll.New(tokens, det, nil, poll.WithInterval(time.Millisecond))
	defer shutdown(t, s)

	s.Start("s1")
	require.Eventually(t, func() bool { return !s.Running("s1") }, time.Second, time.Millisecond)

	st, _ := s.Status("s1")
	require.Equal(t, 1, st.Failures)
	require.Contains(t, st.LastError, apperrors.ErrRefreshFailed.Error())
	require.Zero(t, det.ticks.Load())
}

func TestScheduler_FailuresKeepLooping(t *testing.T) {
	det := &fakeDetector{err: errors.New("write failed"), panicOn: 2}
	s := poll.New(&fakeTokens{}, det, nil, poll.WithInterval(time.Millisecond))
	defer shutdown(t, s)

	s.Start("s1")
	require.Eventually(t, func() bool { return det.ticks.Load() >= 4 }, time.Second, time.Millisecond)
	require.True(t, s.Running("s1"))

	st, _ := s.Status("s1")
	require.GreaterOrEqual(t, st.Failures, 3)
}

func TestScheduler_PassesSessionAttribution(t *testing.T) {
	det := &fakeDetector{attrs: make(chan attribution.Attrs, 1)}
	source := staticAttrs{attribution.Campaign: "spring"}
	s := poll.New(&fakeTokens{}, det, source, poll.WithInterval(time.Hour))
	defer shutdown(t, s)

	s.Start("s1")
	select {
	case attrs := <-det.attrs:
		require.Equal(t, "spring", attrs.Get(attribution.Campaign))
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
}

func TestScheduler_ShutdownRejectsNewLoops(t *testing.T) {
	s := poll.New(&fakeTokens{}, &fakeDetector{}, nil, poll.WithInterval(time.Hour))
	s.Start("s1")
	shutdown(t, s)

	require.False(t, s.Running("s1"))
	require.False(t, s.Start("s2"))
}

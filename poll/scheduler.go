// Package poll runs one supervised change-detection loop per authorized user.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/detect"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"github.com/ranaawaisahmad/utmApp/internal/metrics"
	"github.com/rs/zerolog"
)

const DefaultInterval = 2 * time.Second

// TokenSource hands out a valid access token for a user.
type TokenSource interface {
	GetAccessToken(ctx context.Context, userID string) (string, error)
}

// Detector runs one change-detection cycle.
type Detector interface {
	Tick(ctx context.Context, userID, accessToken string, attrs attribution.Attrs) (detect.Result, error)
}

// AttributionSource returns the attribution values captured for a user.
type AttributionSource interface {
	Attribution(userID string) attribution.Attrs
}

// Status is the observable state of one user's loop.
type Status struct {
	UserID     string         `json:"user_id"`
	Running    bool           `json:"running"`
	StartedAt  time.Time      `json:"started_at"`
	LastTickAt time.Time      `json:"last_tick_at,omitzero"`
	LastResult *detect.Result `json:"last_result,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Ticks      int            `json:"ticks"`
	Failures   int            `json:"failures"`
}

type loop struct {
	stopCh chan struct{}
	done   chan struct{}
	status Status
}

type Scheduler struct {
	tokens   TokenSource
	detector Detector
	attrs    AttributionSource
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	nowFunc  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	loops map[string]*loop
	// draining holds forgotten loops whose last tick may still be running.
	draining map[string]*loop
	closed   bool
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.nowFunc = now
	}
}

func New(tokens TokenSource, detector Detector, attrs AttributionSource, options ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tokens:   tokens,
		detector: detector,
		attrs:    attrs,
		interval: DefaultInterval,
		logger:   zerolog.Nop(),
		nowFunc:  time.Now,
		ctx:      ctx,
		cancel:   cancel,
		loops:    make(map[string]*loop),
		draining: make(map[string]*loop),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start begins polling for userID. It reports false when a loop is already
// running for that user or the scheduler has been shut down.
func (s *Scheduler) Start(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if l, ok := s.loops[userID]; ok && l.status.Running {
		return false
	}

	prev := s.loops[userID]
	if prev == nil {
		prev = s.draining[userID]
	}
	l := &loop{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		status: Status{UserID: userID, Running: true, StartedAt: s.nowFunc()},
	}
	s.loops[userID] = l
	s.wg.Add(1)
	go s.run(userID, l, prev)

	s.logger.Info().Str("user_id", userID).Dur("interval", s.interval).Msg("poll loop started")
	s.reportLoops()
	return true
}

// Stop ends userID's loop. A tick already in progress completes, no further
// tick starts. The last status stays readable.
func (s *Scheduler) Stop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(userID, "stopped")
}

// Forget stops userID's loop and drops its status.
func (s *Scheduler) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(userID, "forgotten")
	if l, ok := s.loops[userID]; ok {
		delete(s.loops, userID)
		select {
		case <-l.done:
		default:
			s.draining[userID] = l
		}
	}
}

func (s *Scheduler) Running(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[userID]
	return ok && l.status.Running
}

func (s *Scheduler) Status(userID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loops[userID]
	if !ok {
		return Status{}, false
	}
	return copyStatus(l.status), true
}

// Shutdown stops every loop and waits for in-flight ticks. When ctx ends
// first the remaining ticks are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for userID := range s.loops {
		s.stopLocked(userID, "shutdown")
	}
	s.mu.Unlock()
	defer s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) stopLocked(userID, reason string) {
	l, ok := s.loops[userID]
	if !ok || !l.status.Running {
		return
	}
	l.status.Running = false
	close(l.stopCh)
	s.logger.Info().Str("user_id", userID).Str("reason", reason).Msg("poll loop stopped")
	s.reportLoops()
}

// run drives one loop. The first tick waits until prev, the user's previous
// loop, has exited, and l is not reported done before prev is, so ticks of
// one user never overlap across restarts.
func (s *Scheduler) run(userID string, l *loop, prev *loop) {
	defer s.wg.Done()
	defer func() {
		if prev != nil {
			<-prev.done
		}
		s.mu.Lock()
		if s.draining[userID] == l {
			delete(s.draining, userID)
		}
		close(l.done)
		s.mu.Unlock()
	}()

	if prev != nil {
		select {
		case <-s.ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-prev.done:
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-timer.C:
		}

		if authErr := s.tick(userID, l); authErr != nil {
			s.mu.Lock()
			if s.loops[userID] == l {
				s.stopLocked(userID, "unauthorized")
			}
			s.mu.Unlock()
			return
		}
		timer.Reset(s.interval)
	}
}

// tick runs one cycle and records its outcome. It returns the error when the
// user is no longer authorized.
func (s *Scheduler) tick(userID string, l *loop) (authErr error) {
	log := s.logger.With().Str("user_id", userID).Str("tick_id", uuid.NewString()).Logger()

	res, err := s.safeTick(userID)
	outcome := "success"
	switch {
	case apperrors.IsAuthError(err):
		outcome = "unauthorized"
		authErr = err
		log.Warn().Err(err).Msg("session no longer authorized")
	case err != nil:
		outcome = "failure"
		log.Error().Err(err).Msg("poll tick failed")
	}

	s.mu.Lock()
	l.status.Ticks++
	l.status.LastTickAt = s.nowFunc()
	if res != nil {
		l.status.LastResult = res
	}
	l.status.LastError = ""
	if err != nil {
		l.status.Failures++
		l.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordPollTick(outcome)
		if res != nil && res.UpdatedID != "" {
			s.metrics.RecordClassification(res.Classification.String())
		}
	}
	return authErr
}

func (s *Scheduler) safeTick(userID string) (res *detect.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("poll tick panicked: %v", r)
		}
	}()

	accessToken, err := s.tokens.GetAccessToken(s.ctx, userID)
	if err != nil {
		return nil, err
	}
	var attrs attribution.Attrs
	if s.attrs != nil {
		attrs = s.attrs.Attribution(userID)
	}
	result, err := s.detector.Tick(s.ctx, userID, accessToken, attrs)
	if apperrors.Is(err, apperrors.ErrFetch) {
		return nil, err
	}
	return &result, err
}

func (s *Scheduler) reportLoops() {
	if s.metrics == nil {
		return
	}
	n := 0
	for _, l := range s.loops {
		if l.status.Running {
			n++
		}
	}
	s.metrics.SetActiveLoops(n)
}

func copyStatus(st Status) Status {
	if st.LastResult != nil {
		res := *st.LastResult
		st.LastResult = &res
	}
	return st
}

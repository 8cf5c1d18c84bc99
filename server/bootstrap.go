package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ranaawaisahmad/utmApp/attribution"
	"github.com/ranaawaisahmad/utmApp/crm"
	"github.com/ranaawaisahmad/utmApp/detect"
	"github.com/ranaawaisahmad/utmApp/internal/config"
	"github.com/ranaawaisahmad/utmApp/internal/metrics"
	"github.com/ranaawaisahmad/utmApp/oauth"
	"github.com/ranaawaisahmad/utmApp/poll"
	"github.com/ranaawaisahmad/utmApp/server/authflowrepo"
	"github.com/ranaawaisahmad/utmApp/server/loginsession"
	"github.com/ranaawaisahmad/utmApp/token"
	"github.com/ranaawaisahmad/utmApp/token/refresh"
	refreshrepofake "github.com/ranaawaisahmad/utmApp/token/refresh/repofake"
	"github.com/ranaawaisahmad/utmApp/token/refresh/sqlite"
	"github.com/rs/zerolog"
)

const tokenDBFile = "tokens.db"

// App is the fully wired service.
type App struct {
	Server    *Server
	Scheduler *poll.Scheduler
	Tokens    *token.Manager
	Metrics   *metrics.Metrics

	detector      *detect.Detector
	provisioner   *attribution.Provisioner
	loginSessions loginsession.Repo
	authFlows     authflowrepo.Repo
	maxSessionAge time.Duration
	logger        zerolog.Logger
	closers       []func() error
}

type BootstrapOption func(*bootstrapOptions)

type bootstrapOptions struct {
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// WithHTTPClient sets the client used for the CRM and its token endpoint.
func WithHTTPClient(client *http.Client) BootstrapOption {
	return func(o *bootstrapOptions) {
		o.httpClient = client
	}
}

func WithMetrics(m *metrics.Metrics) BootstrapOption {
	return func(o *bootstrapOptions) {
		o.metrics = m
	}
}

// Bootstrap wires the token store, CRM client, detector, scheduler and HTTP
// server from c.
func Bootstrap(c config.Config, logger zerolog.Logger, options ...BootstrapOption) (*App, error) {
	opts := bootstrapOptions{httpClient: &http.Client{}}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.metrics == nil {
		opts.metrics = metrics.NewMetrics("utmapp")
	}
	m := opts.metrics

	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("[Bootstrap] %w", err)
	}

	app := &App{
		Metrics:       m,
		maxSessionAge: c.GetMaxSessionAge(),
		logger:        logger,
	}

	repo, err := app.openRefreshRepo(c)
	if err != nil {
		return nil, err
	}

	exchanger := oauth.NewFromConfig(c,
		oauth.WithHTTPClient(opts.httpClient),
		oauth.WithTimeout(c.GetCallTimeout()),
	)
	app.Tokens = token.New(repo, exchanger,
		token.WithAccessTokenTTL(c.GetAccessTokenTTL()),
		token.WithLogger(logger.With().Str("component", "token").Logger()),
		token.WithRefreshObserver(m.RecordTokenRefresh),
	)

	client := crm.NewClient(crm.ClientOptions{
		BaseURL:     c.GetAPIBaseURL(),
		HTTPClient:  opts.httpClient,
		CallTimeout: c.GetCallTimeout(),
		UserAgent:   c.GetAppName(),
	})
	writer := attribution.NewWriter(client,
		attribution.WithLogger(logger.With().Str("component", "attribution").Logger()),
		attribution.WithWriteObserver(m.RecordAttributionWrite),
	)
	app.provisioner = attribution.NewProvisioner(client, logger.With().Str("component", "provisioner").Logger())
	app.detector = detect.New(client, writer, detect.WithLogger(logger.With().Str("component", "detect").Logger()))

	app.loginSessions = loginsession.NewInMemoryLoginSessionRepo()
	app.authFlows = authflowrepo.NewInMemoryRepo()

	app.Scheduler = poll.New(app.Tokens, app.detector,
		NewSessionAttribution(app.loginSessions, c.GetDefaultLandingURL()),
		poll.WithInterval(c.GetPollInterval()),
		poll.WithLogger(logger.With().Str("component", "poll").Logger()),
		poll.WithMetrics(m),
	)

	app.Server, err = New(c, Dependencies{
		Tokens:        app.Tokens,
		Exchanger:     exchanger,
		Provisioner:   app.provisioner,
		Scheduler:     app.Scheduler,
		LoginSessions: app.loginSessions,
		AuthFlows:     app.authFlows,
		Metrics:       m,
	})
	if err != nil {
		_ = app.close()
		return nil, err
	}
	return app, nil
}

func (a *App) openRefreshRepo(c config.Config) (refresh.Repo, error) {
	if c.GetTokenStore() != config.TokenStoreSQLite {
		return refreshrepofake.NewFakeRefreshTokenRepo(), nil
	}
	folder := c.GetDataFolder()
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("[Bootstrap] failed to create data folder %s: %w", folder, err)
	}
	repo, err := sqlite.Open(filepath.Join(folder, tokenDBFile))
	if err != nil {
		return nil, fmt.Errorf("[Bootstrap] failed to open token store: %w", err)
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

// Sweep evicts sessions idle for longer than the configured session age,
// stopping their loops and dropping their tokens, and expires stale OAuth
// states. It returns the evicted session IDs.
func (a *App) Sweep(now time.Time) []string {
	cutoff := now.Add(-a.maxSessionAge)

	evicted := make(map[string]struct{})
	idleTokens, err := a.Tokens.EvictIdle(a.maxSessionAge)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to evict idle tokens")
	}
	idleSessions, err := a.loginSessions.DeleteIdleSince(cutoff)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to evict idle sessions")
	}
	for _, id := range append(idleTokens, idleSessions...) {
		evicted[id] = struct{}{}
	}

	ids := make([]string, 0, len(evicted))
	for id := range evicted {
		a.Scheduler.Forget(id)
		a.detector.Forget(id)
		a.provisioner.Forget(id)
		a.Tokens.Forget(id)
		_ = a.loginSessions.Delete(id)
		ids = append(ids, id)
	}
	if n, err := a.authFlows.DeleteCreatedBefore(now.Add(-authFlowTTL)); err != nil {
		a.logger.Error().Err(err).Msg("failed to expire oauth states")
	} else if n > 0 {
		a.logger.Debug().Int("count", n).Msg("expired oauth states")
	}
	if len(ids) > 0 {
		a.logger.Info().Strs("session_ids", ids).Msg("evicted idle sessions")
	}
	return ids
}

// RunJanitor sweeps every interval until ctx ends.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.Sweep(now)
		}
	}
}

// Shutdown stops every poll loop and closes the token store.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Scheduler.Shutdown(ctx)
	return errors.Join(err, a.close())
}

func (a *App) close() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	return errors.Join(errs...)
}

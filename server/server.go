package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ranaawaisahmad/utmApp/internal/config"
	"github.com/ranaawaisahmad/utmApp/internal/metrics"
	"github.com/ranaawaisahmad/utmApp/oauth"
	"github.com/ranaawaisahmad/utmApp/poll"
	"github.com/ranaawaisahmad/utmApp/server/authflowrepo"
	"github.com/ranaawaisahmad/utmApp/server/loginsession"
	"github.com/rs/zerolog/log"
)

// TokenStore is the slice of the token manager the handlers use.
type TokenStore interface {
	StoreInitialTokens(userID, accessToken, refreshToken string, ttl time.Duration) error
	IsAuthorized(userID string) bool
	GetAccessToken(ctx context.Context, userID string) (string, error)
	Touch(userID string) error
}

// CodeExchanger starts and completes the authorization code flow.
type CodeExchanger interface {
	AuthCodeURL(state string) string
	ExchangeAuthorizationCode(ctx context.Context, code string) (oauth.Grant, error)
}

// Provisioner makes sure the custom attribution properties exist.
type Provisioner interface {
	Ensure(ctx context.Context, userID, accessToken string) error
}

// Scheduler starts polling and reports its progress.
type Scheduler interface {
	Start(userID string) bool
	Status(userID string) (poll.Status, bool)
}

type Dependencies struct {
	Tokens        TokenStore
	Exchanger     CodeExchanger
	Provisioner   Provisioner
	Scheduler     Scheduler
	LoginSessions loginsession.Repo
	AuthFlows     authflowrepo.Repo
	Metrics       *metrics.Metrics
}

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	nowFunc func() time.Time

	tokens        TokenStore
	exchanger     CodeExchanger
	provisioner   Provisioner
	scheduler     Scheduler
	loginSessions loginsession.Repo
	authFlows     authflowrepo.Repo
	metrics       *metrics.Metrics
	cookies       *SessionCookies
	attribution   *SessionAttribution
}

func New(c config.Config, deps Dependencies) (*Server, error) {
	if deps.Tokens == nil || deps.Exchanger == nil || deps.Scheduler == nil {
		return nil, errors.New("[Server New] tokens, exchanger and scheduler are required")
	}
	if deps.LoginSessions == nil {
		deps.LoginSessions = loginsession.NewInMemoryLoginSessionRepo()
	}
	if deps.AuthFlows == nil {
		deps.AuthFlows = authflowrepo.NewInMemoryRepo()
	}

	cookies, err := NewSessionCookies(c.GetSessionSecret(), c.GetMaxSessionAge())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create session cookies: %w", err)
	}

	s := &Server{
		env:           c.GetEnv(),
		mux:           http.NewServeMux(),
		config:        c,
		nowFunc:       time.Now,
		tokens:        deps.Tokens,
		exchanger:     deps.Exchanger,
		provisioner:   deps.Provisioner,
		scheduler:     deps.Scheduler,
		loginSessions: deps.LoginSessions,
		authFlows:     deps.AuthFlows,
		metrics:       deps.Metrics,
		cookies:       cookies,
		attribution:   NewSessionAttribution(deps.LoginSessions, c.GetDefaultLandingURL()),
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msg(fmt.Sprintf("[%-19s] %s", colouredMethod(method), path))
}

func logError(method, path, error string) {
	log.Error().Msg(fmt.Sprintf("[%-19s] %s %s", colouredMethod(method), path, Red+error+ResetColor))
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

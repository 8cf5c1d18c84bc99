// Package oauth performs the two OAuth2 grant exchanges against the CRM's
// token endpoint.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ranaawaisahmad/utmApp/internal/config"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"golang.org/x/oauth2"
)

// Grant is the normalised result of a token endpoint call.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // Zero when the provider did not say
}

type Exchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	nowFunc    func() time.Time
}

type Option func(*Exchanger)

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Exchanger) {
		e.httpClient = client
	}
}

// WithTimeout bounds each exchange.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Exchanger) {
		e.timeout = timeout
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(e *Exchanger) {
		e.nowFunc = now
	}
}

func New(cfg *oauth2.Config, options ...Option) *Exchanger {
	e := &Exchanger{config: cfg}
	for _, opt := range options {
		opt(e)
	}
	if e.timeout == 0 {
		e.timeout = 5 * time.Second
	}
	if e.nowFunc == nil {
		e.nowFunc = time.Now
	}
	return e
}

// NewFromConfig builds an exchanger for the CRM described by c. Client
// credentials are sent in the request body, which is what HubSpot expects.
func NewFromConfig(c config.CRMConfig, options ...Option) *Exchanger {
	return New(&oauth2.Config{
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetRedirectURI(),
		Scopes:       c.GetScopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.GetAuthURL(),
			TokenURL:  c.GetTokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, options...)
}

// AuthCodeURL is the authorization page the user is sent to.
func (e *Exchanger) AuthCodeURL(state string) string {
	return e.config.AuthCodeURL(state)
}

// ExchangeAuthorizationCode trades the code from the authorization redirect
// for tokens. Failures are not retried; the user has to start over.
func (e *Exchanger) ExchangeAuthorizationCode(ctx context.Context, code string) (Grant, error) {
	if code == "" {
		return Grant{}, fmt.Errorf("%w: empty authorization code", apperrors.ErrExchangeFailed)
	}
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	tok, err := e.config.Exchange(ctx, code)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %s", apperrors.ErrExchangeFailed, describe(err))
	}
	if tok.RefreshToken == "" {
		return Grant{}, fmt.Errorf("%w: response carried no refresh token", apperrors.ErrExchangeFailed)
	}
	return e.grantFrom(tok), nil
}

// ExchangeRefreshToken mints a new access token. The returned grant always
// carries a refresh token: the rotated one, or refreshToken when the provider
// did not rotate it.
func (e *Exchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (Grant, error) {
	if refreshToken == "" {
		return Grant{}, fmt.Errorf("%w: empty refresh token", apperrors.ErrRefreshFailed)
	}
	ctx, cancel := e.callContext(ctx)
	defer cancel()

	tok, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %s", apperrors.ErrRefreshFailed, describe(err))
	}
	grant := e.grantFrom(tok)
	if grant.RefreshToken == "" {
		grant.RefreshToken = refreshToken
	}
	return grant, nil
}

func (e *Exchanger) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Exchanger) grantFrom(tok *oauth2.Token) Grant {
	grant := Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(e.nowFunc()); d > 0 {
			grant.ExpiresIn = d
		}
	}
	return grant
}

func describe(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if retrieveErr.ErrorCode != "" {
			return fmt.Sprintf("status=%d code=%s description=%s", status, retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		return fmt.Sprintf("status=%d body=%s", status, string(retrieveErr.Body))
	}
	return err.Error()
}

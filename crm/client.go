package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
	"golang.org/x/time/rate"
)

const (
	pathRecentlyCreated = "/contacts/v1/lists/recently_created/contacts/recent"
	pathRecentlyUpdated = "/contacts/v1/lists/recently_updated/contacts/recent"
	pathContact         = "/crm/v3/objects/contacts/"
	pathProperties      = "/crm/v3/properties/contacts"

	maxErrorBody = 4 << 10
)

type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// CallTimeout bounds each request, including waiting on the rate limiter.
	CallTimeout time.Duration
	// RequestsPerSecond and Burst pace calls to stay inside the CRM's rate
	// limit. Zero uses HubSpot's documented 100 requests per 10 seconds.
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	callTimeout time.Duration
	limiter     *rate.Limiter
	userAgent   string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.hubapi.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	callTimeout := opts.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		callTimeout: callTimeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		userAgent:   strings.TrimSpace(opts.UserAgent),
	}
}

// RecentlyCreated returns the count most recently created contacts, newest first.
func (c *Client) RecentlyCreated(ctx context.Context, accessToken string, count int) ([]Contact, error) {
	return c.recent(ctx, accessToken, pathRecentlyCreated, count)
}

// RecentlyUpdated returns the count most recently modified contacts, newest first.
func (c *Client) RecentlyUpdated(ctx context.Context, accessToken string, count int) ([]Contact, error) {
	return c.recent(ctx, accessToken, pathRecentlyUpdated, count)
}

func (c *Client) recent(ctx context.Context, accessToken, path string, count int) ([]Contact, error) {
	if count <= 0 {
		count = 1
	}
	q := url.Values{}
	q.Set("count", strconv.Itoa(count))
	q.Add("property", PropertyCreateDate)
	q.Add("property", PropertyLastModifiedDate)

	var out recentContactsResponse
	if err := c.do(ctx, accessToken, http.MethodGet, path+"?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrFetch, path, err)
	}
	return out.toContacts(), nil
}

// GetContact reads one contact with the requested properties.
func (c *Client) GetContact(ctx context.Context, accessToken, contactID string, properties ...string) (Contact, error) {
	path := pathContact + url.PathEscape(contactID)
	if len(properties) > 0 {
		path += "?" + url.Values{"properties": {strings.Join(properties, ",")}}.Encode()
	}
	var out objectResponse
	if err := c.do(ctx, accessToken, http.MethodGet, path, nil, &out); err != nil {
		return Contact{}, fmt.Errorf("%w: contact %s: %w", apperrors.ErrFetch, contactID, err)
	}
	return out.toContact(), nil
}

// UpdateContact writes properties onto a contact. Properties not named are
// left untouched by the CRM.
func (c *Client) UpdateContact(ctx context.Context, accessToken, contactID string, properties map[string]string) error {
	body := map[string]any{"properties": properties}
	if err := c.do(ctx, accessToken, http.MethodPatch, pathContact+url.PathEscape(contactID), body, nil); err != nil {
		return fmt.Errorf("%w: contact %s: %w", apperrors.ErrWrite, contactID, err)
	}
	return nil
}

// CreateProperty defines a custom contact property. It returns
// ErrPropertyExists when the CRM already has a property with that name.
func (c *Client) CreateProperty(ctx context.Context, accessToken string, def PropertyDefinition) error {
	err := c.do(ctx, accessToken, http.MethodPost, pathProperties, def, nil)
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if apperrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", apperrors.ErrPropertyExists, def.Name)
	}
	return fmt.Errorf("create property %s: %w", def.Name, err)
}

// StatusError is a non-2xx CRM response.
type StatusError struct {
	StatusCode int
	Category   string
	Message    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("status=%d category=%s message=%s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("status=%d message=%s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, payload, out any) error {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("access token is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Body:       string(respBody),
		}
		var parsed struct {
			Category string `json:"category"`
			Message  string `json:"message"`
		}
		if json.Unmarshal(respBody, &parsed) == nil {
			statusErr.Category = parsed.Category
			if strings.TrimSpace(parsed.Message) != "" {
				statusErr.Message = parsed.Message
			}
		}
		return statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
